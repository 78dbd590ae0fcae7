package sessions_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-authority/blacklist"
	"github.com/jrsteele09/go-token-authority/notify"
	"github.com/jrsteele09/go-token-authority/sessions"
	"github.com/jrsteele09/go-token-authority/token"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

type recorder struct {
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, e notify.Event) {
	r.events = append(r.events, e)
}

type fixture struct {
	registry  *sessions.Registry
	store     *token.InMemoryStore
	blacklist *blacklist.InMemory
	notifier  *recorder
}

func setupRegistry(t *testing.T) *fixture {
	t.Helper()
	clock := func() time.Time { return now }
	store := token.NewInMemoryStore(token.WithStoreNowFunc(clock))
	bl := blacklist.NewInMemory(blacklist.WithNowFunc(clock))
	rec := &recorder{}

	r, err := sessions.NewRegistry(store, bl,
		sessions.WithNowFunc(clock),
		sessions.WithNotifier(rec),
		sessions.WithBlacklistWindow(30*24*time.Hour),
	)
	require.NoError(t, err)
	return &fixture{registry: r, store: store, blacklist: bl, notifier: rec}
}

func insert(t *testing.T, store token.Store, id, subject, device string, issuedAgo time.Duration, status token.Status) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), &token.Token{
		ID:            id,
		Type:          token.TypeAccess,
		Subject:       subject,
		ApplicationID: "web",
		DeviceID:      device,
		Status:        status,
		IssuedAt:      now.Add(-issuedAgo),
		ExpiresAt:     now.Add(time.Hour - issuedAgo),
	}))
}

func TestRegistry_List(t *testing.T) {
	ctx := context.Background()
	f := setupRegistry(t)
	insert(t, f.store, "laptop-old", "u1", "laptop", 50*time.Minute, token.StatusValid)
	insert(t, f.store, "laptop-new", "u1", "laptop", 10*time.Minute, token.StatusValid)
	insert(t, f.store, "phone", "u1", "phone", 20*time.Minute, token.StatusValid)
	insert(t, f.store, "tablet-revoked", "u1", "tablet", 5*time.Minute, token.StatusRevoked)
	insert(t, f.store, "desk-expired", "u1", "desk", 2*time.Hour, token.StatusValid)
	insert(t, f.store, "anon", "u1", "", 30*time.Minute, token.StatusValid)
	insert(t, f.store, "other-user", "u2", "laptop", time.Minute, token.StatusValid)

	list, err := f.registry.List(ctx, "u1", "phone")
	require.NoError(t, err)
	require.Len(t, list, 3)

	require.Equal(t, sessions.DeviceID("laptop"), list[0].DeviceID)
	require.Equal(t, now.Add(-10*time.Minute), list[0].IssuedAt)
	require.Equal(t, 2, list[0].TokenCount)
	require.False(t, list[0].IsCurrent)

	require.Equal(t, sessions.DeviceID("phone"), list[1].DeviceID)
	require.True(t, list[1].IsCurrent)

	require.Equal(t, sessions.UnknownDevice, list[2].DeviceID)

	empty, err := f.registry.List(ctx, "nobody", "")
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestRegistry_RevokeDevice(t *testing.T) {
	ctx := context.Background()
	f := setupRegistry(t)
	insert(t, f.store, "l1", "u1", "laptop", time.Minute, token.StatusValid)
	insert(t, f.store, "l2", "u1", "laptop", 2*time.Minute, token.StatusValid)
	insert(t, f.store, "p1", "u1", "phone", time.Minute, token.StatusValid)

	n, err := f.registry.RevokeDevice(ctx, "u1", "laptop")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	phone, err := f.store.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, token.StatusValid, phone.Status)

	_, err = f.registry.RevokeDevice(ctx, "u1", "laptop")
	require.ErrorIs(t, err, sessions.ErrNoSession)
	_, err = f.registry.RevokeDevice(ctx, "u2", "phone")
	require.ErrorIs(t, err, sessions.ErrNoSession)

	require.Len(t, f.notifier.events, 1)
	require.Equal(t, notify.EventSessionsRevoked, f.notifier.events[0].Type)
}

func TestRegistry_RevokeOthers(t *testing.T) {
	ctx := context.Background()
	f := setupRegistry(t)
	insert(t, f.store, "l1", "u1", "laptop", time.Minute, token.StatusValid)
	insert(t, f.store, "p1", "u1", "phone", time.Minute, token.StatusValid)
	insert(t, f.store, "t1", "u1", "tablet", time.Minute, token.StatusValid)

	n, err := f.registry.RevokeOthers(ctx, "u1", "laptop")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	list, err := f.registry.List(ctx, "u1", "l1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, sessions.DeviceID("laptop"), list[0].DeviceID)
	require.True(t, list[0].IsCurrent)

	n, err = f.registry.RevokeOthers(ctx, "u1", "laptop")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRegistry_RevokeAllIdempotent(t *testing.T) {
	ctx := context.Background()
	f := setupRegistry(t)
	insert(t, f.store, "l1", "u1", "laptop", time.Minute, token.StatusValid)
	insert(t, f.store, "p1", "u1", "phone", time.Minute, token.StatusValid)

	n, err := f.registry.RevokeAll(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = f.registry.RevokeAll(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, n)

	for _, id := range []string{"l1", "p1"} {
		tok, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, token.StatusRevoked, tok.Status)
	}

	blocked, err := f.blacklist.IsBlacklisted(ctx, "u1", now.Add(-time.Second))
	require.NoError(t, err)
	require.True(t, blocked)

	require.Len(t, f.notifier.events, 2)
	require.Equal(t, notify.EventAllSessionsRevoked, f.notifier.events[1].Type)
}

func TestRegistry_BlacklistCoversRaceMintedToken(t *testing.T) {
	ctx := context.Background()
	f := setupRegistry(t)

	// Minted one second before the blacklist entry, after the store revoke ran.
	n, err := f.registry.RevokeAll(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, n)
	insert(t, f.store, "late", "u1", "laptop", time.Second, token.StatusValid)

	tok, err := f.store.Get(ctx, "late")
	require.NoError(t, err)
	require.Equal(t, token.StatusValid, tok.Status)

	blocked, err := f.blacklist.IsBlacklisted(ctx, "u1", tok.IssuedAt)
	require.NoError(t, err)
	require.True(t, blocked)
}

func TestNewRegistry(t *testing.T) {
	_, err := sessions.NewRegistry(nil, blacklist.Noop{})
	require.Error(t, err)

	r, err := sessions.NewRegistry(token.NewInMemoryStore(), nil)
	require.NoError(t, err)
	_, err = r.RevokeAll(context.Background(), "u1")
	require.NoError(t, err, "nil blacklist falls back to Noop")
}
