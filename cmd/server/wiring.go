package main

import (
	"context"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-authority/auth"
	"github.com/jrsteele09/go-token-authority/blacklist"
	"github.com/jrsteele09/go-token-authority/clients"
	"github.com/jrsteele09/go-token-authority/internal/config"
	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
	"github.com/jrsteele09/go-token-authority/internal/metrics"
	"github.com/jrsteele09/go-token-authority/internal/postgres"
	"github.com/jrsteele09/go-token-authority/lockout"
	"github.com/jrsteele09/go-token-authority/notify"
	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/jrsteele09/go-token-authority/passwordpolicy"
	"github.com/jrsteele09/go-token-authority/server"
	"github.com/jrsteele09/go-token-authority/sessions"
	"github.com/jrsteele09/go-token-authority/token"
	"github.com/jrsteele09/go-token-authority/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type tokenStore interface {
	token.Store
	token.AuthorizationStore
}

type userDirectory interface {
	users.Directory
	upsert(ctx context.Context, u *users.User) error
}

type memoryDirectory struct{ *users.InMemoryDirectory }

func (d memoryDirectory) upsert(_ context.Context, u *users.User) error { return d.Upsert(u) }

type postgresDirectory struct{ *postgres.UserDirectory }

func (d postgresDirectory) upsert(ctx context.Context, u *users.User) error { return d.Upsert(ctx, u) }

// app is everything run needs once the dependencies are wired.
type app struct {
	server       *server.Server
	metrics      *metrics.Metrics
	pruner       token.Pruner
	sweepOptions []token.SweeperOption
	closers      []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type stores struct {
	tokens    tokenStore
	users     userDirectory
	blacklist blacklist.Blacklist
}

func wire(ctx context.Context, c config.Config) (*app, error) {
	a := &app{metrics: metrics.New()}
	health := map[string]server.HealthCheck{}

	st, err := openStores(ctx, c, a, health)
	if err != nil {
		a.close()
		return nil, err
	}
	a.pruner = st.tokens

	codes := auth.NewInMemoryCodeRepo(time.Now)
	a.sweepOptions = append(a.sweepOptions, token.WithCleanup(codes.Cleanup))

	signer, err := loadSigner(c)
	if err != nil {
		a.close()
		return nil, err
	}

	passwords := passwordpolicy.NewValidator(config.PasswordPolicy(c))
	clientRepo := clients.NewInMemoryRepo()
	if err := bootstrap(ctx, c, st.users, clientRepo, passwords); err != nil {
		a.close()
		return nil, err
	}

	notifier := notify.Multi{notify.NewLog(log.Logger), notify.NewSentry(sentry.CurrentHub())}
	srv, err := buildServer(c, st, codes, signer, clientRepo, passwords, notifier, a.metrics, health)
	if err != nil {
		a.close()
		return nil, err
	}
	a.server = srv
	return a, nil
}

func buildServer(c config.Config, st stores, codes auth.CodeRepo, signer token.Signer, clientRepo clients.Repo,
	passwords *passwordpolicy.Validator, notifier notify.Notifier, m *metrics.Metrics, health map[string]server.HealthCheck,
) (*server.Server, error) {
	guard, err := lockout.NewGuard(st.users, config.LockoutSettings(c), lockout.WithNotifier(notifier), lockout.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	verifier, err := auth.NewCredentialVerifier(st.users)
	if err != nil {
		return nil, err
	}
	dispatcher, err := auth.NewDispatcher(st.users, guard, verifier,
		auth.WithMetrics(m),
		auth.WithLogger(log.Logger.With().Str("component", "dispatcher").Logger()),
	)
	if err != nil {
		return nil, err
	}
	authorizer, err := auth.NewAuthorizationService(clientRepo, codes, auth.WithCodeLifetime(c.GetAuthCodeTimeout()))
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewManager(st.tokens, st.tokens, signer,
		token.WithIssuer(c.GetBaseURL()),
		token.WithTokenLifetimes(c.GetAccessTokenTTL(), c.GetRefreshTokenTTL()),
		token.WithBlacklist(st.blacklist),
		token.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	registry, err := sessions.NewRegistry(st.tokens, st.blacklist,
		sessions.WithBlacklistWindow(c.GetBlacklistWindow()),
		sessions.WithNotifier(notifier),
		sessions.WithMetrics(m),
		sessions.WithLogger(log.Logger.With().Str("component", "sessions").Logger()),
	)
	if err != nil {
		return nil, err
	}

	return server.New(c, server.Services{
		Clients:      clientRepo,
		Users:        st.users,
		Tokens:       tokens,
		Dispatcher:   dispatcher,
		Authorizer:   authorizer,
		Sessions:     registry,
		Lockout:      guard,
		Passwords:    passwords,
		Metrics:      m,
		HealthChecks: health,
	})
}

// openStores picks Postgres when DATABASE_URL is set and the in-memory stores
// otherwise. REDIS_URL moves the blacklist to Redis in either case.
func openStores(ctx context.Context, c config.Config, a *app, health map[string]server.HealthCheck) (stores, error) {
	var st stores

	if dsn := c.GetDatabaseURL(); dsn != "" {
		pool, err := postgres.Open(ctx, dsn)
		if err != nil {
			return st, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			return st, err
		}
		health["postgres"] = pool.Ping

		pgBlacklist := postgres.NewBlacklist(pool)
		a.sweepOptions = append(a.sweepOptions, token.WithCleanup(func() int {
			n, err := pgBlacklist.Cleanup(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("blacklist cleanup failed")
			}
			return n
		}))

		st.tokens = postgres.NewTokenStore(pool)
		st.users = postgresDirectory{postgres.NewUserDirectory(pool)}
		st.blacklist = pgBlacklist
		log.Info().Msg("Using postgres stores")
	} else {
		memBlacklist := blacklist.NewInMemory()
		a.sweepOptions = append(a.sweepOptions, token.WithCleanup(memBlacklist.Cleanup))

		st.tokens = token.NewInMemoryStore()
		st.users = memoryDirectory{users.NewInMemoryDirectory()}
		st.blacklist = memBlacklist
		log.Warn().Msg("DATABASE_URL not set, using in-memory stores")
	}

	if redisURL := c.GetRedisURL(); redisURL != "" {
		rdb, err := blacklist.NewRedis(ctx, redisURL, c.GetRedisKeyPrefix())
		if err != nil {
			return st, err
		}
		a.closers = append(a.closers, func() {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("closing redis")
			}
		})
		health["redis"] = rdb.Ping
		st.blacklist = rdb
		log.Info().Msg("Using redis blacklist")
	}
	return st, nil
}

func loadSigner(c config.Config) (token.Signer, error) {
	if pemData := c.GetSigningKeyPEM(); pemData != "" {
		kp, err := token.ParseKeyPairPEM(pemData)
		if err != nil {
			return nil, errors.Wrap(err, "SIGNING_KEY_PEM")
		}
		return token.NewKeyPairSigner(kp), nil
	}

	log.Warn().Msg("SIGNING_KEY_PEM not set, generating an ephemeral RSA key; tokens will not survive a restart")
	kp, err := token.GenerateRSAKeyPair(2048)
	if err != nil {
		return nil, err
	}
	return token.NewKeyPairSigner(kp), nil
}

// bootstrap seeds the admin user when it does not exist yet, and the
// configured client.
func bootstrap(ctx context.Context, c config.Config, dir userDirectory, clientRepo *clients.InMemoryRepo, passwords *passwordpolicy.Validator) error {
	username := c.GetAdminUsername()
	_, err := dir.GetByUsername(ctx, username)
	switch {
	case err == nil:
		log.Debug().Str("username", username).Msg("Admin user already exists")
	case errors.Is(err, apperrors.ErrNotFound):
		if err := seedAdmin(ctx, c, dir, passwords); err != nil {
			return err
		}
	default:
		return errors.Wrap(err, "[bootstrap] looking up admin")
	}

	clientID := c.GetClientID()
	if clientID == "" {
		return nil
	}
	client := &clients.Client{
		ID:           clientID,
		Type:         clients.ClientTypePublic,
		Description:  "Bootstrap client",
		GrantTypes:   []oauth2.GrantType{oauth2.PasswordGrant, oauth2.AuthorizationCodeGrant, oauth2.RefreshTokenGrant},
		RedirectURIs: c.GetClientRedirectURIs(),
		Scopes: []string{
			oauth2.ScopeOpenID, oauth2.ScopeProfile, oauth2.ScopeEmail, oauth2.ScopeRoles, oauth2.ScopeOfflineAccess,
		},
	}
	if secret := c.GetClientSecret(); secret != "" {
		hash, err := users.HashPassword(secret)
		if err != nil {
			return errors.Wrap(err, "[bootstrap] hashing client secret")
		}
		client.Type = clients.ClientTypeConfidential
		client.SecretHash = hash
		client.GrantTypes = append(client.GrantTypes, oauth2.ClientCredentialsGrant)
	}
	if err := clientRepo.Upsert(client); err != nil {
		return errors.Wrap(err, "[bootstrap] registering client")
	}
	log.Info().Str("client_id", clientID).Str("type", string(client.Type)).Msg("Registered client")
	return nil
}

func seedAdmin(ctx context.Context, c config.Config, dir userDirectory, passwords *passwordpolicy.Validator) error {
	username := c.GetAdminUsername()
	password := c.GetAdminPassword()
	generated := password == ""
	if generated {
		password = "Ta!" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if result := passwords.Validate(password); !result.Valid {
		return errors.Errorf("ADMIN_PASSWORD does not meet the password policy: %s", strings.Join(result.Errors, "; "))
	}

	hash, err := users.HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "[bootstrap] hashing admin password")
	}
	admin := &users.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Active:       true,
		Roles:        []string{users.RoleAdmin, users.RoleUser},
		DateJoined:   time.Now().UTC(),
	}
	if err := dir.upsert(ctx, admin); err != nil {
		return errors.Wrap(err, "[bootstrap] creating admin")
	}

	event := log.Info().Str("username", username)
	if generated {
		event = event.Str("password", password)
	}
	event.Msg("Created admin user")
	return nil
}
