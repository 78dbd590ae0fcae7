package clients

import (
	"context"

	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
)

var ErrInvalidScope = apperrors.ErrInvalidScope

type Repo interface {
	Get(ctx context.Context, clientID string) (*Client, error)
}
