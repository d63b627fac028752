package fcm

import (
	"context"

	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
)

// TokenSource produces a bearer access token, minting or reusing one as
// needed.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// AuthStrategy yields the Authorization header value for gateway sends. The
// strategy is selected once at configuration time; the drain loop invokes it
// once per batch.
type AuthStrategy interface {
	AuthHeader(ctx context.Context) (string, error)
}

// BearerAuth authenticates with an OAuth2 access token (FCM HTTP v1).
type BearerAuth struct {
	source TokenSource
}

func NewBearerAuth(source TokenSource) *BearerAuth {
	return &BearerAuth{source: source}
}

func (a *BearerAuth) AuthHeader(ctx context.Context) (string, error) {
	token, err := a.source.Token(ctx)
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

// ServerKeyAuth authenticates with the legacy static server key.
type ServerKeyAuth struct {
	key string
}

func NewServerKeyAuth(key string) (*ServerKeyAuth, error) {
	if key == "" {
		return nil, domain.ErrNoAuthMethod
	}
	return &ServerKeyAuth{key: key}, nil
}

func (a *ServerKeyAuth) AuthHeader(ctx context.Context) (string, error) {
	return "key=" + a.key, nil
}
