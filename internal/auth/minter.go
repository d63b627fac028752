package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ibrahimkhan7059/Edubazaar/internal/config"
	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
)

const jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// AccessToken is a short-lived bearer credential minted from the service
// account. Must not be used after expiry.
type AccessToken struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the token can still be presented, with leeway so a
// token is never used in the final seconds of its window.
func (t *AccessToken) Valid(leeway time.Duration) bool {
	return t != nil && t.Token != "" && time.Now().Add(leeway).Before(t.ExpiresAt)
}

// TokenCache stores minted tokens across drain invocations, bounded by the
// token's expiry. A nil cache disables reuse.
type TokenCache interface {
	Get(ctx context.Context) (*AccessToken, error)
	Put(ctx context.Context, token *AccessToken) error
}

// Minter exchanges a signed JWT assertion for an OAuth2 access token.
type Minter struct {
	account  *ServiceAccount
	signer   Signer
	tokenURL string
	scope    string
	client   *http.Client
	cache    TokenCache
	logger   *slog.Logger
}

// NewMinter creates a Minter for the given service account. The private key
// is parsed once here; a key-parse failure fails construction rather than
// every mint.
func NewMinter(account *ServiceAccount, cfg config.OAuthConfig, cache TokenCache, logger *slog.Logger) (*Minter, error) {
	signer, err := NewRSASigner(account.PrivateKey)
	if err != nil {
		return nil, domain.NewConfigError("private_key", err.Error())
	}

	tokenURL := cfg.TokenURL
	if account.TokenURI != "" {
		tokenURL = account.TokenURI
	}

	return &Minter{
		account:  account,
		signer:   signer,
		tokenURL: tokenURL,
		scope:    cfg.Scope,
		client:   &http.Client{Timeout: cfg.ExchangeTimeout},
		cache:    cache,
		logger:   logger.With("component", "minter"),
	}, nil
}

// ProjectID returns the Firebase project the minted tokens are scoped to.
func (m *Minter) ProjectID() string {
	return m.account.ProjectID
}

// Mint returns a valid access token, reusing a cached one when possible and
// exchanging a fresh assertion otherwise. Never returns partial credentials.
func (m *Minter) Mint(ctx context.Context) (*AccessToken, error) {
	if m.cache != nil {
		cached, err := m.cache.Get(ctx)
		switch {
		case err == nil && cached.Valid(time.Minute):
			m.logger.Debug("reusing cached access token", "expires_at", cached.ExpiresAt)
			return cached, nil
		case err != nil && !errors.Is(err, domain.ErrTokenExpired):
			m.logger.Warn("token cache read failed, minting fresh", "error", err)
		}
	}

	token, err := m.exchange(ctx)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		if err := m.cache.Put(ctx, token); err != nil {
			m.logger.Warn("token cache write failed", "error", err)
		}
	}

	return token, nil
}

// exchange signs a fresh assertion and POSTs the jwt-bearer grant to the
// token endpoint.
func (m *Minter) exchange(ctx context.Context) (*AccessToken, error) {
	now := time.Now()

	assertion, err := BuildAssertion(m.account.ClientEmail, m.scope, m.tokenURL, now, m.signer)
	if err != nil {
		return nil, domain.NewAuthError(0, "failed to build assertion: "+err.Error())
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, domain.NewAuthError(0, "token exchange request failed: "+err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewAuthError(resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, domain.NewAuthError(resp.StatusCode, "malformed token response: "+err.Error())
	}
	if tokenResp.AccessToken == "" {
		return nil, domain.NewAuthError(resp.StatusCode, "token response missing access_token")
	}

	expiresIn := time.Duration(tokenResp.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = assertionLifetime
	}

	m.logger.Info("access token minted",
		"project_id", m.account.ProjectID,
		"expires_in", expiresIn,
	)

	return &AccessToken{
		Token:     tokenResp.AccessToken,
		IssuedAt:  now,
		ExpiresAt: now.Add(expiresIn),
	}, nil
}

// Token implements the fcm token source contract.
func (m *Minter) Token(ctx context.Context) (string, error) {
	token, err := m.Mint(ctx)
	if err != nil {
		return "", err
	}
	return token.Token, nil
}
