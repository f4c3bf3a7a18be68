// Package session issues and validates the opaque bearer tokens that carry
// a login across requests.
package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pinion-app/api/internal/crypto"
	"github.com/pinion-app/api/internal/domain"
	"github.com/pinion-app/api/internal/pkg/clock"
)

// ClearTokenPrefix marks a token minted only to overwrite a cookie on
// logout. The prefix lets validation skip the storage round trip instead of
// logging a spurious miss.
const ClearTokenPrefix = "xxxx"

// TokenStore is the persistence the service needs for token rows.
type TokenStore interface {
	Put(ctx context.Context, t *domain.AuthToken) error
	GetByHash(ctx context.Context, hash string) (*domain.AuthToken, error)
	SoftDelete(ctx context.Context, hash string) error
}

// UserStore loads the user projection a validated token resolves to.
type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type Service interface {
	// Issue mints a fresh clear token for the user and persists only its
	// keyed hash. The clear value is returned exactly once.
	Issue(ctx context.Context, userID string) (string, error)
	// Validate resolves a presented token to its user. A missing, expired,
	// revoked, or clear-prefixed token yields (nil, nil): the request
	// proceeds anonymously and individual operations decide whether to
	// demand identity.
	Validate(ctx context.Context, presented string) (*domain.User, error)
	// Revoke soft-deletes the server-side row of a presented token.
	Revoke(ctx context.Context, presented string) error
	// NewClearToken mints a random clear-prefixed token for cookie
	// clearing. RNG failure propagates; there is no fallback value.
	NewClearToken() (string, error)
}

type ServiceDeps struct {
	TokenRepo      TokenStore
	UserRepo       UserStore
	SigningKey     string
	AuthExpiration time.Duration
	Clock          clock.Clock
}

type service struct {
	tokens     TokenStore
	users      UserStore
	signingKey string
	expiration time.Duration
	clock      clock.Clock
}

func NewService(deps ServiceDeps) Service {
	c := deps.Clock
	if c == nil {
		c = clock.System{}
	}
	return &service{
		tokens:     deps.TokenRepo,
		users:      deps.UserRepo,
		signingKey: deps.SigningKey,
		expiration: deps.AuthExpiration,
		clock:      c,
	}
}

func (s *service) Issue(ctx context.Context, userID string) (string, error) {
	raw, err := crypto.RandomBytes(32)
	if err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	token := hex.EncodeToString(raw)
	now := s.clock.Now()
	row := &domain.AuthToken{
		Hash:      crypto.Sign(token, s.signingKey),
		UserID:    userID,
		ExpiresAt: now.Add(s.expiration),
		Created:   now,
	}
	if err := s.tokens.Put(ctx, row); err != nil {
		return "", domain.Wrap(domain.KindStorage, "persist auth token", err)
	}
	return token, nil
}

func (s *service) Validate(ctx context.Context, presented string) (*domain.User, error) {
	if presented == "" || strings.HasPrefix(presented, ClearTokenPrefix) {
		return nil, nil
	}
	row, err := s.tokens.GetByHash(ctx, crypto.Sign(presented, s.signingKey))
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			slog.Info("no user logged in")
			return nil, nil
		}
		return nil, err
	}
	if !row.Live(s.clock.Now()) {
		slog.Info("auth token expired or revoked", "user_id", row.UserID)
		return nil, nil
	}
	u, err := s.users.Get(ctx, row.UserID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			slog.Info("auth token for missing user", "user_id", row.UserID)
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (s *service) Revoke(ctx context.Context, presented string) error {
	if presented == "" || strings.HasPrefix(presented, ClearTokenPrefix) {
		return nil
	}
	err := s.tokens.SoftDelete(ctx, crypto.Sign(presented, s.signingKey))
	if err != nil && !domain.IsKind(err, domain.KindNotFound) {
		return err
	}
	return nil
}

func (s *service) NewClearToken() (string, error) {
	raw, err := crypto.RandomBytes(31)
	if err != nil {
		return "", fmt.Errorf("generate clear token: %w", err)
	}
	return ClearTokenPrefix + hex.EncodeToString(raw), nil
}
