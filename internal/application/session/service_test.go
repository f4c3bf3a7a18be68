package session

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pinion-app/api/internal/crypto"
	"github.com/pinion-app/api/internal/domain"
	"github.com/pinion-app/api/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockTokenStore struct{ mock.Mock }

func (m *mockTokenStore) Put(ctx context.Context, t *domain.AuthToken) error {
	return m.Called(ctx, t).Error(0)
}
func (m *mockTokenStore) GetByHash(ctx context.Context, hash string) (*domain.AuthToken, error) {
	args := m.Called(ctx, hash)
	if t, _ := args.Get(0).(*domain.AuthToken); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockTokenStore) SoftDelete(ctx context.Context, hash string) error {
	return m.Called(ctx, hash).Error(0)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

const testSigningKey = "test-signing-key"

func newSvc(ts *mockTokenStore, us *mockUserStore, now time.Time) Service {
	return NewService(ServiceDeps{
		TokenRepo:      ts,
		UserRepo:       us,
		SigningKey:     testSigningKey,
		AuthExpiration: 30 * 24 * time.Hour,
		Clock:          clock.Fixed{T: now},
	})
}

// --- tests ---

func TestIssue_PersistsHashNotToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ts := new(mockTokenStore)
	us := new(mockUserStore)

	var stored *domain.AuthToken
	ts.On("Put", mock.Anything, mock.AnythingOfType("*domain.AuthToken")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.AuthToken) }).
		Return(nil)

	token, err := newSvc(ts, us, now).Issue(context.Background(), "user-1")
	require.NoError(t, err)

	raw, err := hex.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	require.NotNil(t, stored)
	assert.NotEqual(t, token, stored.Hash)
	assert.Equal(t, crypto.Sign(token, testSigningKey), stored.Hash)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, now.Add(30*24*time.Hour), stored.ExpiresAt)
	assert.False(t, stored.Deleted)
}

func TestIssue_DistinctTokens(t *testing.T) {
	now := time.Now().UTC()
	ts := new(mockTokenStore)
	ts.On("Put", mock.Anything, mock.Anything).Return(nil)
	svc := newSvc(ts, new(mockUserStore), now)

	a, err := svc.Issue(context.Background(), "user-1")
	require.NoError(t, err)
	b, err := svc.Issue(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestValidate_ResolvesUser(t *testing.T) {
	now := time.Now().UTC()
	ts := new(mockTokenStore)
	us := new(mockUserStore)
	token := strings.Repeat("ab", 32)

	ts.On("GetByHash", mock.Anything, crypto.Sign(token, testSigningKey)).Return(&domain.AuthToken{
		Hash:      crypto.Sign(token, testSigningKey),
		UserID:    "user-1",
		ExpiresAt: now.Add(time.Hour),
	}, nil)
	us.On("Get", mock.Anything, "user-1").Return(&domain.User{UserID: "user-1"}, nil)

	u, err := newSvc(ts, us, now).Validate(context.Background(), token)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "user-1", u.UserID)
}

func TestValidate_UnknownTokenIsAnonymous(t *testing.T) {
	now := time.Now().UTC()
	ts := new(mockTokenStore)
	ts.On("GetByHash", mock.Anything, mock.Anything).
		Return(nil, domain.E(domain.KindNotFound, "not found"))

	u, err := newSvc(ts, new(mockUserStore), now).Validate(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestValidate_ExpiredTokenIsAnonymous(t *testing.T) {
	now := time.Now().UTC()
	ts := new(mockTokenStore)
	ts.On("GetByHash", mock.Anything, mock.Anything).Return(&domain.AuthToken{
		UserID:    "user-1",
		ExpiresAt: now.Add(-time.Second),
	}, nil)

	u, err := newSvc(ts, new(mockUserStore), now).Validate(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestValidate_RevokedTokenIsAnonymous(t *testing.T) {
	now := time.Now().UTC()
	ts := new(mockTokenStore)
	ts.On("GetByHash", mock.Anything, mock.Anything).Return(&domain.AuthToken{
		UserID:    "user-1",
		ExpiresAt: now.Add(time.Hour),
		Deleted:   true,
	}, nil)

	u, err := newSvc(ts, new(mockUserStore), now).Validate(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestValidate_EmptyAndClearPrefixSkipStorage(t *testing.T) {
	now := time.Now().UTC()
	ts := new(mockTokenStore)
	svc := newSvc(ts, new(mockUserStore), now)

	u, err := svc.Validate(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = svc.Validate(context.Background(), ClearTokenPrefix+"0011")
	require.NoError(t, err)
	assert.Nil(t, u)

	ts.AssertNotCalled(t, "GetByHash", mock.Anything, mock.Anything)
}

func TestValidate_StorageErrorPropagates(t *testing.T) {
	now := time.Now().UTC()
	ts := new(mockTokenStore)
	ts.On("GetByHash", mock.Anything, mock.Anything).
		Return(nil, domain.Wrap(domain.KindStorage, "boom", errors.New("io")))

	_, err := newSvc(ts, new(mockUserStore), now).Validate(context.Background(), "deadbeef")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindStorage))
}

func TestRevoke_SoftDeletesByHash(t *testing.T) {
	now := time.Now().UTC()
	ts := new(mockTokenStore)
	token := strings.Repeat("cd", 32)
	ts.On("SoftDelete", mock.Anything, crypto.Sign(token, testSigningKey)).Return(nil)

	require.NoError(t, newSvc(ts, new(mockUserStore), now).Revoke(context.Background(), token))
	ts.AssertExpectations(t)
}

func TestRevoke_MissingRowIsFine(t *testing.T) {
	now := time.Now().UTC()
	ts := new(mockTokenStore)
	ts.On("SoftDelete", mock.Anything, mock.Anything).
		Return(domain.E(domain.KindNotFound, "not found"))

	assert.NoError(t, newSvc(ts, new(mockUserStore), now).Revoke(context.Background(), "deadbeef"))
}

func TestRevoke_ClearTokenSkipsStorage(t *testing.T) {
	now := time.Now().UTC()
	ts := new(mockTokenStore)
	svc := newSvc(ts, new(mockUserStore), now)

	require.NoError(t, svc.Revoke(context.Background(), ClearTokenPrefix+"0011"))
	ts.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything)
}

func TestNewClearToken_PrefixedAndUnique(t *testing.T) {
	svc := newSvc(new(mockTokenStore), new(mockUserStore), time.Now().UTC())

	a, err := svc.NewClearToken()
	require.NoError(t, err)
	b, err := svc.NewClearToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, ClearTokenPrefix))
	assert.Len(t, a, len(ClearTokenPrefix)+62)
	assert.NotEqual(t, a, b)
}
