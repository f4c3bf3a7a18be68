package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pinion-app/api/internal/application/challenge"
	"github.com/pinion-app/api/internal/application/session"
	"github.com/pinion-app/api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockAuthSvc struct{ mock.Mock }

func (m *mockAuthSvc) RequestCode(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}
func (m *mockAuthSvc) VerifyCode(ctx context.Context, user *domain.User, submitted string) (*domain.User, error) {
	args := m.Called(ctx, user, submitted)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthSvc) SignUp(ctx context.Context, handle, phoneNumber, name string) (*domain.LoginSuccess, error) {
	args := m.Called(ctx, handle, phoneNumber, name)
	if r, _ := args.Get(0).(*domain.LoginSuccess); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthSvc) LoginPhone(ctx context.Context, phoneNumber string) (*domain.User, error) {
	args := m.Called(ctx, phoneNumber)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthSvc) LoginPhoneConfirm(ctx context.Context, phoneNumber string, chal *domain.ChallengePhone, code string) (*domain.LoginSuccess, error) {
	args := m.Called(ctx, phoneNumber, chal, code)
	if r, _ := args.Get(0).(*domain.LoginSuccess); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthSvc) SetHandle(ctx context.Context, user *domain.User, handle string) (*domain.User, error) {
	args := m.Called(ctx, user, handle)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthSvc) DeleteAccount(ctx context.Context, user *domain.User, code string) error {
	return m.Called(ctx, user, code).Error(0)
}
func (m *mockAuthSvc) CheckNumbers(ctx context.Context, numbers []string) ([]domain.PhoneCheck, error) {
	args := m.Called(ctx, numbers)
	if c, _ := args.Get(0).([]domain.PhoneCheck); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSessionSvc struct{ mock.Mock }

func (m *mockSessionSvc) Issue(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}
func (m *mockSessionSvc) Validate(ctx context.Context, presented string) (*domain.User, error) {
	args := m.Called(ctx, presented)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessionSvc) Revoke(ctx context.Context, presented string) error {
	return m.Called(ctx, presented).Error(0)
}
func (m *mockSessionSvc) NewClearToken() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

// --- helpers ---

const (
	testEncKey     = "01234567890123456789012345678901"
	testHeaderName = "x-pinion-auth"
)

func testCookieConfig() challenge.CookieConfig {
	return challenge.CookieConfig{
		AuthName:      "pinion_auth",
		ChallengeName: "pinion_challenge_phone",
		Domain:        "pinion.test",
		Secure:        true,
		AuthMaxAge:    30 * 24 * time.Hour,
		ChallengeTTL:  2 * time.Minute,
	}
}

func newAuthHandler(svc *mockAuthSvc, sessions *mockSessionSvc) (*AuthHandler, *challenge.Codec) {
	codec := challenge.NewCodec(testEncKey)
	return NewAuthHandler(svc, sessions, codec, testCookieConfig(), testHeaderName), codec
}

func findCookie(t *testing.T, res *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- tests ---

func TestSignUp_SetsCookiesAndReturnsToken(t *testing.T) {
	svc := new(mockAuthSvc)
	sessions := new(mockSessionSvc)
	h, codec := newAuthHandler(svc, sessions)

	user := &domain.User{UserID: "user-1", Handle: "ada", PhoneNumber: "+15550100"}
	svc.On("SignUp", mock.Anything, "ada", "+15550100", "Ada").
		Return(&domain.LoginSuccess{AuthToken: "token-abc", User: user}, nil)

	body, _ := json.Marshal(SignUpRequest{Handle: "ada", PhoneNumber: "+15550100", Name: "Ada"})
	req := httptest.NewRequest(http.MethodPost, "/v1/signup", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.SignUp(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	var env LoginEnvelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	assert.Equal(t, "token-abc", env.AuthToken)
	assert.Equal(t, "user-1", env.User.UserID)

	auth := findCookie(t, res, "pinion_auth")
	require.NotNil(t, auth)
	assert.Equal(t, "token-abc", auth.Value)
	assert.True(t, auth.HttpOnly)

	chal := findCookie(t, res, "pinion_challenge_phone")
	require.NotNil(t, chal)
	number, ok := codec.Decode(chal.Value)
	require.True(t, ok)
	assert.Equal(t, "+15550100", number)
}

func TestSignUp_MissingFields(t *testing.T) {
	svc := new(mockAuthSvc)
	h, _ := newAuthHandler(svc, new(mockSessionSvc))

	req := httptest.NewRequest(http.MethodPost, "/v1/signup", strings.NewReader(`{"handle":"ada"}`))
	rec := httptest.NewRecorder()
	h.SignUp(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "SignUp", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignUp_TakenHandle(t *testing.T) {
	svc := new(mockAuthSvc)
	h, _ := newAuthHandler(svc, new(mockSessionSvc))

	svc.On("SignUp", mock.Anything, "ada", "+15550100", "").
		Return(nil, &domain.Error{Kind: domain.KindConflict, Msg: "handle taken", Key: domain.KeyUnavailableHandle})

	body := `{"handle":"ada","phone_number":"+15550100"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/signup", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.SignUp(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.KeyUnavailableHandle)
}

func TestLoginPhone_SetsChallengeCookie(t *testing.T) {
	svc := new(mockAuthSvc)
	h, codec := newAuthHandler(svc, new(mockSessionSvc))

	svc.On("LoginPhone", mock.Anything, "+15550100").
		Return(&domain.User{UserID: "user-1", PhoneNumber: "+15550100"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/login/phone", strings.NewReader(`{"phone_number":"+15550100"}`))
	rec := httptest.NewRecorder()
	h.LoginPhone(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	chal := findCookie(t, res, "pinion_challenge_phone")
	require.NotNil(t, chal)
	number, ok := codec.Decode(chal.Value)
	require.True(t, ok)
	assert.Equal(t, "+15550100", number)
	// The response body must never carry the code or the number.
	assert.NotContains(t, rec.Body.String(), "+15550100")
}

func TestLoginPhoneConfirm_UsesChallengeCookie(t *testing.T) {
	svc := new(mockAuthSvc)
	sessions := new(mockSessionSvc)
	h, codec := newAuthHandler(svc, sessions)

	sealed, err := codec.Encode("+15550100")
	require.NoError(t, err)

	user := &domain.User{UserID: "user-1", PhoneNumber: "+15550100"}
	svc.On("LoginPhoneConfirm", mock.Anything, "", &domain.ChallengePhone{Number: "+15550100"}, "482913").
		Return(&domain.LoginSuccess{AuthToken: "token-abc", User: user}, nil)
	sessions.On("NewClearToken").Return(session.ClearTokenPrefix+"00ff", nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/login/phone/confirm", strings.NewReader(`{"code":"482913"}`))
	req.AddCookie(&http.Cookie{Name: "pinion_challenge_phone", Value: sealed})
	rec := httptest.NewRecorder()
	h.LoginPhoneConfirm(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	auth := findCookie(t, res, "pinion_auth")
	require.NotNil(t, auth)
	assert.Equal(t, "token-abc", auth.Value)

	// The challenge cookie is overwritten with a clear token.
	chal := findCookie(t, res, "pinion_challenge_phone")
	require.NotNil(t, chal)
	assert.True(t, strings.HasPrefix(chal.Value, session.ClearTokenPrefix))
	// Wire Max-Age=0 parses back as -1: the cookie is deleted client side.
	assert.Equal(t, -1, chal.MaxAge)
}

func TestLoginPhoneConfirm_InvalidCode(t *testing.T) {
	svc := new(mockAuthSvc)
	h, _ := newAuthHandler(svc, new(mockSessionSvc))

	svc.On("LoginPhoneConfirm", mock.Anything, "+15550100", (*domain.ChallengePhone)(nil), "000000").
		Return(nil, domain.E(domain.KindInvalidCode, "invalid code"))

	body := `{"phone_number":"+15550100","code":"000000"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/login/phone/confirm", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.LoginPhoneConfirm(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Contains(t, rec.Body.String(), "INVALID_CODE")
	assert.Nil(t, findCookie(t, res, "pinion_auth"))
}

func TestLogout_RevokesAndClearsCookies(t *testing.T) {
	svc := new(mockAuthSvc)
	sessions := new(mockSessionSvc)
	h, _ := newAuthHandler(svc, sessions)

	sessions.On("Revoke", mock.Anything, "token-abc").Return(nil)
	sessions.On("NewClearToken").Return(session.ClearTokenPrefix+"00ff", nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/logout", nil)
	req.Header.Set(testHeaderName, "token-abc")
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	sessions.AssertCalled(t, "Revoke", mock.Anything, "token-abc")

	auth := findCookie(t, res, "pinion_auth")
	require.NotNil(t, auth)
	assert.True(t, strings.HasPrefix(auth.Value, session.ClearTokenPrefix))
	assert.Equal(t, -1, auth.MaxAge)

	chal := findCookie(t, res, "pinion_challenge_phone")
	require.NotNil(t, chal)
	assert.True(t, strings.HasPrefix(chal.Value, session.ClearTokenPrefix))
}

func TestRateLimitedRequestMapsToTooManyAttempts(t *testing.T) {
	svc := new(mockAuthSvc)
	h, _ := newAuthHandler(svc, new(mockSessionSvc))

	svc.On("LoginPhone", mock.Anything, "+15550100").
		Return(nil, domain.E(domain.KindRateLimited, "too many authorization attempts"))

	req := httptest.NewRequest(http.MethodPost, "/v1/login/phone", strings.NewReader(`{"phone_number":"+15550100"}`))
	rec := httptest.NewRecorder()
	h.LoginPhone(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "TOO_MANY_ATTEMPTS")
}
