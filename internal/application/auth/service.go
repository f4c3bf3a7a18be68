// Package auth implements the phone verification workflow and the account
// flows built on it: signup, phone-first login, code confirmation, and
// account deletion.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pinion-app/api/internal/application/session"
	"github.com/pinion-app/api/internal/crypto"
	"github.com/pinion-app/api/internal/domain"
	"github.com/pinion-app/api/internal/pkg/clock"
	"github.com/pinion-app/api/internal/pkg/id"
)

const (
	// resendCooldown is the minimum gap between two code requests.
	resendCooldown = 5 * time.Second
	// rateWindow and rateMax bound code requests per user: the request
	// that would be number rateMax+1 inside the window is rejected. The
	// count is advisory (read outside any lock); a few extra codes under
	// heavy concurrency are acceptable abuse-mitigation slack.
	rateWindow = 60 * time.Second
	rateMax    = 5

	codeDigits = 6
	// smsTimeout bounds the SMS provider call so a slow gateway cannot
	// hold the request.
	smsTimeout = 10 * time.Second

	maxPhoneLen = 20
)

// VerificationStore is the persistence for verification-code rows.
type VerificationStore interface {
	Put(ctx context.Context, v *domain.VerificationCode) error
	// Latest returns the newest non-deleted code for the user, or a
	// KindNotFound error.
	Latest(ctx context.Context, userID string) (*domain.VerificationCode, error)
	// CountSince counts code rows created at or after since.
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
	// Consume atomically soft-deletes the code row (failing if it is no
	// longer live), marks the user's phone verified, and claims the
	// verified number. Exactly one of two concurrent calls can succeed.
	Consume(ctx context.Context, code *domain.VerificationCode, number string, verifiedAt time.Time) error
}

// UserStore is the persistence for user accounts.
type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByNumber(ctx context.Context, number string) (*domain.User, error)
	Create(ctx context.Context, handle, number, name string) (*domain.User, error)
	SetHandle(ctx context.Context, userID, handle string) error
	MarkVerificationSent(ctx context.Context, userID string, at time.Time) error
	SoftDelete(ctx context.Context, userID, number string) error
}

// SMSSender dispatches a text message. Implementations must honor ctx
// cancellation.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

type Service interface {
	// RequestCode generates, stores, and dispatches a fresh verification
	// code for the user, subject to rate limiting.
	RequestCode(ctx context.Context, user *domain.User) error
	// VerifyCode checks a submitted code against the user's newest live
	// code. Absence, expiry, and mismatch are indistinguishable to the
	// caller. Success consumes the code, marks the phone verified, and
	// returns the reloaded user.
	VerifyCode(ctx context.Context, user *domain.User, submitted string) (*domain.User, error)

	// SignUp creates an account with an explicit handle, starts
	// verification, and establishes a session.
	SignUp(ctx context.Context, handle, phoneNumber, name string) (*domain.LoginSuccess, error)
	// LoginPhone starts the signup-or-login flow from just a phone number,
	// creating a placeholder account when the number is unknown. The
	// returned user's number is what the caller should bind into the
	// challenge cookie.
	LoginPhone(ctx context.Context, phoneNumber string) (*domain.User, error)
	// LoginPhoneConfirm completes the flow: verify the code for the given
	// number (falling back to the challenge-cookie number) and issue a
	// session token.
	LoginPhoneConfirm(ctx context.Context, phoneNumber string, challenge *domain.ChallengePhone, code string) (*domain.LoginSuccess, error)
	// SetHandle updates the current user's handle.
	SetHandle(ctx context.Context, user *domain.User, handle string) (*domain.User, error)
	// DeleteAccount decommissions the account after a valid code.
	DeleteAccount(ctx context.Context, user *domain.User, code string) error
	// CheckNumbers reports which of the given numbers belong to verified
	// accounts, for client-side contact matching.
	CheckNumbers(ctx context.Context, numbers []string) ([]domain.PhoneCheck, error)
}

type ServiceDeps struct {
	VerificationRepo VerificationStore
	UserRepo         UserStore
	Sessions         session.Service
	SMS              SMSSender
	// PhoneAllowed gates SMS dispatch; codes are still generated and
	// stored for numbers it rejects. Nil allows every number.
	PhoneAllowed   func(number string) bool
	CodeExpiration time.Duration
	Clock          clock.Clock
}

type service struct {
	codes        VerificationStore
	users        UserStore
	sessions     session.Service
	sms          SMSSender
	phoneAllowed func(string) bool
	expiration   time.Duration
	clock        clock.Clock
}

func NewService(deps ServiceDeps) Service {
	c := deps.Clock
	if c == nil {
		c = clock.System{}
	}
	allowed := deps.PhoneAllowed
	if allowed == nil {
		allowed = func(string) bool { return true }
	}
	return &service{
		codes:        deps.VerificationRepo,
		users:        deps.UserRepo,
		sessions:     deps.Sessions,
		sms:          deps.SMS,
		phoneAllowed: allowed,
		expiration:   deps.CodeExpiration,
		clock:        c,
	}
}

func (s *service) RequestCode(ctx context.Context, user *domain.User) error {
	now := s.clock.Now()

	recent, err := s.codes.CountSince(ctx, user.UserID, now.Add(-rateWindow))
	if err != nil {
		return domain.Wrap(domain.KindStorage, "count recent verification codes", err)
	}
	cooledDown := user.PhoneVerificationSent == nil ||
		!user.PhoneVerificationSent.After(now.Add(-resendCooldown))
	if !cooledDown || recent >= rateMax {
		return domain.E(domain.KindRateLimited, "too many authorization attempts")
	}

	code, err := newCode()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}
	salt, err := crypto.NewSalt()
	if err != nil {
		return fmt.Errorf("generate code salt: %w", err)
	}
	hash := crypto.HashSecret([]byte(code), salt)

	row := &domain.VerificationCode{
		UserID:  user.UserID,
		CodeID:  id.New(),
		Salt:    hex.EncodeToString(salt),
		Hash:    hex.EncodeToString(hash),
		Created: now,
	}
	if err := s.codes.Put(ctx, row); err != nil {
		return domain.Wrap(domain.KindStorage, "persist verification code", err)
	}
	if err := s.users.MarkVerificationSent(ctx, user.UserID, now); err != nil {
		return domain.Wrap(domain.KindStorage, "mark verification sent", err)
	}

	// Dispatch after the code is committed. A provider outage must not
	// undo the issuance, so failures are logged and swallowed.
	if s.phoneAllowed(user.PhoneNumber) {
		slog.Info("sending code", "number", user.PhoneNumber)
		smsCtx, cancel := context.WithTimeout(ctx, smsTimeout)
		defer cancel()
		if err := s.sms.Send(smsCtx, user.PhoneNumber, "Your Pinion code is "+code); err != nil {
			slog.Error("sms dispatch failed", "user_id", user.UserID, "err", err)
		}
	}
	slog.Debug("verification code issued", "user_id", user.UserID)
	return nil
}

func (s *service) VerifyCode(ctx context.Context, user *domain.User, submitted string) (*domain.User, error) {
	now := s.clock.Now()

	latest, err := s.codes.Latest(ctx, user.UserID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, invalidCode("no live code", user.UserID)
		}
		return nil, domain.Wrap(domain.KindStorage, "load verification code", err)
	}
	if latest.Created.Before(now.Add(-s.expiration)) {
		return nil, invalidCode("code expired", user.UserID)
	}

	salt, err := hex.DecodeString(latest.Salt)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "decode stored salt", err)
	}
	saved, err := hex.DecodeString(latest.Hash)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "decode stored hash", err)
	}
	if subtle.ConstantTimeCompare(saved, crypto.HashSecret([]byte(submitted), salt)) != 1 {
		return nil, invalidCode("hash mismatch", user.UserID)
	}

	// Consume inside one storage transaction. If a concurrent verify beat
	// us to the row, the conditional delete fails and we report the same
	// uniform invalid-code result.
	if err := s.codes.Consume(ctx, latest, user.PhoneNumber, now); err != nil {
		if domain.IsKind(err, domain.KindInvalidCode) {
			return nil, invalidCode("already consumed", user.UserID)
		}
		return nil, err
	}

	u, err := s.users.Get(ctx, user.UserID)
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "reload user", err)
	}
	return u, nil
}

func (s *service) SignUp(ctx context.Context, handle, phoneNumber, name string) (*domain.LoginSuccess, error) {
	user, err := s.users.Create(ctx, handle, cleanNumber(phoneNumber), name)
	if err != nil {
		return nil, err
	}
	if err := s.RequestCode(ctx, user); err != nil {
		return nil, err
	}
	token, err := s.sessions.Issue(ctx, user.UserID)
	if err != nil {
		return nil, err
	}
	return &domain.LoginSuccess{AuthToken: token, User: user}, nil
}

func (s *service) LoginPhone(ctx context.Context, phoneNumber string) (*domain.User, error) {
	number := cleanNumber(phoneNumber)
	user, err := s.users.GetByNumber(ctx, number)
	if err != nil {
		if !domain.IsKind(err, domain.KindNotFound) {
			return nil, domain.Wrap(domain.KindStorage, "fetch user by number", err)
		}
		// Unknown number: create a placeholder account. The UUID handle
		// marks it as needing setup; clients key off User.NeedsHandle.
		user, err = s.users.Create(ctx, uuid.NewString(), number, "")
		if err != nil {
			return nil, err
		}
	}
	if err := s.RequestCode(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *service) LoginPhoneConfirm(ctx context.Context, phoneNumber string, challenge *domain.ChallengePhone, code string) (*domain.LoginSuccess, error) {
	number := cleanNumber(phoneNumber)
	if number == "" && challenge != nil {
		slog.Info("no phone number specified, using challenge cookie number")
		number = challenge.Number
	}
	if number == "" {
		return nil, &domain.Error{
			Kind: domain.KindBadRequest,
			Msg:  "no phone number provided or found while verifying code",
			Key:  domain.KeyMissingPhoneNumber,
		}
	}
	user, err := s.users.GetByNumber(ctx, number)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, invalidCode("unknown phone number", "")
		}
		return nil, domain.Wrap(domain.KindStorage, "fetch user by number", err)
	}
	user, err = s.VerifyCode(ctx, user, code)
	if err != nil {
		return nil, err
	}
	token, err := s.sessions.Issue(ctx, user.UserID)
	if err != nil {
		return nil, err
	}
	return &domain.LoginSuccess{AuthToken: token, User: user}, nil
}

func (s *service) SetHandle(ctx context.Context, user *domain.User, handle string) (*domain.User, error) {
	if err := s.users.SetHandle(ctx, user.UserID, handle); err != nil {
		return nil, err
	}
	return s.users.Get(ctx, user.UserID)
}

func (s *service) DeleteAccount(ctx context.Context, user *domain.User, code string) error {
	user, err := s.VerifyCode(ctx, user, code)
	if err != nil {
		return err
	}
	return s.users.SoftDelete(ctx, user.UserID, user.PhoneNumber)
}

func (s *service) CheckNumbers(ctx context.Context, numbers []string) ([]domain.PhoneCheck, error) {
	checks := make([]domain.PhoneCheck, 0, len(numbers))
	for _, n := range numbers {
		n = cleanNumber(n)
		check := domain.PhoneCheck{Number: n}
		u, err := s.users.GetByNumber(ctx, n)
		switch {
		case err == nil:
			check.SignedUp = u.IsVerified()
		case domain.IsKind(err, domain.KindNotFound):
			// not signed up
		default:
			return nil, domain.Wrap(domain.KindStorage, "check number", err)
		}
		checks = append(checks, check)
	}
	return checks, nil
}

// newCode draws 6 random decimal digits. Each digit is a byte mod 10; the
// slight bias toward 0-5 is accepted.
func newCode() (string, error) {
	b, err := crypto.RandomBytes(codeDigits)
	if err != nil {
		return "", err
	}
	digits := make([]byte, codeDigits)
	for i, n := range b {
		digits[i] = '0' + n%10
	}
	return string(digits), nil
}

// invalidCode logs the real reason and returns the uniform client error.
func invalidCode(reason, userID string) error {
	slog.Info("verification rejected", "reason", reason, "user_id", userID)
	return domain.E(domain.KindInvalidCode, "invalid code")
}

// cleanNumber trims and truncates a caller-supplied phone number.
func cleanNumber(n string) string {
	n = strings.TrimSpace(n)
	if len(n) > maxPhoneLen {
		n = n[:maxPhoneLen]
	}
	return n
}
