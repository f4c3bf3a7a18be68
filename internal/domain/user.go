package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User is the account projection the rest of the system works with. The
// phone columns are denormalized onto the user because identity here is
// phone-first: a user without a verified number can hold a session but is
// rejected by verified-only operations.
type User struct {
	UserID                    string     `json:"id" dynamodbav:"user_id"`
	Handle                    string     `json:"handle" dynamodbav:"handle"`
	Name                      string     `json:"name,omitempty" dynamodbav:"name"`
	PhoneNumber               string     `json:"phone_number" dynamodbav:"phone_number"`
	PhoneVerified             *time.Time `json:"phone_verified,omitempty" dynamodbav:"phone_verified,omitempty"`
	PhoneVerificationSent     *time.Time `json:"-" dynamodbav:"phone_verification_sent,omitempty"`
	PhoneVerificationAttempts int        `json:"-" dynamodbav:"phone_verification_attempts"`
	Deleted                   bool       `json:"-" dynamodbav:"deleted"`
	Created                   time.Time  `json:"created" dynamodbav:"created"`
	Modified                  time.Time  `json:"modified" dynamodbav:"modified"`
}

// IsVerified reports whether the user's phone number has ever been
// confirmed with a valid verification code.
func (u *User) IsVerified() bool {
	return u.PhoneVerified != nil
}

// NeedsHandle reports whether the account still carries the placeholder
// UUID handle assigned by phone-first signup and must pick a real one.
func (u *User) NeedsHandle() bool {
	_, err := uuid.Parse(u.Handle)
	return err == nil
}

// MarshalJSON adds the computed needs_handle field clients key off to
// route placeholder accounts into handle selection.
func (u *User) MarshalJSON() ([]byte, error) {
	type alias User
	return json.Marshal(struct {
		*alias
		NeedsHandle bool `json:"needs_handle"`
	}{(*alias)(u), u.NeedsHandle()})
}

// LoginSuccess is returned by flows that establish a session. AuthToken is
// the clear bearer token; it exists only in this response and in the
// Set-Cookie header, never in storage.
type LoginSuccess struct {
	AuthToken string `json:"auth_token"`
	User      *User  `json:"user"`
}

// PhoneCheck reports whether a number already belongs to an account.
type PhoneCheck struct {
	Number   string `json:"number"`
	SignedUp bool   `json:"signed_up"`
}

// VerifiedPhone is the uniqueness record claimed when a number is verified.
// Keyed by number; the conditional put on this table is the backstop that
// keeps two users from verifying the same number.
type VerifiedPhone struct {
	Number string `json:"number" dynamodbav:"number"`
	UserID string `json:"user_id" dynamodbav:"user_id"`
}
