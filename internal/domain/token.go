package domain

import "time"

// AuthToken is the server-side record of a bearer session token. Only the
// HMAC tag of the clear token is stored; the clear value is returned to the
// client once and cannot be recovered from this row. A user holds one row
// per device/login. Rows are never updated after creation except to flip
// Deleted; validity is computed at read time from ExpiresAt.
type AuthToken struct {
	Hash      string    `json:"-" dynamodbav:"hash"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	ExpiresAt time.Time `json:"expires_at" dynamodbav:"expires_at"`
	Deleted   bool      `json:"-" dynamodbav:"deleted"`
	Created   time.Time `json:"created" dynamodbav:"created"`
}

// Live reports whether the token row is usable at the given instant.
func (t *AuthToken) Live(now time.Time) bool {
	return !t.Deleted && t.ExpiresAt.After(now)
}
