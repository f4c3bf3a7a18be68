package domain

import "time"

// VerificationCode stores a salted slow hash of a 6-digit SMS code.
// PK: user_id, SK: code_id (ULID). The ULID range key doubles as the
// monotonic "latest" ordering, so coarse wall clocks cannot reorder rows.
// The clear code is never persisted. At most one non-deleted row per user
// is authoritative: the one with the greatest code_id. Older rows stay for
// audit. A consumed or superseded row is soft-deleted, never reused.
type VerificationCode struct {
	UserID  string    `json:"user_id" dynamodbav:"user_id"`
	CodeID  string    `json:"code_id" dynamodbav:"code_id"`
	Salt    string    `json:"-" dynamodbav:"salt"`
	Hash    string    `json:"-" dynamodbav:"hash"`
	Deleted bool      `json:"-" dynamodbav:"deleted"`
	Created time.Time `json:"created" dynamodbav:"created"`
}

// ChallengePhone is the phone number a browser is mid-verification for.
// It is never persisted server-side; it travels only inside the encrypted
// challenge cookie and lives in memory for the duration of one request.
type ChallengePhone struct {
	Number string
}
