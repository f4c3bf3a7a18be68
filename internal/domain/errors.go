package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse error classification that is allowed to cross the
// trust boundary. Wrapped causes and storage detail stay server-side in
// logs.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindUnauthorized
	KindUnverified
	KindInvalidCode
	KindRateLimited
	KindConflict
	KindBadRequest
	KindNotFound
	KindStorage
)

// kindMeta maps each Kind to the HTTP status and the stable client key the
// front end switches on. Handlers never invent codes ad hoc.
var kindMeta = map[Kind]struct {
	Status    int
	ClientKey string
}{
	KindInternal:       {http.StatusInternalServerError, "INTERNAL_ERROR"},
	KindAuthentication: {http.StatusUnauthorized, "AUTHENTICATION_FAILED"},
	KindUnauthorized:   {http.StatusUnauthorized, "UNAUTHORIZED"},
	KindUnverified:     {http.StatusUnauthorized, "UNVERIFIED"},
	KindInvalidCode:    {http.StatusUnauthorized, "INVALID_CODE"},
	KindRateLimited:    {http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS"},
	KindConflict:       {http.StatusConflict, "CONFLICT"},
	KindBadRequest:     {http.StatusBadRequest, "BAD_REQUEST"},
	KindNotFound:       {http.StatusNotFound, "NOT_FOUND"},
	KindStorage:        {http.StatusInternalServerError, "DATABASE_ERROR"},
}

// Status returns the HTTP status code mapped to the kind.
func (k Kind) Status() int { return kindMeta[k].Status }

// ClientKey returns the stable machine-readable key mapped to the kind.
func (k Kind) ClientKey() string { return kindMeta[k].ClientKey }

// Error is the domain error type. Msg is safe for clients; Err carries the
// internal cause and never leaves the process.
type Error struct {
	Kind Kind
	Msg  string
	// Key overrides the kind's default client key when set, e.g. a
	// KindConflict surfaced as UNAVAILABLE_HANDLE.
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// ClientKey returns the override key when present, otherwise the kind's.
func (e *Error) ClientKey() string {
	if e.Key != "" {
		return e.Key
	}
	return e.Kind.ClientKey()
}

// E builds a domain error of the given kind.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a domain error of the given kind around an internal cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err. Non-domain errors map to KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

// Client keys used with Kind overrides.
const (
	KeyUnavailableHandle  = "UNAVAILABLE_HANDLE"
	KeyUnavailablePhone   = "UNAVAILABLE_PHONE"
	KeyMissingPhoneNumber = "MISSING_PHONE_NUMBER"
)
