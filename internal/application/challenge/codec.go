// Package challenge encodes the phone number pending verification into an
// encrypted cookie, so the signup/login round trip needs no server-side
// session state.
package challenge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pinion-app/api/internal/application/session"
	"github.com/pinion-app/api/internal/crypto"
)

// Codec seals and opens challenge-phone cookie values. The value is the
// URL-safe base64 of the JSON envelope produced by crypto.Encrypt.
type Codec struct {
	key string
}

func NewCodec(encryptionKey string) *Codec {
	return &Codec{key: encryptionKey}
}

// Encode seals a phone number into a cookie value.
func (c *Codec) Encode(phoneNumber string) (string, error) {
	enc, err := crypto.Encrypt(phoneNumber, c.key)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(enc)
	if err != nil {
		return "", err
	}
	return crypto.B64Encode(b), nil
}

// Decode opens a cookie value. Any failure at any stage degrades to
// ("", false): a browser with a stale or mangled cookie simply has no
// challenge phone and login asks for an explicit number. A clear-prefixed
// value (set by logout) short-circuits without logging.
func (c *Codec) Decode(value string) (string, bool) {
	if value == "" || strings.HasPrefix(value, session.ClearTokenPrefix) {
		return "", false
	}
	raw, err := crypto.B64Decode(value)
	if err != nil {
		slog.Error("error base64 decoding challenge cookie", "err", err)
		return "", false
	}
	var enc crypto.Envelope
	if err := json.Unmarshal(raw, &enc); err != nil {
		slog.Error("error decoding challenge cookie, expected json", "err", err)
		return "", false
	}
	number, err := crypto.Decrypt(&enc, c.key)
	if err != nil {
		slog.Error("error decrypting challenge cookie", "err", err)
		return "", false
	}
	return number, true
}

// CookieConfig carries the attributes shared by the auth and challenge
// cookies.
type CookieConfig struct {
	AuthName      string
	ChallengeName string
	Domain        string
	Secure        bool
	AuthMaxAge    time.Duration
	ChallengeTTL  time.Duration
}

// AuthCookie builds the session cookie carrying a bearer token.
func (cc CookieConfig) AuthCookie(token string) *http.Cookie {
	return cc.cookie(cc.AuthName, token, cc.AuthMaxAge)
}

// ChallengeCookie builds the cookie carrying an encoded challenge phone.
func (cc CookieConfig) ChallengeCookie(value string) *http.Cookie {
	return cc.cookie(cc.ChallengeName, value, cc.ChallengeTTL)
}

// ClearAuthCookie overwrites the session cookie with a clear token and
// expires it immediately.
func (cc CookieConfig) ClearAuthCookie(clearToken string) *http.Cookie {
	return cc.expired(cc.AuthName, clearToken)
}

// ClearChallengeCookie overwrites the challenge cookie likewise.
func (cc CookieConfig) ClearChallengeCookie(clearToken string) *http.Cookie {
	return cc.expired(cc.ChallengeName, clearToken)
}

func (cc CookieConfig) expired(name, value string) *http.Cookie {
	c := cc.cookie(name, value, 0)
	// MaxAge 0 omits the attribute entirely; a negative value serializes as
	// Max-Age=0, which is what makes the browser drop the cookie.
	c.MaxAge = -1
	return c
}

func (cc CookieConfig) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   cc.Domain,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Secure:   cc.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
