// Package crypto provides the symmetric encryption envelope, keyed-hash
// signing, and slow secret hashing that the auth flows are built on.
//
// Keys given by callers are never used directly as cipher keys: they are
// stretched with a salted PBKDF2-HMAC-SHA512 at 100,000 iterations, and the
// first 32 bytes of the digest key AES-256-GCM. The same stretch hashes
// verification codes and any other short secret that lands in storage.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// NonceSize is the AES-GCM nonce length. A fresh random nonce is drawn
	// per Encrypt call and must never repeat under one key.
	NonceSize = 12

	// SaltSize is the length of stretch salts. One salt per secret, never
	// shared across secrets.
	SaltSize = 128

	// Iterations is the PBKDF2 iteration count.
	Iterations = 100_000

	keyLen    = 32                // AES-256 key length
	digestLen = sha512.Size       // HashSecret output length
)

// ErrAuthentication is the single error returned for every decryption
// failure. Callers cannot tell a malformed envelope from a bad tag; the
// distinction is logged server-side only.
var ErrAuthentication = errors.New("authentication failed")

// Envelope is the transport form of an encrypted value. Each field is
// URL-safe unpadded base64. Value carries ciphertext with the GCM tag
// appended; Salt is the stretch salt for the key that sealed it.
type Envelope struct {
	Value string `json:"value"`
	Nonce string `json:"nonce"`
	Salt  string `json:"salt"`
}

// B64Encode encodes bytes as URL-safe unpadded base64.
func B64Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// B64Decode decodes a URL-safe unpadded base64 string.
func B64Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// RandomBytes fills n bytes from the OS CSPRNG. An error means the
// randomness source is unavailable and the calling operation must abort;
// no caller may substitute deterministic bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// NewSalt draws a fresh SaltSize-byte stretch salt.
func NewSalt() ([]byte, error) {
	return RandomBytes(SaltSize)
}

// NewNonce draws a fresh NonceSize-byte GCM nonce.
func NewNonce() ([]byte, error) {
	return RandomBytes(NonceSize)
}

// HashSecret runs secret through the slow salted stretch and returns the
// full 64-byte digest. Used for verification codes and anywhere else a
// short secret must be stored in one-way form.
func HashSecret(secret, salt []byte) []byte {
	return pbkdf2.Key(secret, salt, Iterations, digestLen, sha512.New)
}

// Sign returns the hex HMAC-SHA256 tag of msg under key.
func Sign(msg, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether tag is the HMAC-SHA256 of msg under key. The
// comparison is constant time. A malformed hex tag is simply false, not an
// error.
func Verify(msg, tag, key string) bool {
	want, err := hex.DecodeString(tag)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(msg))
	return hmac.Equal(mac.Sum(nil), want)
}

// Encrypt seals plaintext under key with a fresh nonce and a fresh salt.
// The key is stretched through HashSecret before use, so any length of
// caller key is acceptable.
func Encrypt(plaintext, key string) (*Envelope, error) {
	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	sealed, err := encryptBytes([]byte(plaintext), nonce, []byte(key), salt)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Value: B64Encode(sealed),
		Nonce: B64Encode(nonce),
		Salt:  B64Encode(salt),
	}, nil
}

// Decrypt opens an envelope sealed by Encrypt. Every failure mode returns
// ErrAuthentication; the failing stage is logged but never surfaced.
func Decrypt(enc *Envelope, key string) (string, error) {
	nonce, err := B64Decode(enc.Nonce)
	if err != nil {
		return "", authFail("nonce base64 decode", err)
	}
	salt, err := B64Decode(enc.Salt)
	if err != nil {
		return "", authFail("salt base64 decode", err)
	}
	sealed, err := B64Decode(enc.Value)
	if err != nil {
		return "", authFail("value base64 decode", err)
	}
	plain, err := decryptBytes(sealed, nonce, []byte(key), salt)
	if err != nil {
		return "", authFail("open", err)
	}
	return string(plain), nil
}

func encryptBytes(plaintext, nonce, key, salt []byte) ([]byte, error) {
	aead, err := newAEAD(key, salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("bad nonce length")
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

func decryptBytes(sealed, nonce, key, salt []byte) ([]byte, error) {
	aead, err := newAEAD(key, salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("bad nonce length")
	}
	return aead.Open(nil, nonce, sealed, nil)
}

// newAEAD stretches key with salt and builds the AES-256-GCM AEAD.
func newAEAD(key, salt []byte) (cipher.AEAD, error) {
	stretched := HashSecret(key, salt)
	block, err := aes.NewCipher(stretched[:keyLen])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func authFail(stage string, err error) error {
	slog.Error("decrypt failed", "stage", stage, "err", err)
	return ErrAuthentication
}
