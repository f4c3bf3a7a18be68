package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration. It is built once in main and
// passed by reference to every component; nothing reads the environment
// after Load returns.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	SNSRegion      string

	// AuthHeaderName is checked before the auth cookie; clients that can't
	// hold cookies (mobile) send the bearer token in this header.
	AuthHeaderName      string
	AuthCookieName      string
	ChallengeCookieName string
	CookieDomain        string
	SecureCookie        bool // only false for local dev

	// EncryptionKey seals the challenge cookie; SigningKey tags bearer
	// tokens. Both are stretched before use, so length is not constrained.
	EncryptionKey string
	SigningKey    string

	// AuthExpiration bounds session tokens; ChallengeExpiration bounds both
	// the challenge cookie and verification-code validity.
	AuthExpiration      time.Duration
	ChallengeExpiration time.Duration

	// AllowedPhoneNumbers, when non-nil, restricts SMS dispatch to the
	// listed numbers. Codes are still generated and stored for everyone,
	// which keeps the flow testable without sending texts.
	AllowedPhoneNumbers []string

	AllowedOrigins []string

	LogLevel string
	LogJSON  bool
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users             string
	AuthTokens        string
	VerificationCodes string
	VerifiedPhones    string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	var allowed []string
	if v := os.Getenv("ALLOWED_PHONE_NUMBERS"); v != "" {
		for _, p := range strings.Split(v, ",") {
			allowed = append(allowed, strings.TrimSpace(p))
		}
	}
	return &Config{
		AppPort: getEnv("APP_PORT", "3003"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:             getEnv("DYNAMO_TABLE_USERS", "users"),
			AuthTokens:        getEnv("DYNAMO_TABLE_AUTH_TOKENS", "auth_tokens"),
			VerificationCodes: getEnv("DYNAMO_TABLE_VERIFICATION_CODES", "verification_codes"),
			VerifiedPhones:    getEnv("DYNAMO_TABLE_VERIFIED_PHONES", "verified_phones"),
		},
		SNSRegion: getEnv("SNS_REGION", "us-east-1"),

		AuthHeaderName:      getEnv("AUTH_HEADER_NAME", "x-pinion-auth"),
		AuthCookieName:      getEnv("AUTH_COOKIE_NAME", "pinion_auth"),
		ChallengeCookieName: getEnv("CHALLENGE_COOKIE_NAME", "pinion_challenge_phone"),
		CookieDomain:        getEnv("COOKIE_DOMAIN", "localhost"),
		SecureCookie:        getEnv("SECURE_COOKIE", "true") != "false",

		EncryptionKey: getEnv("ENCRYPTION_KEY", "01234567890123456789012345678901"),
		SigningKey:    getEnv("SIGNING_KEY", "01234567890123456789012345678901"),

		// 60 * 60 * 24 * 30
		AuthExpiration: time.Duration(getEnvInt("AUTH_EXPIRATION_SECONDS", 2592000)) * time.Second,
		// 60 * 2
		ChallengeExpiration: time.Duration(getEnvInt("CHALLENGE_PHONE_EXPIRATION_SECONDS", 120)) * time.Second,

		AllowedPhoneNumbers: allowed,

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnv("LOG_JSON", "false") == "true",
	}
}

// PhoneAllowed reports whether SMS dispatch is permitted for number. An
// empty allow-list means every number is allowed.
func (c *Config) PhoneAllowed(number string) bool {
	if len(c.AllowedPhoneNumbers) == 0 {
		return true
	}
	for _, p := range c.AllowedPhoneNumbers {
		if p == number {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
