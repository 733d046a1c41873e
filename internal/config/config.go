package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Telephony TelephonyConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional: Redis is only required for the redis breaker
// backend and for per-tenant outbound call caps.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// TelephonyConfig controls the provider routing subsystem.
// Breaker settings are per-deployment, not per-tenant.
type TelephonyConfig struct {
	// CredentialKey is the hex-encoded 32-byte AEAD key used to encrypt
	// per-tenant provider credentials at rest. Never log it.
	CredentialKey string

	// BreakerBackend selects where circuit breaker state lives.
	// Accepts: memory, redis. Memory state is process-local and rebuilt
	// from CLOSED on restart.
	BreakerBackend string

	BreakerFailureThreshold int
	BreakerResetTimeout     time.Duration

	HealthCheckInterval    time.Duration
	HealthCheckConcurrency int

	// Vendor call timeouts, enforced by the router, not the adapters.
	TestTimeout time.Duration
	CallTimeout time.Duration

	// OutboundCallCap limits concurrent outbound calls per tenant.
	// 0 disables the cap (requires Redis when > 0).
	OutboundCallCap int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = optionalInt("REDIS_PORT")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Optional; default applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")

	c.Telephony.CredentialKey = strings.TrimSpace(os.Getenv("CREDENTIAL_KEY"))
	c.Telephony.BreakerBackend = strings.TrimSpace(os.Getenv("BREAKER_BACKEND"))
	c.Telephony.BreakerFailureThreshold = optionalInt("BREAKER_FAILURE_THRESHOLD")
	c.Telephony.BreakerResetTimeout = mustDuration("BREAKER_RESET_TIMEOUT")
	c.Telephony.HealthCheckInterval = mustDuration("HEALTH_CHECK_INTERVAL")
	c.Telephony.HealthCheckConcurrency = optionalInt("HEALTH_CHECK_CONCURRENCY")
	c.Telephony.TestTimeout = mustDuration("PROVIDER_TEST_TIMEOUT")
	c.Telephony.CallTimeout = mustDuration("PROVIDER_CALL_TIMEOUT")
	c.Telephony.OutboundCallCap = optionalInt("OUTBOUND_CALL_CAP")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.Telephony.CredentialKey == "" {
		errs = append(errs, errors.New("CREDENTIAL_KEY is required"))
	} else if _, err := c.Telephony.CredentialKeyBytes(); err != nil {
		errs = append(errs, err)
	}

	switch c.Telephony.BreakerBackend {
	case "":
		c.Telephony.BreakerBackend = "memory"
	case "memory":
	case "redis":
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when BREAKER_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("BREAKER_BACKEND must be one of memory, redis, got %q", c.Telephony.BreakerBackend))
	}

	if c.Telephony.OutboundCallCap > 0 && c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required when OUTBOUND_CALL_CAP > 0"))
	}
	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Telephony.BreakerFailureThreshold <= 0 {
		c.Telephony.BreakerFailureThreshold = 5
	}
	if c.Telephony.BreakerResetTimeout <= 0 {
		c.Telephony.BreakerResetTimeout = 60 * time.Second
	}
	if c.Telephony.HealthCheckInterval <= 0 {
		c.Telephony.HealthCheckInterval = 60 * time.Second
	}
	if c.Telephony.HealthCheckConcurrency <= 0 {
		c.Telephony.HealthCheckConcurrency = 4
	}
	if c.Telephony.TestTimeout <= 0 {
		c.Telephony.TestTimeout = 10 * time.Second
	}
	if c.Telephony.CallTimeout <= 0 {
		c.Telephony.CallTimeout = 30 * time.Second
	}

	return joinErrors(errs)
}

// CredentialKeyBytes decodes the hex credential key. The AEAD requires exactly 32 bytes.
func (t TelephonyConfig) CredentialKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(t.CredentialKey)
	if err != nil {
		return nil, errors.New("CREDENTIAL_KEY must be hex-encoded")
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("CREDENTIAL_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HasRedis() bool {
	return c.Redis.Host != ""
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
