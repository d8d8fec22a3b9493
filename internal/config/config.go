package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort  string
	StaticDir string
	LogLevel  string

	MongoURI            string
	MongoDatabase       string
	MongoConnectTimeout time.Duration

	MpesaConsumerKey      string
	MpesaConsumerSecret   string
	MpesaShortcode        string
	MpesaPasskey          string
	MpesaCallbackURL      string
	MpesaBaseURL          string
	MpesaTimeout          time.Duration
	MpesaTimezone         string
	MpesaAmount           int
	MpesaAccountReference string
	MpesaTransactionDesc  string
	STKPushJWTSecret      string
	ClearanceVerifyLaptop bool
	CORSAllowedOrigins    []string
	RedisHost             string
	RedisPort             string
	RedisPassword         string
	IdempotencyTTL        time.Duration
	PostgresDSN           string
	DBMaxConnections      int
	NatsURL               string
	EventWorkers          int
	EventBuffer           int
}

const pendingMargin = 15 * time.Second

var defaultOrigins = []string{
	"http://localhost:5173",
	"https://6696-41-89-198-6.ngrok-free.app",
}

// Load reads a .env file when one exists and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort:              getEnv("PORT", "5000"),
		StaticDir:             getEnv("STATIC_DIR", "dist"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		MongoURI:              getEnv("MONGO_URI", ""),
		MongoDatabase:         getEnv("MONGO_DATABASE", "slfs"),
		MongoConnectTimeout:   getEnvDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		MpesaConsumerKey:      getEnv("MPESA_CONSUMER_KEY", ""),
		MpesaConsumerSecret:   getEnv("MPESA_CONSUMER_SECRET", ""),
		MpesaShortcode:        getEnv("MPESA_SHORTCODE", ""),
		MpesaPasskey:          getEnv("MPESA_PASSKEY", ""),
		MpesaCallbackURL:      getEnv("MPESA_CALLBACK_URL", "https://yourdomain.com/mpesa/callback"),
		MpesaBaseURL:          getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
		MpesaTimeout:          getEnvDuration("MPESA_TIMEOUT", 30*time.Second),
		MpesaTimezone:         getEnv("MPESA_TIMEZONE", "UTC"),
		MpesaAmount:           getEnvInt("MPESA_AMOUNT", 1),
		MpesaAccountReference: getEnv("MPESA_ACCOUNT_REFERENCE", "LaptopRental"),
		MpesaTransactionDesc:  getEnv("MPESA_TRANSACTION_DESC", "Laptop rental payment"),
		STKPushJWTSecret:      getEnv("STKPUSH_JWT_SECRET", ""),
		ClearanceVerifyLaptop: getEnvBool("CLEARANCE_VERIFY_LAPTOP", false),
		CORSAllowedOrigins:    getEnvList("CORS_ALLOWED_ORIGINS", defaultOrigins),
		RedisHost:             getEnv("REDIS_HOST", ""),
		RedisPort:             getEnv("REDIS_PORT", "6379"),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		IdempotencyTTL:        getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		PostgresDSN:           getEnv("POSTGRES_DSN", ""),
		DBMaxConnections:      getEnvInt("DB_MAXCONNECTIONS", 10),
		NatsURL:               getEnv("NATS_URL", ""),
		EventWorkers:          getEnvInt("EVENT_WORKERS", 2),
		EventBuffer:           getEnvInt("EVENT_BUFFER", 256),
	}
}

// Validate returns an error for settings the process cannot start without.
// Missing gateway credentials are reported through MissingGatewaySettings
// instead, since the rest of the API works without them.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return errors.New("MONGO_URI is required")
	}
	if c.MpesaAmount <= 0 {
		return fmt.Errorf("MPESA_AMOUNT must be greater than zero, got %d", c.MpesaAmount)
	}
	if _, err := time.LoadLocation(c.MpesaTimezone); err != nil {
		return fmt.Errorf("invalid MPESA_TIMEZONE %q: %w", c.MpesaTimezone, err)
	}
	return nil
}

func (c *Config) MissingGatewaySettings() []string {
	settings := []struct{ key, val string }{
		{"MPESA_CONSUMER_KEY", c.MpesaConsumerKey},
		{"MPESA_CONSUMER_SECRET", c.MpesaConsumerSecret},
		{"MPESA_SHORTCODE", c.MpesaShortcode},
		{"MPESA_PASSKEY", c.MpesaPasskey},
	}
	var missing []string
	for _, s := range settings {
		if s.val == "" {
			missing = append(missing, s.key)
		}
	}
	return missing
}

// IdempotencyPendingTTL bounds how long an idempotency key stays claimed
// when the process dies mid-request: both gateway calls plus a margin.
func (c *Config) IdempotencyPendingTTL() time.Duration {
	ttl := 2*c.MpesaTimeout + pendingMargin
	if ttl > c.IdempotencyTTL {
		return c.IdempotencyTTL
	}
	return ttl
}

func (c *Config) RedisEnabled() bool    { return c.RedisHost != "" }
func (c *Config) PostgresEnabled() bool { return c.PostgresDSN != "" }
func (c *Config) NatsEnabled() bool     { return c.NatsURL != "" }

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
