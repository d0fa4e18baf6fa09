package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	ServerPort  string
	Environment string
	JWTExpiry   time.Duration
	WALPath     string

	// Rate limiting
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
	RateLimitBlockTime   time.Duration

	CORSAllowedOrigins []string

	// Startup retry for the store and Redis
	StoreConnectAttempts int
	StoreConnectMaxWait  time.Duration

	// Live sessions
	WSFrameRate   float64
	WSFrameBurst  int
	WSSendBuffer  int
	BroadcastPins bool

	// Messages
	PageDefaultLimit    int
	PageMaxLimit        int
	MaxMessageLength    int
	OutboxFlushInterval time.Duration
}

// Load reads the environment (and .env when present). The returned config is
// never nil; the error reports values that make the process unsafe to start.
func Load() (*Config, error) {
	// Docker containers use environment variables directly, so a missing .env is fine.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		ServerPort:  getEnv("SERVER_PORT", ":8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		JWTExpiry:   getEnvAsDuration("JWT_EXPIRY", "24h"),
		WALPath:     getEnv("WAL_PATH", "data/outbox.log"),

		RateLimitMaxRequests: getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 100),
		RateLimitWindow:      getEnvAsDuration("RATE_LIMIT_WINDOW", "1m"),
		RateLimitBlockTime:   getEnvAsDuration("RATE_LIMIT_BLOCK_TIME", "5m"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		StoreConnectAttempts: getEnvAsInt("STORE_CONNECT_ATTEMPTS", 10),
		StoreConnectMaxWait:  getEnvAsDuration("STORE_CONNECT_MAX_WAIT", "30s"),

		WSFrameRate:   getEnvAsFloat("WS_FRAME_RATE", 20),
		WSFrameBurst:  getEnvAsInt("WS_FRAME_BURST", 40),
		WSSendBuffer:  getEnvAsInt("WS_SEND_BUFFER", 256),
		BroadcastPins: getEnvAsBool("BROADCAST_PINS", false),

		PageDefaultLimit:    getEnvAsInt("PAGE_DEFAULT_LIMIT", 50),
		PageMaxLimit:        getEnvAsInt("PAGE_MAX_LIMIT", 200),
		MaxMessageLength:    getEnvAsInt("MAX_MESSAGE_LENGTH", 5000),
		OutboxFlushInterval: getEnvAsDuration("OUTBOX_FLUSH_INTERVAL", "5s"),
	}

	return cfg, cfg.Validate()
}

// IsProduction reports whether the process runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) Validate() error {
	var errs []error
	if c.IsProduction() && c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.StoreConnectAttempts < 1 {
		errs = append(errs, errors.New("STORE_CONNECT_ATTEMPTS must be >= 1"))
	}
	if c.PageDefaultLimit < 1 || c.PageMaxLimit < c.PageDefaultLimit {
		errs = append(errs, errors.New("PAGE_DEFAULT_LIMIT must be >= 1 and <= PAGE_MAX_LIMIT"))
	}
	if c.WSSendBuffer < 1 {
		errs = append(errs, errors.New("WS_SEND_BUFFER must be >= 1"))
	}
	if c.WSFrameBurst < 1 {
		errs = append(errs, errors.New("WS_FRAME_BURST must be >= 1"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvAsInt retrieves environment variable as int with default value
func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

// getEnvAsDuration retrieves environment variable as duration with default value
func getEnvAsDuration(key string, defaultVal string) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		valStr = defaultVal
	}
	duration, err := time.ParseDuration(valStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultVal)
	}
	return duration
}

func getEnvAsList(key, defaultVal string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultVal), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
