package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DemoModeOff    = ""
	DemoModeMemory = "memory"
	DemoModeSQLite = "sqlite"
)

type Config struct {
	DBHost        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        string
	RedisAddr     string
	RedisPort     string
	RedisPassword string
	JWTSecret     string
	LedgerSecret  string
	ServerPort    string
	CORSOrigins   []string

	// Demo mode swaps postgres for an in-process store
	DemoMode       string
	DemoSQLitePath string

	// Payment gateway
	StripeSecretKey     string
	StripeWebhookSecret string
	DefaultCurrency     string

	// Ranking and settlement
	LeaderboardTZ         string
	MinPaymentAmount      string
	SettlementMaxAttempts int

	// Log configuration
	LogLevel      string
	LogFormat     string
	LogFilename   string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) RedisFullAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisAddr, c.RedisPort)
}

// RedisEnabled reports whether a redis host was configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		// Ignore error if .env file is not found
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg := &Config{
		DBHost:        os.Getenv("DB_HOST"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        os.Getenv("DB_NAME"),
		DBPort:        os.Getenv("DB_PORT"),
		RedisAddr:     os.Getenv("REDIS_HOST"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		LedgerSecret:  os.Getenv("LEDGER_SECRET"),
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		CORSOrigins:   getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		DemoMode:       strings.ToLower(os.Getenv("DEMO_MODE")),
		DemoSQLitePath: getEnv("DEMO_SQLITE_PATH", "payrank-demo.db"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		DefaultCurrency:     getEnv("DEFAULT_CURRENCY", "USD"),

		LeaderboardTZ:         getEnv("LEADERBOARD_TZ", "UTC"),
		MinPaymentAmount:      getEnv("MIN_PAYMENT_AMOUNT", "1"),
		SettlementMaxAttempts: getEnvAsInt("SETTLEMENT_MAX_ATTEMPTS", 3),

		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		LogFilename:   getEnv("LOG_FILENAME", "logs/app.log"),
		LogMaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvAsInt("LOG_MAX_AGE", 28),
		LogCompress:   getEnvAsBool("LOG_COMPRESS", true),
	}

	switch cfg.DemoMode {
	case DemoModeOff, DemoModeMemory, DemoModeSQLite:
	default:
		return nil, fmt.Errorf("unknown DEMO_MODE %q", cfg.DemoMode)
	}

	if cfg.JWTSecret == "" {
		if cfg.DemoMode == DemoModeOff {
			return nil, fmt.Errorf("JWT_SECRET is required")
		}
		cfg.JWTSecret = "demo-secret"
	}
	if cfg.LedgerSecret == "" {
		cfg.LedgerSecret = cfg.JWTSecret
	}

	// Outside demo mode every charge and webhook goes through Stripe.
	if cfg.DemoMode == DemoModeOff && cfg.StripeSecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required unless DEMO_MODE is set")
	}
	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret == "" {
		return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required with STRIPE_SECRET_KEY")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
