package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App    AppConfig
	HTTP   HTTPConfig
	DB     PostgresConfig
	Auth   AuthConfig
	Kafka  KafkaConfig
	Outbox OutboxConfig
	Redis  RedisConfig
}

type AppConfig struct {
	Env string
}

type HTTPConfig struct {
	Port            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

type PostgresConfig struct {
	URL         string
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	SSLMode     string
	MaxConns    int
	LockTimeout time.Duration
}

// AuthConfig holds the shared X-Token values guarding each route group.
type AuthConfig struct {
	ProductToken string
	OrderToken   string
}

type KafkaConfig struct {
	Brokers    []string
	OrderTopic string
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

type RedisConfig struct {
	URL            string
	IdempotencyTTL time.Duration
}

// Load reads the nearest .env file (without overriding variables already set)
// and then the process environment.
func Load() (*Config, error) {
	if path := findEnvFile(); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Env: getEnv("APP_ENV", "development"),
		},
		HTTP: HTTPConfig{
			Port:            getEnv("PORT", "8080"),
			CORSOrigins:     splitAndTrim(getEnv("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		DB: PostgresConfig{
			URL:         getEnv("DATABASE_URL", ""),
			Host:        getEnv("POSTGRES_SERVER", "localhost"),
			Port:        getEnvAsInt("DB_PORT", 5432),
			User:        getEnv("POSTGRES_USER", "storefront"),
			Password:    getEnv("POSTGRES_PASSWORD", "storefront"),
			Name:        getEnv("POSTGRES_DB", "storefront"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    getEnvAsInt("DB_MAX_CONNS", 10),
			LockTimeout: getEnvAsDuration("DB_LOCK_TIMEOUT", 0),
		},
		Auth: AuthConfig{
			ProductToken: getEnv("PRODUCT_TOKEN", ""),
			OrderToken:   getEnv("ORDER_TOKEN", ""),
		},
		Kafka: KafkaConfig{
			Brokers:    splitAndTrim(getEnv("KAFKA_BROKERS", "")),
			OrderTopic: getEnv("KAFKA_ORDER_TOPIC", "storefront.orders.completed"),
		},
		Outbox: OutboxConfig{
			PollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 50),
		},
		Redis: RedisConfig{
			URL:            getEnv("REDIS_URL", ""),
			IdempotencyTTL: getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
	}

	return cfg, cfg.validate()
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production" || c.App.Env == "prod"
}

// DSN returns DATABASE_URL when set, otherwise a URL built from the
// individual POSTGRES_* settings.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return p.dsnFor(p.Name)
}

// MaintenanceDSN points at the server's default "postgres" database, used to
// create the application database.
func (p PostgresConfig) MaintenanceDSN() string {
	if p.URL != "" {
		u, err := url.Parse(p.URL)
		if err == nil {
			u.Path = "/postgres"
			return u.String()
		}
	}
	return p.dsnFor("postgres")
}

func (p PostgresConfig) DatabaseName() string {
	if p.URL != "" {
		if u, err := url.Parse(p.URL); err == nil {
			return strings.TrimPrefix(u.Path, "/")
		}
	}
	return p.Name
}

func (p PostgresConfig) dsnFor(db string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + db,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

func (c *Config) validate() error {
	var errs []error
	if c.HTTP.Port == "" {
		errs = append(errs, errors.New("PORT is empty"))
	} else if n, err := strconv.Atoi(c.HTTP.Port); err != nil || n <= 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("PORT %q is invalid", c.HTTP.Port))
	}
	if c.DB.URL == "" && (c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "") {
		errs = append(errs, errors.New("database config is incomplete"))
	}
	if c.DB.MaxConns <= 0 {
		errs = append(errs, errors.New("DB_MAX_CONNS must be positive"))
	} else if c.DB.MaxConns > math.MaxInt32 {
		// pgxpool holds the limit as an int32.
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS must not exceed %d", math.MaxInt32))
	}
	if c.DB.LockTimeout < 0 {
		errs = append(errs, errors.New("DB_LOCK_TIMEOUT must not be negative"))
	}
	if c.Outbox.BatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	if c.Outbox.PollInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL must be positive"))
	}
	if c.Kafka.Enabled() && c.Kafka.OrderTopic == "" {
		errs = append(errs, errors.New("KAFKA_ORDER_TOPIC is empty"))
	}
	if c.Redis.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}
	return errors.Join(errs...)
}

/* ================= helpers ================= */

func findEnvFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i < 6; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func getEnv(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if val := strings.TrimSpace(p); val != "" {
			out = append(out, val)
		}
	}
	return out
}
