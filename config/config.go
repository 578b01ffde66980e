package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration. Every option has a local-development
// default so the service starts with an empty environment.
type Config struct {
	ServiceName string
	Environment string
	Host        string
	Port        string
	LogLevel    string
	GinMode     string

	StoreDriver string
	AutoMigrate bool
	Database    DatabaseConfig
	SQLitePath  string

	Kafka      KafkaConfig
	ClickHouse ClickHouseConfig

	IngestWorkers    int
	IngestQueueSize  int
	TaskTimeout      time.Duration
	BatchConcurrency int
	MaxBodyBytes     int64

	CORSAllowedOrigins []string

	AuthJWTSecret string
	APIKeyHash    string
}

type DatabaseConfig struct {
	Host           string
	Port           int
	Name           string
	User           string
	Password       string
	SSLMode        string
	MaxConns       int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
}

type KafkaConfig struct {
	Brokers           []string
	TopicOrg          string
	Retries           int
	InitialRetryDelay time.Duration
}

type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

func Load() Config {
	return Config{
		ServiceName: getString("OTEL_SERVICE_NAME", "analytics-service"),
		Environment: getString("DEPLOYMENT_ENVIRONMENT", "local"),
		Host:        getString("ANALYTICS_HOST", "0.0.0.0"),
		Port:        getString("ANALYTICS_PORT", "8090"),
		LogLevel:    getString("LOG_LEVEL", "info"),
		GinMode:     getString("GIN_MODE", ""),

		StoreDriver: strings.ToLower(getString("ANALYTICS_STORE", StorePostgres)),
		AutoMigrate: getBool("ANALYTICS_AUTO_MIGRATE", true),
		Database: DatabaseConfig{
			Host:           getString("ANALYTICS_DB_HOST", "localhost"),
			Port:           getInt("ANALYTICS_DB_PORT", 5434),
			Name:           getString("ANALYTICS_DB_NAME", "analytics_db"),
			User:           getString("ANALYTICS_DB_USER", "postgres"),
			Password:       getString("ANALYTICS_DB_PASSWORD", "postgres"),
			SSLMode:        getString("ANALYTICS_DB_SSLMODE", "disable"),
			MaxConns:       getInt("ANALYTICS_DB_MAX_CONNS", 10),
			IdleTimeout:    getMillis("ANALYTICS_DB_IDLE_TIMEOUT_MS", 30_000),
			ConnectTimeout: getMillis("ANALYTICS_DB_CONNECT_TIMEOUT_MS", 2_000),
		},
		SQLitePath: getString("ANALYTICS_SQLITE_PATH", "analytics.db"),

		Kafka: KafkaConfig{
			Brokers:           parseList(getString("KAFKA_BROKERS", "localhost:9092")),
			TopicOrg:          getString("KAFKA_TOPIC_ORG", "ecosystem"),
			Retries:           getInt("KAFKA_RETRIES", 3),
			InitialRetryDelay: getMillis("KAFKA_INITIAL_RETRY_MS", 100),
		},
		ClickHouse: ClickHouseConfig{
			Host:     getString("CLICKHOUSE_HOST", ""),
			Port:     getInt("CLICKHOUSE_NATIVE_PORT", 9000),
			Database: getString("CLICKHOUSE_DB_NAME", "analytics"),
			Username: getString("CLICKHOUSE_USERNAME", "default"),
			Password: getString("CLICKHOUSE_PASSWORD", ""),
		},

		IngestWorkers:    getInt("INGEST_WORKERS", 8),
		IngestQueueSize:  getInt("INGEST_QUEUE_SIZE", 1024),
		TaskTimeout:      getMillis("INGEST_TASK_TIMEOUT_MS", 5_000),
		BatchConcurrency: getInt("INGEST_BATCH_CONCURRENCY", 16),
		MaxBodyBytes:     int64(getInt("MAX_BODY_BYTES", 1_048_576)),

		CORSAllowedOrigins: parseList(getString("CORS_ALLOWED_ORIGINS", "")),

		AuthJWTSecret: getString("ANALYTICS_AUTH_JWT_SECRET", ""),
		APIKeyHash:    getString("ANALYTICS_API_KEY_HASH", ""),
	}
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Topic follows the <org>.<environment>.analytics.event.recorded convention.
func (c Config) Topic() string {
	return fmt.Sprintf("%s.%s.analytics.event.recorded", c.Kafka.TopicOrg, c.Environment)
}

// WarehouseEnabled reports whether the ClickHouse mirror is configured.
func (c Config) WarehouseEnabled() bool {
	return c.ClickHouse.Host != ""
}

// DSN builds a lib/pq connection URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	if secs := int(d.ConnectTimeout / time.Second); secs > 0 {
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func parseList(csv string) []string {
	var out []string
	for _, v := range strings.Split(csv, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getMillis(key string, def int) time.Duration {
	return time.Duration(getInt(key, def)) * time.Millisecond
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}
