package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Queue    QueueConfig
	SMTP     SMTPConfig
	IMAP     IMAPConfig
	Inbox    InboxConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Description           string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	// AllowedOrigins feeds the CORS policy; credentials are allowed for these origins only.
	AllowedOrigins        []string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// QueueConfig describes the notification job stream.
type QueueConfig struct {
	Stream                string
	Group                 string
	Workers               int
	BufferSize            int
	EnqueueTimeoutSeconds int
	BlockSeconds          int
	FlushTimeoutSeconds   int
	ReclaimIdleSeconds    int
}

// SMTPConfig holds the outbound mail transport.
type SMTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	TimeoutSeconds int
}

// IMAPConfig holds the inbound mailbox transport.
type IMAPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Mailbox            string
	DialTimeoutSeconds int
}

// InboxConfig controls email-to-ticket ingestion.
type InboxConfig struct {
	Enabled             bool
	PollIntervalSeconds int
	// AllowedSenders holds "Name <address>" entries, comma separated in the env.
	AllowedSenders      []string
	PlaceholderUserName string
}

// Load reads configuration from environment variables, applying defaults where possible.
// Files in envFiles are loaded first; with none given, ".env" is tried.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	imapPort, err := strconv.Atoi(getEnv("IMAP_PORT", "993"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMAP_PORT: %w", err)
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}

	smtpUser := os.Getenv("SMTP_USERNAME")
	imapUser := os.Getenv("IMAP_USERNAME")

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-ticket-service"),
			Description:           getEnv("APP_DESCRIPTION", "ServiceDesk API"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			AllowedOrigins:        getEnvAsList("CORS_ALLOWED_ORIGINS", "http://localhost:3000", "http://localhost:8000"),
		},
		Postgres: PostgresConfig{
			DSN:            dsn,
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Queue: QueueConfig{
			Stream:                getEnv("QUEUE_STREAM", "helpdesk:notifications"),
			Group:                 getEnv("QUEUE_GROUP", "notification-workers"),
			Workers:               getEnvAsInt("QUEUE_WORKERS", 4),
			BufferSize:            getEnvAsInt("QUEUE_BUFFER_SIZE", 256),
			EnqueueTimeoutSeconds: getEnvAsInt("QUEUE_ENQUEUE_TIMEOUT_SECONDS", 2),
			BlockSeconds:          getEnvAsInt("QUEUE_BLOCK_SECONDS", 5),
			FlushTimeoutSeconds:   getEnvAsInt("QUEUE_FLUSH_TIMEOUT_SECONDS", 5),
			ReclaimIdleSeconds:    getEnvAsInt("QUEUE_RECLAIM_IDLE_SECONDS", 60),
		},
		SMTP: SMTPConfig{
			Host:           getEnv("SMTP_HOST", "localhost"),
			Port:           smtpPort,
			Username:       smtpUser,
			Password:       os.Getenv("SMTP_PASSWORD"),
			From:           getEnv("SMTP_FROM", smtpUser),
			TimeoutSeconds: getEnvAsInt("SMTP_TIMEOUT_SECONDS", 10),
		},
		IMAP: IMAPConfig{
			Host:               getEnv("IMAP_HOST", "localhost"),
			Port:               imapPort,
			Username:           imapUser,
			Password:           os.Getenv("IMAP_PASSWORD"),
			Mailbox:            getEnv("IMAP_MAILBOX", "INBOX"),
			DialTimeoutSeconds: getEnvAsInt("IMAP_DIAL_TIMEOUT_SECONDS", 15),
		},
		Inbox: InboxConfig{
			Enabled:             getEnvAsBool("INBOX_ENABLED", imapUser != ""),
			PollIntervalSeconds: getEnvAsInt("INBOX_POLL_INTERVAL_SECONDS", 60),
			AllowedSenders:      getEnvAsList("INBOX_ALLOWED_SENDERS"),
			PlaceholderUserName: getEnv("INBOX_PLACEHOLDER_USER_NAME", "Generated User"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// Addr returns host:port of the SMTP server.
func (s SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Timeout is the connect/send timeout for one SMTP session.
func (s SMTPConfig) Timeout() time.Duration {
	return seconds(s.TimeoutSeconds)
}

// Addr returns host:port of the IMAP server.
func (i IMAPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

// DialTimeout bounds the IMAP connect.
func (i IMAPConfig) DialTimeout() time.Duration {
	return seconds(i.DialTimeoutSeconds)
}

// PollInterval is the period between inbox cycles.
func (i InboxConfig) PollInterval() time.Duration {
	if i.PollIntervalSeconds <= 0 {
		return time.Minute
	}
	return seconds(i.PollIntervalSeconds)
}

// EnqueueTimeout bounds a single XADD.
func (q QueueConfig) EnqueueTimeout() time.Duration {
	return seconds(q.EnqueueTimeoutSeconds)
}

// Block is how long a worker waits on XREADGROUP. It is never zero:
// BLOCK 0 waits forever and would keep workers from seeing shutdown.
func (q QueueConfig) Block() time.Duration {
	return secondsOr(q.BlockSeconds, 5*time.Second)
}

// FlushTimeout bounds the whole shutdown flush of buffered jobs.
func (q QueueConfig) FlushTimeout() time.Duration {
	return secondsOr(q.FlushTimeoutSeconds, 5*time.Second)
}

// ReclaimIdle is how long a delivered entry must sit unacknowledged before
// a starting worker claims it.
func (q QueueConfig) ReclaimIdle() time.Duration {
	return secondsOr(q.ReclaimIdleSeconds, time.Minute)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func secondsOr(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback ...string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
