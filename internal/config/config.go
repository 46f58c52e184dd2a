// Package config loads stageload settings from environment variables with
// defaults, and validates them on startup so misconfiguration fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Ingest    IngestConfig
	Routing   RoutingConfig
	Naming    NamingConfig
	Watch     WatchConfig
	Retention RetentionConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Storage   StorageConfig
	Notify    NotifyConfig
	Rules     RulesConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout bounds reading the request, including uploads.
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"5m"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is applied by middleware to non-ingest routes.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL accepts DATABASE_URL or DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies pending schema migrations at startup.
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// IngestConfig holds file processing settings.
type IngestConfig struct {
	// MaxFileSize is the largest accepted file or archive member in bytes
	// (default: 512MB).
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"536870912"`

	// MaxConcurrent bounds parallel HTTP ingests.
	MaxConcurrent int           `env:"INGEST_MAX_CONCURRENT" default:"4"`
	MaxWaitTime   time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"30s"`

	// TempDir hosts archive extraction workspaces (default: os.TempDir).
	TempDir string `env:"INGEST_TEMP_DIR"`

	// SerializeChecksum holds a database advisory lock per checksum across
	// the duplicate check and the load.
	SerializeChecksum bool `env:"INGEST_SERIALIZE_CHECKSUM" default:"false"`
}

// RoutingConfig configures filename-based table routing. Empty pattern and
// template select the router defaults.
type RoutingConfig struct {
	Enabled  bool   `env:"ROUTING_ENABLED" default:"true"`
	Pattern  string `env:"ROUTING_PATTERN"`
	Template string `env:"ROUTING_TEMPLATE"`
	Prefix   string `env:"ROUTING_PREFIX" default:"staging"`
}

// NamingConfig configures generated table names.
type NamingConfig struct {
	Prefix string `env:"NAMING_PREFIX" default:"staging"`
}

// WatchConfig configures the watch folder.
type WatchConfig struct {
	Enabled bool   `env:"WATCH_ENABLED" default:"false"`
	Root    string `env:"WATCH_ROOT" default:"./watch"`

	// PollInterval is the fallback rescan period.
	PollInterval time.Duration `env:"WATCH_POLL_INTERVAL" default:"10s"`

	// UseMarkers requires a name.ext.done marker next to each data file.
	// Without markers a file must keep its size and mtime for
	// StabilityDelay.
	UseMarkers     bool          `env:"WATCH_USE_MARKERS" default:"true"`
	StabilityDelay time.Duration `env:"WATCH_STABILITY_DELAY" default:"5s"`

	Workers int `env:"WATCH_WORKERS" default:"2"`
}

// RetentionConfig configures cleanup of the watch folder's archive and
// error directories.
type RetentionConfig struct {
	Enabled       bool          `env:"RETENTION_ENABLED" default:"true"`
	ArchiveDays   int           `env:"RETENTION_ARCHIVE_DAYS" default:"90"`
	ErrorDays     int           `env:"RETENTION_ERROR_DAYS" default:"30"`
	CheckInterval time.Duration `env:"RETENTION_CHECK_INTERVAL" default:"24h"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// IngestLimit is requests per minute for ingest and archive endpoints.
	IngestLimit int `env:"RATE_LIMIT_INGEST" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are honored.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey protects /api/v1 with the X-API-Key header.
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`

	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// StorageConfig configures the S3-compatible mirror of archived files.
type StorageConfig struct {
	Enabled  bool   `env:"STORAGE_ENABLED" default:"false"`
	Bucket   string `env:"STORAGE_BUCKET"`
	Prefix   string `env:"STORAGE_PREFIX" default:"stageload/archive"`
	Region   string `env:"STORAGE_REGION" default:"us-east-1"`
	Endpoint string `env:"STORAGE_ENDPOINT"`

	// Static credentials; when empty the default AWS chain is used.
	AccessKeyID     string `env:"STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"STORAGE_SECRET_ACCESS_KEY"`

	UsePathStyle bool `env:"STORAGE_USE_PATH_STYLE" default:"false"`
}

// NotifyConfig configures the webhook fired for watch folder outcomes.
type NotifyConfig struct {
	WebhookURL string        `env:"NOTIFY_WEBHOOK_URL"`
	Timeout    time.Duration `env:"NOTIFY_TIMEOUT" default:"10s"`
	RetryCount int           `env:"NOTIFY_RETRY_COUNT" default:"2"`
	OnSuccess  bool          `env:"NOTIFY_ON_SUCCESS" default:"true"`
	OnFailure  bool          `env:"NOTIFY_ON_FAILURE" default:"true"`
}

// RulesConfig points at the validation rules seed file.
type RulesConfig struct {
	File        string `env:"RULES_FILE"`
	SeedOnStart bool   `env:"RULES_SEED_ON_START" default:"false"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
