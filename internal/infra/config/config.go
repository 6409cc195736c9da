package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SEC"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Security  SecuritySettings  `mapstructure:"security"`
	Storage   StorageSettings   `mapstructure:"storage"`
	Audit     AuditSettings     `mapstructure:"audit"`
	Ledger    LedgerSettings    `mapstructure:"ledger"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// SecuritySettings holds the thresholds enforced by the security core.
type SecuritySettings struct {
	MaxLoginAttempts         int           `mapstructure:"max_login_attempts"`
	LoginAttemptWindow       time.Duration `mapstructure:"login_attempt_window"`
	IPBlockDuration          time.Duration `mapstructure:"ip_block_duration"`
	SessionInactivityTimeout time.Duration `mapstructure:"session_inactivity_timeout"`
	MaxConcurrentSessions    int           `mapstructure:"max_concurrent_sessions"`
	MFACodeLength            int           `mapstructure:"mfa_code_length"`
	MFACodeTTL               time.Duration `mapstructure:"mfa_code_ttl"`
	MFAMaxAttempts           int           `mapstructure:"mfa_max_attempts"`
	MFAMethods               []string      `mapstructure:"mfa_methods"`
	TOTPIssuer               string        `mapstructure:"totp_issuer"`
}

// StorageSettings selects where durable records (sessions, enrollments) and
// short-lived records (failure windows, IP blocks, challenges) live.
type StorageSettings struct {
	DurableBackend   string `mapstructure:"durable_backend"`
	EphemeralBackend string `mapstructure:"ephemeral_backend"`
}

// AuditSettings selects the audit backend and its durability knobs.
type AuditSettings struct {
	Backend  string `mapstructure:"backend"`
	FilePath string `mapstructure:"file_path"`
	Fsync    bool   `mapstructure:"fsync"`
}

// LedgerSettings configures best-effort publication of audit entries to Kafka.
type LedgerSettings struct {
	Enabled         bool          `mapstructure:"enabled"`
	Topic           string        `mapstructure:"topic"`
	QueueSize       int           `mapstructure:"queue_size"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	MaxRetryElapsed time.Duration `mapstructure:"max_retry_elapsed"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
	// ChallengeRetention keeps expired challenges readable so late verifications report Expired.
	ChallengeRetention time.Duration `mapstructure:"challenge_retention"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// RateLimitSettings configures the per-client API throttle.
type RateLimitSettings struct {
	APIRequestsPerMinute int `mapstructure:"api_requests_per_minute"`
	APIBurst             int `mapstructure:"api_burst"`
}

type TelemetrySettings struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.cors_allowed_origins",
		"security.max_login_attempts",
		"security.login_attempt_window",
		"security.ip_block_duration",
		"security.session_inactivity_timeout",
		"security.max_concurrent_sessions",
		"security.mfa_code_length",
		"security.mfa_code_ttl",
		"security.mfa_max_attempts",
		"security.mfa_methods",
		"security.totp_issuer",
		"storage.durable_backend",
		"storage.ephemeral_backend",
		"audit.backend",
		"audit.file_path",
		"audit.fsync",
		"ledger.enabled",
		"ledger.topic",
		"ledger.queue_size",
		"ledger.rate_per_second",
		"ledger.max_retry_elapsed",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"redis.challenge_retention",
		"kafka.brokers",
		"kafka.topic_prefix",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.api_requests_per_minute",
		"rate_limit.api_burst",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the security core cannot run with.
func (c *AppConfig) Validate() error {
	s := c.Security
	switch {
	case s.MaxLoginAttempts <= 0:
		return fmt.Errorf("security.max_login_attempts must be positive")
	case s.LoginAttemptWindow <= 0:
		return fmt.Errorf("security.login_attempt_window must be positive")
	case s.IPBlockDuration <= 0:
		return fmt.Errorf("security.ip_block_duration must be positive")
	case s.SessionInactivityTimeout <= 0:
		return fmt.Errorf("security.session_inactivity_timeout must be positive")
	case s.MaxConcurrentSessions <= 0:
		return fmt.Errorf("security.max_concurrent_sessions must be positive")
	case s.MFACodeLength < 4 || s.MFACodeLength > 10:
		return fmt.Errorf("security.mfa_code_length must be between 4 and 10")
	case s.MFACodeTTL <= 0:
		return fmt.Errorf("security.mfa_code_ttl must be positive")
	case s.MFAMaxAttempts <= 0:
		return fmt.Errorf("security.mfa_max_attempts must be positive")
	}

	switch c.Storage.DurableBackend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unsupported storage.durable_backend %q", c.Storage.DurableBackend)
	}

	switch c.Storage.EphemeralBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported storage.ephemeral_backend %q", c.Storage.EphemeralBackend)
	}

	switch c.Audit.Backend {
	case "memory", "file", "postgres":
	default:
		return fmt.Errorf("unsupported audit.backend %q", c.Audit.Backend)
	}

	if c.Redis.ChallengeRetention < 0 {
		return fmt.Errorf("redis.challenge_retention must not be negative")
	}

	if c.Ledger.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("ledger.enabled requires kafka.brokers")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "security-core")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.cors_allowed_origins", []string{})

	v.SetDefault("security.max_login_attempts", 5)
	v.SetDefault("security.login_attempt_window", "15m")
	v.SetDefault("security.ip_block_duration", "1h")
	v.SetDefault("security.session_inactivity_timeout", "30m")
	v.SetDefault("security.max_concurrent_sessions", 3)
	v.SetDefault("security.mfa_code_length", 6)
	v.SetDefault("security.mfa_code_ttl", "5m")
	v.SetDefault("security.mfa_max_attempts", 3)
	v.SetDefault("security.mfa_methods", []string{"SMS", "AUTHENTICATOR_APP", "EMAIL"})
	v.SetDefault("security.totp_issuer", "FineVerse")

	v.SetDefault("storage.durable_backend", "memory")
	v.SetDefault("storage.ephemeral_backend", "memory")

	v.SetDefault("audit.backend", "memory")
	v.SetDefault("audit.file_path", "logs/audit.log")
	v.SetDefault("audit.fsync", true)

	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.topic", "security.audit")
	v.SetDefault("ledger.queue_size", 1024)
	v.SetDefault("ledger.rate_per_second", 10)
	v.SetDefault("ledger.max_retry_elapsed", "30s")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "security")
	v.SetDefault("postgres.password", "security_password")
	v.SetDefault("postgres.database", "security")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "security")
	v.SetDefault("redis.challenge_retention", "1h")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "fineverse")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "security-core")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.api_requests_per_minute", 100)
	v.SetDefault("rate_limit.api_burst", 20)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
