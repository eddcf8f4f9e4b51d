package config

import (
	"time"

	"github.com/vyrodovalexey/integrationgw/internal/validation"
)

// Document store backend types.
const (
	StoreTypeMemory   = "memory"
	StoreTypeFile     = "file"
	StoreTypePostgres = "postgres"
	StoreTypeSQLite   = "sqlite"
	StoreTypeDynamoDB = "dynamodb"
)

// Default values applied by ApplyDefaults.
const (
	DefaultServiceName     = "integrationgw"
	DefaultAddress         = ":8080"
	DefaultBasePath        = "/api"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 90 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = 10 << 20
	DefaultCallTimeout     = 60 * time.Second
	DefaultAPIKeyHeader    = "X-API-Key"
	DefaultRedisPoolSize   = 10
	DefaultRedisTimeout    = 3 * time.Second
)

// Config is the root application configuration.
type Config struct {
	Environment   string              `yaml:"environment" validate:"environment"`
	ServiceName   string              `yaml:"serviceName"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Tracing       TracingConfig       `yaml:"tracing"`
	Redis         RedisConfig         `yaml:"redis"`
	DocumentStore DocumentStoreConfig `yaml:"documentStore"`
	Integration   IntegrationConfig   `yaml:"integration"`
	Audit         AuditConfig         `yaml:"audit"`
	Vault         *VaultConfig        `yaml:"vault,omitempty"`
	CallbackAuth  CallbackAuthConfig  `yaml:"callbackAuth"`
}

// ServerConfig configures the inbound HTTP surface.
type ServerConfig struct {
	Address         string   `yaml:"address"`
	BasePath        string   `yaml:"basePath" validate:"omitempty,startswith=/"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes" validate:"gte=0"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
	Output string `yaml:"output" validate:"omitempty,oneof=stdout stderr"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate" validate:"gte=0,lte=1"`
}

// RedisConfig configures the shared cache.
type RedisConfig struct {
	URL          string      `yaml:"url" validate:"required"`
	Password     string      `yaml:"password"`
	KeyPrefix    string      `yaml:"keyPrefix"`
	PoolSize     int         `yaml:"poolSize" validate:"gte=0"`
	DialTimeout  Duration    `yaml:"dialTimeout"`
	ReadTimeout  Duration    `yaml:"readTimeout"`
	WriteTimeout Duration    `yaml:"writeTimeout"`
	Retry        RetryConfig `yaml:"retry"`
}

// RetryConfig configures transport-level retries of cache and store commands.
type RetryConfig struct {
	MaxRetries     int      `yaml:"maxRetries" validate:"gte=0"`
	InitialBackoff Duration `yaml:"initialBackoff"`
	MaxBackoff     Duration `yaml:"maxBackoff"`
}

// DocumentStoreConfig selects and configures the document store backend.
type DocumentStoreConfig struct {
	Type     string           `yaml:"type" validate:"oneof=memory file postgres sqlite dynamodb"`
	File     *FileStoreConfig `yaml:"file,omitempty" validate:"required_if=Type file"`
	Postgres *PostgresConfig  `yaml:"postgres,omitempty" validate:"required_if=Type postgres"`
	SQLite   *SQLiteConfig    `yaml:"sqlite,omitempty" validate:"required_if=Type sqlite"`
	DynamoDB *DynamoDBConfig  `yaml:"dynamodb,omitempty" validate:"required_if=Type dynamodb"`
	Retry    RetryConfig      `yaml:"retry"`
}

// FileStoreConfig configures the YAML file backed store.
type FileStoreConfig struct {
	Path  string `yaml:"path" validate:"required"`
	Watch bool   `yaml:"watch"`
}

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	DSN      string `yaml:"dsn" validate:"required"`
	MaxConns int32  `yaml:"maxConns" validate:"gte=0"`
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// DynamoDBConfig configures the DynamoDB store.
type DynamoDBConfig struct {
	Region             string `yaml:"region" validate:"required"`
	Endpoint           string `yaml:"endpoint"`
	ConfigurationTable string `yaml:"configurationTable" validate:"required"`
	AuditTable         string `yaml:"auditTable" validate:"required"`
	AccessKeyID        string `yaml:"accessKeyId"`
	SecretAccessKey    string `yaml:"secretAccessKey"`
}

// IntegrationConfig configures outbound calls.
type IntegrationConfig struct {
	DefaultTimeout Duration                   `yaml:"defaultTimeout"`
	CircuitBreaker CircuitBreakerConfig       `yaml:"circuitBreaker"`
	RateLimits     map[string]RateLimitConfig `yaml:"rateLimits" validate:"dive"`

	// LocalMaxEntries caps each request-local cache tier. Zero uses the
	// cache package default.
	LocalMaxEntries int `yaml:"localMaxEntries" validate:"gte=0"`
}

// CircuitBreakerConfig configures the per-service outbound breaker.
type CircuitBreakerConfig struct {
	Enabled     bool     `yaml:"enabled"`
	MaxFailures uint32   `yaml:"maxFailures"`
	Timeout     Duration `yaml:"timeout"`
	Interval    Duration `yaml:"interval"`
}

// RateLimitConfig is a token bucket for one outbound service.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond" validate:"gt=0"`
	Burst             int     `yaml:"burst" validate:"gte=1"`
}

// AuditConfig configures the audit writer.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// VaultConfig configures secret resolution from Vault KV v2.
type VaultConfig struct {
	Address   string `yaml:"address" validate:"required,url"`
	Token     string `yaml:"token"`
	Namespace string `yaml:"namespace"`
	MountPath string `yaml:"mountPath"`
}

// CallbackAuthConfig protects the async callback endpoint with API keys.
// An empty KeyHashes list disables the check.
type CallbackAuthConfig struct {
	Header    string   `yaml:"header"`
	KeyHashes []string `yaml:"keyHashes"`
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	c.Environment = validation.NormalizeEnvironment(c.Environment)
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}

	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = DefaultBasePath
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = DefaultRedisPoolSize
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = Duration(DefaultRedisTimeout)
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = Duration(DefaultRedisTimeout)
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = Duration(DefaultRedisTimeout)
	}

	if c.DocumentStore.Type == "" {
		c.DocumentStore.Type = StoreTypeMemory
	}

	if c.Integration.DefaultTimeout == 0 {
		c.Integration.DefaultTimeout = Duration(DefaultCallTimeout)
	}

	if c.CallbackAuth.Header == "" {
		c.CallbackAuth.Header = DefaultAPIKeyHeader
	}
}

// IsLocal reports whether the process runs in the LOCAL environment.
func (c *Config) IsLocal() bool { return c.Environment == validation.EnvLocal }

// IsQA reports whether the process runs in the QA environment.
func (c *Config) IsQA() bool { return c.Environment == validation.EnvQA }

// IsHML reports whether the process runs in the HML environment.
func (c *Config) IsHML() bool { return c.Environment == validation.EnvHML }

// IsPRD reports whether the process runs in the PRD environment.
func (c *Config) IsPRD() bool { return c.Environment == validation.EnvPRD }
