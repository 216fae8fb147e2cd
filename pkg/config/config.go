// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Parser, Redis, Postgres, Kafka, Logging, Metrics).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Parser   ParserConfig   `yaml:"parser"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
}

// ParserConfig controls query parsing limits and options.
type ParserConfig struct {
	MaxQueryLength   int    `yaml:"maxQueryLength"`
	MaxDepth         int    `yaml:"maxDepth"`
	StrayBrackets    string `yaml:"strayBrackets"`
	MaxBatchSize     int    `yaml:"maxBatchSize"`
	BatchConcurrency int    `yaml:"batchConcurrency"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters for the query log.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	FlushInterval   time.Duration `yaml:"flushInterval"`
	BatchSize       int           `yaml:"batchSize"`
	BufferSize      int           `yaml:"bufferSize"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ParseRequests string `yaml:"parseRequests"`
	ParseResults  string `yaml:"parseResults"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Parser.MaxQueryLength <= 0 {
		errs = append(errs, fmt.Errorf("parser.maxQueryLength must be positive, got %d", c.Parser.MaxQueryLength))
	}
	if c.Parser.MaxDepth <= 0 {
		errs = append(errs, fmt.Errorf("parser.maxDepth must be positive, got %d", c.Parser.MaxDepth))
	}
	switch strings.ToLower(c.Parser.StrayBrackets) {
	case "", "keep", "drop":
	default:
		errs = append(errs, fmt.Errorf("parser.strayBrackets must be keep or drop, got %q", c.Parser.StrayBrackets))
	}
	if c.Parser.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("parser.maxBatchSize must be positive, got %d", c.Parser.MaxBatchSize))
	}
	if c.Parser.BatchConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("parser.batchConcurrency must be positive, got %d", c.Parser.BatchConcurrency))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Postgres.Enabled && c.Postgres.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("postgres.batchSize must be positive, got %d", c.Postgres.BatchSize))
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
		}
		if c.Kafka.Topics.ParseRequests == "" || c.Kafka.Topics.ParseResults == "" {
			errs = append(errs, errors.New("kafka.topics.parseRequests and parseResults are required when kafka is enabled"))
		}
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("metrics.port %d out of range", c.Metrics.Port))
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Parser: ParserConfig{
			MaxQueryLength:   4096,
			MaxDepth:         128,
			StrayBrackets:    "keep",
			MaxBatchSize:     100,
			BatchConcurrency: 8,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Postgres: PostgresConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Database:        "queryparser",
			User:            "queryparser",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			FlushInterval:   5 * time.Second,
			BatchSize:       100,
			BufferSize:      10000,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "queryparser-group",
			Topics: KafkaTopics{
				ParseRequests: "query.parse.requests",
				ParseResults:  "query.parse.results",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads QP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt("QP_SERVER_PORT", &cfg.Server.Port)
	if v := os.Getenv("QP_SERVER_ALLOW_ORIGINS"); v != "" {
		cfg.Server.AllowOrigins = strings.Split(v, ",")
	}
	setInt("QP_PARSER_MAX_QUERY_LENGTH", &cfg.Parser.MaxQueryLength)
	setInt("QP_PARSER_MAX_DEPTH", &cfg.Parser.MaxDepth)
	setString("QP_PARSER_STRAY_BRACKETS", &cfg.Parser.StrayBrackets)
	setInt("QP_PARSER_MAX_BATCH_SIZE", &cfg.Parser.MaxBatchSize)
	setInt("QP_PARSER_BATCH_CONCURRENCY", &cfg.Parser.BatchConcurrency)

	setBool("QP_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("QP_REDIS_ADDR", &cfg.Redis.Addr)
	setString("QP_REDIS_PASSWORD", &cfg.Redis.Password)

	setBool("QP_POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	setString("QP_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("QP_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("QP_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("QP_POSTGRES_USER", &cfg.Postgres.User)
	setString("QP_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("QP_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)

	setBool("QP_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("QP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	setString("QP_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("QP_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("QP_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("QP_METRICS_PORT", &cfg.Metrics.Port)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
