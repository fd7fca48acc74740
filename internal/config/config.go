package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/imrishuroy/go-async-orderflow/internal/orders"
)

// Store backends
const (
	BackendDynamoDB = orders.BackendDynamoDB
	BackendPostgres = orders.BackendPostgres
)

// Poison message policies
const (
	PoisonDiscard = "discard" // acknowledge and log malformed bodies
	PoisonRetry   = "retry"   // fail the batch so the dead-letter queue catches them
)

// Config is the process configuration shared by the api, worker and dlq binaries.
type Config struct {
	AWS      AWSConfig     `mapstructure:",squash"`
	Store    StoreConfig   `mapstructure:",squash"`
	Queue    QueueConfig   `mapstructure:",squash"`
	Worker   WorkerConfig  `mapstructure:",squash"`
	HTTP     HTTPConfig    `mapstructure:",squash"`
	Metrics  MetricsConfig `mapstructure:",squash"`
	LogLevel string        `mapstructure:"log_level"`
	RunLocal bool          `mapstructure:"run_local"`
}

type AWSConfig struct {
	Region           string `mapstructure:"aws_region"`
	EndpointOverride string `mapstructure:"aws_endpoint_override"`
}

type StoreConfig struct {
	Backend     string `mapstructure:"store_backend"`
	OrdersTable string `mapstructure:"orders_table"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type QueueConfig struct {
	QueueURL string `mapstructure:"orders_queue_url"`
	DLQURL   string `mapstructure:"orders_dlq_url"`
}

// WorkerConfig mirrors the SQS event source settings of the deployed worker.
type WorkerConfig struct {
	BatchSize         int           `mapstructure:"batch_size"`
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	MaxReceiveCount   int           `mapstructure:"max_receive_count"`
	PollWait          time.Duration `mapstructure:"poll_wait"`
	PoisonPolicy      string        `mapstructure:"poison_policy"`
}

type HTTPConfig struct {
	Addr              string `mapstructure:"http_addr"`
	CorrelationHeader string `mapstructure:"correlation_header"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"metrics_enabled"`
	Namespace string `mapstructure:"metrics_namespace"`
}

// envAliases keeps the environment names used by the deployed stack working.
var envAliases = map[string][]string{
	"orders_table":     {"ORDERS_TABLE", "TABLE_NAME"},
	"orders_queue_url": {"ORDERS_QUEUE_URL", "QUEUE_URL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("aws_endpoint_override", "")
	v.SetDefault("store_backend", BackendDynamoDB)
	v.SetDefault("orders_table", "orders")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("orders_queue_url", "")
	v.SetDefault("orders_dlq_url", "")
	v.SetDefault("batch_size", 10)
	v.SetDefault("max_concurrency", 2)
	v.SetDefault("visibility_timeout", 30*time.Second)
	v.SetDefault("max_receive_count", 5)
	v.SetDefault("poll_wait", 20*time.Second)
	v.SetDefault("poison_policy", PoisonDiscard)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("correlation_header", "X-Correlation-Id")
	v.SetDefault("metrics_enabled", false)
	v.SetDefault("metrics_namespace", "OrdersPipeline")
	v.SetDefault("log_level", "info")
	v.SetDefault("run_local", false)
}

// Load reads configuration from the environment and, when configPath is not empty,
// from a YAML file. Environment variables win over the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	cfg.Worker.PoisonPolicy = strings.ToLower(strings.TrimSpace(cfg.Worker.PoisonPolicy))
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))

	return &cfg, nil
}

// Validate checks the settings every binary depends on.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendDynamoDB:
		if c.Store.OrdersTable == "" {
			return fmt.Errorf("orders_table is required")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store_backend %q", c.Store.Backend)
	}
	switch c.Worker.PoisonPolicy {
	case PoisonDiscard, PoisonRetry:
	default:
		return fmt.Errorf("unknown poison_policy %q", c.Worker.PoisonPolicy)
	}
	if c.Worker.BatchSize < 1 || c.Worker.BatchSize > 10 {
		return fmt.Errorf("batch_size must be between 1 and 10, got %d", c.Worker.BatchSize)
	}
	if c.Worker.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be >= 1")
	}
	if c.Worker.MaxReceiveCount < 1 {
		return fmt.Errorf("max_receive_count must be >= 1")
	}
	if c.Worker.VisibilityTimeout <= 0 {
		return fmt.Errorf("visibility_timeout must be positive")
	}
	return nil
}
