// Package config loads service configuration from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Snapshot sources.
const (
	SnapshotREST     = "rest"
	SnapshotDynamoDB = "dynamodb"
)

// Event sources.
const (
	EventsSQS     = "sqs"
	EventsWebhook = "webhook"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr" validate:"required"`
	RunLocal bool   `yaml:"run_local"`
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	Backend   BackendConfig   `yaml:"backend"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Events    EventsConfig    `yaml:"events"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// BackendConfig points at the refund-payments REST backend. It is always
// needed for transitions, even when the snapshot comes from DynamoDB.
type BackendConfig struct {
	URL     string        `yaml:"url" validate:"required,url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type SnapshotConfig struct {
	Source string `yaml:"source" validate:"oneof=rest dynamodb"`
	Table  string `yaml:"table" validate:"required_if=Source dynamodb"`
	// RetryInterval is the wait between failed activations.
	RetryInterval time.Duration `yaml:"retry_interval" validate:"gt=0"`
}

type EventsConfig struct {
	Source      string `yaml:"source" validate:"oneof=sqs webhook"`
	QueueURL    string `yaml:"queue_url" validate:"required_if=Source sqs"`
	BatchSize   int32  `yaml:"batch_size" validate:"min=1,max=10"`
	WaitSeconds int32  `yaml:"wait_seconds" validate:"min=0,max=20"`
}

type ReconcileConfig struct {
	OrderingPolicy string `yaml:"ordering_policy" validate:"oneof=timestamp last-applied"`
}

// MetricsConfig enables CloudWatch publishing when Namespace is set.
type MetricsConfig struct {
	Namespace string        `yaml:"namespace"`
	Interval  time.Duration `yaml:"interval" validate:"gt=0"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		LogLevel: "info",
		Backend: BackendConfig{
			Timeout: 10 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Source:        SnapshotREST,
			RetryInterval: 5 * time.Second,
		},
		Events: EventsConfig{
			Source:      EventsWebhook,
			BatchSize:   10,
			WaitSeconds: 20,
		},
		Reconcile: ReconcileConfig{OrderingPolicy: "timestamp"},
		Metrics:   MetricsConfig{Interval: time.Minute},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field rules.
func (c Config) Validate() error {
	if err := validatorv10.New().Struct(c); err != nil {
		var ve validatorv10.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", ve[0].Namespace(), ve[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"HTTP_ADDR":         &cfg.HTTPAddr,
		"LOG_LEVEL":         &cfg.LogLevel,
		"BACKEND_URL":       &cfg.Backend.URL,
		"BACKEND_TOKEN":     &cfg.Backend.Token,
		"SNAPSHOT_SOURCE":   &cfg.Snapshot.Source,
		"REFUNDS_TABLE":     &cfg.Snapshot.Table,
		"EVENTS_SOURCE":     &cfg.Events.Source,
		"EVENTS_QUEUE_URL":  &cfg.Events.QueueURL,
		"ORDERING_POLICY":   &cfg.Reconcile.OrderingPolicy,
		"METRICS_NAMESPACE": &cfg.Metrics.Namespace,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("RUN_LOCAL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RUN_LOCAL: %w", err)
		}
		cfg.RunLocal = b
	}
	return nil
}
