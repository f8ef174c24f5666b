package invalidate

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Config holds backend configuration from HCL.
type Config struct {
	// Log backend
	Log *LogConfig `hcl:"log,block"`

	// Redis backend configuration
	Redis *RedisConfig `hcl:"redis,block"`

	// Kafka backend configuration
	Kafka *KafkaConfig `hcl:"kafka,block"`

	// Webhook backend configuration
	Webhook *WebhookConfig `hcl:"webhook,block"`

	// QueueSize and Timeout configure the dispatcher.
	QueueSize int    `hcl:"queue_size,optional"`
	Timeout   string `hcl:"timeout,optional"`
}

// LogConfig configures the log backend.
type LogConfig struct {
	Enabled bool `hcl:"enabled,optional"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Enabled bool `hcl:"enabled,optional"`

	URL       string `hcl:"url,optional"`
	Channel   string `hcl:"channel,optional"`
	KeyPrefix string `hcl:"key_prefix,optional"`
}

// KafkaConfig configures the kafka backend.
type KafkaConfig struct {
	Enabled bool `hcl:"enabled,optional"`

	Brokers []string `hcl:"brokers,optional"`
	Topic   string   `hcl:"topic,optional"`
}

// BrokersEnv overrides the configured kafka brokers with a comma separated
// list of addresses.
const BrokersEnv = "QUILL_KAFKA_BROKERS"

// GetBrokers returns the kafka broker addresses. The environment takes
// precedence over the config file.
func (c *KafkaConfig) GetBrokers() []string {
	if env := os.Getenv(BrokersEnv); env != "" {
		var brokers []string
		for _, b := range strings.Split(env, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		return brokers
	}
	return c.Brokers
}

// WebhookConfig configures the webhook backend.
type WebhookConfig struct {
	Enabled bool `hcl:"enabled,optional"`

	URL             string `hcl:"url,optional"`
	Secret          string `hcl:"secret,optional"`
	InitialInterval string `hcl:"initial_interval,optional"`
	MaxElapsedTime  string `hcl:"max_elapsed_time,optional"`
}

// Registry manages the configured invalidation backends.
type Registry struct {
	backends []Invalidator
	closers  []io.Closer
}

// NewRegistry creates a new backend registry from configuration.
func NewRegistry(cfg *Config, logger hclog.Logger) (*Registry, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	registry := &Registry{}

	if cfg == nil {
		return registry, nil
	}

	if cfg.Log != nil && cfg.Log.Enabled {
		registry.add(NewLogBackend(logger), nil)
		logger.Info("initialized log invalidation backend")
	}

	if cfg.Redis != nil && cfg.Redis.Enabled {
		backend, err := NewRedisBackend(RedisBackendConfig{
			URL:       cfg.Redis.URL,
			Channel:   cfg.Redis.Channel,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("error initializing redis backend: %w", err)
		}
		registry.add(backend, backend)
		logger.Info("initialized redis invalidation backend", "channel", backend.channel)
	}

	if cfg.Kafka != nil && cfg.Kafka.Enabled {
		backend, err := NewKafkaBackend(KafkaBackendConfig{
			Brokers: cfg.Kafka.GetBrokers(),
			Topic:   cfg.Kafka.Topic,
		})
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("error initializing kafka backend: %w", err)
		}
		registry.add(backend, backend)
		logger.Info("initialized kafka invalidation backend", "topic", cfg.Kafka.Topic)
	}

	if cfg.Webhook != nil && cfg.Webhook.Enabled {
		initial, err := parseOptionalDuration(cfg.Webhook.InitialInterval)
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("error parsing webhook initial_interval: %w", err)
		}
		maxElapsed, err := parseOptionalDuration(cfg.Webhook.MaxElapsedTime)
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("error parsing webhook max_elapsed_time: %w", err)
		}
		backend, err := NewWebhookBackend(WebhookBackendConfig{
			URL:             cfg.Webhook.URL,
			Secret:          cfg.Webhook.Secret,
			InitialInterval: initial,
			MaxElapsedTime:  maxElapsed,
		})
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("error initializing webhook backend: %w", err)
		}
		registry.add(backend, nil)
		logger.Info("initialized webhook invalidation backend", "url", cfg.Webhook.URL)
	}

	return registry, nil
}

func (r *Registry) add(b Invalidator, c io.Closer) {
	r.backends = append(r.backends, b)
	if c != nil {
		r.closers = append(r.closers, c)
	}
}

// GetAll returns all registered backends.
func (r *Registry) GetAll() []Invalidator {
	return append([]Invalidator(nil), r.backends...)
}

// GetBackendNames returns the names of all registered backends.
func (r *Registry) GetBackendNames() []string {
	names := make([]string, 0, len(r.backends))
	for _, b := range r.backends {
		names = append(names, b.Name())
	}
	return names
}

// Invalidator combines the registered backends into one.
func (r *Registry) Invalidator() Invalidator {
	return Multi(r.GetAll())
}

// Close releases backend connections.
func (r *Registry) Close() {
	for _, c := range r.closers {
		_ = c.Close()
	}
	r.closers = nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Dispatcher returns the dispatcher settings of the configuration.
func (c *Config) Dispatcher() (DispatcherConfig, error) {
	if c == nil {
		return DispatcherConfig{}, nil
	}
	timeout, err := parseOptionalDuration(c.Timeout)
	if err != nil {
		return DispatcherConfig{}, fmt.Errorf("error parsing invalidation timeout: %w", err)
	}
	return DispatcherConfig{QueueSize: c.QueueSize, Timeout: timeout}, nil
}
