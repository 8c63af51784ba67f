// Package config loads mqshim settings from an optional YAML file and
// MQSHIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/miladsoleymani/mqshim/broker"
	"github.com/miladsoleymani/mqshim/internal/logging"
)

// EnvPrefix is prepended to every environment override, e.g.
// MQSHIM_BROKER_HOST.
const EnvPrefix = "MQSHIM"

type Settings struct {
	Broker          BrokerSettings  `mapstructure:"broker"`
	Queue           string          `mapstructure:"queue" validate:"required"`
	PublishInterval time.Duration   `mapstructure:"publish_interval" validate:"gt=0"`
	AutoAck         bool            `mapstructure:"auto_ack"`
	Log             logging.Config  `mapstructure:"log"`
	Metrics         MetricsSettings `mapstructure:"metrics"`
	Tracing         TracingSettings `mapstructure:"tracing"`
}

type BrokerSettings struct {
	Type              string        `mapstructure:"type" validate:"required,oneof=rabbitmq nats kafka"`
	Host              string        `mapstructure:"host" validate:"required"`
	Port              int           `mapstructure:"port" validate:"min=1,max=65535"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	VHost             string        `mapstructure:"vhost"`
	Group             string        `mapstructure:"group"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout" validate:"gt=0"`

	RabbitMQ RabbitMQSettings `mapstructure:"rabbitmq"`
}

// RabbitMQSettings are passed to the rabbitmq backend and ignored by the
// others. Durable must match an existing queue or the broker refuses the
// declaration.
type RabbitMQSettings struct {
	Exchange      string `mapstructure:"exchange"`
	PrefetchCount int    `mapstructure:"prefetch_count" validate:"min=0,max=65535"`
	Durable       bool   `mapstructure:"durable"`
	DeclareQueue  bool   `mapstructure:"declare_queue"`
	Confirms      bool   `mapstructure:"confirms"`
}

type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true"`
}

type TracingSettings struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	ServiceName string `mapstructure:"service_name" validate:"required"`
	Insecure    bool   `mapstructure:"insecure"`
}

func (s *Settings) Validate() error {
	return validator.New().Struct(s)
}

// DefaultPort returns the well-known port of a broker type, or zero for an
// unknown one.
func DefaultPort(brokerType string) int {
	switch brokerType {
	case "rabbitmq":
		return 5672
	case "nats":
		return 4222
	case "kafka":
		return 9092
	default:
		return 0
	}
}

// Address is host:port of the broker.
func (b BrokerSettings) Address() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// BrokerConfig converts the broker section to the registry's config.
func (s *Settings) BrokerConfig() broker.Config {
	cfg := broker.Config{
		Brokers:           []string{s.Broker.Address()},
		Username:          s.Broker.Username,
		Password:          s.Broker.Password,
		ConnectionTimeout: s.Broker.ConnectionTimeout,
		Group:             s.Broker.Group,
	}
	extra := make(map[string]any)
	if s.Broker.VHost != "" {
		extra["vhost"] = s.Broker.VHost
	}
	if s.Broker.Type == "rabbitmq" {
		r := s.Broker.RabbitMQ
		extra["exchange"] = r.Exchange
		extra["prefetch_count"] = r.PrefetchCount
		extra["durable"] = r.Durable
		extra["declare_queue"] = r.DeclareQueue
		extra["confirms"] = r.Confirms
	}
	if len(extra) > 0 {
		cfg.Extra = extra
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("broker.type", "rabbitmq")
	v.SetDefault("broker.host", "localhost")
	v.SetDefault("broker.port", 0) // per type, see DefaultPort
	v.SetDefault("broker.username", "guest")
	v.SetDefault("broker.password", "guest")
	v.SetDefault("broker.vhost", "")
	v.SetDefault("broker.group", "")
	v.SetDefault("broker.connection_timeout", broker.DefaultConnectionTimeout)
	v.SetDefault("broker.rabbitmq.exchange", "")
	v.SetDefault("broker.rabbitmq.prefetch_count", 0)
	v.SetDefault("broker.rabbitmq.durable", false)
	v.SetDefault("broker.rabbitmq.declare_queue", true)
	v.SetDefault("broker.rabbitmq.confirms", false)
	v.SetDefault("queue", "testqueue")
	v.SetDefault("publish_interval", 500*time.Millisecond)
	v.SetDefault("auto_ack", false)
	v.SetDefault("log.level", logging.Info)
	v.SetDefault("log.development", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "mqshim")
	v.SetDefault("tracing.insecure", true)
}

// Load reads mqshim.yaml from dir (or the working directory), applies
// MQSHIM_* environment overrides and validates the result. A missing file
// is not an error.
func Load(dir string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("mqshim")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Settings{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.Broker.Port == 0 {
		cfg.Broker.Port = DefaultPort(cfg.Broker.Type)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}
