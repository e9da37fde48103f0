package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Salt string `envconfig:"SALT" required:"true"`

	InputPath   string `envconfig:"INPUT_PATH"   default:"-"`
	OutputPath  string `envconfig:"OUTPUT_PATH"  default:"-"`
	Deanonymize bool   `envconfig:"DEANONYMIZE"`

	PreservePrefixes          []string `envconfig:"PRESERVE_PREFIXES"`
	NoDefaultPreservePrefixes bool     `envconfig:"NO_DEFAULT_PRESERVE_PREFIXES"`
	PreserveAddresses         []string `envconfig:"PRESERVE_ADDRESSES"`
	PreserveSuffixV4          int      `envconfig:"PRESERVE_SUFFIX_V4"`
	PreserveSuffixV6          int      `envconfig:"PRESERVE_SUFFIX_V6"`

	MappingPath             string        `envconfig:"MAPPING_PATH"`
	MappingPushURL          string        `envconfig:"MAPPING_PUSH_URL"`
	MappingPushRetryCount   int           `envconfig:"MAPPING_PUSH_RETRY_COUNT"    default:"3"`
	MappingPushRetryMaxWait time.Duration `envconfig:"MAPPING_PUSH_RETRY_MAX_WAIT" default:"5s"`

	BatchSize   int           `envconfig:"BATCH_SIZE"   default:"1024"`
	FlushPeriod time.Duration `envconfig:"FLUSH_PERIOD" default:"1s"`
	PushTimeout time.Duration `envconfig:"PUSH_TIMEOUT" default:"10s"`

	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS"`
	KafkaInputTopic    string   `envconfig:"KAFKA_INPUT_TOPIC"`
	KafkaOutputTopic   string   `envconfig:"KAFKA_OUTPUT_TOPIC"`
	KafkaClientID      string   `envconfig:"KAFKA_CLIENT_ID"      default:"ipanon"`
	KafkaConsumerGroup string   `envconfig:"KAFKA_CONSUMER_GROUP"`
	KafkaFetchMaxMB    int32    `envconfig:"KAFKA_FETCH_MAX_MB"   default:"1"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`

	LogLevel      zapcore.Level `envconfig:"LOG_LEVEL"       default:"info"`
	KafkaLogLevel zapcore.Level `envconfig:"KAFKA_LOG_LEVEL" default:"error"`
}

func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return &c, nil
}

// Streaming reports whether lines are consumed from Kafka instead of a file.
func (c *Config) Streaming() bool {
	return len(c.KafkaBrokers) != 0
}

func (c *Config) Validate() error {
	if c.Salt == "" {
		return errors.New("SALT must not be empty")
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.FlushPeriod <= 0 {
		return errors.Errorf("FLUSH_PERIOD must be positive, got %s", c.FlushPeriod)
	}
	if c.PushTimeout <= 0 {
		return errors.Errorf("PUSH_TIMEOUT must be positive, got %s", c.PushTimeout)
	}
	if c.MappingPushRetryCount < 0 {
		return errors.Errorf("MAPPING_PUSH_RETRY_COUNT must not be negative, got %d", c.MappingPushRetryCount)
	}
	if c.Streaming() {
		switch {
		case c.KafkaInputTopic == "":
			return errors.New("KAFKA_INPUT_TOPIC must be set when KAFKA_BROKERS is set")
		case c.KafkaOutputTopic == "":
			return errors.New("KAFKA_OUTPUT_TOPIC must be set when KAFKA_BROKERS is set")
		case c.KafkaConsumerGroup == "":
			return errors.New("KAFKA_CONSUMER_GROUP must be set when KAFKA_BROKERS is set")
		case c.KafkaFetchMaxMB <= 0:
			return errors.Errorf("KAFKA_FETCH_MAX_MB must be positive, got %d", c.KafkaFetchMaxMB)
		}
	}
	return nil
}
