package app

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kzap"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tchap/cdn/ipanon/internal/config"
	"github.com/tchap/cdn/ipanon/internal/ipaddr"
	"github.com/tchap/cdn/ipanon/internal/ipanon"
	"github.com/tchap/cdn/ipanon/internal/pipeline"
	"github.com/tchap/cdn/ipanon/internal/scanner"
)

type App struct {
	logger          *zap.Logger
	shutdownTimeout time.Duration

	kafka       *kgo.Client
	lineSource  *LineSource
	closers     []io.Closer
	pipe        *pipeline.Pipeline[*Line, *Batch]
	exporter    *MappingExporter
	deanonymize bool
}

func New(
	c config.Config,
	logger *zap.Logger,
) (*App, error) {
	v4, v6, err := NewEngines(c)
	if err != nil {
		logger.Error("Failed to init anonymization engines.", zap.Error(err))
		return nil, err
	}

	var mappingPusher *MappingPusher
	if c.MappingPushURL != "" {
		mappingPusher = NewMappingPusher(
			logger.Named("mapping_pusher"), c.MappingPushURL, c.MappingPushRetryCount, c.MappingPushRetryMaxWait,
		)
	}

	app := &App{
		logger:          logger,
		shutdownTimeout: c.ShutdownTimeout,
		exporter: NewMappingExporter(
			logger.Named("mapping_exporter"), []*ipanon.Anonymizer{v4, v6}, c.MappingPath, mappingPusher,
		),
		deanonymize: c.Deanonymize,
	}

	var (
		source pipeline.Source[*Line]
		pusher pipeline.Pusher[*Batch]
	)
	if c.Streaming() {
		// Init the Kafka client.
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(c.KafkaBrokers...),
			kgo.ClientID(c.KafkaClientID),
			kgo.ConsumerGroup(c.KafkaConsumerGroup),
			kgo.ConsumeTopics(c.KafkaInputTopic),
			kgo.DefaultProduceTopic(c.KafkaOutputTopic),
			kgo.AllowAutoTopicCreation(),
			kgo.DisableAutoCommit(),
			kgo.FetchMaxBytes(1024*1024*c.KafkaFetchMaxMB),
			kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
			kgo.WithLogger(kzap.New(logger.Named("kafka").WithOptions(zap.IncreaseLevel(c.KafkaLogLevel)))),
		)
		if err != nil {
			logger.Error("Failed to init Kafka client.", zap.Error(err))
			return nil, err
		}
		app.kafka = kafkaClient

		source = NewKafkaSource(logger.Named("kafka_source"), kafkaClient, NewMessageDecoder(logger.Named("decoder")))
		pusher = NewKafkaPusher(logger.Named("kafka_pusher"), kafkaClient, c.KafkaInputTopic, c.KafkaOutputTopic)
	} else {
		in, out, err := app.openFiles(c.InputPath, c.OutputPath)
		if err != nil {
			logger.Error(
				"Failed to open input or output.",
				zap.String("input_path", c.InputPath),
				zap.String("output_path", c.OutputPath),
				zap.Error(err),
			)
			return nil, multierr.Append(err, app.closeFiles())
		}
		app.lineSource = NewLineSource(in, c.BatchSize)

		source = app.lineSource
		pusher = NewWriterPusher(logger.Named("writer_pusher"), out)
	}

	app.pipe = pipeline.New(
		logger.Named("pipeline"),
		source,
		NewLineAnonymizer(scanner.New(v4, v6, logger.Named("scanner")), c.Deanonymize),
		NewAggregationWindow,
		c.FlushPeriod,
		c.BatchSize,
		pusher,
		c.PushTimeout,
	)
	return app, nil
}

// NewEngines builds the IPv4 and IPv6 engines, splitting the preserved
// entries of the configuration by address family.
func NewEngines(c config.Config) (v4, v6 *ipanon.Anonymizer, err error) {
	v4Prefixes, v6Prefixes, err := splitByFamily(c.PreservePrefixes)
	if err != nil {
		return nil, nil, err
	}
	v4Addresses, v6Addresses, err := splitByFamily(c.PreserveAddresses)
	if err != nil {
		return nil, nil, err
	}

	// Supplied prefixes replace the private-use defaults for both families.
	// Nil lists make the engines fall back to the defaults.
	if len(c.PreservePrefixes) != 0 || c.NoDefaultPreservePrefixes {
		if v4Prefixes == nil {
			v4Prefixes = []string{}
		}
		if v6Prefixes == nil {
			v6Prefixes = []string{}
		}
	}

	v4, err = ipanon.NewV4(ipanon.Options{
		Salt:              []byte(c.Salt),
		PreservePrefixes:  v4Prefixes,
		PreserveAddresses: v4Addresses,
		PreserveSuffix:    c.PreserveSuffixV4,
	})
	if err != nil {
		return nil, nil, err
	}

	v6, err = ipanon.NewV6(ipanon.Options{
		Salt:              []byte(c.Salt),
		PreservePrefixes:  v6Prefixes,
		PreserveAddresses: v6Addresses,
		PreserveSuffix:    c.PreserveSuffixV6,
	})
	if err != nil {
		return nil, nil, err
	}
	return v4, v6, nil
}

func splitByFamily(entries []string) (v4, v6 []string, err error) {
	for _, entry := range entries {
		p, err := ipaddr.ParsePrefix(entry)
		if err != nil {
			return nil, nil, errors.Wrapf(ipanon.ErrInvalidConfiguration, "preserved entry %q: %v", entry, err)
		}
		if p.Family == ipaddr.V4 {
			v4 = append(v4, entry)
		} else {
			v6 = append(v6, entry)
		}
	}
	return v4, v6, nil
}

func (app *App) openFiles(inputPath, outputPath string) (io.Reader, io.Writer, error) {
	var (
		in  io.Reader = os.Stdin
		out io.Writer = os.Stdout
	)
	if inputPath != "-" {
		f, err := os.Open(inputPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to open input")
		}
		app.closers = append(app.closers, f)
		in = f
	}
	if outputPath != "-" {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to create output")
		}
		app.closers = append(app.closers, f)
		out = f
	}
	return in, out, nil
}

func (app *App) closeFiles() error {
	var err error
	for _, c := range app.closers {
		err = multierr.Append(err, c.Close())
	}
	app.closers = nil
	return err
}

func (app *App) Stop() {
	app.pipe.Stop()
}

// Wait waits for the pipeline to terminate and exports the address mapping.
// The mapping is exported even when the pipeline failed, it covers whatever was processed.
func (app *App) Wait() error {
	err := app.pipe.Wait()

	if app.lineSource != nil {
		app.lineSource.Close()
	}
	if app.kafka != nil {
		app.kafka.Close()
	}
	err = multierr.Append(err, app.closeFiles())

	if app.deanonymize {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout)
	defer cancel()
	return multierr.Append(err, app.exporter.Export(ctx))
}
