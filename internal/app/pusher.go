package app

import (
	"bufio"
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"go.uber.org/zap"

	"github.com/tchap/cdn/ipanon/internal/logging"
	"github.com/tchap/cdn/ipanon/internal/pipeline"
)

// WriterPusher writes lines into an io.Writer, flushing after every batch.
type WriterPusher struct {
	logger *zap.Logger
	w      *bufio.Writer
}

func NewWriterPusher(logger *zap.Logger, w io.Writer) *WriterPusher {
	return &WriterPusher{
		logger: logger,
		w:      bufio.NewWriter(w),
	}
}

func (pusher *WriterPusher) Push(_ context.Context, batch *Batch, windowSize int) error {
	for _, l := range batch.Lines {
		if _, err := pusher.w.WriteString(l.Text); err != nil {
			return errors.Wrap(err, "failed to write line")
		}
	}
	if err := pusher.w.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush output")
	}

	pusher.logger.Debug("Batch written.", zap.Int("window_size", windowSize))
	return nil
}

// KafkaPusher produces lines into the output topic and commits
// the input offsets once the whole batch is acknowledged.
type KafkaPusher struct {
	logger      *zap.Logger
	client      *kgo.Client
	inputTopic  string
	outputTopic string
}

func NewKafkaPusher(logger *zap.Logger, client *kgo.Client, inputTopic, outputTopic string) *KafkaPusher {
	return &KafkaPusher{
		logger:      logger,
		client:      client,
		inputTopic:  inputTopic,
		outputTopic: outputTopic,
	}
}

func (pusher *KafkaPusher) Push(ctx context.Context, batch *Batch, windowSize int) error {
	records := make([]*kgo.Record, 0, len(batch.Lines))
	for _, l := range batch.Lines {
		records = append(records, &kgo.Record{
			Topic: pusher.outputTopic,
			Key:   l.Key,
			Value: []byte(l.Text),
		})
	}

	// We need to crash on error since the client already retries internally.
	if err := pusher.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		pusher.logger.Error(
			"Failed to produce lines.",
			zap.String("topic", pusher.outputTopic),
			zap.Error(err),
		)
		return errors.Wrap(err, "failed to produce lines")
	}

	pusher.logger.Info(
		"Batch produced successfully.",
		zap.String("topic", pusher.outputTopic),
		zap.Int("window_size", windowSize),
	)

	// Commit Kafka offsets.
	pusher.logger.Debug(
		"Kafka offsets being committed...",
		zap.Object("offsets", logging.EpochOffsets(batch.CommitOffsets)),
	)
	commitErrCh := make(chan error, 1)
	pusher.client.CommitOffsets(ctx, map[string]map[int32]kgo.EpochOffset{
		pusher.inputTopic: batch.CommitOffsets,
	}, func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			commitErrCh <- ctxErr
			return
		}
		if err != nil {
			commitErrCh <- err
			return
		}

		// kgo returns nil error even when the response signals an issue.
		for _, t := range resp.Topics {
			for _, p := range t.Partitions {
				if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
					pusher.logger.Warn(
						"Kafka offset commit rejected.",
						zap.String("topic", t.Topic),
						zap.Int32("partition", p.Partition),
						zap.Error(err),
					)
				}
			}
		}
		commitErrCh <- nil
	})

	if err := <-commitErrCh; err != nil {
		// No need to crash really, we will just succeed eventually or do duplicate processing.
		pusher.logger.Error("Failed to commit Kafka offsets.", zap.Error(err))
	}
	return nil
}

var (
	_ pipeline.Pusher[*Batch] = (*WriterPusher)(nil)
	_ pipeline.Pusher[*Batch] = (*KafkaPusher)(nil)
)
