package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tchap/cdn/ipanon/internal/pipeline"
)

// LineSource reads lines from an io.Reader.
//
// Reading happens in a background goroutine so that Poll can be interrupted
// even when the reader blocks, which is the case for stdin.
type LineSource struct {
	reader   *bufio.Reader
	maxLines int

	batchCh chan []*Line
	readErr error

	closeOnce sync.Once
	closedCh  chan struct{}
}

func NewLineSource(r io.Reader, maxLines int) *LineSource {
	src := &LineSource{
		reader:   bufio.NewReader(r),
		maxLines: maxLines,
		batchCh:  make(chan []*Line),
		closedCh: make(chan struct{}),
	}
	go src.readLoop()
	return src
}

func (src *LineSource) Poll(ctx context.Context) ([]*Line, error) {
	select {
	case batch, ok := <-src.batchCh:
		if !ok {
			if src.readErr != nil {
				return nil, src.readErr
			}
			return nil, io.EOF
		}
		return batch, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close makes the background goroutine terminate once the current read returns.
func (src *LineSource) Close() {
	src.closeOnce.Do(func() {
		close(src.closedCh)
	})
}

func (src *LineSource) readLoop() {
	defer close(src.batchCh)

	var (
		batch  []*Line
		offset int64
	)
	for {
		text, err := src.reader.ReadString('\n')
		if text != "" {
			batch = append(batch, &Line{Offset: offset, Text: text})
			offset++
		}

		// Hand over what we have as soon as the reader would block.
		if len(batch) != 0 && (err != nil || len(batch) >= src.maxLines || src.reader.Buffered() == 0) {
			select {
			case src.batchCh <- batch:
				batch = nil
			case <-src.closedCh:
				return
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				src.readErr = err
			}
			return
		}
	}
}

// KafkaSource polls lines from the topics the client is consuming.
type KafkaSource struct {
	logger  *zap.Logger
	client  *kgo.Client
	decoder *MessageDecoder
}

func NewKafkaSource(logger *zap.Logger, client *kgo.Client, decoder *MessageDecoder) *KafkaSource {
	return &KafkaSource{
		logger:  logger,
		client:  client,
		decoder: decoder,
	}
}

func (src *KafkaSource) Poll(ctx context.Context) ([]*Line, error) {
	fetches := src.client.PollFetches(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetches.IsClientClosed() {
		return nil, io.EOF
	}

	var fetchErr error
	fetches.EachError(func(topic string, partition int32, err error) {
		// ErrDataLoss is just for information, the client resets the offset itself.
		var ex *kgo.ErrDataLoss
		if errors.As(err, &ex) {
			src.logger.Warn(
				"Data loss error encountered.",
				zap.String("topic", ex.Topic),
				zap.Int32("partition", ex.Partition),
				zap.Error(ex),
			)
			return
		}

		src.logger.Error(
			"Unrecoverable fetch error encountered.",
			zap.String("topic", topic),
			zap.Int32("partition", partition),
			zap.Error(err),
		)
		fetchErr = multierr.Append(fetchErr, err)
	})
	if fetchErr != nil {
		return nil, fetchErr
	}

	lines := make([]*Line, 0, fetches.NumRecords())
	fetches.EachRecord(func(r *kgo.Record) {
		l, err := src.decoder.DecodeMessage(r)
		if err != nil {
			// Only pipeline.ErrSkipRecord is returned, already logged.
			return
		}
		lines = append(lines, l)
	})
	return lines, nil
}

var (
	_ pipeline.Source[*Line] = (*LineSource)(nil)
	_ pipeline.Source[*Line] = (*KafkaSource)(nil)
)
