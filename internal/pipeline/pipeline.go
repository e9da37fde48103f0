package pipeline

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"go.uber.org/zap"
	"gopkg.in/tomb.v2"
)

var ErrSkipRecord = stderrors.New("skip record")

// Source produces records to be processed.
// Poll blocks until some records are available and returns io.EOF once exhausted.
type Source[Record any] interface {
	Poll(ctx context.Context) ([]Record, error)
}

type RecordTransformer[Record any] interface {
	TransformRecord(Record) Record
}

type AggregationWindow[Record, State any] interface {
	AppendRecord(record Record) error
	Aggregate() State
}

type AggregationWindowConstructor[Record, State any] func() AggregationWindow[Record, State]

type Pusher[AggregationState any] interface {
	Push(ctx context.Context, state AggregationState, windowSize int) error
}

type pushContext[AggregationState any] struct {
	WindowState AggregationState
	WindowSize  int
}

// Pipeline moves records from a source through a transformer into aggregation windows
// that are handed over to a pusher. Windows are closed when full, periodically
// and when the source is exhausted.
type Pipeline[Record, AggregationState any] struct {
	logger               *zap.Logger
	source               Source[Record]
	recordTransformer    RecordTransformer[Record]
	newAggregationWindow AggregationWindowConstructor[Record, AggregationState]
	aggregationPeriod    time.Duration
	maxWindowSize        int
	pusher               Pusher[AggregationState]
	pushTimeout          time.Duration

	consumerOutputCh chan Record
	pusherInputCh    chan pushContext[AggregationState]

	t tomb.Tomb
}

func New[Record, AggregationState any](
	logger *zap.Logger,
	source Source[Record],
	recordTransformer RecordTransformer[Record],
	newAggregationWindow AggregationWindowConstructor[Record, AggregationState],
	aggregationPeriod time.Duration,
	maxWindowSize int,
	pusher Pusher[AggregationState],
	pushTimeout time.Duration,
) *Pipeline[Record, AggregationState] {
	p := &Pipeline[Record, AggregationState]{
		logger:               logger,
		source:               source,
		recordTransformer:    recordTransformer,
		newAggregationWindow: newAggregationWindow,
		aggregationPeriod:    aggregationPeriod,
		maxWindowSize:        maxWindowSize,
		pusher:               pusher,
		pushTimeout:          pushTimeout,
		consumerOutputCh:     make(chan Record, 1),
		pusherInputCh:        make(chan pushContext[AggregationState], 1),
	}
	p.t.Go(p.consumerLoop)
	p.t.Go(p.aggregatorLoop)
	p.t.Go(p.pusherLoop)
	return p
}

func (p *Pipeline[Record, AggregationState]) Stop() {
	p.t.Kill(nil)
}

// Wait blocks until the pipeline terminates, either because it was stopped,
// it failed or the source was exhausted and everything was pushed.
func (p *Pipeline[Record, AggregationState]) Wait() error {
	return p.t.Wait()
}

func (p *Pipeline[Record, AggregationState]) consumerLoop() error {
	logger := p.logger.Named("consumer")
	logger.Info("Consumer starting...")
	defer logger.Info("Consumer terminated.")

	// Closing the channel tells the aggregator there is nothing more to come.
	defer close(p.consumerOutputCh)

	ctx := p.t.Context(nil)
	for {
		// Get another batch of records.
		records, err := p.source.Poll(ctx)
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				logger.Info("Source exhausted.")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("Unrecoverable source error encountered.", zap.Error(err))
			return err
		}

		// Process all records by sending them on the output channel.
		for _, r := range records {
			select {
			case p.consumerOutputCh <- r:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (p *Pipeline[Record, AggregationState]) aggregatorLoop() error {
	logger := p.logger.Named("aggregator")
	logger.Info(
		"Aggregator starting...",
		zap.Duration("aggregation_period", p.aggregationPeriod),
		zap.Int("max_window_size", p.maxWindowSize),
	)
	defer logger.Info("Aggregator terminated.")

	// Closing the channel tells the pusher there is nothing more to come.
	defer close(p.pusherInputCh)

	ctx := p.t.Context(nil)
	ticker := time.NewTicker(p.aggregationPeriod)
	defer ticker.Stop()

	var (
		agg        AggregationWindow[Record, AggregationState]
		windowSize int
	)
	resetWindow := func() {
		agg = p.newAggregationWindow()
		windowSize = 0
	}
	resetWindow()

	// flush forwards the current window to the pusher.
	// It returns false when the pipeline is being stopped.
	flush := func() bool {
		if windowSize == 0 {
			return true
		}
		select {
		case p.pusherInputCh <- pushContext[AggregationState]{
			WindowState: agg.Aggregate(),
			WindowSize:  windowSize,
		}:
			resetWindow()
			return true

		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case r, ok := <-p.consumerOutputCh:
			if !ok {
				flush()
				return nil
			}

			// Transform, optionally.
			if p.recordTransformer != nil {
				r = p.recordTransformer.TransformRecord(r)
			}

			// Add the record into the aggregation window.
			// Logging is expected to be handled by the aggregator.
			if err := agg.AppendRecord(r); err != nil {
				if stderrors.Is(err, ErrSkipRecord) {
					continue
				}
				return err
			}
			windowSize++

			if windowSize >= p.maxWindowSize {
				if !flush() {
					return nil
				}
			}

		case <-ticker.C:
			// Do nothing in case there are no records buffered.
			if windowSize == 0 {
				logger.Debug("Window empty, skipping push...")
				continue
			}
			if !flush() {
				return nil
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Pipeline[Record, AggregationState]) pusherLoop() error {
	logger := p.logger.Named("pusher")
	logger.Info("Pusher starting...")
	defer logger.Info("Pusher terminated.")

	ctx := p.t.Context(nil)
	for {
		select {
		case push, ok := <-p.pusherInputCh:
			if !ok {
				return nil
			}

			pushCtx, cancelPush := context.WithTimeout(ctx, p.pushTimeout)
			err := p.pusher.Push(pushCtx, push.WindowState, push.WindowSize)
			cancelPush()
			if err != nil {
				logger.Error("Failed to push window.", zap.Int("window_size", push.WindowSize), zap.Error(err))
				return err
			}

		case <-ctx.Done():
			return nil
		}
	}
}
