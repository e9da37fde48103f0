package app

import (
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/tchap/cdn/ipanon/internal/pipeline"
)

// Batch is a window of transformed lines together with the Kafka offsets
// that can be committed once the lines are pushed.
type Batch struct {
	Lines         []*Line
	CommitOffsets map[int32]kgo.EpochOffset
}

type Aggregator struct {
	batch Batch
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		batch: Batch{
			CommitOffsets: make(map[int32]kgo.EpochOffset),
		},
	}
}

// NewAggregationWindow can be passed directly to pipeline.New.
func NewAggregationWindow() pipeline.AggregationWindow[*Line, *Batch] {
	return NewAggregator()
}

func (agg *Aggregator) AppendRecord(l *Line) error {
	agg.batch.Lines = append(agg.batch.Lines, l)

	// The committed offset is the offset of the next record to consume.
	agg.batch.CommitOffsets[l.Partition] = kgo.EpochOffset{
		Epoch:  l.LeaderEpoch,
		Offset: l.Offset + 1,
	}
	return nil
}

func (agg *Aggregator) Aggregate() *Batch {
	return &agg.batch
}
