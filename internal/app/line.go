package app

import (
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/tchap/cdn/ipanon/internal/logging"
	"github.com/tchap/cdn/ipanon/internal/pipeline"
)

// Line is the unit of work flowing through the pipeline.
//
// In file mode Text is a single line including its terminator and Offset is
// the line number. In streaming mode Text is the value of a Kafka record.
type Line struct {
	Partition   int32
	Offset      int64
	LeaderEpoch int32
	Key         []byte
	Text        string
}

type MessageDecoder struct {
	logger *zap.Logger
}

func NewMessageDecoder(logger *zap.Logger) *MessageDecoder {
	return &MessageDecoder{logger: logger}
}

func (d MessageDecoder) DecodeMessage(r *kgo.Record) (*Line, error) {
	// Tombstones carry nothing to anonymize.
	if r.Value == nil {
		d.logger.Debug(
			"Skipping tombstone record.",
			zap.Object("message", (*logging.KafkaRecord)(r)),
		)
		return nil, pipeline.ErrSkipRecord
	}

	return &Line{
		Partition:   r.Partition,
		Offset:      r.Offset,
		LeaderEpoch: r.LeaderEpoch,
		Key:         r.Key,
		Text:        string(r.Value),
	}, nil
}
