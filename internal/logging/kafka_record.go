package logging

import (
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap/zapcore"
)

type KafkaRecord kgo.Record

func (r *KafkaRecord) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("topic", r.Topic)
	enc.AddInt32("partition", r.Partition)
	enc.AddInt64("offset", r.Offset)
	enc.AddInt("value_size", len(r.Value))
	return nil
}

// EpochOffsets logs offsets to be committed keyed by partition.
type EpochOffsets map[int32]kgo.EpochOffset

func (offsets EpochOffsets) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for partition, o := range offsets {
		enc.AddInt64(strconv.FormatInt(int64(partition), 10), o.Offset)
	}
	return nil
}
