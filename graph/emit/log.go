package emit

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEmitter writes events through a zap logger.
//
// Node and run failures are logged at warn level; everything else at debug,
// except run completion which is logged at info. Meta entries become fields in
// sorted key order so output is stable.
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger discards output.
//
// Example:
//
//	logger, _ := zap.NewProduction()
//	emitter := emit.NewLogEmitter(logger.Named("engine"))
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	fields := make([]zap.Field, 0, 3+len(event.Meta))
	fields = append(fields,
		zap.String("run_id", event.RunID),
		zap.Int("step", event.Step),
	)
	if event.NodeID != "" {
		fields = append(fields, zap.String("node_id", event.NodeID))
	}

	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, event.Meta[k]))
	}

	l.logger.Log(levelFor(event), event.Msg, fields...)
}

func levelFor(event Event) zapcore.Level {
	switch event.Msg {
	case MsgNodeFailed, MsgRunFailed:
		return zapcore.WarnLevel
	case MsgRunCompleted:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
