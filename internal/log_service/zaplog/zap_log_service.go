package zaplog

import (
	"sort"

	"github.com/AnishMulay/sandkernel/internal/log_service"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogService writes LogEvents through a zap.Logger. Metadata keys become
// structured fields.
type ZapLogService struct {
	logger *zap.Logger
	nodeID string
}

func NewZapLogService(nodeID string, minLogLevel string, jsonOutput bool) (*ZapLogService, error) {
	cfg := zap.NewDevelopmentConfig()
	if jsonOutput {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(toZapLevel(minLogLevel))

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewFromLogger(logger, nodeID), nil
}

func NewFromLogger(logger *zap.Logger, nodeID string) *ZapLogService {
	return &ZapLogService{
		logger: logger.With(zap.String("node", nodeID)),
		nodeID: nodeID,
	}
}

// NewNop returns a service that discards everything.
func NewNop() *ZapLogService {
	return &ZapLogService{logger: zap.NewNop()}
}

func (z *ZapLogService) Sync() error {
	return z.logger.Sync()
}

func toZapLevel(level string) zapcore.Level {
	switch log_service.GetLevelValue(level) {
	case log_service.DebugLevelValue:
		return zapcore.DebugLevel
	case log_service.WarnLevelValue:
		return zapcore.WarnLevel
	case log_service.ErrorLevelValue:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func fields(event log_service.LogEvent) []zap.Field {
	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys)+1)
	if !event.Timestamp.IsZero() {
		out = append(out, zap.Time("eventTime", event.Timestamp))
	}
	for _, k := range keys {
		out = append(out, zap.Any(k, event.Metadata[k]))
	}
	return out
}

func (z *ZapLogService) Debug(event log_service.LogEvent) {
	z.logger.Debug(event.Message, fields(event)...)
}

func (z *ZapLogService) Info(event log_service.LogEvent) {
	z.logger.Info(event.Message, fields(event)...)
}

func (z *ZapLogService) Warn(event log_service.LogEvent) {
	z.logger.Warn(event.Message, fields(event)...)
}

func (z *ZapLogService) Error(event log_service.LogEvent) {
	z.logger.Error(event.Message, fields(event)...)
}

var _ log_service.LogService = (*ZapLogService)(nil)
