package logger

import (
	"errors"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConfig selects the encoder and level of a ZapLogger.
type ZapConfig struct {
	// Development enables the console encoder with colored levels.
	Development bool
	// Level is a zapcore level name ("debug", "info", "warn", "error").
	// Empty keeps the preset's default.
	Level string
	// OutputPaths defaults to stderr so progress bars on stdout stay intact.
	OutputPaths []string
}

// ZapLogger adapts a zap.SugaredLogger to Logger.
type ZapLogger struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

// NewZapLogger builds a zap logger from cfg.
func NewZapLogger(cfg ZapConfig) (*ZapLogger, error) {
	var config zap.Config
	if cfg.Development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	config.OutputPaths = []string{"stderr"}
	if len(cfg.OutputPaths) > 0 {
		config.OutputPaths = cfg.OutputPaths
	}
	config.ErrorOutputPaths = []string{"stderr"}
	if cfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}
	l, err := config.Build()
	if err != nil {
		return nil, err
	}
	return NewZapLoggerFrom(l), nil
}

// NewZapLoggerFrom wraps an existing zap logger, e.g. zap.NewNop() in tests.
func NewZapLoggerFrom(l *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: l, sugar: l.Sugar()}
}

func (z *ZapLogger) Debug(format string, args ...interface{}) {
	z.sugar.Debugf(format, args...)
}

func (z *ZapLogger) Info(format string, args ...interface{}) {
	z.sugar.Infof(format, args...)
}

func (z *ZapLogger) Warning(format string, args ...interface{}) {
	z.sugar.Warnf(format, args...)
}

func (z *ZapLogger) Error(format string, args ...interface{}) {
	z.sugar.Errorf(format, args...)
}

func (z *ZapLogger) Named(name string) Logger {
	return NewZapLoggerFrom(z.logger.Named(name))
}

// Close syncs the underlying core. Sync errors on terminals (ENOTTY, EINVAL)
// are ignored.
func (z *ZapLogger) Close() error {
	err := z.logger.Sync()
	if errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EINVAL) {
		return nil
	}
	return err
}

var _ Logger = (*ZapLogger)(nil)
