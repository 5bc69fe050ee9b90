package logging

import (
	"errors"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger
type Logger struct {
	*zap.Logger
}

// Config defines logger configuration
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
}

// DefaultConfig returns the production configuration
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		Development: false,
		OutputPaths: []string{"stdout"},
	}
}

// DevelopmentConfig returns the development configuration
func DevelopmentConfig() Config {
	return Config{
		Level:       "debug",
		Development: true,
		OutputPaths: []string{"stdout"},
	}
}

// New creates a logger
func New(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encodingFormat(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       cfg.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger.Named("canvas")}, nil
}

// NewDefault creates a production logger, or a no-op logger if that fails
func NewDefault() *Logger {
	logger, err := New(DefaultConfig())
	if err != nil {
		return NewNop()
	}
	return logger
}

// NewDevelopment creates a development logger, or a no-op logger if that fails
func NewDevelopment() *Logger {
	logger, err := New(DevelopmentConfig())
	if err != nil {
		return NewNop()
	}
	return logger
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) *zap.Logger {
	return l.Logger.With(zap.String("component", name))
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func (l *Logger) Sync() error {
	err := l.Logger.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EBADF) {
		return nil
	}
	return err
}

func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

func encodingFormat(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		return zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
	}

	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
