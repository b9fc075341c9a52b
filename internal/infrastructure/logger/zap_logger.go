package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func parseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func NewLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parseLevel(level))
	return config.Build()
}

// NewFileLogger writes JSON to stdout and appends the same entries to path.
// The returned func flushes the logger and closes the file.
func NewFileLogger(path, level string) (*zap.Logger, func(), error) {
	if path == "" {
		log, err := NewLogger(level)
		if err != nil {
			return nil, nil, err
		}
		return log, func() { _ = log.Sync() }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	lvl := zap.NewAtomicLevelAt(parseLevel(level))
	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), lvl),
		zapcore.NewCore(enc.Clone(), zapcore.AddSync(f), lvl),
	)
	log := zap.New(core, zap.AddCaller())
	return log, func() {
		_ = log.Sync()
		_ = f.Close()
	}, nil
}
