package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a development logger at the given textual level. An empty level
// yields a no-op logger, which is the default for porcelain invocations:
// command output goes to stdout, not through the logger.
func New(level string) (*zap.Logger, error) {
	if level == "" {
		return zap.NewNop(), nil
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	return config.Build()
}
