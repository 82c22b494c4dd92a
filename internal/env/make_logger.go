package env

import (
	"fmt"

	zap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func MakeLogger(level, encoding string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(lvl)
	logConfig.Encoding = encoding

	if encoding == "console" {
		logConfig.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	// Command output goes to stdout, keep logs apart from it
	logConfig.OutputPaths = []string{"stderr"}

	return logConfig.Build()
}
