package utils

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger returns the process logger, named "ajimi". debug selects the development
// config (console output at debug level); otherwise JSON at info level with sampling off.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Named("ajimi"), nil
}
