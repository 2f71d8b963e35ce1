package logging

import "go.uber.org/zap/zapcore"

// Config is the configuration for the logging subsystem.
type Config struct {
	// Level is the logging level.
	Level zapcore.Level `yaml:"level"`
}

// Default returns the logging configuration used when a participant
// config omits the "logging" section.
func Default() Config {
	return Config{Level: zapcore.InfoLevel}
}
