// Package config carries the runtime defaults the termino commands share.
package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/termino/serial"
	"github.com/srg/termino/sketch"
)

// Config holds application configuration
type Config struct {
	LogLevel         logrus.Level  `json:"log_level"`
	TickInterval     time.Duration `json:"tick_interval"`
	SerialBufferSize int           `json:"serial_buffer_size"`
	OutputFormat     string        `json:"output_format"`
}

// DefaultConfig returns default configuration values. The error log level
// keeps fatal terminal diagnostics visible while sketch output owns the
// screen.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:         logrus.ErrorLevel,
		TickInterval:     sketch.DefaultTick,
		SerialBufferSize: serial.DefaultBufferSize,
		OutputFormat:     "table", // table, json
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
