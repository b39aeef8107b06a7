package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps logrus.Logger with collector-specific helpers
type Logger struct {
	*logrus.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string
	Format     string
	Output     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// New creates a new logger instance with the given configuration
func New(config Config) (*Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}
	logger.SetLevel(level)

	switch config.Format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	var output io.Writer
	switch config.Output {
	case "stderr":
		output = os.Stderr
	case "file":
		if config.File == "" {
			config.File = "haproxy-collector.log"
		}
		if err := os.MkdirAll(filepath.Dir(config.File), 0755); err != nil {
			return nil, err
		}
		output = &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
	default:
		output = os.Stdout
	}
	logger.SetOutput(output)

	return &Logger{Logger: logger}, nil
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithError adds an error field to the logger context
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// APILogger creates a logger with Data Plane API client specific fields
func (l *Logger) APILogger(baseURL string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"component": "dataplane_client",
		"api_url":   baseURL,
	})
}

// ResolverLogger creates a logger with topology resolver specific fields
func (l *Logger) ResolverLogger() *logrus.Entry {
	return l.WithField("component", "topology_resolver")
}

// IngestLogger creates a logger with ingestion specific fields
func (l *Logger) IngestLogger() *logrus.Entry {
	return l.WithField("component", "ingest")
}
