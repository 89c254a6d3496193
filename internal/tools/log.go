package tools

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Record anything we log in the configured log file, as well as stdout
func SetupLogging(cfg LoggingConfig) (io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	// Setup the logger, so it can be parsed by datadog
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if cfg.File == "" {
		logrus.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}
	logFile, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}
	logrus.SetOutput(io.MultiWriter(logFile, os.Stdout))
	return logFile, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
