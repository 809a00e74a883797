package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// Setup configures the process-wide logrus logger.
func Setup(opts Options) error {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	if opts.Output != nil {
		logrus.SetOutput(opts.Output)
	} else {
		logrus.SetOutput(os.Stdout)
	}
	return nil
}

// For returns an entry tagged with the component name, e.g. "quota" or "bot".
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

func parseLevel(level string) (logrus.Level, error) {
	trimmed := strings.ToLower(strings.TrimSpace(level))
	if trimmed == "" {
		return logrus.InfoLevel, nil
	}
	parsed, err := logrus.ParseLevel(trimmed)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("log level: %w", err)
	}
	return parsed, nil
}
