package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

func (f *LogFormat) UnmarshalText(text []byte) error {
	value := LogFormat(strings.ToLower(string(text)))
	switch value {
	case "":
		*f = FormatText
		return nil
	case FormatText, FormatJSON:
		*f = value
		return nil
	default:
		return fmt.Errorf("invalid log format %q, must be %q or %q", string(text), FormatText, FormatJSON)
	}
}

type Config struct {
	Format LogFormat `mapstructure:"format" json:"format,omitempty"`
	Level  string    `mapstructure:"level" json:"level,omitempty"`
}

// NewLogger configures the global logrus logger and returns it, so that
// dependencies logging through logrus share the format.
func NewLogger(format LogFormat) *logrus.Logger {
	if format == FormatJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg: "_msg",
			},
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:   true,
			FullTimestamp: true,
		})
	}

	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.DebugLevel)

	return logrus.StandardLogger()
}

// FromConfig is NewLogger plus a level override. An unknown level is
// reported and debug is kept.
func FromConfig(cfg Config) *logrus.Logger {
	logger := NewLogger(cfg.Format)
	if cfg.Level == "" {
		return logger
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.Warnf("invalid log level %q, using debug", cfg.Level)
		return logger
	}
	logger.SetLevel(level)
	return logger
}
