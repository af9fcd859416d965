package gardenqa

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" env:"GARDENQA_LOG_LEVEL"`    // debug, info, warn, error
	Format string `json:"format" yaml:"format" env:"GARDENQA_LOG_FORMAT"` // text or json
	// File, when set, sends logs to a rotating file instead of stderr.
	File       string `json:"file,omitempty" yaml:"file,omitempty" env:"GARDENQA_LOG_FILE"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds a slog logger from cfg. The returned closer releases the
// log file, if any.
func NewLogger(cfg LogConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(orDefault(cfg.Level, "info")))); err != nil {
		return nil, nil, fmt.Errorf("%w: log level: %v", ErrInvalidConfig, err)
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefaultInt(cfg.MaxSizeMB, 50), // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays, // days
			LocalTime:  true,
		}
		out, closer = lj, lj
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(orDefault(cfg.Format, "text")) {
	case "json":
		h = slog.NewJSONHandler(out, opts)
	case "text":
		h = slog.NewTextHandler(out, opts)
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("%w: log format %q", ErrInvalidConfig, cfg.Format)
	}
	return slog.New(h), closer, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(n, def int) int {
	if n == 0 {
		return def
	}
	return n
}
