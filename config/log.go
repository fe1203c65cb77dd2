package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

type LogConfig struct {
	Level        string `toml:"level"`
	Format       string `toml:"format"` // "text" or "json"
	ReportCaller bool   `toml:"report_caller"`
}

// Apply configures the standard logrus logger.
func (c LogConfig) Apply(out io.Writer) error {
	level, err := parseLevel(c.Level)
	if err != nil {
		return err
	}
	if out == nil {
		out = os.Stdout
	}

	switch strings.ToLower(c.Format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	log.SetLevel(level)
	log.SetReportCaller(c.ReportCaller)
	log.SetOutput(out)
	return nil
}

func parseLevel(s string) (log.Level, error) {
	if s == "" {
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
