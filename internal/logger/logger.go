// Package logger builds the application logger shared by echo, the API
// handlers and the metadata dispatcher.
package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/labstack/gommon/log"
)

// ParseLevel maps a config level name to a gommon level.
func ParseLevel(name string) (log.Lvl, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return log.DEBUG, nil
	case "", "info":
		return log.INFO, nil
	case "warn", "warning":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off":
		return log.OFF, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// New creates a logger with the given prefix and level writing to out.
func New(prefix, level string, out io.Writer) (*log.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	l := log.New(prefix)
	l.SetLevel(lvl)
	l.SetOutput(out)
	l.SetHeader("${time_rfc3339} ${level} ${prefix} ${short_file}:${line}")
	return l, nil
}
