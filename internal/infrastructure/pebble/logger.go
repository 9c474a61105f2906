package pebblestore

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// slogLogger routes pebble's internal messages (WAL replay, compactions)
// through slog.
type slogLogger struct {
	log *slog.Logger
}

func (l slogLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l slogLogger) Fatalf(format string, args ...interface{}) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
	os.Exit(1)
}
