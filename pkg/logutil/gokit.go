package logutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-kit/log"
)

type kitLogger struct {
	logger *slog.Logger
}

// NewKitLogger adapts logger for dskit components that expect a go-kit
// logger. The "level" and "msg" keys map onto the slog record.
func NewKitLogger(logger *slog.Logger) log.Logger {
	return kitLogger{logger: logger}
}

func (k kitLogger) Log(keyvals ...any) error {
	lvl := slog.LevelInfo
	msg := ""
	attrs := make([]any, 0, len(keyvals))
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		var val any = log.ErrMissingValue
		if i+1 < len(keyvals) {
			val = keyvals[i+1]
		}
		switch key {
		case "level":
			lvl = kitLevel(val)
		case "msg":
			msg = fmt.Sprint(val)
		default:
			attrs = append(attrs, key, val)
		}
	}
	k.logger.Log(context.Background(), lvl, msg, attrs...)
	return nil
}

func kitLevel(v any) slog.Level {
	switch fmt.Sprint(v) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
