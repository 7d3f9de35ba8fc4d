package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits below debug. Full model requests and replies are
// logged at this level.
const LevelTrace = slog.Level(-8)

// LogLevels lists the accepted log_level values, most verbose first.
var LogLevels = []string{"trace", "debug", "info", "warn", "error"}

var levelByName = map[string]slog.Level{
	"":        slog.LevelInfo,
	"trace":   LevelTrace,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLogLevel maps a case-insensitive level name to an [slog.Level].
// The empty string means info.
func ParseLogLevel(s string) (slog.Level, error) {
	if level, ok := levelByName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: %s)", s, strings.Join(LogLevels, ", "))
}

// ReplaceLogLevelNames is a [slog.HandlerOptions] ReplaceAttr hook that
// prints [LevelTrace] as "TRACE" rather than "DEBUG-4".
func ReplaceLogLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level <= LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
