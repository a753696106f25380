// SPDX-License-Identifier: MIT
package validate

import "strings"

// LogLevel is a level accepted by the daemon's logLevel setting and its
// runtime reload path.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogLevels lists the accepted levels, most verbose first.
var LogLevels = []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError}

func (l LogLevel) IsValid() bool {
	for _, known := range LogLevels {
		if l == known {
			return true
		}
	}
	return false
}

func (l LogLevel) String() string { return string(l) }

// ParseLogLevel accepts any letter case ("INFO" is info).
func ParseLogLevel(s string) (LogLevel, error) {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if !level.IsValid() {
		return "", ErrInvalidLogLevel
	}
	return level, nil
}

var ErrInvalidLogLevel = &Error{
	Field:   "logLevel",
	Message: "invalid log level (must be: debug, info, warn, error)",
}
