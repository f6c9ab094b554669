// Package logging wraps logrus with the framework's conventions: a component
// field on every entry, JSON output in production, and redaction of
// credential-looking fields before anything hits the transport.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config controls logger construction.
type Config struct {
	Level      string
	Production bool
	Output     io.Writer
}

// Logger is a thin wrapper around a logrus entry carrying bound fields.
type Logger struct {
	entry *logrus.Entry
}

// New builds a logger for the named component.
func New(component string, cfg Config) *Logger {
	base := logrus.New()

	if cfg.Output != nil {
		base.SetOutput(cfg.Output)
	} else {
		base.SetOutput(os.Stdout)
	}

	if cfg.Production {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	return &Logger{entry: base.WithField("component", component)}
}

// NewDefault builds a development logger for the named component.
func NewDefault(component string) *Logger {
	return New(component, Config{Level: "debug"})
}

// Named returns a logger for a sub-component, keeping the same transport.
func (l *Logger) Named(component string) *Logger {
	return &Logger{entry: l.entry.WithField("component", component)}
}

// WithField binds one field, redacting sensitive values.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, redactValue(key, value))}
}

// WithFields binds a field set, redacting sensitive values.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(Redact(fields))}
}

// WithError binds an error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// WithRequest binds request correlation fields.
func (l *Logger) WithRequest(requestID, module, method string) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields{
		"request_id": requestID,
		"module":     module,
		"method":     method,
	})}
}

func (l *Logger) Debug(args ...any)                 { l.entry.Debug(args...) }
func (l *Logger) Info(args ...any)                  { l.entry.Info(args...) }
func (l *Logger) Warn(args ...any)                  { l.entry.Warn(args...) }
func (l *Logger) Error(args ...any)                 { l.entry.Error(args...) }
func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// sensitiveKeys are substring-matched against lower-cased field names.
var sensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"authorization",
	"apikey",
	"api_key",
	"credential",
}

const redactedPlaceholder = "[REDACTED]"

// Redact returns a copy of fields with credential-looking values masked.
func Redact(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return fields
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = redactValue(k, v)
	}
	return out
}

func redactValue(key string, value any) any {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return redactedPlaceholder
		}
	}
	if nested, ok := value.(map[string]any); ok {
		return Redact(nested)
	}
	return value
}
