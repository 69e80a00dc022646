// Package logging configures the process-wide logrus logger and hands out
// per-component loggers.
package logging

import (
	"log/syslog"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"
)

// SyslogTag is the identity the agent logs under in syslog.
const SyslogTag = "INTF-ALERT-AGENT"

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Setter changes the root logger.
type Setter func(*log.Logger) error

var root = struct {
	logger *log.Logger
	mutex  sync.Mutex
}{
	logger: log.StandardLogger(),
}

// New returns a logger tagged with component.
func New(component string) log.FieldLogger {
	return root.logger.WithField("component", component)
}

// Configure applies setters in order and stops at the first failure.
func Configure(setters ...Setter) error {
	root.mutex.Lock()
	defer root.mutex.Unlock()
	for _, setter := range setters {
		if err := setter(root.logger); err != nil {
			return err
		}
	}
	return nil
}

// Text selects the text formatter with full millisecond timestamps.
func Text() Setter {
	return func(l *log.Logger) error {
		l.SetFormatter(&log.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
		return nil
	}
}

// Level sets the minimum level. An unknown level falls back to info.
func Level(lvl string) Setter {
	return func(l *log.Logger) error {
		l.SetLevel(ParseLevel(lvl))
		return nil
	}
}

// ParseLevel accepts trace, debug, info, warn and error.
func ParseLevel(lvl string) log.Level {
	switch lvl {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Syslog mirrors every entry to the local syslog daemon under tag using the
// local0 facility.
func Syslog(tag string) Setter {
	return func(l *log.Logger) error {
		hook, err := lsyslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_LOCAL0, tag)
		if err != nil {
			return errors.Wrap(err, "connect to syslog")
		}
		l.AddHook(hook)
		return nil
	}
}
