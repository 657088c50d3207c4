// Package log is the process logger: a small Logger interface backed by
// logrus, configured from config.LogConfig.
package log

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"firestige.xyz/envelope/internal/config"
)

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = defaultLogger()
	output *MultiWriter
)

// GetLogger returns the process logger. Before Init it writes info and
// above to stderr.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the process logger with one built from cfg.
func Init(cfg config.LogConfig) error {
	out := NewMultiWriter().Add(os.Stderr)
	if cfg.File.Enabled {
		if err := out.AddFileAppender(cfg.File); err != nil {
			return err
		}
	}

	l, err := New(cfg, out)
	if err != nil {
		return err
	}

	mu.Lock()
	prev := output
	logger, output = l, out
	mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Close flushes and closes file outputs installed by Init.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if output == nil {
		return nil
	}
	err := output.Close()
	output = nil
	return err
}

func defaultLogger() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&patternFormatter{pattern: defaultPattern, time: defaultTimeFormat})
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}
