// Package logging provides named logrus loggers shared by all httpvfs packages.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	loggers = make(map[string]*Handle)
	level   = logrus.InfoLevel
)

// Handle is a logrus logger that prints its name in every line.
type Handle struct {
	logrus.Logger

	name string
}

// Format implements logrus.Formatter.
func (l *Handle) Format(e *logrus.Entry) ([]byte, error) {
	const timeFormat = "2006/01/02 15:04:05.000000"

	str := fmt.Sprintf("%v %s[%d] <%v>: %v",
		e.Time.Format(timeFormat),
		l.name,
		os.Getpid(),
		strings.ToUpper(e.Level.String()),
		e.Message)

	if len(e.Data) != 0 {
		str += fmt.Sprintf(" %v", e.Data)
	}

	str += "\n"
	return []byte(str), nil
}

// Name returns the logger name.
func (l *Handle) Name() string {
	return l.name
}

func newLogger(name string) *Handle {
	l := &Handle{name: name}
	l.Out = os.Stderr
	l.Formatter = l
	l.Level = level
	l.Hooks = make(logrus.LevelHooks)
	l.ExitFunc = os.Exit
	return l
}

// GetLogger returns the logger mapped to name, creating it on first use.
func GetLogger(name string) *Handle {
	mu.Lock()
	defer mu.Unlock()

	if logger, ok := loggers[name]; ok {
		return logger
	}
	logger := newLogger(name)
	loggers[name] = logger
	return logger
}

// SetLogLevel sets lvl on all existing and future loggers.
func SetLogLevel(lvl logrus.Level) {
	mu.Lock()
	defer mu.Unlock()

	level = lvl
	for _, logger := range loggers {
		logger.SetLevel(lvl)
	}
}

// SetOutFile redirects all loggers to the named file.
func SetOutFile(name string) error {
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // log path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, logger := range loggers {
		logger.SetOutput(file)
	}
	return nil
}
