package pathtracer

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger is the renderer's logging surface. The pipeline and event bus accept
// any value with the matching subset of methods.
type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type level string

const (
	levelDebug level = "DEBUG"
	levelInfo  level = "INFO"
	levelWarn  level = "WARN"
	levelError level = "ERROR"
)

// DefaultLogger writes debug and info lines to one writer and warnings and
// errors to another. Children made with With share the debug switch.
type DefaultLogger struct {
	state  *loggerState
	prefix string
	out    *log.Logger
	err    *log.Logger
}

type loggerState struct {
	mu    sync.Mutex
	debug bool
}

// NewDefaultLogger logs to stdout and stderr.
func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	return NewLogger(os.Stdout, os.Stderr, prefix, debug)
}

func NewLogger(out, errOut io.Writer, prefix string, debug bool) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	return &DefaultLogger{
		state:  &loggerState{debug: debug},
		prefix: prefix,
		out:    log.New(out, "", flags),
		err:    log.New(errOut, "", flags),
	}
}

func (l *DefaultLogger) DebugEnabled() bool {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	return l.state.debug
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.state.mu.Lock()
	l.state.debug = enabled
	l.state.mu.Unlock()
}

// With returns a child logger whose prefix is extended by name, e.g.
// "ptview/app".
func (l *DefaultLogger) With(name string) *DefaultLogger {
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "/" + name
	}
	return &DefaultLogger{state: l.state, prefix: prefix, out: l.out, err: l.err}
}

func (l *DefaultLogger) logf(dst *log.Logger, lvl level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.prefix == "" {
		dst.Printf("%s: %s", lvl, msg)
		return
	}
	dst.Printf("[%s] %s: %s", l.prefix, lvl, msg)
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if l.DebugEnabled() {
		l.logf(l.out, levelDebug, format, args...)
	}
}

func (l *DefaultLogger) Infof(format string, args ...any)  { l.logf(l.out, levelInfo, format, args...) }
func (l *DefaultLogger) Warnf(format string, args ...any)  { l.logf(l.err, levelWarn, format, args...) }
func (l *DefaultLogger) Errorf(format string, args ...any) { l.logf(l.err, levelError, format, args...) }

type nopLogger struct{}

func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) DebugEnabled() bool    { return false }
func (nopLogger) SetDebug(bool)         {}
func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
