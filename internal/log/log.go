// Package log reconstructs the minimal logging contract that
// github.com/saferwall/pe already depends on (github.com/saferwall/pe/log),
// in the style of go-kratos's log package: a leveled Logger interface, a
// Filter that drops entries below a level, and a Helper that exposes
// Debug/Info/Warn/Error sugar.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level is a log severity.
type Level int8

const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the sink every emitter ultimately writes through.
type Logger interface {
	Log(level Level, keyvals ...interface{}) error
}

// stdLogger writes "time level msg" lines to an io.Writer.
type stdLogger struct {
	mu  sync.Mutex
	out io.Writer
}

// NewStdLogger returns a Logger that writes to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{out: w}
}

func (l *stdLogger) Log(level Level, keyvals ...interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format(time.RFC3339)
	if _, err := fmt.Fprintf(l.out, "%s level=%s", ts, level); err != nil {
		return err
	}
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 < len(keyvals) {
			fmt.Fprintf(l.out, " %v=%v", keyvals[i], keyvals[i+1])
		}
	}
	_, err := fmt.Fprintln(l.out)
	return err
}

// filter drops entries below a minimum level.
type filter struct {
	Logger
	level Level
}

// FilterOption configures a filter.
type FilterOption func(*filter)

// FilterLevel sets the minimum level a filtered logger will forward.
func FilterLevel(level Level) FilterOption {
	return func(f *filter) { f.level = level }
}

// NewFilter wraps logger with the given options.
func NewFilter(logger Logger, opts ...FilterOption) Logger {
	f := &filter{Logger: logger, level: LevelDebug}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filter) Log(level Level, keyvals ...interface{}) error {
	if level < f.level {
		return nil
	}
	return f.Logger.Log(level, keyvals...)
}

// Helper adds printf-style sugar on top of a Logger.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger with sugar methods.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

func (h *Helper) log(level Level, msg string) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Log(level, "msg", msg)
}

func (h *Helper) Debug(a ...interface{})            { h.log(LevelDebug, fmt.Sprint(a...)) }
func (h *Helper) Debugf(format string, a ...interface{}) { h.log(LevelDebug, fmt.Sprintf(format, a...)) }
func (h *Helper) Info(a ...interface{})             { h.log(LevelInfo, fmt.Sprint(a...)) }
func (h *Helper) Infof(format string, a ...interface{})  { h.log(LevelInfo, fmt.Sprintf(format, a...)) }
func (h *Helper) Warn(a ...interface{})             { h.log(LevelWarn, fmt.Sprint(a...)) }
func (h *Helper) Warnf(format string, a ...interface{})  { h.log(LevelWarn, fmt.Sprintf(format, a...)) }
func (h *Helper) Error(a ...interface{})            { h.log(LevelError, fmt.Sprint(a...)) }
func (h *Helper) Errorf(format string, a ...interface{}) { h.log(LevelError, fmt.Sprintf(format, a...)) }

// NewStderrHelper returns a Helper that writes warn and error entries to
// stderr and drops lower levels.
func NewStderrHelper() *Helper {
	return NewHelper(NewFilter(NewStdLogger(os.Stderr), FilterLevel(LevelWarn)))
}
