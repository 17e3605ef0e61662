package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	FATAL Level = iota
	ERROR
	WARNING
	INFO
	DEBUG
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case FATAL:
		return zerolog.FatalLevel
	case ERROR:
		return zerolog.ErrorLevel
	case WARNING:
		return zerolog.WarnLevel
	case DEBUG:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel returns the level for debug, info, warn or error.
// Unknown names default to INFO.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARNING
	case "error":
		return ERROR
	default:
		return INFO
	}
}

type broker struct {
	mu    sync.RWMutex
	base  zerolog.Logger
	quiet bool
	steps map[Step]time.Time
}

type Step struct {
	Component string
	Name      string
}

var defaultBroker = newBroker(os.Stderr, true)

func init() {
	SetLevel(INFO)
}

func newBroker(out io.Writer, console bool) *broker {
	return &broker{
		base:  build(out, console),
		steps: make(map[Step]time.Time),
	}
}

func build(out io.Writer, console bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.MessageFieldName = "msg"
	if console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Stamp}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func (b *broker) logger() zerolog.Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.base
}

// SetOutput redirects all log output to out. console selects the human
// readable writer instead of JSON lines.
func SetOutput(out io.Writer, console bool) {
	defaultBroker.mu.Lock()
	defaultBroker.base = build(out, console)
	defaultBroker.mu.Unlock()
}

func SetLevel(lvl Level) {
	zerolog.SetGlobalLevel(lvl.zerolog())
}

// SetQuiet suppresses progress (step start) messages.
func SetQuiet(quiet bool) {
	defaultBroker.mu.Lock()
	defaultBroker.quiet = quiet
	defaultBroker.mu.Unlock()
}

func Debugf(msg string, args ...interface{}) {
	record(DEBUG, "", fmt.Sprintf(msg, args...))
}

func Infof(msg string, args ...interface{}) {
	record(INFO, "", fmt.Sprintf(msg, args...))
}

func Warnf(msg string, args ...interface{}) {
	record(WARNING, "", fmt.Sprintf(msg, args...))
}

func Errorf(msg string, args ...interface{}) {
	record(ERROR, "", fmt.Sprintf(msg, args...))
}

func record(level Level, component, msg string) {
	l := defaultBroker.logger()
	ev := l.WithLevel(level.zerolog())
	if ev == nil {
		return
	}
	if component != "" {
		ev = ev.Str("component", component)
	}
	ev.Msg(msg)
}

type Logger struct {
	Component string
}

func NewLogger(component string) *Logger {
	return &Logger{component}
}

func (l *Logger) Print(args ...interface{}) {
	record(INFO, l.Component, fmt.Sprint(args...))
}

func (l *Logger) Printf(msg string, args ...interface{}) {
	record(INFO, l.Component, fmt.Sprintf(msg, args...))
}

func (l *Logger) Debugf(msg string, args ...interface{}) {
	record(DEBUG, l.Component, fmt.Sprintf(msg, args...))
}

func (l *Logger) Fatal(args ...interface{}) {
	record(FATAL, l.Component, fmt.Sprint(args...))
	os.Exit(1)
}

func (l *Logger) Fatalf(msg string, args ...interface{}) {
	record(FATAL, l.Component, fmt.Sprintf(msg, args...))
	os.Exit(1)
}

func (l *Logger) Error(args ...interface{}) {
	record(ERROR, l.Component, fmt.Sprint(args...))
}

func (l *Logger) Errorf(msg string, args ...interface{}) {
	record(ERROR, l.Component, fmt.Sprintf(msg, args...))
}

func (l *Logger) Warn(args ...interface{}) {
	record(WARNING, l.Component, fmt.Sprint(args...))
}

func (l *Logger) Warnf(msg string, args ...interface{}) {
	record(WARNING, l.Component, fmt.Sprintf(msg, args...))
}

func (l *Logger) Printfl(level Level, msg string, args ...interface{}) {
	record(level, l.Component, fmt.Sprintf(msg, args...))
}

// With returns a zerolog logger carrying the component field, for
// callers that want to attach structured fields.
func (l *Logger) With() zerolog.Context {
	base := defaultBroker.logger()
	return base.With().Str("component", l.Component)
}

func (l *Logger) StartStep(msg string) string {
	step := Step{l.Component, msg}
	defaultBroker.mu.Lock()
	defaultBroker.steps[step] = time.Now()
	quiet := defaultBroker.quiet
	defaultBroker.mu.Unlock()
	if !quiet {
		record(INFO, l.Component, msg)
	}
	return msg
}

func (l *Logger) StopStep(msg string) {
	step := Step{l.Component, msg}
	defaultBroker.mu.Lock()
	startTime, ok := defaultBroker.steps[step]
	delete(defaultBroker.steps, step)
	defaultBroker.mu.Unlock()
	if !ok {
		return
	}
	record(INFO, l.Component, msg+" took: "+time.Since(startTime).String())
}
