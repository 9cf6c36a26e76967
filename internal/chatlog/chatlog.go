// Package chatlog provides the server's leveled, timestamped logging sink.
//
// It wraps two hclog.Logger instances — one writing to stdout, one to
// stderr — so that records at WARNING and below land on stdout while ERROR
// and FATAL land on stderr, per spec. An optional append-only log file is
// fanned into both via io.MultiWriter. There is no process-wide singleton:
// the composition root constructs one Logger and threads it through
// explicitly.
package chatlog

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Level mirrors the five levels the core distinguishes.
type Level int

const (
	Debug Level = iota
	Info
	Warning
	Error
	Fatal
)

// Logger is the leveled sink used throughout the server.
type Logger struct {
	out  hclog.Logger
	err  hclog.Logger
	exit func(code int)
}

// New builds a Logger with floor at Info. logFilePath, if non-empty, is
// opened for append and fanned into both the stdout and stderr streams.
func New(logFilePath string) (*Logger, error) {
	var file *os.File
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		file = f
	}

	stdoutW := teeWriter(os.Stdout, file)
	stderrW := teeWriter(os.Stderr, file)

	opts := func(w io.Writer) *hclog.LoggerOptions {
		return &hclog.LoggerOptions{
			Name:            "chat",
			Level:           hclog.Info,
			Output:          w,
			IncludeLocation: true,
			TimeFormat:      "2006-01-02T15:04:05.000Z07:00",
		}
	}

	return &Logger{
		out:  hclog.New(opts(stdoutW)),
		err:  hclog.New(opts(stderrW)),
		exit: os.Exit,
	}, nil
}

func teeWriter(std *os.File, file *os.File) io.Writer {
	if file == nil {
		return std
	}
	return io.MultiWriter(std, file)
}

func (l *Logger) Debugf(format string, args ...any)   { l.out.Debug(sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)    { l.out.Info(sprintf(format, args...)) }
func (l *Logger) Warningf(format string, args ...any) { l.out.Warn(sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any)   { l.err.Error(sprintf(format, args...)) }

// Fatalf logs at ERROR, tags the record fatal=true, and exits the process.
// Tests should replace l.exit via WithExitFunc to observe the call instead
// of terminating.
func (l *Logger) Fatalf(format string, args ...any) {
	l.err.Error(sprintf(format, args...), "fatal", true)
	l.exit(1)
}

// WithExitFunc returns a copy of l whose Fatalf calls fn instead of
// os.Exit. Used by tests that must exercise fatal paths without dying.
func (l *Logger) WithExitFunc(fn func(code int)) *Logger {
	cp := *l
	cp.exit = fn
	return &cp
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return hclog.Fmt(format, args...)
}
