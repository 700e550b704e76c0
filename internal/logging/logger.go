// Package logging wraps logrus with the file/console hook split the
// source project's log.h/blockqueue.h describe: one hook writing leveled,
// formatted output to a single append-only file under log_path (no
// rotation), another to the console, both thread-safe since they are
// logrus hooks. A process-wide singleton is initialized once at startup
// and components fetch it through Get.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

// Logger is the process-wide leveled logger injected into every component
// that needs to emit structured log lines.
type Logger struct {
	log *logrus.Logger
	fh  io.WriteCloser
}

var (
	once     sync.Once
	instance *Logger
)

// Options configures where and at what level the logger writes.
type Options struct {
	Level    Level
	LogPath  string // directory; empty disables the file hook
	Name     string // used as the log file base name
	ToStderr bool
}

// Init constructs the process-wide logger exactly once; subsequent calls
// return the first instance, mirroring the teacher logger's init-once
// singleton lifecycle.
func Init(opt Options) *Logger {
	once.Do(func() {
		instance = newLogger(opt)
	})
	return instance
}

// Get returns the process-wide logger, constructing a console-only
// default if Init was never called (useful in tests).
func Get() *Logger {
	if instance == nil {
		return Init(Options{Level: InfoLevel, ToStderr: true})
	}
	return instance
}

func newLogger(opt Options) *Logger {
	l := logrus.New()
	l.SetLevel(opt.Level.logrus())
	l.SetOutput(io.Discard)

	out := colorable.NewColorableStderr()
	if !opt.ToStderr {
		out = colorable.NewColorableStdout()
	}
	l.AddHook(&consoleHook{out: out, level: opt.Level})

	lg := &Logger{log: l}

	if opt.LogPath != "" {
		name := opt.Name
		if name == "" {
			name = "boneserver"
		}
		if err := os.MkdirAll(opt.LogPath, 0o755); err == nil {
			path := opt.LogPath + string(os.PathSeparator) + name + ".log"
			f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err == nil {
				lg.fh = f
				l.AddHook(&fileHook{w: f, level: opt.Level})
			}
		}
	}

	return lg
}

// Close flushes and releases the file hook's descriptor; callers invoke
// this once at shutdown, mirroring the original log.h's Flush-on-exit.
func (l *Logger) Close() error {
	if l == nil || l.fh == nil {
		return nil
	}
	return l.fh.Close()
}

func (l *Logger) Entry() *logrus.Logger { return l.log }

func (l *Logger) Tracef(format string, args ...any) { l.log.Tracef(format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.log.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log.Errorf(format, args...) }

// consoleHook writes colorized level-tagged lines to the console.
type consoleHook struct {
	out   io.Writer
	level Level
}

func (h *consoleHook) Levels() []logrus.Level {
	return levelsAtOrAbove(h.level)
}

func (h *consoleHook) Fire(e *logrus.Entry) error {
	c := colorFor(e.Level)
	_, err := fmt.Fprintf(h.out, "%s %s %s\n", e.Time.Format("2006-01-02T15:04:05.000Z07:00"), c.Sprint(e.Level.String()), e.Message)
	return err
}

func colorFor(lvl logrus.Level) *color.Color {
	switch lvl {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgRed, color.Bold)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.DebugLevel, logrus.TraceLevel:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgGreen)
	}
}

// fileHook writes plain, unformatted lines to the log file.
type fileHook struct {
	w     io.Writer
	level Level
}

func (h *fileHook) Levels() []logrus.Level {
	return levelsAtOrAbove(h.level)
}

func (h *fileHook) Fire(e *logrus.Entry) error {
	_, err := fmt.Fprintf(h.w, "%s [%s] %s\n", e.Time.Format(time.RFC3339Nano), e.Level.String(), e.Message)
	return err
}

func levelsAtOrAbove(l Level) []logrus.Level {
	if l == OffLevel {
		return nil
	}
	all := []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel, logrus.DebugLevel, logrus.TraceLevel}
	return all[:int(l.logrus())+1]
}
