/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-02

This file provides the console logger used by every command. It:

- Prints colored step banners, info, success, warning and error lines
- Switches to JSON output backed by zap for CI pipelines
- Silences client-go klog output unless verbose mode is enabled
*/

package log

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/klog/v2"
)

// Format selects how log lines are rendered
type Format string

const (
	// FormatConsole renders colored human readable lines
	FormatConsole Format = "console"

	// FormatJSON renders one JSON object per line
	FormatJSON Format = "json"
)

// Config holds the logger configuration
type Config struct {
	Format  Format
	Verbose bool

	// Out receives info, success and debug lines. Defaults to os.Stdout.
	Out io.Writer

	// ErrOut receives warning and error lines. Defaults to os.Stderr.
	ErrOut io.Writer

	// Timestamps prefixes console lines with the wall clock time
	Timestamps bool
}

// Logger writes the colored log lines the installer prints while it works
type Logger struct {
	out        io.Writer
	errOut     io.Writer
	verbose    bool
	timestamps bool
	json       *zap.SugaredLogger
	mu         sync.Mutex

	stepColor    *color.Color
	successColor *color.Color
	warningColor *color.Color
	errorColor   *color.Color
	debugColor   *color.Color
}

// New creates a logger from the given configuration
func New(cfg Config) (*Logger, error) {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.ErrOut == nil {
		cfg.ErrOut = os.Stderr
	}

	l := &Logger{
		out:          cfg.Out,
		errOut:       cfg.ErrOut,
		verbose:      cfg.Verbose,
		timestamps:   cfg.Timestamps,
		stepColor:    color.New(color.FgCyan, color.Bold),
		successColor: color.New(color.FgGreen),
		warningColor: color.New(color.FgYellow),
		errorColor:   color.New(color.FgRed, color.Bold),
		debugColor:   color.New(color.FgHiBlack),
	}

	switch cfg.Format {
	case FormatConsole, "":
	case FormatJSON:
		zl, err := newJSONLogger(cfg)
		if err != nil {
			return nil, err
		}
		l.json = zl.Sugar()
	default:
		return nil, fmt.Errorf("invalid log format %q (must be one of: console, json)", cfg.Format)
	}

	configureKlog(cfg.Verbose)

	return l, nil
}

// Discard returns a logger that drops everything, used by tests
func Discard() *Logger {
	l, _ := New(Config{Out: io.Discard, ErrOut: io.Discard})
	return l
}

func newJSONLogger(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Verbose {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(cfg.Out),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl >= level && lvl < zapcore.WarnLevel }),
		),
		zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(cfg.ErrOut),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl >= zapcore.WarnLevel }),
		),
	)

	return zap.New(core), nil
}

// configureKlog keeps client-go chatter off the terminal unless asked for
func configureKlog(verbose bool) {
	if verbose {
		fs := flag.NewFlagSet("klog", flag.ContinueOnError)
		klog.InitFlags(fs)
		_ = fs.Set("v", "4")
		klog.LogToStderr(true)
		klog.SetOutput(os.Stderr)
		return
	}
	klog.SetOutput(io.Discard)
	klog.LogToStderr(false)
}

// Verbose reports whether debug lines are printed
func (l *Logger) Verbose() bool {
	return l.verbose
}

// JSON reports whether the logger renders JSON lines
func (l *Logger) JSON() bool {
	return l.json != nil
}

// Step prints a banner announcing the next phase of a command
func (l *Logger) Step(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.json != nil {
		l.json.Infow(msg, "kind", "step")
		return
	}
	l.write(l.out, l.stepColor, "==> "+msg)
}

// Info prints a regular progress line
func (l *Logger) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.json != nil {
		l.json.Info(msg)
		return
	}
	l.write(l.out, nil, msg)
}

// Success prints a green confirmation line
func (l *Logger) Success(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.json != nil {
		l.json.Infow(msg, "kind", "success")
		return
	}
	l.write(l.out, l.successColor, "✓ "+msg)
}

// Warning prints a yellow line on stderr
func (l *Logger) Warning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.json != nil {
		l.json.Warn(msg)
		return
	}
	l.write(l.errOut, l.warningColor, "WARNING: "+msg)
}

// Error prints a red line on stderr
func (l *Logger) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.json != nil {
		l.json.Error(msg)
		return
	}
	l.write(l.errOut, l.errorColor, "ERROR: "+msg)
}

// Debug prints a dim line only in verbose mode
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.json != nil {
		l.json.Debug(msg)
		return
	}
	l.write(l.out, l.debugColor, msg)
}

// Sync flushes the JSON backend, if any
func (l *Logger) Sync() {
	if l.json != nil {
		_ = l.json.Sync()
	}
}

func (l *Logger) write(w io.Writer, c *color.Color, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timestamps {
		msg = fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg)
	}
	msg = strings.TrimRight(msg, "\n")

	if c == nil {
		fmt.Fprintln(w, msg)
		return
	}
	c.Fprintln(w, msg)
}
