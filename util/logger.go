package util

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// PanicSafeLogger tees log output to stderr and a log file that is synced on
// panic so the last lines survive a crash.
type PanicSafeLogger struct {
	f    *os.File
	path string

	zap *zap.Logger
}

var std *PanicSafeLogger

// NewPanicSafeLogger opens a timestamped log file named after app in the temp
// directory and builds a zap logger writing to it and to stderr. When the file
// cannot be opened only stderr is used.
func NewPanicSafeLogger(app string, level zapcore.Level) *PanicSafeLogger {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	path := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s.log", app, ts))

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	l := &PanicSafeLogger{}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		l.f = f
		l.path = path
		sinks = append(sinks, zapcore.AddSync(f))
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(sinks...),
		level,
	)
	l.zap = zap.New(core).Named(app)
	if err != nil {
		l.zap.Sugar().Warnf("could not open log file '%s' for writing: %v", path, err)
	} else {
		l.zap.Sugar().Infof("logging to '%s'", path)
	}

	std = l
	return l
}

func (l *PanicSafeLogger) Logger() *zap.Logger { return l.zap }

func (l *PanicSafeLogger) Sugar() *zap.SugaredLogger { return l.zap.Sugar() }

// Path is the log file path, empty when logging to stderr only.
func (l *PanicSafeLogger) Path() string { return l.path }

func (l *PanicSafeLogger) Flush() error {
	_ = l.zap.Sync()
	if l.f == nil {
		return nil
	}
	return l.f.Sync()
}

func (l *PanicSafeLogger) Close() error {
	err := l.Flush()
	if l.f != nil {
		err = l.f.Close()
		l.f = nil
	}
	return err
}

func FlushLogger() error {
	if std == nil {
		return nil
	}
	return std.Flush()
}

// LogPanic records a recovered panic value with its stack.
func LogPanic(err any) {
	if std != nil {
		std.zap.Sugar().Errorf("paniced with %v\n%s", err, string(debug.Stack()))
	} else {
		fmt.Fprintf(os.Stderr, "paniced with %v\n%s\n", err, string(debug.Stack()))
	}
	_ = FlushLogger()
}

// ParseLevel maps a textual level to zap; unknown values yield InfoLevel.
func ParseLevel(raw string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	}
	return zapcore.InfoLevel, false
}

func IsTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	}
	return false
}
