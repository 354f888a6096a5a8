package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger captures log messages and mirrors them to the test output.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger installs a capturing logger as the global logger for the
// duration of the test.
func NewTestLogger(t testing.TB) *TestLogger {
	core, observed := observer.New(zapcore.DebugLevel)
	tee := zapcore.NewTee(core, zaptest.NewLogger(t).Core())

	tl := &TestLogger{
		Logger:   &Logger{Logger: zap.New(tee).Named(loggerName), verbose: true},
		observed: observed,
	}

	loggerMutex.RLock()
	previous := globalLogger
	loggerMutex.RUnlock()

	SetGlobalLogger(tl.Logger)
	t.Cleanup(func() {
		loggerMutex.Lock()
		globalLogger = previous
		loggerMutex.Unlock()
	})
	return tl
}

// GetLogs returns captured messages in order.
func (tl *TestLogger) GetLogs() []string {
	entries := tl.observed.All()
	logs := make([]string, 0, len(entries))
	for _, e := range entries {
		logs = append(logs, e.Message)
	}
	return logs
}

// FilterLevel returns captured messages at exactly the given level.
func (tl *TestLogger) FilterLevel(level zapcore.Level) []string {
	var logs []string
	for _, e := range tl.observed.FilterLevelExact(level).All() {
		logs = append(logs, e.Message)
	}
	return logs
}
