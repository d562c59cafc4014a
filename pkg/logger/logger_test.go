package logger

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// observe installs an observer-backed logger for the duration of the test.
func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, recorded := observer.New(level)
	restore := SetLogger(zap.New(core))
	t.Cleanup(restore)
	return recorded
}

func TestLevelsAndFields(t *testing.T) {
	recorded := observe(t, zapcore.DebugLevel)

	Debug("debug message", "key", "value")
	Info("info message", "count", 3)
	Warn("warn message")
	Error("error message", "err", "boom")

	logs := recorded.All()
	require.Len(t, logs, 4)
	assert.Equal(t, zapcore.DebugLevel, logs[0].Level)
	assert.Equal(t, "debug message", logs[0].Message)
	assert.Equal(t, "value", logs[0].ContextMap()["key"])
	assert.Equal(t, int64(3), logs[1].ContextMap()["count"])
	assert.Equal(t, zapcore.WarnLevel, logs[2].Level)
	assert.Empty(t, logs[2].Context)
	assert.Equal(t, zapcore.ErrorLevel, logs[3].Level)
}

func TestLevelFiltering(t *testing.T) {
	recorded := observe(t, zapcore.WarnLevel)

	Debug("dropped")
	Info("dropped")
	Warn("kept")

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "kept", logs[0].Message)
}

func TestNamed(t *testing.T) {
	recorded := observe(t, zapcore.InfoLevel)

	Named("manager", "index", "docs").Infow("saved snapshot", "entries", 10)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "manager", logs[0].LoggerName)
	fields := logs[0].ContextMap()
	assert.Equal(t, "docs", fields["index"])
	assert.Equal(t, int64(10), fields["entries"])
}

func TestConcurrentLogging(t *testing.T) {
	recorded := observe(t, zapcore.InfoLevel)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				Info("concurrent message", "goroutine", g, "message", j)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 100, recorded.Len())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		level   zapcore.Level
		enabled bool
		wantErr bool
	}{
		{in: "debug", level: zapcore.DebugLevel, enabled: true},
		{in: "INFO", level: zapcore.InfoLevel, enabled: true},
		{in: "", level: zapcore.InfoLevel, enabled: true},
		{in: "warning", level: zapcore.WarnLevel, enabled: true},
		{in: "error", level: zapcore.ErrorLevel, enabled: true},
		{in: "off", enabled: false},
		{in: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, enabled, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, enabled)
			if tt.enabled {
				assert.Equal(t, tt.level, level)
			}
		})
	}
}

func TestInitWritesToFile(t *testing.T) {
	prev := L()
	t.Cleanup(func() { SetLogger(prev) })

	path := filepath.Join(t.TempDir(), "annie.log")
	require.NoError(t, Init(Options{Level: "info", File: path}))
	Info("to file")
	require.NoError(t, Sync())

	assert.FileExists(t, path)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	prev := L()
	t.Cleanup(func() { SetLogger(prev) })

	assert.Error(t, Init(Options{Level: "chatty"}))
	assert.Same(t, prev, L())
}

func TestInitOff(t *testing.T) {
	prev := L()
	t.Cleanup(func() { SetLogger(prev) })

	require.NoError(t, Init(Options{Level: "off"}))
	assert.False(t, L().Core().Enabled(zapcore.ErrorLevel))
}
