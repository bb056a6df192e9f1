package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := logger
	logger = log.New(&buf, "", 0)
	t.Cleanup(func() {
		logger = orig
		Init("info")
	})
	return &buf
}

func TestLevelString_NamesEveryLevel(t *testing.T) {
	t.Cleanup(func() { Init("info") })

	// every level round-trips through the name table
	for _, want := range []string{"debug", "info", "warn", "error", "fatal"} {
		Init(want)
		require.Equal(t, want, LevelString())
	}

	// case-insensitive, with the warning alias
	Init("WARNING")
	require.Equal(t, "warn", LevelString())

	// unknown input falls back to info
	Init("verbose")
	require.Equal(t, "info", LevelString())
}

func TestFiltersBelowConfiguredLevel(t *testing.T) {
	buf := captureOutput(t)

	Init("error")
	Debugf("proxy body copy interrupted")
	Infof("Connected to Redis: %s", "localhost:6379")
	Warn("tenant cache read failed")
	Errorf("session load failed: %s", "boom")

	out := buf.String()
	require.NotContains(t, out, "proxy body copy")
	require.NotContains(t, out, "Connected to Redis")
	require.NotContains(t, out, "tenant cache read")
	require.Contains(t, out, "session load failed: boom")
	require.Contains(t, out, "[ERROR]")
}

func TestSingleStringHelpersCarryLevelTags(t *testing.T) {
	buf := captureOutput(t)

	Init("debug")
	Debug("d-line")
	Info("i-line")
	Warn("w-line")
	Error("e-line")

	out := buf.String()
	for _, tag := range []string{"[DEBUG]", "[INFO]", "[WARN]", "[ERROR]"} {
		require.Contains(t, out, tag)
	}
}

func TestPrintlnMapsToInfo(t *testing.T) {
	buf := captureOutput(t)

	Init("info")
	Println("starting gateway")
	require.Contains(t, buf.String(), "starting gateway")
	require.Contains(t, buf.String(), "[INFO]")

	buf.Reset()
	Init("warn")
	Println("suppressed line")
	require.NotContains(t, buf.String(), "suppressed line")
}
