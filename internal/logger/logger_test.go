package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONMode_BareMessageAndFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Level: "info", JSON: true, Out: &buf})
	t.Cleanup(UseTestMode)

	Info("resolved %s", "remote")
	Event("maintenance run finished", "id", "abc", "failed", 1)
	Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "resolved remote", first["msg"])
	assert.Equal(t, "info", first["level"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "abc", second["id"])
	assert.Equal(t, 1.0, second["failed"])
}

func TestConsoleMode_IconAndLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Level: "warn", Out: &buf})
	t.Cleanup(UseTestMode)

	Info("skipped")
	Warn("cache at %d%%", 97)

	assert.NotContains(t, buf.String(), "skipped")
	assert.Contains(t, buf.String(), "⚠️ cache at 97%")
}

func TestFlagLevel(t *testing.T) {
	tests := []struct {
		name    string
		verbose int
		quiet   bool
		silent  bool
		want    string
	}{
		{"default", 0, false, false, "info"},
		{"verbose", 1, false, false, "debug"},
		{"quiet wins over verbose", 2, true, false, "error"},
		{"silent", 0, false, true, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			FlagVerboseCount, FlagQuiet, FlagSilent = tt.verbose, tt.quiet, tt.silent
			t.Cleanup(func() { FlagVerboseCount, FlagQuiet, FlagSilent = 0, false, false })
			assert.Equal(t, tt.want, flagLevel())
		})
	}
}

func TestJSONFromEnv(t *testing.T) {
	t.Setenv("WARDEN_LOG_FORMAT", "json")
	assert.True(t, jsonRequested())

	t.Setenv("WARDEN_LOG_FORMAT", "console")
	FlagJSON = false
	assert.False(t, jsonRequested())
}
