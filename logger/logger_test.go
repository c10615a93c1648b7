package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"WARNING", zerolog.WarnLevel},
		{"warn", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"CRITICAL", zerolog.FatalLevel},
		{" Debug ", zerolog.DebugLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.WarnLevel)

	l.Info().Msg("hidden")
	l.Warn().Str("component", "test").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"message":"shown"`)
	assert.Contains(t, out, `"component":"test"`)
	assert.Contains(t, out, `"time"`)
}

func TestInitWithOptions_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ollama-mcp.log")
	l, err := InitWithOptions("DEBUG", path, false)
	require.NoError(t, err)

	l.Debug().Msg("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Logger initialized")
	assert.Contains(t, string(data), "written to file")
	assert.Equal(t, zerolog.DebugLevel, Get().GetLevel())
}

func TestInitWithOptions_BadPath(t *testing.T) {
	_, err := InitWithOptions("INFO", filepath.Join(t.TempDir(), "missing", "dir", "x.log"), false)
	assert.Error(t, err)
}
