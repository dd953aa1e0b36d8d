package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewWriter_format(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, "info", "text").Info("hello", "k", 1)
	assert.Contains(t, buf.String(), "msg=hello k=1")

	buf.Reset()
	NewWriter(&buf, "info", "json").Debug("hidden")
	assert.Empty(t, buf.String())
}
