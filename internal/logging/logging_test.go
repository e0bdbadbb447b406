package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("INFO"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "WARN", false)

	log.Info("frame processed")
	assert.Empty(t, buf.String())

	log.Warn("landmark detection failed", "seq", 12)
	out := buf.String()
	assert.Contains(t, out, "landmark detection failed")
	assert.Contains(t, out, "seq=12")
	assert.NotContains(t, out, "\x1b[")
}
