package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSONAndLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("dropped")
	assert.Empty(t, buf.String())

	componentLogger := Component(logger, "tracking")
	componentLogger.Warn().Str("order_id", "A").Msg("[TRACKING] kept")
	out := buf.String()
	require.Contains(t, out, `"component":"tracking"`)
	require.Contains(t, out, `"order_id":"A"`)
	require.Contains(t, out, `"level":"warn"`)
}

func TestNewWithWriter_UnknownLevelFallsBackToInfo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "chatty"}, &buf)

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
