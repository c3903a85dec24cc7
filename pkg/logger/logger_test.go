package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterAddsServiceField(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "order-worker", "debug")

	log.Info().Str("message_id", "m-1").Msg("hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "order-worker", rec["service"])
	assert.Equal(t, "m-1", rec["message_id"])
	assert.Equal(t, "info", rec["level"])
	assert.NotEmpty(t, rec["time"])
}

func TestNewWithWriterLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "svc", "WARN")
	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	buf.Reset()
	log = NewWithWriter(&buf, "svc", "nonsense")
	log.Debug().Msg("dropped")
	log.Info().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
	assert.NotContains(t, buf.String(), "dropped")
}
