package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForRequest_AttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "json")

	logger := ForRequest("gateway", "req-123", "POST", "/webhook/github")
	ctx := logger.WithContext(context.Background())
	FromContext(ctx).Info().Msg("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-123", line[RequestIDField])
	assert.Equal(t, "gateway", line["service"])
	assert.Equal(t, "hello", line["message"])
}

func TestSetupWriter_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "chatty", "json")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	assert.Contains(t, buf.String(), "Unknown log level")
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")

	FromContext(context.Background()).Info().Msg("global")
	assert.Contains(t, buf.String(), "global")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", RequestIDFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}
