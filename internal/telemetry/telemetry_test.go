package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "debug", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("conversation_id", "conv-1").Info("hello")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "conv-1", entry["conversation_id"])
}

func TestNewLoggerRejectsBadSettings(t *testing.T) {
	_, err := NewLogger(&bytes.Buffer{}, "loud", "json")
	require.Error(t, err)
	_, err = NewLogger(&bytes.Buffer{}, "info", "xml")
	require.Error(t, err)
}

func TestSetupTracingWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "feasibility", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
