package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEmitsRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "flightsuretyd", slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("call committed", slog.String("method", "RegisterFlight"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "call committed", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "flightsuretyd", line["service"])
	require.Equal(t, "RegisterFlight", line["method"])
	require.Contains(t, line, "timestamp")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel(" DEBUG "))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, "RegisterOracle", MaskField("method", "RegisterOracle").Value.String())
	require.Equal(t, RedactedValue, MaskField("passphrase", "hunter2").Value.String())
	require.Equal(t, RedactedValue, MaskField("private_key", "abcd").Value.String())
	require.Equal(t, "", MaskField("passphrase", "").Value.String())
	require.NotContains(t, RedactionAllowlist(), "passphrase")
	require.Equal(t, RedactedValue, MaskValue("x"))
}
