package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithWriterEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter(" epochstaked ", "test", &buf)
	logger.Info("staked tokens", "owner", "stk1xyz", MaskField("authorization", "Bearer secret"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "staked tokens", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "epochstaked", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "stk1xyz", line["owner"])
	require.Equal(t, RedactedValue, line["authorization"])
	require.Contains(t, line, "timestamp")
}

func TestMaskField(t *testing.T) {
	require.Equal(t, "", MaskField("token", "").Value.String())
	require.Equal(t, RedactedValue, MaskField("token", "abc").Value.String())
	require.Equal(t, "abc", MaskField("Method", "abc").Value.String())
	require.Contains(t, RedactionAllowlist(), "request_id")
}

func TestSetupWithFileWritesRotatingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	logger, closer := SetupWithFile("epochstaked", "", FileConfig{Path: path, MaxSizeMB: 1})
	logger.Info("hello")
	require.NoError(t, closer.Close())
	require.FileExists(t, path)
}
