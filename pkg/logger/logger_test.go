package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: "debug", Format: "json", Output: &buf})

	l.WithField("source", "external").Debug("Retrieval completed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Retrieval completed", entry["msg"])
	assert.Equal(t, "external", entry["source"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNewUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: "chatty", Output: &buf})

	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.Contains(t, buf.String(), "Unknown log level")
}

func TestOrStandard(t *testing.T) {
	assert.Equal(t, logrus.StandardLogger(), OrStandard(nil))

	l := logrus.New()
	assert.Equal(t, l, OrStandard(l))
}
