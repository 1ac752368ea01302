package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "debug", "json"))
	t.Cleanup(func() { _ = SetupWriter(&bytes.Buffer{}, "info", "text") })

	logrus.WithField("url", "http://example.test/").Debug("fetched")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fetched", entry["msg"])
	assert.Equal(t, "http://example.test/", entry["url"])
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestSetupWriterRejectsBadInput(t *testing.T) {
	assert.Error(t, SetupWriter(&bytes.Buffer{}, "loud", "text"))
	assert.Error(t, SetupWriter(&bytes.Buffer{}, "info", "xml"))
}
