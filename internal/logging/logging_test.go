package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestWriterLogger_ComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, LevelInfo)

	l.Info("scanner", "scan complete", F("operations", 3), F("root", "/media"))
	l.Debug("scanner", "hidden")
	l.Error("executor", "rename failed", errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "scanner", first["component"])
	assert.Equal(t, "scan complete", first["message"])
	assert.Equal(t, float64(3), first["operations"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "boom", second["error"])
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, LevelError)
	l.Info("api", "dropped")
	assert.Zero(t, buf.Len())

	l.SetLevel(LevelDebug)
	l.Debug("api", "kept")
	assert.Contains(t, buf.String(), "kept")
	assert.Equal(t, LevelDebug, l.GetLevel())
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Info("x", "y")
	l.Error("x", "y", errors.New("z"))
	assert.NoError(t, l.Close())
}
