package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutputCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := newLogger(&buf, Options{Level: "debug", Format: "json"})
	require.NoError(t, err)
	defer closer.Close()

	log := Component(logger, "session")
	log.Debug().Str("guild", "g").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "session", line["component"])
	assert.Equal(t, "g", line["guild"])
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "debug", line["level"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := newLogger(&buf, Options{Level: "WARN", Format: "json"})
	require.NoError(t, err)

	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestInvalidLevel(t *testing.T) {
	_, _, err := newLogger(&bytes.Buffer{}, Options{Level: "loud"})
	assert.Error(t, err)
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	var buf bytes.Buffer
	logger, closer, err := newLogger(&buf, Options{Format: "console", File: path})
	require.NoError(t, err)

	logger.Info().Msg("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}
