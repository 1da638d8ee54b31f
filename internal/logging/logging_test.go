package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	def := New(&buf, "nonsense")
	def.Info().Msg("default info")
	assert.Contains(t, buf.String(), "default info")
}

func TestOpenActionLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	day := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	assert.Equal(t, "user_actions_20240301.log", ActionLogName(day))

	for i := 0; i < 2; i++ {
		log, closer, err := OpenActionLog(dir, day)
		require.NoError(t, err)
		log.Info().Str("action", "delete").Int("id", i).Msg("record deleted")
		require.NoError(t, closer.Close())
	}

	data, err := os.ReadFile(filepath.Join(dir, ActionLogName(day)))
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	assert.Len(t, lines, 2, "entries are appended")
	assert.Contains(t, string(lines[1]), `"action":"delete"`)
}
