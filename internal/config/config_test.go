package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "Code128", cfg.Barcode.Format)
	assert.Equal(t, 50, cfg.Barcode.CaptionPx)
	assert.Equal(t, 637, cfg.Render.Width)
	assert.Equal(t, 1013, cfg.Render.Height)
	assert.Equal(t, 600, cfg.Render.PNGDPI)
	assert.Equal(t, 1200, cfg.Render.PDFDPI)
	assert.Equal(t, 5*time.Second, cfg.Render.LoadTimeout)
	assert.InDelta(t, 0.65, cfg.OCR.Similarity, 1e-9)
	assert.Equal(t, "spa+eng", cfg.OCR.Languages)
	assert.Equal(t, 3, cfg.OCR.RetriesSingle)
	assert.Equal(t, 2, cfg.OCR.RetriesBatch)
	assert.Equal(t, 10, cfg.Backup.Retention)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := "log_level: debug\nrender:\n  load_timeout: 2s\n  png_dpi: 300\nocr:\n  retries_batch: 4\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("CARNET_DATA_DIR", filepath.Join(dir, "datos"))
	t.Setenv("CARNET_OCR_RETRIES_BATCH", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "datos"), cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.Render.LoadTimeout)
	assert.Equal(t, 300, cfg.Render.PNGDPI)
	assert.Equal(t, 5, cfg.OCR.RetriesBatch, "environment wins over the file")
	assert.Equal(t, 1200, cfg.Render.PDFDPI)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CARNET_BARCODE_FORMAT", "QR")
	_, err := Load()
	assert.ErrorContains(t, err, "invalid config")
}

func TestEnsureLayout(t *testing.T) {
	cfg := Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	require.NoError(t, cfg.EnsureLayout())

	for _, dir := range []string{cfg.ImagesPath(), cfg.CarnetsPath(), cfg.BackupsPath(), cfg.LogsPath()} {
		assert.DirExists(t, dir)
	}
	assert.Equal(t, filepath.Join(cfg.DataDir, "codigos_barras.db"), cfg.DatabasePath())
}
