package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8001", cfg.HTTPAddr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, entity.DefaultThresholds(), cfg.DefaultThresholds())
	assert.Equal(t, int64(100<<20), cfg.MaxVideoBytes())
	assert.Equal(t, 10, cfg.MinKeyframeGap)
	assert.Equal(t, 90, cfg.JPEGQuality)
	assert.Equal(t, JobStoreMemory, cfg.JobStore)
	assert.Equal(t, QueueInProcess, cfg.QueueBackend)
	assert.Equal(t, []string{"video/*"}, cfg.AllowedVideoTypes)
	assert.Equal(t, 7680*4320, cfg.MaxFramePixels)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DEFAULT_THRESHOLD", "12")
	t.Setenv("DEFAULT_EDGE_THRESHOLD", "45")
	t.Setenv("JOB_STORE", "sqlite")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, entity.Thresholds{FrameDiff: 12, Edge: 45, Histogram: 3000}, cfg.DefaultThresholds())
	assert.Equal(t, JobStoreSQLite, cfg.JobStore)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
}

func TestLoadDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MIN_KEYFRAME_GAP=25\nJPEG_QUALITY=75\n"), 0o644))
	t.Setenv("JPEG_QUALITY", "80")
	t.Cleanup(func() { os.Unsetenv("MIN_KEYFRAME_GAP") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.MinKeyframeGap)
	assert.Equal(t, 80, cfg.JPEGQuality, "process environment wins over the file")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "kafka")
	t.Setenv("JPEG_QUALITY", "0")
	t.Setenv("DEFAULT_HIST_THRESHOLD", "-1")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "QUEUE_BACKEND")
	assert.ErrorContains(t, err, "JPEG_QUALITY")
	assert.ErrorIs(t, err, entity.ErrInvalidThresholds)
}
