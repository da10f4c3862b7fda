package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresProject(t *testing.T) {
	t.Setenv("PROJECT_ID", "")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "PROJECT_ID")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PROJECT_ID", "demo")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "us-central1", cfg.Location)
	require.Equal(t, "https://us-central1-aiplatform.googleapis.com", cfg.VertexBaseURL)
	require.Equal(t, "Japanese", cfg.TargetLanguage)
	require.Equal(t, 300*time.Millisecond, cfg.EventPace)
	require.Equal(t, time.Second, cfg.StatusLinger)
	require.Zero(t, cfg.OptimizeTimeout)
	require.Equal(t, 2*time.Hour, cfg.SessionTTL)
	require.Equal(t, int64(1<<20), cfg.MaxUploadBytes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROJECT_ID", "demo")
	t.Setenv("LOCATION", "europe-west4")
	t.Setenv("VERTEX_BASE_URL", "http://localhost:9000")
	t.Setenv("OPTIMIZE_TIMEOUT", "45s")
	t.Setenv("EVENT_PACE", "0s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "europe-west4", cfg.Location)
	require.Equal(t, "http://localhost:9000", cfg.VertexBaseURL)
	require.Equal(t, 45*time.Second, cfg.OptimizeTimeout)
	require.Zero(t, cfg.EventPace)
}
