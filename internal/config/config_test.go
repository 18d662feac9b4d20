package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "does-not-exist")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "tcp", cfg.Signaling.Transport)
	assert.Equal(t, 960, cfg.Video.Width)
	assert.Equal(t, 480, cfg.Video.Height)
	assert.Equal(t, 20, cfg.Video.Radius)
	assert.Equal(t, int64(3000), cfg.Video.FrameDuration())
	assert.Equal(t, "drop_oldest", cfg.Tracking.DropPolicy)
	assert.Equal(t, 5, cfg.Tracking.AccumulatorResolutionRatio)
	assert.Equal(t, 10, cfg.Tracking.MinCenterDistance)
	assert.Zero(t, cfg.Accuracy.MaxRecordAge)
	assert.Empty(t, cfg.WebRTC.ICEServers)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bounce.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
port: 9000
video:
  width: 640
  height: 360
tracking:
  detector: centroid
accuracy:
  max_record_age: 10s
`), 0o600))
	t.Setenv("BOUNCE_HOST", "127.0.0.1")

	cfg, err := Load(New(), file)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, 640, cfg.Video.Width)
	assert.Equal(t, "centroid", cfg.Tracking.Detector)
	assert.Equal(t, 10*time.Second, cfg.Accuracy.MaxRecordAge)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"transport", "signaling.transport", "carrier-pigeon"},
		{"drop policy", "tracking.drop_policy", "drop_all"},
		{"detector", "tracking.detector", "magic"},
		{"radius too large", "video.radius", 300},
		{"zero fps", "video.fps", 0},
		{"zero queue", "tracking.queue_size", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_ENV", "does-not-exist")
			v := New()
			v.Set(tt.key, tt.val)
			_, err := Load(v, "")
			assert.Error(t, err)
		})
	}
}
