package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framepipe/processing/frame"
)

func TestDefaults(t *testing.T) {
	cfg := NewDefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint(3), cfg.DispatchModulus)
	assert.Equal(t, float32(0.2), cfg.Overlay.RenderThreshold)
	assert.Equal(t, float32(0.005), cfg.Overlay.OutputThreshold)
	assert.Equal(t, 4, cfg.Overlay.Thickness)
	assert.Equal(t, 0, cfg.Overlay.Expansion)
	assert.Equal(t, "person", cfg.Overlay.Labels.Name(2))
	assert.Equal(t, 10*time.Millisecond, cfg.PopTimeout())
	assert.Equal(t, frame.LayoutI420, cfg.PixelLayout())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, NewDefaultConfig().Settings, cfg.Settings)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := NewDefaultConfig()
	cfg.SetDispatchModulus(5)
	cfg.SetSource(SourceLocal)
	cfg.Update(func(s *Settings) { s.Local = LocalConfig{Path: "/tmp/clip.mp4", Loop: true} })
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint(5), loaded.DispatchModulus)
	assert.Equal(t, SourceLocal, loaded.GetSource())
	assert.True(t, loaded.Local.Loop)
	assert.Equal(t, "vehicle", loaded.Overlay.Labels.Name(3))
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"dispatch_modulus": 7, "inference": {"host": "gpu:9000"}}`), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint(7), cfg.DispatchModulus)
	assert.Equal(t, "gpu:9000", cfg.Inference.Host)
	assert.Equal(t, 4, cfg.Overlay.Thickness)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"dispatch_modulus": `), 0o644))

	_, err := LoadConfigFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(s *Settings)
	}{
		{"zero modulus", func(s *Settings) { s.DispatchModulus = 0 }},
		{"bad threshold", func(s *Settings) { s.Overlay.RenderThreshold = 1.5 }},
		{"bad layout", func(s *Settings) { s.PixelFormat = "YUY2" }},
		{"bad source", func(s *Settings) { s.ActiveSource = "YouTube" }},
		{"slow pop", func(s *Settings) { s.PopTimeoutMS = 250 }},
		{"rtsp without address", func(s *Settings) { s.RTSP.Address = "" }},
		{"bad display", func(s *Settings) { s.Display.Backend = "tty" }},
		{"negative expansion", func(s *Settings) { s.Overlay.Expansion = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Update(tt.modify)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := NewDefaultConfig()
	snap := cfg.Clone()

	cfg.SetFPS(5)
	cfg.Overlay.Labels[1] = "deer"

	assert.Equal(t, uint(30), snap.GetFPS())
	assert.Equal(t, "animal", snap.Overlay.Labels.Name(1))
}

func TestSaveByDefaultWritesWorkingDirConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := NewDefaultConfig()
	cfg.SetFPS(12)
	require.NoError(t, cfg.SaveByDefault())

	loaded, err := LoadConfigFile(DefaultConfigPath)
	require.NoError(t, err)
	assert.Equal(t, uint(12), loaded.GetFPS())
}
