package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, CameraDisk, cfg.CameraType)
	assert.Equal(t, 300, cfg.ScanWidth)
	assert.Equal(t, 300, cfg.ScanHeight)
	assert.Equal(t, 30, cfg.FPS)
	assert.Equal(t, 200*time.Millisecond, cfg.Grace)
	assert.False(t, cfg.FrontCamera)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scanqr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fps: 10\nwidth: 200\nsystem: Mac\n"), 0644))

	t.Setenv("SCANQR_WIDTH", "240")

	cfg, err := Load(newFlags(t, "--config", path, "--fps", "15"))
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.FPS, "flag beats file")
	assert.Equal(t, 240, cfg.ScanWidth, "env beats file")
	assert.Equal(t, SystemMac, cfg.System, "file beats default")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown camera", []string{"--camera", "Webcam"}},
		{"zero fps", []string{"--fps", "0"}},
		{"fps too high", []string{"--fps", "120"}},
		{"negative width", []string{"--width=-1"}},
		{"negative grace", []string{"--grace=-1s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newFlags(t, tt.args...))
			assert.Error(t, err)
		})
	}
}

func TestGetImageCommand(t *testing.T) {
	cfg := Default()

	cfg.System = SystemPi
	name, args, ok := cfg.GetImageCommand("/tmp/a.jpg", true)
	require.True(t, ok)
	assert.Equal(t, "libcamera-still", name)
	assert.Equal(t, []string{"-o", "/tmp/a.jpg", "--timeout", "1", "--camera", "1"}, args)

	cfg.System = SystemMac
	name, args, ok = cfg.GetImageCommand("/tmp/a.jpg", false)
	require.True(t, ok)
	assert.Equal(t, "imagesnap", name)
	assert.Equal(t, []string{"/tmp/a.jpg"}, args)

	cfg.System = SystemKiosk
	_, _, ok = cfg.GetImageCommand("/tmp/a.jpg", false)
	assert.False(t, ok)
}

func TestOpenAndClipboardCommands(t *testing.T) {
	cfg := Default()
	cfg.System = SystemMac
	name, args := cfg.GetOpenCommand("https://example.com")
	assert.Equal(t, "open", name)
	assert.Equal(t, []string{"https://example.com"}, args)
	name, _ = cfg.GetClipboardCommand()
	assert.Equal(t, "pbcopy", name)

	cfg.System = SystemLinux
	name, _ = cfg.GetOpenCommand("tel:13800138000")
	assert.Equal(t, "xdg-open", name)
	name, args = cfg.GetClipboardCommand()
	assert.Equal(t, "xclip", name)
	assert.Equal(t, []string{"-selection", "clipboard"}, args)
}

func TestCleanAndCreateDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "..", "c")
	got, err := CleanAndCreateDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), got)
	info, err := os.Stat(got)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
