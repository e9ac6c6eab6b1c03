package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanqr/pkg/camera"
	"scanqr/pkg/config"
	"scanqr/pkg/history"
	"scanqr/pkg/qrfile"
	"scanqr/pkg/scan"
)

func TestDecodeFiles(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "a.png")
	pdf := filepath.Join(dir, "b.pdf")
	require.NoError(t, qrfile.WriteFile(png, "from png", 200))
	require.NoError(t, qrfile.WriteFile(pdf, "from pdf", 200))

	text, err := decodeFile(png)
	require.NoError(t, err)
	assert.Equal(t, "from png", text)
	text, err = decodeFile(pdf)
	require.NoError(t, err)
	assert.Equal(t, "from pdf", text)

	require.NoError(t, runDecode(2, []string{png, pdf}))
	assert.Error(t, runDecode(2, []string{png, filepath.Join(dir, "missing.png")}))
}

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "day1", "till")
	require.NoError(t, os.MkdirAll(nested, 0755))
	for _, p := range []string{filepath.Join(dir, "a.png"), filepath.Join(nested, "b.pdf")} {
		require.NoError(t, qrfile.WriteFile(p, "x", 64))
	}
	require.NoError(t, os.WriteFile(filepath.Join(nested, "notes.txt"), nil, 0644))

	paths, err := expandPatterns([]string{filepath.Join(dir, "**", "*"), "plain.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.png"), filepath.Join(nested, "b.pdf"), "plain.png"}, paths)

	_, err = expandPatterns([]string{filepath.Join(dir, "*.jpg")})
	assert.Error(t, err)
}

func TestScanLoopDedupesInContinuousMode(t *testing.T) {
	code, err := qrfile.Encode("ticket-42", 256)
	require.NoError(t, err)
	sc := scan.NewScanner(camera.NewMemory(code))
	sc.Registry = &scan.Registry{}
	scan.Register(sc)
	defer scan.Register(nil)

	cfg := config.Default()
	cfg.Continuous = true
	cfg.FPS = 60
	cfg.Grace = time.Millisecond
	seen, err := history.New(8, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var handled []string
	go func() {
		// Let a few repeated scans of the same code go by.
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	err = scanLoop(ctx, cfg, seen, func(text string) error {
		handled = append(handled, text)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ticket-42"}, handled)
}
