package result

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanqr/pkg/config"
	"scanqr/pkg/metrics"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteAllResults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	w := NewWriter(dir, config.SystemMac, config.CameraDisk)
	w.now = func() time.Time { return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) }

	rec := metrics.NewRecorder(false, nil)
	rec.Observe(metrics.Decode, 3*time.Millisecond)
	rec.Observe(metrics.Decode, 5*time.Millisecond)
	rec.Observe(metrics.CameraOpen, 40*time.Millisecond)

	paths, err := w.WriteAllResults(rec)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "RAW_SMac_CDisk_T2026-01-02-15-04-05.csv"), paths[0])

	raw := readCSV(t, paths[0])
	assert.Equal(t, []string{"Component", "ExecutionTime_us"}, raw[0])
	assert.Equal(t, [][]string{
		{"CameraOpen", "40000"},
		{"Decode", "3000"},
		{"Decode", "5000"},
	}, raw[1:])

	stats := readCSV(t, paths[1])
	require.Len(t, stats, 3)
	assert.Equal(t, "CameraOpen", stats[1][0])
	assert.Equal(t, "Decode", stats[2][0])
	assert.Equal(t, "2", stats[2][1])
	assert.Equal(t, "3000", stats[2][4], "min")
	assert.Equal(t, "5000", stats[2][5], "max")
}
