package result

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"scanqr/pkg/config"
	"scanqr/pkg/log"
	"scanqr/pkg/metrics"
)

// Writer is responsible for creating and writing result files.
type Writer struct {
	resultsPath string
	system      config.SystemType
	camera      config.CameraType
	now         func() time.Time
}

// NewWriter creates a new writer for result files.
func NewWriter(resultsPath string, system config.SystemType, camera config.CameraType) *Writer {
	return &Writer{
		resultsPath: resultsPath,
		system:      system,
		camera:      camera,
		now:         time.Now,
	}
}

// WriteAllResults writes the raw samples held by rec and their summaries.
// It returns the paths of the files written.
func (w *Writer) WriteAllResults(rec *metrics.Recorder) ([]string, error) {
	if err := os.MkdirAll(w.resultsPath, 0755); err != nil {
		return nil, fmt.Errorf("could not create results directory %s: %w", w.resultsPath, err)
	}

	rawPath, err := w.writeRawResults(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to write raw results: %w", err)
	}
	statPath, err := w.writeStatResults(metrics.Analyze(rec))
	if err != nil {
		return nil, fmt.Errorf("failed to write statistical results: %w", err)
	}
	return []string{rawPath, statPath}, nil
}

// generateFilename creates a standardized filename for a result file.
// Example: RAW_SMac_CDisk_T2025-01-02-15-04-05.csv
func (w *Writer) generateFilename(fileType string) string {
	timestamp := w.now().Format("2006-01-02-15-04-05")
	base := fmt.Sprintf("%s_S%s_C%s_T%s.csv", fileType, w.system, w.camera, timestamp)
	return filepath.Join(w.resultsPath, base)
}

// writeRawResults saves every recorded duration sample.
func (w *Writer) writeRawResults(rec *metrics.Recorder) (string, error) {
	filePath := w.generateFilename("RAW")
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("could not create raw results file %s: %w", filePath, err)
	}
	defer file.Close()

	csvWriter := csv.NewWriter(file)

	if err := csvWriter.Write([]string{"Component", "ExecutionTime_us"}); err != nil {
		return "", fmt.Errorf("failed to write CSV header to %s: %w", filePath, err)
	}
	for _, name := range rec.Names() {
		for _, d := range rec.Samples(name) {
			if err := csvWriter.Write([]string{name, strconv.FormatInt(d.Microseconds(), 10)}); err != nil {
				return "", fmt.Errorf("failed to write row to %s: %w", filePath, err)
			}
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return "", fmt.Errorf("failed to flush %s: %w", filePath, err)
	}
	log.Info("Raw results written to %s", filePath)
	return filePath, nil
}

// writeStatResults saves the summary statistics for each component.
func (w *Writer) writeStatResults(res metrics.AnalysisResult) (string, error) {
	filePath := w.generateFilename("STATS")
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("could not create stats file %s: %w", filePath, err)
	}
	defer file.Close()

	csvWriter := csv.NewWriter(file)

	header := []string{"Component", "Count", "Mean_us", "Median_us", "Min_us", "Max_us", "P5_us", "P95_us"}
	if err := csvWriter.Write(header); err != nil {
		return "", fmt.Errorf("failed to write CSV header to %s: %w", filePath, err)
	}

	for _, name := range sortedKeys(res.Components) {
		s := res.Components[name]
		row := []string{
			name,
			strconv.Itoa(s.Count),
			us(s.Mean),
			us(s.P50),
			us(s.Min),
			us(s.Max),
			us(s.P5),
			us(s.P95),
		}
		if err := csvWriter.Write(row); err != nil {
			return "", fmt.Errorf("failed to write stats row for %s: %w", name, err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return "", fmt.Errorf("failed to flush %s: %w", filePath, err)
	}
	log.Info("Statistical results written to %s", filePath)
	return filePath, nil
}

// sortedKeys extracts keys from a map and returns them sorted alphabetically.
func sortedKeys(m map[string]metrics.StatSummary) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func us(d time.Duration) string {
	return strconv.FormatInt(d.Microseconds(), 10)
}
