package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"scanqr/pkg/camera"
	"scanqr/pkg/classify"
	"scanqr/pkg/config"
	"scanqr/pkg/history"
	"scanqr/pkg/log"
	"scanqr/pkg/metrics"
	"scanqr/pkg/result"
	"scanqr/pkg/scan"
	"scanqr/pkg/ui"
)

func newScanCommand() *cobra.Command {
	var plain, printOnly bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan codes from the configured camera and act on them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return runScan(cmd.Context(), cfg, plain, printOnly)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Ask for confirmation on plain stdin/stdout instead of a full-screen dialog.")
	cmd.Flags().BoolVar(&printOnly, "print-only", false, "Print decoded payloads without classifying or acting on them.")
	return cmd
}

func runScan(ctx context.Context, cfg *config.Config, plain, printOnly bool) error {
	if cfg.CameraType == config.CameraDisk {
		dir, err := config.CleanAndCreateDirectory(cfg.FramesPath)
		if err != nil {
			return err
		}
		cfg.FramesPath = dir
	}
	cam, err := camera.New(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(cfg.PrintMetrics, metrics.NewCollectors(reg))
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	toaster := ui.NewWriterToaster(os.Stderr)
	sc := scan.NewScanner(cam)
	sc.Recorder = rec
	sc.Toaster = toaster
	sc.NewSurface = func() scan.Surface { return &scan.LogSurface{} }
	scan.Register(sc)

	presenter := &classify.Presenter{
		Navigator: ui.NewCommandNavigator(cfg),
		Toaster:   toaster,
		Dialog:    newDialog(plain),
		Clipboard: ui.NewCommandClipboard(cfg),
	}

	var seen *history.History
	if cfg.Continuous {
		if seen, err = history.New(cfg.HistorySize, cfg.HistoryCooldown); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	log.Info("Scanning with the %s camera on %s", cam.Name(), cfg.System)
	err = scanLoop(ctx, cfg, seen, func(text string) error {
		if printOnly {
			fmt.Println(text)
			return nil
		}
		_, err := presenter.Present(ctx, text)
		return err
	})

	if cfg.ResultsPath != "" {
		files, werr := result.NewWriter(cfg.ResultsPath, cfg.System, cfg.CameraType).WriteAllResults(rec)
		if werr != nil {
			log.Error("Failed to write results: %v", werr)
		}
		for _, f := range files {
			log.Debug("Wrote %s", f)
		}
	}
	if cfg.PrintMetrics {
		printSummary(metrics.Analyze(rec))
	}
	return err
}

// scanLoop runs one scan, or keeps scanning in continuous mode until
// interrupted. Repeats of a payload within the history cooldown are
// dropped.
func scanLoop(ctx context.Context, cfg *config.Config, seen *history.History, handle func(string) error) error {
	opts := scan.OptionsFromConfig(cfg)
	for {
		text, err := scan.ScanQRCode(ctx, opts)
		switch {
		case errors.Is(err, scan.ErrCancelled):
			log.Info("Scan cancelled")
			return nil
		case err != nil:
			return err
		}

		if seen != nil && !seen.Observe(text) {
			log.Debug("Ignoring repeated payload")
		} else if err := handle(text); err != nil && !errors.Is(err, classify.ErrEmpty) {
			if !cfg.Continuous {
				return err
			}
			log.Warn("Failed to handle payload: %v", err)
		}

		if !cfg.Continuous {
			return nil
		}
	}
}

func newDialog(plain bool) classify.Dialog {
	if !plain {
		if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
			return &ui.TermboxDialog{}
		}
	}
	return ui.NewLineDialog(os.Stdin, os.Stdout)
}

func serveMetrics(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed: %v", err)
		}
	}()
	return srv
}

func printSummary(res metrics.AnalysisResult) {
	fmt.Println("\n-------------------------------------------------")
	fmt.Println("--- Median Times ---")
	fmt.Println("-------------------------------------------------")
	for _, name := range []string{metrics.CameraOpen, metrics.Sample, metrics.Decode, metrics.Session} {
		if s, ok := res.Components[name]; ok && s.Count > 0 {
			fmt.Printf("Median %-12s Time: %s (n=%d)\n", name, s.P50, s.Count)
		}
	}
	fmt.Println("-------------------------------------------------")
	for _, name := range []string{metrics.DecodeHit, metrics.DecodeEmpty, metrics.DecodeError, metrics.TickSkipped} {
		fmt.Printf("%-12s %d\n", name, res.Counters[name])
	}
}
