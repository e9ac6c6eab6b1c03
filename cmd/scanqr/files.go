package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"scanqr/pkg/concurrency"
	"scanqr/pkg/config"
	"scanqr/pkg/decoder"
	"scanqr/pkg/log"
	"scanqr/pkg/qrfile"
)

var errNoCode = errors.New("no code found")

func newDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode FILE|PATTERN...",
		Short: "Decode codes in PNG, JPEG or PDF files; patterns may use ** globs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			paths, err := expandPatterns(args)
			if err != nil {
				return err
			}
			return runDecode(cfg.Cores, paths)
		},
	}
}

// expandPatterns replaces glob arguments with the frame files they match.
// Plain paths are kept as given so missing files are reported per file.
func expandPatterns(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			paths = append(paths, arg)
			continue
		}
		if !doublestar.ValidatePattern(filepath.ToSlash(arg)) {
			return nil, fmt.Errorf("invalid pattern %q", arg)
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to expand %q: %w", arg, err)
		}
		var frames []string
		for _, m := range matches {
			if qrfile.IsFrameFile(m) {
				frames = append(frames, m)
			}
		}
		if len(frames) == 0 {
			return nil, fmt.Errorf("pattern %q matched no image or PDF files", arg)
		}
		sort.Strings(frames)
		paths = append(paths, frames...)
	}
	return paths, nil
}

func runDecode(cores int, paths []string) error {
	texts, errs, err := concurrency.Map(cores, paths, decodeFile)
	if err != nil {
		return err
	}
	failed := 0
	for i, path := range paths {
		if errs[i] != nil {
			failed++
			log.Error("%s: %v", path, errs[i])
			continue
		}
		fmt.Printf("%s\t%s\n", path, texts[i])
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) could not be decoded", failed, len(paths))
	}
	return nil
}

// decodeFile returns the first code found in any image stored in path.
// Each call builds its own decoder since gozxing readers keep state.
func decodeFile(path string) (string, error) {
	imgs, err := qrfile.ReadImages(path)
	if err != nil {
		return "", err
	}
	dec := decoder.NewZxing()
	for _, img := range imgs {
		text, err := dec.DecodeImage(img)
		if err != nil {
			return "", err
		}
		if text != "" {
			return text, nil
		}
	}
	return "", errNoCode
}

func newEncodeCommand() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "encode PAYLOAD OUTPUT",
		Short: "Write PAYLOAD as a QR code to OUTPUT (.png, .jpg or .pdf)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(cmd.Flags()); err != nil {
				return err
			}
			dir, err := config.CleanAndCreateDirectory(filepath.Dir(args[1]))
			if err != nil {
				return err
			}
			out := filepath.Join(dir, filepath.Base(args[1]))
			if err := qrfile.WriteFile(out, args[0], size); err != nil {
				return err
			}
			log.Info("Wrote %s", out)
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", qrfile.DefaultSize, "Edge length of the code in pixels.")
	return cmd
}
