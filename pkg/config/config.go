package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"scanqr/pkg/log"
)

const (
	// EnvPrefix is the prefix for environment overrides, e.g. SCANQR_FPS=15.
	EnvPrefix = "SCANQR"

	// MaxFPS caps the sampling rate; above this the decoder cannot keep up
	// and every extra tick is skipped anyway.
	MaxFPS = 60
)

// SystemType defines the platforms the scanner knows how to drive. The
// platform decides which external commands are used for capture, opening
// links and writing the clipboard, see GetImageCommand().
type SystemType string

const (
	SystemMac   SystemType = "Mac"
	SystemLinux SystemType = "Linux"
	SystemPi    SystemType = "Pi"
	SystemKiosk SystemType = "Kiosk"
)

// CameraType defines the camera backend to use.
type CameraType string

const (
	CameraMemory  CameraType = "Memory"  // In-memory frames, no I/O.
	CameraDisk    CameraType = "Disk"    // Frames read from image/PDF files in a directory.
	CameraCommand CameraType = "Command" // Stills taken by a platform capture command.
)

// Config holds all parameters for a scanner process.
type Config struct {
	CameraType CameraType `mapstructure:"camera"`
	System     SystemType `mapstructure:"system"`

	FramesPath  string `mapstructure:"frames"`  // Directory watched by the Disk camera.
	PicturePath string `mapstructure:"pics"`    // Where the Command camera stores stills.
	ResultsPath string `mapstructure:"results"` // Where latency CSVs are written.

	ScanWidth   int           `mapstructure:"width"`
	ScanHeight  int           `mapstructure:"height"`
	FPS         int           `mapstructure:"fps"`
	FrontCamera bool          `mapstructure:"front"`
	Grace       time.Duration `mapstructure:"grace"`

	Continuous      bool          `mapstructure:"continuous"`
	HistorySize     int           `mapstructure:"history-size"`
	HistoryCooldown time.Duration `mapstructure:"history-cooldown"`

	Cores        int    `mapstructure:"cores"`
	MetricsAddr  string `mapstructure:"metrics-addr"`
	LogLevel     string `mapstructure:"log-level"`
	PrintMetrics bool   `mapstructure:"print-metrics"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		CameraType:      CameraDisk,
		System:          SystemLinux,
		FramesPath:      "output/frames/",
		PicturePath:     "output/pics/",
		ResultsPath:     "output/results/",
		ScanWidth:       300,
		ScanHeight:      300,
		FPS:             30,
		Grace:           200 * time.Millisecond,
		HistorySize:     64,
		HistoryCooldown: 3 * time.Second,
		Cores:           1,
		LogLevel:        "info",
	}
}

// RegisterFlags declares the command-line flags understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Optional config file (yaml, json or toml).")
	fs.String("camera", string(d.CameraType), "Camera backend (Memory, Disk, Command).")
	fs.String("system", string(d.System), "Platform for external commands (Mac, Linux, Pi, Kiosk).")
	fs.String("frames", d.FramesPath, "Directory of frames for the Disk camera.")
	fs.String("pics", d.PicturePath, "Path for storing stills taken by the Command camera.")
	fs.String("results", d.ResultsPath, "Path for storing latency results.")
	fs.Int("width", d.ScanWidth, "Width of the sampled scan region in pixels.")
	fs.Int("height", d.ScanHeight, "Height of the sampled scan region in pixels.")
	fs.Int("fps", d.FPS, "Sampling rate in frames per second.")
	fs.Bool("front", d.FrontCamera, "Prefer the front-facing camera.")
	fs.Duration("grace", d.Grace, "Delay between a terminal scan event and teardown.")
	fs.Bool("continuous", d.Continuous, "Keep scanning after each result until interrupted.")
	fs.Int("history-size", d.HistorySize, "Number of recent payloads remembered for dedupe.")
	fs.Duration("history-cooldown", d.HistoryCooldown, "Window in which a repeated payload is ignored.")
	fs.Int("cores", d.Cores, "Number of workers used for batch decoding.")
	fs.String("metrics-addr", d.MetricsAddr, "Serve Prometheus metrics on this address when set.")
	fs.String("log-level", d.LogLevel, "Set log level (trace, debug, info, warn, error).")
	fs.Bool("print-metrics", d.PrintMetrics, "Print latency summaries when the command finishes.")
}

// Load builds a Config from defaults, an optional config file, SCANQR_*
// environment variables and the flags in fs, in increasing precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			log.Warn("Config file %s not found, using defaults", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setLogLevel(cfg.LogLevel)
	log.Debug("Config: %s", cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("camera", string(d.CameraType))
	v.SetDefault("system", string(d.System))
	v.SetDefault("frames", d.FramesPath)
	v.SetDefault("pics", d.PicturePath)
	v.SetDefault("results", d.ResultsPath)
	v.SetDefault("width", d.ScanWidth)
	v.SetDefault("height", d.ScanHeight)
	v.SetDefault("fps", d.FPS)
	v.SetDefault("front", d.FrontCamera)
	v.SetDefault("grace", d.Grace)
	v.SetDefault("continuous", d.Continuous)
	v.SetDefault("history-size", d.HistorySize)
	v.SetDefault("history-cooldown", d.HistoryCooldown)
	v.SetDefault("cores", d.Cores)
	v.SetDefault("metrics-addr", d.MetricsAddr)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("print-metrics", d.PrintMetrics)
}

// Validate rejects configurations the scanner cannot run with.
func (c *Config) Validate() error {
	switch c.CameraType {
	case CameraMemory, CameraDisk, CameraCommand:
	default:
		return fmt.Errorf("unknown camera type specified: %s", c.CameraType)
	}
	if c.ScanWidth <= 0 || c.ScanHeight <= 0 {
		return fmt.Errorf("scan region must be positive, got %dx%d", c.ScanWidth, c.ScanHeight)
	}
	if c.FPS <= 0 || c.FPS > MaxFPS {
		return fmt.Errorf("fps must be in 1..%d, got %d", MaxFPS, c.FPS)
	}
	if c.Grace < 0 {
		return fmt.Errorf("grace must not be negative, got %s", c.Grace)
	}
	if c.Cores < 1 {
		c.Cores = 1
	}
	return nil
}

// GetImageCommand returns the command that writes a single still to
// outputPath on the configured system. ok is false when the system has no
// known capture command.
func (c *Config) GetImageCommand(outputPath string, front bool) (name string, args []string, ok bool) {
	switch c.System {
	case SystemPi:
		args = []string{"-o", outputPath, "--timeout", "1"}
		if front {
			args = append(args, "--camera", "1")
		}
		return "libcamera-still", args, true
	case SystemMac:
		return "imagesnap", []string{outputPath}, true
	case SystemLinux:
		device := "/dev/video0"
		if front {
			device = "/dev/video1"
		}
		return "fswebcam", []string{"-d", device, "--no-banner", "-r", "1280x720", outputPath}, true
	default:
		return "", nil, false
	}
}

// GetOpenCommand returns the command that hands a URL (or tel: link) to the
// desktop.
func (c *Config) GetOpenCommand(target string) (string, []string) {
	if c.System == SystemMac {
		return "open", []string{target}
	}
	return "xdg-open", []string{target}
}

// GetClipboardCommand returns the command that reads clipboard contents
// from stdin.
func (c *Config) GetClipboardCommand() (string, []string) {
	if c.System == SystemMac {
		return "pbcopy", nil
	}
	return "xclip", []string{"-selection", "clipboard"}
}

// String returns a string representation of the Config instance
func (c *Config) String() string {
	return fmt.Sprintf("Config{Camera:%s System:%s Frames:%s Pics:%s Results:%s "+
		"Region:%dx%d FPS:%d Front:%t Grace:%s Continuous:%t History:%d/%s "+
		"Cores:%d MetricsAddr:%q LogLevel:%s PrintMetrics:%t}",
		c.CameraType, c.System, c.FramesPath, c.PicturePath, c.ResultsPath,
		c.ScanWidth, c.ScanHeight, c.FPS, c.FrontCamera, c.Grace, c.Continuous,
		c.HistorySize, c.HistoryCooldown, c.Cores, c.MetricsAddr, c.LogLevel, c.PrintMetrics)
}

// --- Config Helpers ---

// CleanAndCreateDirectory ensures the specified directory exists, creating it if necessary.
// It returns the cleaned filepath.
func CleanAndCreateDirectory(path string) (string, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return path, nil
}

// setLogLevel sets the global log level. Defaults to "info" on invalid input.
func setLogLevel(logLevel string) {
	level, ok := log.ParseLevel(logLevel)
	if !ok {
		log.Info("Unknown log level '%s', defaulting to 'info'", logLevel)
	}
	log.SetLevel(level)
}
