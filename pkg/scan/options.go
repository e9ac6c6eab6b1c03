package scan

import (
	"fmt"
	"time"

	"dario.cat/mergo"

	"scanqr/pkg/camera"
	"scanqr/pkg/capture"
	"scanqr/pkg/config"
)

// DefaultGrace is the delay between a terminal event and teardown, long
// enough for an overlay to animate out.
const DefaultGrace = 200 * time.Millisecond

// Options configures one session. Zero fields take the value from
// DefaultOptions. Options are copied when the session is created and never
// change afterwards.
type Options struct {
	Width  int
	Height int
	Facing camera.Facing
	// ScanAreaClass is handed to the Surface untouched, to style the scan
	// window.
	ScanAreaClass string
	FPS           int

	// OnSuccess receives the decoded payload. It fires at most once.
	OnSuccess func(text string)
	// OnError receives every error. Critical ones (see IsCritical) end the
	// session; the rest are informational.
	OnError func(err error)
	// OnCancel fires at most once, with an error matching ErrCancelled.
	OnCancel func(err error)

	// HideErrorToast suppresses the toasts shown for critical errors and
	// cancellation.
	HideErrorToast bool
	// ToastDecodeErrors also toasts non-critical errors.
	ToastDecodeErrors bool

	// Grace delays teardown after Scan settles. Negative means immediately.
	Grace time.Duration
}

// DefaultOptions returns the values used for unset fields.
func DefaultOptions() Options {
	return Options{
		Width:  capture.DefaultWidth,
		Height: capture.DefaultHeight,
		Facing: camera.FacingBack,
		FPS:    capture.DefaultFPS,
		Grace:  DefaultGrace,
	}
}

// OptionsFromConfig builds session options from the process configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	o := Options{
		Width:  cfg.ScanWidth,
		Height: cfg.ScanHeight,
		FPS:    cfg.FPS,
		Grace:  cfg.Grace,
	}
	if cfg.FrontCamera {
		o.Facing = camera.FacingFront
	}
	if o.Grace == 0 {
		o.Grace = -1
	}
	return o
}

// resolve fills unset fields of o from the defaults and validates the
// result.
func (o Options) resolve() (Options, error) {
	if err := mergo.Merge(&o, DefaultOptions()); err != nil {
		return Options{}, fmt.Errorf("failed to merge scan options: %w", err)
	}
	if o.Width <= 0 || o.Height <= 0 {
		return Options{}, fmt.Errorf("scan region must be positive, got %dx%d", o.Width, o.Height)
	}
	if o.FPS <= 0 || o.FPS > config.MaxFPS {
		return Options{}, fmt.Errorf("fps must be in 1..%d, got %d", config.MaxFPS, o.FPS)
	}
	switch o.Facing {
	case camera.FacingBack, camera.FacingFront:
	default:
		return Options{}, fmt.Errorf("unknown camera facing %q", o.Facing)
	}
	if o.Grace < 0 {
		o.Grace = 0
	}
	return o, nil
}
