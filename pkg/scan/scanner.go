// Package scan is the scan overlay controller. A Scanner creates sessions;
// a Session owns the camera and capture loop while it is shown and reports
// exactly one terminal outcome: a decoded payload, a critical camera error,
// or a cancellation.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"scanqr/pkg/camera"
	"scanqr/pkg/classify"
	"scanqr/pkg/decoder"
	"scanqr/pkg/events"
	"scanqr/pkg/log"
	"scanqr/pkg/metrics"
	"scanqr/pkg/ui"
)

// ErrNotRegistered is returned by ScanQRCode before Register was called.
var ErrNotRegistered = errors.New("scan: no scanner registered")

// Scanner holds what sessions share. NewScanner fills in everything but
// Recorder; a nil Recorder records nothing.
type Scanner struct {
	Camera     camera.Camera
	NewDecoder func() decoder.Decoder
	NewSurface func() Surface
	Toaster    classify.Toaster
	Bus        *events.Bus
	Recorder   *metrics.Recorder
	Registry   *Registry
}

// NewScanner creates a scanner around cam. Sessions decode with gozxing,
// draw nothing, discard toasts, and share the process-wide registry until
// the corresponding fields are replaced.
func NewScanner(cam camera.Camera) *Scanner {
	return &Scanner{
		Camera:     cam,
		NewDecoder: func() decoder.Decoder { return decoder.NewZxing() },
		NewSurface: func() Surface { return NopSurface{} },
		Toaster:    ui.NewWriterToaster(io.Discard),
		Bus:        events.New(),
		Registry:   DefaultRegistry(),
	}
}

func (sc *Scanner) newSurface() Surface {
	if sc.NewSurface == nil {
		return NopSurface{}
	}
	return sc.NewSurface()
}

func (sc *Scanner) toast(msg string, kind classify.ToastKind) {
	if sc.Toaster != nil {
		sc.Toaster.Toast(msg, kind)
	}
}

// NewSession creates an idle session. opts are merged over DefaultOptions.
func (sc *Scanner) NewSession(opts Options) (*Session, error) {
	resolved, err := opts.resolve()
	if err != nil {
		return nil, err
	}
	return newSession(sc, resolved), nil
}

type outcome struct {
	text string
	err  error
}

// Scan shows a new session and blocks until it settles. It returns the
// decoded payload, the critical error that ended the session, or an error
// matching ErrCancelled. Non-critical errors only reach opts.OnError. The
// session is torn down opts.Grace after it settles; cancelling ctx cancels
// the session.
func (sc *Scanner) Scan(ctx context.Context, opts Options) (string, error) {
	resolved, err := opts.resolve()
	if err != nil {
		return "", err
	}

	result := make(chan outcome, 1)
	var (
		mu      sync.Mutex
		settled bool
		sess    *Session
	)
	// settle lets exactly one terminal path through.
	settle := func() bool {
		mu.Lock()
		defer mu.Unlock()
		if settled {
			return false
		}
		settled = true
		return true
	}
	finish := func(o outcome) {
		time.AfterFunc(resolved.Grace, sess.Destroy)
		result <- o
	}

	wrapped := resolved
	wrapped.OnSuccess = func(text string) {
		if !settle() {
			return
		}
		if opts.OnSuccess != nil {
			opts.OnSuccess(text)
		}
		finish(outcome{text: text})
	}
	wrapped.OnError = func(err error) {
		mu.Lock()
		done := settled
		mu.Unlock()
		if done {
			return
		}
		if opts.OnError != nil {
			opts.OnError(err)
		}
		if IsCritical(err) && settle() {
			finish(outcome{err: err})
		}
	}
	wrapped.OnCancel = func(err error) {
		if !settle() {
			return
		}
		if opts.OnCancel != nil {
			opts.OnCancel(err)
		}
		finish(outcome{err: err})
	}

	sess = newSession(sc, wrapped)
	stop := context.AfterFunc(ctx, sess.Cancel)
	defer stop()

	if err := sess.Show(ctx); err != nil && settle() {
		// Show failed without reaching a terminal callback.
		sess.Destroy()
		return "", fmt.Errorf("failed to start scan: %w", err)
	}

	o := <-result
	if o.err != nil {
		log.Debug("Scan %s ended: %v", sess.ID, o.err)
	}
	return o.text, o.err
}

var (
	globalMu sync.RWMutex
	global   *Scanner
)

// Register installs sc as the process-wide scanner used by ScanQRCode.
func Register(sc *Scanner) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = sc
}

// ScanQRCode runs a scan on the registered scanner.
func ScanQRCode(ctx context.Context, opts Options) (string, error) {
	globalMu.RLock()
	sc := global
	globalMu.RUnlock()
	if sc == nil {
		return "", ErrNotRegistered
	}
	return sc.Scan(ctx, opts)
}
