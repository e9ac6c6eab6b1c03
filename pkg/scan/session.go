package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"scanqr/pkg/camera"
	"scanqr/pkg/capture"
	"scanqr/pkg/classify"
	"scanqr/pkg/decoder"
	"scanqr/pkg/events"
	"scanqr/pkg/log"
	"scanqr/pkg/metrics"
)

var (
	// ErrCancelled is reported when the user backs out of a scan.
	ErrCancelled = errors.New("scan: user cancelled")
	// ErrSuperseded is reported for a session destroyed before it produced
	// a result, typically because another session was shown.
	ErrSuperseded = fmt.Errorf("%w: session destroyed", ErrCancelled)
	// ErrClosed is returned by Show on a session that already ended.
	ErrClosed = errors.New("scan: session closed")
)

// IsCritical reports whether err ends a session. Only losing, or never
// getting, the camera does.
func IsCritical(err error) bool {
	return camera.IsAcquisitionError(err)
}

// State is where a session is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateHidden
	StateSucceeded
	StateCancelled
	StateErrored
	StateDestroyed
)

func (s State) String() string {
	return [...]string{"idle", "capturing", "hidden", "succeeded", "cancelled", "errored", "destroyed"}[s]
}

// Outcome labels for session metrics.
const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)

// Session is one scan overlay: it owns the camera, the capture loop and the
// surface from Show until Destroy. Callbacks in Options run without any
// session lock held, on the goroutine that triggered them, and may call
// back into the session.
type Session struct {
	ID string

	opts    Options
	scanner *Scanner
	surface Surface

	mu          sync.Mutex
	state       State
	pageVisible bool
	mounted     bool
	settled     bool // a terminal callback fired
	destroyed   bool
	opening     bool // Show is acquiring the camera
	hidePending bool // Hide arrived while opening
	loop        *capture.Loop
	started     time.Time

	released chan struct{} // closed once Destroy gave up the registry slot
}

func newSession(sc *Scanner, opts Options) *Session {
	return &Session{
		ID:          uuid.NewString(),
		opts:        opts,
		scanner:     sc,
		surface:     sc.newSurface(),
		pageVisible: true,
		released:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Options returns the resolved options of the session.
func (s *Session) Options() Options { return s.opts }

// Show starts capturing, or resumes a hidden session without touching the
// camera again. Any other current session is destroyed first, so two
// sessions never sample at the same time. Camera acquisition failures are
// reported through OnError as critical errors and returned.
func (s *Session) Show(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.destroyed || s.settled:
		s.mu.Unlock()
		return ErrClosed
	case s.state == StateCapturing:
		s.mu.Unlock()
		return nil
	case s.opening:
		// Another Show is acquiring the camera; undo any Hide since.
		s.hidePending = false
		s.mu.Unlock()
		return nil
	case s.state == StateHidden:
		s.state = StateCapturing
		if s.pageVisible {
			s.loop.Resume()
		}
		s.mu.Unlock()
		s.surface.SetVisible(true)
		s.scanner.Bus.Emit(events.Event{Topic: events.Shown, SessionID: s.ID})
		return nil
	}
	s.opening, s.hidePending = true, false
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.opening = false
		s.mu.Unlock()
	}()

	reg := s.scanner.Registry
	if err := s.claim(ctx); err != nil {
		s.cancel(fmt.Errorf("%w: %w", ErrCancelled, err))
		return err
	}

	if err := s.mount(); err != nil {
		reg.release(s)
		return err
	}

	start := time.Now()
	var stream camera.Stream
	err := s.scanner.Recorder.Record(metrics.CameraOpen, func() (err error) {
		stream, err = s.scanner.Camera.Open(ctx, s.opts.Facing)
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			s.cancel(fmt.Errorf("%w: %w", ErrCancelled, err))
			return err
		}
		if !camera.IsAcquisitionError(err) {
			err = &camera.AcquisitionError{Kind: camera.NoDeviceFound, Err: err}
		}
		log.Warn("Session %s could not acquire camera %s: %v", s.ID, s.scanner.Camera.Name(), err)
		s.fail(err, true)
		return err
	}

	s.mu.Lock()
	if s.destroyed || s.settled {
		// Ended while the camera was opening.
		s.mu.Unlock()
		_ = stream.Close()
		return ErrClosed
	}
	hidden := s.hidePending
	s.opening, s.hidePending = false, false
	s.loop = capture.Start(stream, decoder.NewWorker(s.scanner.NewDecoder()), capture.Options{
		Width:    s.opts.Width,
		Height:   s.opts.Height,
		FPS:      s.opts.FPS,
		Paused:   hidden || !s.pageVisible,
		Recorder: s.scanner.Recorder,
	})
	s.state = StateCapturing
	if hidden {
		s.state = StateHidden
	}
	s.started = start
	loop := s.loop
	s.mu.Unlock()

	if hidden {
		s.scanner.Bus.Emit(events.Event{Topic: events.Hidden, SessionID: s.ID})
	} else {
		s.surface.SetVisible(true)
		s.scanner.Bus.Emit(events.Event{Topic: events.Shown, SessionID: s.ID})
	}
	go s.pump(loop)
	log.Debug("Session %s capturing at %d fps", s.ID, s.opts.FPS)
	return nil
}

// claim takes the registry slot. A session holding it is destroyed, and
// claim waits until that session has let go of its camera.
func (s *Session) claim(ctx context.Context) error {
	reg := s.scanner.Registry
	for {
		prev := reg.claim(s)
		if prev == nil {
			return nil
		}
		log.Debug("Session %s replaces session %s", s.ID, prev.ID)
		prev.Destroy()
		select {
		case <-prev.released:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) mount() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || s.settled {
		return ErrClosed
	}
	if s.mounted {
		return nil
	}
	err := s.surface.Mount(SurfaceInfo{
		SessionID:     s.ID,
		Width:         s.opts.Width,
		Height:        s.opts.Height,
		Facing:        s.opts.Facing,
		ScanAreaClass: s.opts.ScanAreaClass,
	})
	if err != nil {
		return fmt.Errorf("failed to mount overlay: %w", err)
	}
	s.mounted = true
	return nil
}

// Hide pauses capture and hides the overlay. The camera stays open and the
// session stays unsettled; Show resumes it. A Hide while Show is still
// opening the camera makes the session start out hidden.
func (s *Session) Hide() {
	s.mu.Lock()
	if s.opening && !s.destroyed && !s.settled {
		s.hidePending = true
		s.mu.Unlock()
		return
	}
	if s.state != StateCapturing {
		s.mu.Unlock()
		return
	}
	s.state = StateHidden
	s.loop.Pause()
	s.mu.Unlock()

	s.surface.SetVisible(false)
	s.scanner.Bus.Emit(events.Event{Topic: events.Hidden, SessionID: s.ID})
}

// SetPageVisible pauses sampling while the hosting page (or terminal) is in
// the background, and resumes it when it comes back.
func (s *Session) SetPageVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageVisible = visible
	if s.state != StateCapturing {
		return
	}
	if visible {
		s.loop.Resume()
	} else {
		s.loop.Pause()
	}
}

// Cancel ends the session the way the overlay's cancel button does: capture
// stops and OnCancel fires with ErrCancelled. It does nothing once the
// session has settled.
func (s *Session) Cancel() {
	s.cancel(ErrCancelled)
}

// Destroy releases everything the session holds. It is idempotent and never
// fails; teardown problems are logged. An unsettled session is cancelled
// with ErrSuperseded first, so callers waiting on it always hear back.
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.mu.Unlock()

	s.cancel(ErrSuperseded)

	s.mu.Lock()
	s.state = StateDestroyed
	loop, mounted := s.loop, s.mounted
	s.mounted = false
	s.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	if mounted {
		if err := s.surface.Unmount(); err != nil {
			log.Warn("Failed to unmount overlay of session %s: %v", s.ID, err)
		}
	}
	s.scanner.Registry.release(s)
	close(s.released)
	s.scanner.Bus.Emit(events.Event{Topic: events.Destroyed, SessionID: s.ID})
	log.Debug("Session %s destroyed", s.ID)
}

// pump turns capture events into callbacks until the loop exits.
func (s *Session) pump(loop *capture.Loop) {
	for {
		select {
		case ev := <-loop.Events():
			s.handle(ev)
		case <-loop.Done():
			// A final event may still be buffered.
			select {
			case ev := <-loop.Events():
				s.handle(ev)
			default:
			}
			return
		}
	}
}

func (s *Session) handle(ev capture.Event) {
	switch {
	case ev.Kind == capture.Decoded:
		s.succeed(ev.Text)
	default:
		s.fail(ev.Err, ev.Critical)
	}
}

// settle marks the session terminal. It reports false if it already was.
func (s *Session) settle(state State) (*capture.Loop, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return nil, 0, false
	}
	s.settled = true
	if !s.destroyed {
		s.state = state
	}
	var elapsed time.Duration
	if !s.started.IsZero() {
		elapsed = time.Since(s.started)
	}
	return s.loop, elapsed, true
}

func (s *Session) succeed(text string) {
	_, elapsed, ok := s.settle(StateSucceeded)
	if !ok {
		return
	}
	s.surface.SetVisible(false)
	s.scanner.Recorder.SessionEnded(outcomeSuccess, elapsed)
	s.scanner.Bus.Emit(events.Event{Topic: events.Decoded, SessionID: s.ID, Text: text})
	log.Debug("Session %s decoded %d bytes", s.ID, len(text))
	if s.opts.OnSuccess != nil {
		s.opts.OnSuccess(text)
	}
}

func (s *Session) fail(err error, critical bool) {
	if critical {
		loop, elapsed, ok := s.settle(StateErrored)
		if !ok {
			return
		}
		if loop != nil {
			loop.Stop()
		}
		s.surface.SetVisible(false)
		s.scanner.Recorder.SessionEnded(outcomeError, elapsed)
	} else {
		s.mu.Lock()
		settled := s.settled
		s.mu.Unlock()
		if settled {
			return
		}
	}

	if !s.opts.HideErrorToast && (critical || s.opts.ToastDecodeErrors) {
		s.scanner.toast(errorMessage(err), classify.ToastFail)
	}
	s.scanner.Bus.Emit(events.Event{Topic: events.Failed, SessionID: s.ID, Err: err, Critical: critical})
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

func (s *Session) cancel(cause error) {
	loop, elapsed, ok := s.settle(StateCancelled)
	if !ok {
		return
	}
	if loop != nil {
		loop.Stop()
	}
	s.surface.SetVisible(false)
	s.scanner.Recorder.SessionEnded(outcomeCancelled, elapsed)
	if !s.opts.HideErrorToast && !errors.Is(cause, ErrSuperseded) {
		s.scanner.toast("Scan cancelled", classify.ToastInfo)
	}
	s.scanner.Bus.Emit(events.Event{Topic: events.Cancelled, SessionID: s.ID, Err: cause})
	if s.opts.OnCancel != nil {
		s.opts.OnCancel(cause)
	}
}

func errorMessage(err error) string {
	var acq *camera.AcquisitionError
	if errors.As(err, &acq) {
		return acq.Kind.String()
	}
	if err == nil {
		return "Scan failed"
	}
	return err.Error()
}
