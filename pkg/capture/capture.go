// Package capture runs the sampling loop between an open camera stream and a
// decoder worker. The loop ticks at a fixed rate, crops the centre of each
// frame to the scan region and hands it to the worker, with at most one
// decode outstanding at any time.
package capture

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"scanqr/pkg/camera"
	"scanqr/pkg/decoder"
	"scanqr/pkg/log"
	"scanqr/pkg/metrics"
)

const (
	DefaultWidth  = 300
	DefaultHeight = 300
	DefaultFPS    = 30
)

// EventKind tells decoded payloads apart from failures.
type EventKind int

const (
	Decoded EventKind = iota
	Failed
)

// Event is emitted by the loop towards its owner. For Failed events,
// Critical is true when the camera is gone and the loop has stopped.
type Event struct {
	Kind     EventKind
	Text     string
	Err      error
	Critical bool
}

// DecodeError wraps a failure reported by the decoder worker. It never
// stops the loop.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode failed: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// Options configures a Loop. Zero values fall back to the defaults.
type Options struct {
	Width    int
	Height   int
	FPS      int
	Paused   bool // Start without sampling until Resume is called.
	Recorder *metrics.Recorder
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	return o
}

// Loop samples frames from a stream until it decodes a payload, loses the
// camera, or is stopped. The loop owns both the stream and the worker and
// releases them when it exits.
type Loop struct {
	stream camera.Stream
	worker *decoder.Worker
	opts   Options

	events   chan Event
	paused   atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Start launches the loop goroutine.
func Start(stream camera.Stream, worker *decoder.Worker, opts Options) *Loop {
	opts = opts.withDefaults()
	l := &Loop{
		stream: stream,
		worker: worker,
		opts:   opts,
		events: make(chan Event, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	l.paused.Store(opts.Paused)
	go l.run()
	return l
}

// Events delivers decoded payloads and errors. After a Decoded or critical
// event, no further events are sent.
func (l *Loop) Events() <-chan Event { return l.events }

// Done is closed once the loop has exited and released its resources.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Pause stops sampling without releasing the camera. It never blocks.
func (l *Loop) Pause() { l.paused.Store(true) }

// Resume restarts sampling after Pause.
func (l *Loop) Resume() { l.paused.Store(false) }

// Paused reports whether sampling is paused.
func (l *Loop) Paused() bool { return l.paused.Load() }

// Stop ends the loop and waits until the stream and worker are released.
// Safe to call more than once, from any goroutine.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	defer l.release()

	rec := l.opts.Recorder
	ticker := time.NewTicker(time.Second / time.Duration(l.opts.FPS))
	defer ticker.Stop()

	pending := false
	var sent time.Time

	for {
		select {
		case <-l.stop:
			return

		case resp := <-l.worker.Responses():
			pending = false
			rec.Observe(metrics.Decode, time.Since(sent))
			switch {
			case resp.Err != nil:
				rec.Inc(metrics.DecodeError)
				if !l.emit(Event{Kind: Failed, Err: &DecodeError{Err: resp.Err}}) {
					return
				}
			case resp.Text == "":
				rec.Inc(metrics.DecodeEmpty)
			case l.paused.Load():
				// The overlay is hidden; nobody is looking at the code.
				log.Debug("Dropping decode result while paused")
			default:
				rec.Inc(metrics.DecodeHit)
				l.emit(Event{Kind: Decoded, Text: resp.Text})
				return
			}

		case <-ticker.C:
			if pending || l.paused.Load() {
				rec.Inc(metrics.TickSkipped)
				continue
			}
			var pixels []byte
			err := rec.Record(metrics.Sample, func() (err error) {
				pixels, err = l.sample()
				return err
			})
			switch {
			case errors.Is(err, camera.ErrNoFrame):
				continue
			case camera.IsAcquisitionError(err):
				log.Warn("Camera lost while sampling: %v", err)
				l.emit(Event{Kind: Failed, Err: err, Critical: true})
				return
			case err != nil:
				if !l.emit(Event{Kind: Failed, Err: err}) {
					return
				}
				continue
			}
			if l.worker.Submit(decoder.Request{Pixels: pixels, Width: l.opts.Width, Height: l.opts.Height}) {
				pending = true
				sent = time.Now()
			} else {
				rec.Inc(metrics.TickSkipped)
			}
		}
	}
}

// emit delivers ev unless the loop is being stopped.
func (l *Loop) emit(ev Event) bool {
	select {
	case l.events <- ev:
		return true
	case <-l.stop:
		return false
	}
}

func (l *Loop) release() {
	l.worker.Close()
	if err := l.stream.Close(); err != nil {
		log.Warn("Failed to release camera stream: %v", err)
	}
}

// sample grabs a frame and scales its centre into a fresh Width x Height
// RGBA buffer. The buffer is handed to the worker, so it is never reused.
func (l *Loop) sample() ([]byte, error) {
	frame, err := l.stream.Frame()
	if err != nil {
		return nil, err
	}
	src, err := ScanRegion(frame.Bounds(), l.opts.Width, l.opts.Height)
	if err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, l.opts.Width, l.opts.Height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, src, draw.Src, nil)
	return dst.Pix, nil
}

// ScanRegion returns the largest rectangle centred in bounds with the aspect
// ratio width:height.
func ScanRegion(bounds image.Rectangle, width, height int) (image.Rectangle, error) {
	sw, sh := bounds.Dx(), bounds.Dy()
	if sw <= 0 || sh <= 0 || width <= 0 || height <= 0 {
		return image.Rectangle{}, fmt.Errorf("cannot fit %dx%d scan region into %dx%d frame", width, height, sw, sh)
	}
	cw, ch := sw, sh
	if sw*height > sh*width {
		cw = sh * width / height
	} else {
		ch = sw * height / width
	}
	x0 := bounds.Min.X + (sw-cw)/2
	y0 := bounds.Min.Y + (sh-ch)/2
	return image.Rect(x0, y0, x0+cw, y0+ch), nil
}
