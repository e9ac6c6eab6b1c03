package decoder

import (
	"fmt"
	"sync"

	"scanqr/pkg/log"
)

// Request is one frame to decode.
type Request struct {
	Pixels []byte
	Width  int
	Height int
}

// Response is the outcome of one Request. Text is empty when the frame had
// no code; Err carries decoder-internal failures, including panics.
type Response struct {
	Text string
	Err  error
}

// Worker decodes requests on a dedicated goroutine. It holds no state
// between requests; the caller must not submit a new request before the
// previous response was received.
type Worker struct {
	dec       Decoder
	requests  chan Request
	responses chan Response
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewWorker starts a worker goroutine around dec.
func NewWorker(dec Decoder) *Worker {
	w := &Worker{
		dec:       dec,
		requests:  make(chan Request, 1),
		responses: make(chan Response, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit hands a request to the worker without blocking. It returns false
// when a request is already queued or the worker is closed.
func (w *Worker) Submit(req Request) bool {
	select {
	case <-w.quit:
		return false
	default:
	}
	select {
	case w.requests <- req:
		return true
	default:
		return false
	}
}

// Responses delivers one Response per accepted Request.
func (w *Worker) Responses() <-chan Response {
	return w.responses
}

// Close stops the worker and waits for its goroutine to exit. An in-flight
// decode is allowed to finish; its response is dropped. Safe to call more
// than once.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		close(w.quit)
	})
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			return
		case req := <-w.requests:
			resp := w.decode(req)
			select {
			case w.responses <- resp:
			case <-w.quit:
				return
			}
		}
	}
}

// decode never lets a decoder panic escape the worker.
func (w *Worker) decode(req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Decoder panicked on %dx%d frame: %v", req.Width, req.Height, r)
			resp = Response{Err: fmt.Errorf("decoder panic: %v", r)}
		}
	}()
	text, err := w.dec.Decode(req.Pixels, req.Width, req.Height)
	return Response{Text: text, Err: err}
}
