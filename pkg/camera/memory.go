package camera

import (
	"context"
	"image"
	"sync"
)

// Memory is an in-memory camera. Each stream walks through the configured
// frames in order and then keeps returning the last one, like a camera
// pointed at a still scene.
type Memory struct {
	mu      sync.Mutex
	frames  []image.Image
	openErr error
	opened  int
	live    int
	grabs   int
}

// NewMemory creates a camera that serves the given frames.
func NewMemory(frames ...image.Image) *Memory {
	return &Memory{frames: frames}
}

func (m *Memory) Name() string { return "Memory" }

// Push appends a frame; open streams will reach it after the current ones.
func (m *Memory) Push(img image.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, img)
}

// FailWith makes subsequent Open calls return err. A nil err clears it.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// Open implements Camera. Without frames there is nothing to look at, which
// is reported as NoDeviceFound.
func (m *Memory) Open(ctx context.Context, facing Facing) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	if len(m.frames) == 0 {
		return nil, ErrNoDevice
	}
	m.opened++
	m.live++
	return &memoryStream{cam: m}, nil
}

// Opened returns how many streams were ever opened.
func (m *Memory) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// Live returns how many streams are open right now.
func (m *Memory) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Grabs returns how many frames were handed out across all streams.
func (m *Memory) Grabs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grabs
}

type memoryStream struct {
	cam    *Memory
	next   int
	closed bool
}

func (s *memoryStream) Frame() (image.Image, error) {
	m := s.cam
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.closed {
		return nil, ErrNoDevice
	}
	m.grabs++
	i := min(s.next, len(m.frames)-1)
	s.next++
	return m.frames[i], nil
}

func (s *memoryStream) Close() error {
	m := s.cam
	m.mu.Lock()
	defer m.mu.Unlock()
	if !s.closed {
		s.closed = true
		m.live--
	}
	return nil
}
