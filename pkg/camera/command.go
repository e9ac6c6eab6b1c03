package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"scanqr/pkg/config"
	"scanqr/pkg/log"
	"scanqr/pkg/qrfile"
)

// runFunc executes a capture command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Command drives a platform still-capture tool (imagesnap, libcamera-still,
// fswebcam) and serves each still as a frame. Stills are slow, so the
// effective frame rate is bounded by the tool, not the sampler.
type Command struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
	run      runFunc
}

// NewCommand creates a camera for the system named in cfg.
func NewCommand(cfg *config.Config) *Command {
	return &Command{cfg: cfg, lookPath: exec.LookPath, run: runCommand}
}

func (c *Command) Name() string { return "Command" }

// Open checks that the capture tool exists and takes one still to surface
// permission problems before any sampling starts.
func (c *Command) Open(ctx context.Context, facing Facing) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &commandStream{cam: c, front: facing == FacingFront}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	name, _, ok := c.cfg.GetImageCommand(s.nextPath(), s.front)
	if !ok {
		s.cancel()
		return nil, &AcquisitionError{Kind: Unsupported, Err: fmt.Errorf("no capture command for system %s", c.cfg.System)}
	}
	if _, err := c.lookPath(name); err != nil {
		s.cancel()
		return nil, &AcquisitionError{Kind: Unsupported, Err: err}
	}
	if err := os.MkdirAll(c.cfg.PicturePath, 0755); err != nil {
		s.cancel()
		return nil, &AcquisitionError{Kind: PermissionDenied, Err: err}
	}
	if _, err := s.Frame(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

type commandStream struct {
	cam    *Command
	front  bool
	ctx    context.Context // Cancelled by Close to abort a running capture.
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	last   string
}

func (s *commandStream) nextPath() string {
	return filepath.Join(s.cam.cfg.PicturePath, fmt.Sprintf("image_%d.jpg", time.Now().UnixNano()))
}

// Frame takes a picture and decodes it.
func (s *commandStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrNoDevice
	}

	path := s.nextPath()
	name, args, _ := s.cam.cfg.GetImageCommand(path, s.front)
	if output, err := s.cam.run(s.ctx, name, args...); err != nil {
		return nil, classifyCommandError(name, err, output)
	}

	img, err := qrfile.ReadImage(path)
	if s.last != "" {
		_ = os.Remove(s.last)
	}
	s.last = path
	if err != nil {
		return nil, xerrors.Errorf("failed to read still from %s: %w", name, err)
	}
	return img, nil
}

func (s *commandStream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.last != "" {
		_ = os.Remove(s.last)
	}
	log.Debug("Command camera closed")
	return nil
}

// classifyCommandError maps capture tool failures onto acquisition errors.
// The tools have no structured exit codes, so their output is inspected.
func classifyCommandError(name string, err error, output []byte) error {
	out := strings.ToLower(string(output))
	wrapped := xerrors.Errorf("failed to run camera command '%s': %w, output: %s", name, err, strings.TrimSpace(string(output)))
	switch {
	case strings.Contains(out, "permission"), strings.Contains(out, "not authorized"), strings.Contains(out, "not permitted"):
		return &AcquisitionError{Kind: PermissionDenied, Err: wrapped}
	case strings.Contains(out, "no camera"), strings.Contains(out, "no such device"), strings.Contains(out, "no cameras available"), strings.Contains(out, "no video device"):
		return &AcquisitionError{Kind: NoDeviceFound, Err: wrapped}
	default:
		return wrapped
	}
}
