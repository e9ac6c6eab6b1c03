// Package camera acquires video streams for the scanner. A Stream hands out
// the most recent frame on demand; backends differ only in where frames come
// from.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"

	"scanqr/pkg/config"
)

// Facing is the camera direction preference.
type Facing string

const (
	FacingBack  Facing = "environment"
	FacingFront Facing = "user"
)

// ErrorKind classifies why a camera could not be acquired.
type ErrorKind int

const (
	PermissionDenied ErrorKind = iota + 1
	NoDeviceFound
	Unsupported
)

func (k ErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "camera permission denied"
	case NoDeviceFound:
		return "no camera device found"
	case Unsupported:
		return "camera access not supported"
	default:
		return "unknown camera error"
	}
}

// AcquisitionError is returned when a stream cannot be opened, or when an
// open stream loses its device. It is always critical to a scan session.
type AcquisitionError struct {
	Kind ErrorKind
	Err  error
}

func (e *AcquisitionError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Is matches another *AcquisitionError of the same kind, so callers can
// write errors.Is(err, &camera.AcquisitionError{Kind: camera.NoDeviceFound}).
func (e *AcquisitionError) Is(target error) bool {
	t, ok := target.(*AcquisitionError)
	return ok && t.Kind == e.Kind
}

// Acquisition errors without further detail, for use with errors.Is.
var (
	ErrPermissionDenied = &AcquisitionError{Kind: PermissionDenied}
	ErrNoDevice         = &AcquisitionError{Kind: NoDeviceFound}
	ErrUnsupported      = &AcquisitionError{Kind: Unsupported}
)

// IsAcquisitionError reports whether err is (or wraps) an AcquisitionError.
func IsAcquisitionError(err error) bool {
	var acq *AcquisitionError
	return errors.As(err, &acq)
}

// Stream is an open camera.
type Stream interface {
	// Frame returns the current frame. Errors that are *AcquisitionError
	// mean the device is gone; anything else is a transient failure.
	Frame() (image.Image, error)
	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Camera opens streams.
type Camera interface {
	Open(ctx context.Context, facing Facing) (Stream, error)
	Name() string
}

// New selects and creates the camera backend named by the config.
func New(cfg *config.Config) (Camera, error) {
	switch cfg.CameraType {
	case config.CameraMemory:
		return NewMemory(), nil
	case config.CameraDisk:
		return NewDisk(cfg.FramesPath), nil
	case config.CameraCommand:
		return NewCommand(cfg), nil
	default:
		return nil, fmt.Errorf("unknown camera type specified: %s", cfg.CameraType)
	}
}
