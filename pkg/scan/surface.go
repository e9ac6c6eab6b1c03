package scan

import (
	"scanqr/pkg/camera"
	"scanqr/pkg/log"
)

// SurfaceInfo describes the overlay a session wants drawn.
type SurfaceInfo struct {
	SessionID     string
	Width         int
	Height        int
	Facing        camera.Facing
	ScanAreaClass string
}

// Surface is the view side of a session: whatever draws the camera preview,
// the scan window and the cancel button. The session mounts it on first
// Show, toggles visibility, and unmounts it on Destroy.
type Surface interface {
	Mount(info SurfaceInfo) error
	SetVisible(visible bool)
	Unmount() error
}

// NopSurface draws nothing.
type NopSurface struct{}

func (NopSurface) Mount(SurfaceInfo) error { return nil }
func (NopSurface) SetVisible(bool)         {}
func (NopSurface) Unmount() error          { return nil }

// LogSurface reports overlay changes to the log. It is what the CLI uses,
// since the terminal has no preview to draw.
type LogSurface struct {
	info SurfaceInfo
}

func (s *LogSurface) Mount(info SurfaceInfo) error {
	s.info = info
	log.Debug("Overlay %s mounted: %dx%d scan window, %s camera", info.SessionID, info.Width, info.Height, info.Facing)
	return nil
}

func (s *LogSurface) SetVisible(visible bool) {
	if visible {
		log.Info("Scanning... hold a code in front of the camera")
	} else {
		log.Debug("Overlay %s hidden", s.info.SessionID)
	}
}

func (s *LogSurface) Unmount() error {
	log.Debug("Overlay %s unmounted", s.info.SessionID)
	return nil
}
