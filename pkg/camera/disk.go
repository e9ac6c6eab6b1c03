package camera

import (
	"context"
	"errors"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/xerrors"

	"scanqr/pkg/log"
	"scanqr/pkg/qrfile"
)

// ErrNoFrame is a transient error: the stream is open but has nothing to
// show yet. Samplers skip the tick.
var ErrNoFrame = errors.New("camera: no frame available yet")

// Disk treats a directory of PNG/JPEG/PDF files as a camera. Existing files
// are shown in name order; files created while the stream is open are
// shown next, so dropping an image into the directory is like holding a
// code up to the lens.
type Disk struct {
	dir string
}

// NewDisk creates a camera over dir.
func NewDisk(dir string) *Disk {
	return &Disk{dir: dir}
}

func (d *Disk) Name() string { return "Disk" }

// Open implements Camera. The facing preference is ignored: a directory has
// only one side.
func (d *Disk) Open(ctx context.Context, facing Facing) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(d.dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, &AcquisitionError{Kind: NoDeviceFound, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return nil, &AcquisitionError{Kind: PermissionDenied, Err: err}
	case err != nil:
		return nil, &AcquisitionError{Kind: NoDeviceFound, Err: err}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &AcquisitionError{Kind: Unsupported, Err: err}
	}
	if err := watcher.Add(d.dir); err != nil {
		_ = watcher.Close()
		return nil, &AcquisitionError{Kind: Unsupported, Err: xerrors.Errorf("failed to watch %s: %w", d.dir, err)}
	}

	s := &diskStream{
		dir:     d.dir,
		watcher: watcher,
		seen:    make(map[string]bool),
		done:    make(chan struct{}),
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && qrfile.IsFrameFile(e.Name()) {
			names = append(names, filepath.Join(d.dir, e.Name()))
		}
	}
	sort.Strings(names)
	for _, name := range names {
		s.enqueue(name)
	}

	go s.watch()
	log.Debug("Disk camera streaming %s with %d frame(s)", d.dir, len(names))
	return s, nil
}

type diskStream struct {
	dir     string
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu        sync.Mutex
	files     []string
	seen      map[string]bool
	next      int
	lastPath  string // file behind lastImg
	lastImg   image.Image
	gone      bool
	closed    bool
	closeOnce sync.Once
}

// enqueue must be called with mu held or before the stream is shared.
func (s *diskStream) enqueue(path string) {
	if s.seen[path] {
		return
	}
	s.seen[path] = true
	s.files = append(s.files, path)
}

func (s *diskStream) watch() {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("Disk camera watcher error on %s: %v", s.dir, err)
		}
	}
}

func (s *diskStream) handle(ev fsnotify.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if filepath.Clean(ev.Name) == filepath.Clean(s.dir) && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
		s.gone = true
		return
	}
	if !qrfile.IsFrameFile(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create):
		s.enqueue(ev.Name)
	case ev.Has(fsnotify.Write):
		// Rewritten in place; decode again on next use.
		if ev.Name == s.lastPath {
			s.lastPath, s.lastImg = "", nil
		}
		s.enqueue(ev.Name)
	}
}

// Frame returns files in arrival order and then keeps showing the newest.
// Only the frame on show stays decoded in memory.
func (s *diskStream) Frame() (image.Image, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrNoDevice
	}
	if s.gone {
		s.mu.Unlock()
		return nil, &AcquisitionError{Kind: NoDeviceFound, Err: xerrors.Errorf("frame directory %s removed", s.dir)}
	}
	if len(s.files) == 0 {
		s.mu.Unlock()
		return nil, ErrNoFrame
	}
	path := s.files[min(s.next, len(s.files)-1)]
	if s.next < len(s.files) {
		s.next++
	}
	if path == s.lastPath {
		img := s.lastImg
		s.mu.Unlock()
		return img, nil
	}
	s.mu.Unlock()

	img, err := qrfile.ReadImage(path)
	if err != nil {
		// Often a file still being written; the next Write event retries it.
		return nil, xerrors.Errorf("failed to read frame %s: %w", path, err)
	}
	s.mu.Lock()
	s.lastPath, s.lastImg = path, img
	s.mu.Unlock()
	return img, nil
}

func (s *diskStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.watcher.Close()
		<-s.done
	})
	return err
}
