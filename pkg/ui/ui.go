package ui

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/xerrors"

	"scanqr/pkg/classify"
	"scanqr/pkg/config"
	"scanqr/pkg/log"
)

// WriterToaster prints toasts as single lines.
type WriterToaster struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterToaster creates a toaster writing to w.
func NewWriterToaster(w io.Writer) *WriterToaster {
	return &WriterToaster{w: w}
}

// Toast implements classify.Toaster.
func (t *WriterToaster) Toast(msg string, kind classify.ToastKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prefix := "·"
	switch kind {
	case classify.ToastSuccess:
		prefix = "✓"
	case classify.ToastFail:
		prefix = "✗"
	}
	fmt.Fprintf(t.w, "%s %s\n", prefix, msg)
}

type runFunc func(ctx context.Context, stdin string, name string, args ...string) error

func runCommand(ctx context.Context, stdin string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return xerrors.Errorf("failed to run '%s': %w, output: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// CommandNavigator opens links with the platform opener (open, xdg-open).
type CommandNavigator struct {
	cfg *config.Config
	run runFunc
}

// NewCommandNavigator creates a navigator for the system named in cfg.
func NewCommandNavigator(cfg *config.Config) *CommandNavigator {
	return &CommandNavigator{cfg: cfg, run: runCommand}
}

// Navigate implements classify.Navigator.
func (n *CommandNavigator) Navigate(target string) error {
	name, args := n.cfg.GetOpenCommand(target)
	log.Info("Opening %s", target)
	return n.run(context.Background(), "", name, args...)
}

// CommandClipboard pipes copied text into the platform clipboard tool
// (pbcopy, xclip).
type CommandClipboard struct {
	cfg *config.Config
	run runFunc
}

// NewCommandClipboard creates a clipboard for the system named in cfg.
func NewCommandClipboard(cfg *config.Config) *CommandClipboard {
	return &CommandClipboard{cfg: cfg, run: runCommand}
}

// WriteText implements classify.Clipboard.
func (c *CommandClipboard) WriteText(ctx context.Context, value string) error {
	name, args := c.cfg.GetClipboardCommand()
	return c.run(ctx, value, name, args...)
}

// MemoryClipboard keeps the last copied value. The zero value is ready to
// use.
type MemoryClipboard struct {
	mu    sync.Mutex
	value string
}

// WriteText implements classify.Clipboard.
func (c *MemoryClipboard) WriteText(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	return nil
}

// Text returns the last copied value.
func (c *MemoryClipboard) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
