// Package ui holds the terminal implementations of the collaborators the
// scanner talks to: dialogs, toasts, link opening and the clipboard.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nsf/termbox-go"

	"scanqr/pkg/classify"
)

// TermboxDialog draws a full-screen confirmation box. Left/right or tab
// moves between buttons, enter picks, y and n are shortcuts and escape
// dismisses.
type TermboxDialog struct {
	mu sync.Mutex // termbox owns the whole terminal
}

// Confirm implements classify.Dialog.
func (d *TermboxDialog) Confirm(ctx context.Context, p classify.Prompt) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := termbox.Init(); err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}
	defer termbox.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			termbox.Interrupt()
		case <-stop:
		}
	}()

	buttons := []string{p.ConfirmLabel}
	if p.CancelLabel != "" {
		buttons = append(buttons, p.CancelLabel)
	}
	selected := 0
	for {
		if err := drawPrompt(p, buttons, selected); err != nil {
			return err
		}
		ev := termbox.PollEvent()
		switch ev.Type {
		case termbox.EventInterrupt:
			return ctx.Err()
		case termbox.EventError:
			return fmt.Errorf("terminal error: %w", ev.Err)
		case termbox.EventKey:
		default:
			continue
		}

		switch {
		case ev.Key == termbox.KeyEnter:
			if selected == 0 {
				return nil
			}
			return classify.ErrDismissed
		case ev.Key == termbox.KeyEsc, ev.Key == termbox.KeyCtrlC, ev.Ch == 'n':
			return classify.ErrDismissed
		case ev.Ch == 'y':
			return nil
		case ev.Key == termbox.KeyArrowLeft, ev.Key == termbox.KeyArrowRight, ev.Key == termbox.KeyTab:
			selected = (selected + 1) % len(buttons)
		}
	}
}

func drawPrompt(p classify.Prompt, buttons []string, selected int) error {
	const fg, bg = termbox.ColorDefault, termbox.ColorDefault
	if err := termbox.Clear(fg, bg); err != nil {
		return err
	}
	w, h := termbox.Size()
	lines := append([]string{p.Title, ""}, strings.Split(p.Message, "\n")...)
	top := max(0, (h-len(lines)-2)/2)

	for i, line := range lines {
		attr := fg
		if i == 0 {
			attr |= termbox.AttrBold
		}
		drawText(max(0, (w-len([]rune(line)))/2), top+i, line, attr, bg)
	}

	var row []string
	for _, b := range buttons {
		row = append(row, "[ "+b+" ]")
	}
	x := max(0, (w-len([]rune(strings.Join(row, "  "))))/2)
	for i, b := range row {
		attr := fg
		if i == selected {
			attr |= termbox.AttrReverse
		}
		x = drawText(x, top+len(lines)+1, b, attr, bg) + 2
	}
	return termbox.Flush()
}

func drawText(x, y int, s string, fg, bg termbox.Attribute) int {
	for _, r := range s {
		termbox.SetCell(x, y, r, fg, bg)
		x++
	}
	return x
}

// LineDialog asks on a plain text stream, one line per answer. It is used
// when stdin is not a terminal.
type LineDialog struct {
	mu  sync.Mutex
	in  *bufio.Scanner
	out io.Writer
}

// NewLineDialog reads answers from in and writes prompts to out.
func NewLineDialog(in io.Reader, out io.Writer) *LineDialog {
	return &LineDialog{in: bufio.NewScanner(in), out: out}
}

// Confirm implements classify.Dialog. An empty answer picks the confirm
// button; end of input dismisses.
func (d *LineDialog) Confirm(ctx context.Context, p classify.Prompt) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintf(d.out, "%s\n%s\n", p.Title, p.Message)
	if p.CancelLabel == "" {
		fmt.Fprintf(d.out, "[%s] ", p.ConfirmLabel)
	} else {
		fmt.Fprintf(d.out, "[%s/%s] (Y/n) ", p.ConfirmLabel, p.CancelLabel)
	}

	if !d.in.Scan() {
		if err := d.in.Err(); err != nil {
			return fmt.Errorf("failed to read answer: %w", err)
		}
		return classify.ErrDismissed
	}
	switch strings.ToLower(strings.TrimSpace(d.in.Text())) {
	case "", "y", "yes", strings.ToLower(p.ConfirmLabel):
		return nil
	default:
		if p.CancelLabel == "" {
			return nil
		}
		return classify.ErrDismissed
	}
}
