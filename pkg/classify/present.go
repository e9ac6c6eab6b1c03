package classify

import (
	"context"
	"errors"
	"fmt"

	"scanqr/pkg/log"
)

// ErrDismissed is returned by a Dialog when the user picks the cancel
// button or closes the prompt.
var ErrDismissed = errors.New("classify: dialog dismissed")

// ToastKind selects the style of a toast.
type ToastKind int

const (
	ToastInfo ToastKind = iota
	ToastSuccess
	ToastFail
)

// Prompt is one confirmation dialog. An empty CancelLabel means the dialog
// only has the confirm button.
type Prompt struct {
	Title        string
	Message      string
	ConfirmLabel string
	CancelLabel  string
}

// Navigator opens URLs, including tel: links.
type Navigator interface {
	Navigate(target string) error
}

// Toaster shows short, non-blocking notices.
type Toaster interface {
	Toast(msg string, kind ToastKind)
}

// Dialog asks the user to confirm. Confirm returns nil on confirmation and
// ErrDismissed on cancel.
type Dialog interface {
	Confirm(ctx context.Context, p Prompt) error
}

// Clipboard receives copied payloads.
type Clipboard interface {
	WriteText(ctx context.Context, value string) error
}

// Messages shown by the Presenter.
const (
	MsgEmpty      = "QR code is empty"
	MsgLinkCancel = "Link not opened"
	MsgCallCancel = "Call cancelled"
	MsgCopied     = "Copied to clipboard"
	MsgCopyFailed = "Copy failed, please copy it manually"
)

const (
	urlPreviewRunes  = 60
	textPreviewRunes = 100
)

// Presenter runs the interaction that follows a successful scan.
type Presenter struct {
	Navigator Navigator
	Toaster   Toaster
	Dialog    Dialog
	Clipboard Clipboard
}

// Present classifies text and asks the user what to do with it. A user
// declining is not an error. Errors from collaborators are returned after
// the user has been told about them.
func (p *Presenter) Present(ctx context.Context, text string) (Result, error) {
	res, err := Classify(text)
	if err != nil {
		p.Toaster.Toast(MsgEmpty, ToastInfo)
		return res, err
	}
	log.Debug("Presenting %s payload", res.Kind)

	switch res.Kind {
	case URL:
		err = p.confirmThen(ctx, Prompt{
			Title:        "Link scanned",
			Message:      "Open this link?\n" + Truncate(res.Value, urlPreviewRunes),
			ConfirmLabel: "Open",
			CancelLabel:  "Cancel",
		}, MsgLinkCancel, func() error {
			return p.Navigator.Navigate(res.Value)
		})
	case Phone:
		err = p.confirmThen(ctx, Prompt{
			Title:        "Phone number scanned",
			Message:      "Call this number?\n" + res.Value,
			ConfirmLabel: "Call",
			CancelLabel:  "Cancel",
		}, MsgCallCancel, func() error {
			return p.Navigator.Navigate(telPrefix + res.Value)
		})
	case IDNumber:
		err = p.confirmThen(ctx, Prompt{
			Title:        "Scan result",
			Message:      "This may be an ID number and will be copied to the clipboard\n" + res.Value,
			ConfirmLabel: "OK",
		}, "", func() error {
			return p.copy(ctx, res.Value)
		})
	default:
		err = p.confirmThen(ctx, Prompt{
			Title:        "Scan result",
			Message:      Truncate(res.Value, textPreviewRunes),
			ConfirmLabel: "Copy",
			CancelLabel:  "Close",
		}, "", func() error {
			return p.copy(ctx, res.Value)
		})
	}
	return res, err
}

// confirmThen shows prompt and runs action on confirmation. On dismissal it
// toasts cancelMsg, if any.
func (p *Presenter) confirmThen(ctx context.Context, prompt Prompt, cancelMsg string, action func() error) error {
	err := p.Dialog.Confirm(ctx, prompt)
	switch {
	case errors.Is(err, ErrDismissed):
		if cancelMsg != "" {
			p.Toaster.Toast(cancelMsg, ToastInfo)
		}
		return nil
	case err != nil:
		return fmt.Errorf("confirm %q: %w", prompt.Title, err)
	}
	return action()
}

func (p *Presenter) copy(ctx context.Context, value string) error {
	if err := p.Clipboard.WriteText(ctx, value); err != nil {
		p.Toaster.Toast(MsgCopyFailed, ToastFail)
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	p.Toaster.Toast(MsgCopied, ToastSuccess)
	return nil
}
