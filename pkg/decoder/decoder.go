// Package decoder turns raw RGBA frames into decoded QR/barcode text. The
// decoding itself is delegated to gozxing; Worker runs it on its own
// goroutine so sampling never waits on a slow frame.
package decoder

import (
	"errors"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"golang.org/x/xerrors"
)

// ErrBadFrame is returned when a pixel buffer does not match its dimensions.
var ErrBadFrame = errors.New("decoder: pixel buffer does not match frame size")

// Decoder is the black box used by the worker. Decode returns the payload
// found in an RGBA buffer of width*height pixels, or "" with a nil error when
// the frame holds no readable code.
type Decoder interface {
	Decode(pixels []byte, width, height int) (string, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(pixels []byte, width, height int) (string, error)

func (f DecoderFunc) Decode(pixels []byte, width, height int) (string, error) {
	return f(pixels, width, height)
}

// Zxing decodes QR codes first and falls back to common 1D symbologies.
type Zxing struct {
	qr      gozxing.Reader
	oned    []gozxing.Reader
	qrHints map[gozxing.DecodeHintType]interface{}
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewZxing creates a decoder with the QR reader and the Code128, EAN-13 and
// Code39 readers.
func NewZxing() *Zxing {
	return &Zxing{
		qr: qrcode.NewQRCodeReader(),
		oned: []gozxing.Reader{
			oned.NewCode128Reader(),
			oned.NewEAN13Reader(),
			oned.NewCode39Reader(),
		},
		qrHints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Decode implements Decoder.
func (z *Zxing) Decode(pixels []byte, width, height int) (string, error) {
	img, err := FrameImage(pixels, width, height)
	if err != nil {
		return "", err
	}
	return z.DecodeImage(img)
}

// DecodeImage decodes any image, trying the normal and inverted luminance
// for QR codes before the 1D readers.
func (z *Zxing) DecodeImage(img image.Image) (string, error) {
	src := gozxing.NewLuminanceSourceFromImage(img)

	for _, s := range []gozxing.LuminanceSource{src, src.Invert()} {
		bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(s))
		if err != nil {
			return "", xerrors.Errorf("failed to binarize frame: %w", err)
		}
		text, err := decodeWith(z.qr, bmp, z.qrHints)
		if err != nil || text != "" {
			return text, err
		}
	}

	bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(src))
	if err != nil {
		return "", xerrors.Errorf("failed to binarize frame: %w", err)
	}
	for _, r := range z.oned {
		text, err := decodeWith(r, bmp, z.hints)
		if err != nil || text != "" {
			return text, err
		}
	}
	return "", nil
}

// decodeWith runs one reader. Not-found, checksum and format failures are
// the normal outcome for a frame without a (complete) code and map to "".
func decodeWith(r gozxing.Reader, bmp *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) (string, error) {
	defer r.Reset()
	res, err := r.Decode(bmp, hints)
	if err == nil {
		return res.GetText(), nil
	}
	var (
		notFound gozxing.NotFoundException
		checksum gozxing.ChecksumException
		format   gozxing.FormatException
	)
	if errors.As(err, &notFound) || errors.As(err, &checksum) || errors.As(err, &format) {
		return "", nil
	}
	return "", xerrors.Errorf("decode failed: %w", err)
}

// FrameImage wraps an RGBA buffer as an image without copying.
func FrameImage(pixels []byte, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 || len(pixels) != 4*width*height {
		return nil, xerrors.Errorf("%dx%d frame with %d bytes: %w", width, height, len(pixels), ErrBadFrame)
	}
	return &image.RGBA{
		Pix:    pixels,
		Stride: 4 * width,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}
