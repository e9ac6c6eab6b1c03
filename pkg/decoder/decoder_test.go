package decoder

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync/atomic"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rgbaFrame renders img into a fresh RGBA buffer of the same size.
func rgbaFrame(t *testing.T, img image.Image) *image.RGBA {
	t.Helper()
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func qrFrame(t *testing.T, payload string, size int) *image.RGBA {
	t.Helper()
	m, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	require.NoError(t, err)
	return rgbaFrame(t, m)
}

func TestZxingDecodesQR(t *testing.T) {
	payloads := []string{
		"https://example.com/shop?item=42",
		"tel:13800138000",
		"110101199003071234",
		"hello, world",
	}
	z := NewZxing()
	for _, p := range payloads {
		t.Run(p, func(t *testing.T) {
			frame := qrFrame(t, p, 300)
			text, err := z.Decode(frame.Pix, 300, 300)
			require.NoError(t, err)
			assert.Equal(t, p, text)
		})
	}
}

func TestZxingDecodesInvertedQR(t *testing.T) {
	frame := qrFrame(t, "inverted", 240)
	for i := 0; i < len(frame.Pix); i += 4 {
		frame.Pix[i], frame.Pix[i+1], frame.Pix[i+2] = 255-frame.Pix[i], 255-frame.Pix[i+1], 255-frame.Pix[i+2]
	}

	text, err := NewZxing().Decode(frame.Pix, 240, 240)

	require.NoError(t, err)
	assert.Equal(t, "inverted", text)
}

func TestZxingDecodesBarcode(t *testing.T) {
	m, err := oned.NewCode128Writer().Encode("SKU-00042", gozxing.BarcodeFormat_CODE_128, 400, 120, nil)
	require.NoError(t, err)
	frame := rgbaFrame(t, m)

	text, err := NewZxing().Decode(frame.Pix, 400, 120)

	require.NoError(t, err)
	assert.Equal(t, "SKU-00042", text)
}

func TestZxingBlankFrameIsAbsent(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 120, 120))
	draw.Draw(frame, frame.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	text, err := NewZxing().Decode(frame.Pix, 120, 120)

	assert.NoError(t, err)
	assert.Empty(t, text)
}

func TestFrameImageRejectsMismatchedBuffer(t *testing.T) {
	tests := []struct {
		name          string
		size          int
		width, height int
	}{
		{"short buffer", 10, 4, 4},
		{"zero width", 0, 0, 4},
		{"negative height", 16, 2, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FrameImage(make([]byte, tt.size), tt.width, tt.height)
			assert.ErrorIs(t, err, ErrBadFrame)
		})
	}
}

func TestWorkerRoundTrip(t *testing.T) {
	w := NewWorker(NewZxing())
	defer w.Close()

	frame := qrFrame(t, "worker", 200)
	require.True(t, w.Submit(Request{Pixels: frame.Pix, Width: 200, Height: 200}))

	select {
	case resp := <-w.Responses():
		require.NoError(t, resp.Err)
		assert.Equal(t, "worker", resp.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("no response from worker")
	}
}

func TestWorkerReportsBadFrame(t *testing.T) {
	w := NewWorker(NewZxing())
	defer w.Close()

	require.True(t, w.Submit(Request{Pixels: []byte{1, 2, 3}, Width: 10, Height: 10}))
	resp := <-w.Responses()
	assert.ErrorIs(t, resp.Err, ErrBadFrame)
	assert.Empty(t, resp.Text)
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	var calls atomic.Int32
	w := NewWorker(DecoderFunc(func(pixels []byte, width, height int) (string, error) {
		if calls.Add(1) == 1 {
			panic("corrupt frame")
		}
		return "second", nil
	}))
	defer w.Close()

	require.True(t, w.Submit(Request{}))
	first := <-w.Responses()
	assert.Error(t, first.Err)

	require.True(t, w.Submit(Request{}))
	second := <-w.Responses()
	assert.NoError(t, second.Err)
	assert.Equal(t, "second", second.Text)
}

func TestWorkerSubmitIsNonBlocking(t *testing.T) {
	release := make(chan struct{})
	w := NewWorker(DecoderFunc(func([]byte, int, int) (string, error) {
		<-release
		return "", nil
	}))

	assert.True(t, w.Submit(Request{}))
	// Either queued in the buffer or picked up; eventually a further submit is refused.
	assert.Eventually(t, func() bool {
		w.Submit(Request{})
		return !w.Submit(Request{})
	}, time.Second, 5*time.Millisecond)

	close(release)
	w.Close()
	w.Close()
	assert.False(t, w.Submit(Request{}), "closed worker accepts nothing")
}

func TestWorkerPropagatesDecoderError(t *testing.T) {
	boom := errors.New("sensor noise")
	w := NewWorker(DecoderFunc(func([]byte, int, int) (string, error) { return "", boom }))
	defer w.Close()

	require.True(t, w.Submit(Request{}))
	assert.ErrorIs(t, (<-w.Responses()).Err, boom)
}
