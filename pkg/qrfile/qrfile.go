// Package qrfile renders payloads as QR images and reads frame images back
// from PNG, JPEG and PDF files.
package qrfile

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/decoder"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/xerrors"
)

const (
	// DefaultSize is the edge length, in pixels, of rendered QR codes.
	DefaultSize    = 512
	pdfPointsPerMM = 2.8346
)

// ErrNoImage is returned when a file holds no decodable image.
var ErrNoImage = errors.New("qrfile: no image found")

// IsFrameFile reports whether path has an extension ReadImage understands.
func IsFrameFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".pdf":
		return true
	}
	return false
}

// Encode renders payload as a size x size QR code with medium error correction.
func Encode(payload string, size int) (image.Image, error) {
	if size <= 0 {
		size = DefaultSize
	}
	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_ERROR_CORRECTION: decoder.ErrorCorrectionLevel_M,
	}
	m, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, size, size, hints)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode payload: %w", err)
	}
	return m, nil
}

// WriteFile renders payload and writes it to path. The format follows the
// extension: .png, .jpg/.jpeg or .pdf.
func WriteFile(path, payload string, size int) error {
	img, err := Encode(payload, size)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("failed to create file %s: %w", path, err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(file, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 95})
	case ".pdf":
		err = WritePDF(img, file)
	default:
		return xerrors.Errorf("unsupported output format %q", filepath.Ext(path))
	}
	if err != nil {
		return xerrors.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WritePDF embeds an image into a new single-page PDF and writes it to w.
func WritePDF(img image.Image, w io.Writer) error {
	// Encode the image to JPEG format in memory.
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return xerrors.Errorf("jpeg encoding failed: %w", err)
	}

	// Page size matches the image so the code fills it completely.
	widthMM := float64(img.Bounds().Dx()) / pdfPointsPerMM
	heightMM := float64(img.Bounds().Dy()) / pdfPointsPerMM
	pageSize := gofpdf.SizeType{Wd: widthMM, Ht: heightMM}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "mm",
		Size:    pageSize,
	})
	pdf.AddPageFormat("P", pageSize)

	options := gofpdf.ImageOptions{ImageType: "JPEG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("code.jpg", options, buf)
	pdf.ImageOptions("code.jpg", 0, 0, widthMM, heightMM, false, options, 0, "")

	return pdf.Output(w)
}

// ReadImage returns the first image stored in path.
func ReadImage(path string) (image.Image, error) {
	imgs, err := ReadImages(path)
	if err != nil {
		return nil, err
	}
	return imgs[0], nil
}

// ReadImages returns every image stored in path: one for PNG/JPEG files,
// all embedded images for PDFs.
func ReadImages(path string) ([]image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("could not open file %s: %w", path, err)
	}
	defer file.Close()

	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		img, _, err := image.Decode(file)
		if err != nil {
			return nil, xerrors.Errorf("image.Decode failed for %s: %w", path, err)
		}
		return []image.Image{img}, nil
	}

	// pdfcpu is used to extract raw image data from the PDF wrapper.
	extracted, err := api.ExtractImagesRaw(file, nil, nil)
	if err != nil {
		return nil, xerrors.Errorf("could not extract images from PDF %s: %w", path, err)
	}

	var imgs []image.Image
	for _, page := range extracted {
		for _, raw := range page {
			img, _, err := image.Decode(raw)
			if err != nil {
				// Masks and unsupported filters are skipped rather than fatal.
				continue
			}
			imgs = append(imgs, img)
		}
	}
	if len(imgs) == 0 {
		return nil, xerrors.Errorf("%s: %w", path, ErrNoImage)
	}
	return imgs, nil
}
