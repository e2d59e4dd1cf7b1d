package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// maxOCRDimension caps either side of the image fed to OCR. Larger
// scans slow the engines down without improving recognition.
const maxOCRDimension = 2048

// Preprocess prepares PNG receipt data for OCR and returns PNG bytes.
func Preprocess(pngData []byte) ([]byte, error) {
	img, err := Decode(pngData)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, PreprocessImage(img)); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// PreprocessImage caps the size, drops color, smooths sensor noise,
// lifts contrast and sharpens glyph edges.
func PreprocessImage(img image.Image) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() > maxOCRDimension || bounds.Dy() > maxOCRDimension {
		img = imaging.Fit(img, maxOCRDimension, maxOCRDimension, imaging.Lanczos)
	}
	gray := imaging.Grayscale(img)
	gray = imaging.Blur(gray, 0.5)
	gray = imaging.AdjustContrast(gray, 20)
	return imaging.Sharpen(gray, 1.0)
}
