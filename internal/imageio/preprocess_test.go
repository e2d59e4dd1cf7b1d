package imageio

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Preprocess", func() {
	encode := func(img image.Image) []byte {
		var buf bytes.Buffer
		Expect(png.Encode(&buf, img)).To(Succeed())
		return buf.Bytes()
	}

	It("should return decodable PNG bytes", func() {
		out, err := Preprocess(encodePNG())
		Expect(err).NotTo(HaveOccurred())
		_, err = png.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should fail on undecodable input", func() {
		_, err := Preprocess([]byte("not a png"))
		Expect(err).To(HaveOccurred())
	})

	It("should cap oversized scans", func() {
		wide := image.NewRGBA(image.Rect(0, 0, 4096, 100))
		out, err := Preprocess(encode(wide))
		Expect(err).NotTo(HaveOccurred())

		img, err := png.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(BeNumerically("<=", 2048))
		Expect(img.Bounds().Dy()).To(BeNumerically("<=", 2048))
	})

	It("should keep small images at their size", func() {
		out, err := Preprocess(encodePNG())
		Expect(err).NotTo(HaveOccurred())

		img, err := png.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(Equal(8))
		Expect(img.Bounds().Dy()).To(Equal(8))
	})

	It("should drop color", func() {
		colorful := image.NewRGBA(image.Rect(0, 0, 16, 16))
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				colorful.Set(x, y, color.RGBA{R: 200, G: 30, B: 90, A: 255})
			}
		}

		processed := PreprocessImage(colorful)
		r, g, b, _ := processed.At(8, 8).RGBA()
		Expect(g).To(Equal(r))
		Expect(b).To(Equal(r))
	})
})
