package imageio

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func TestImageIO(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ImageIO Suite")
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 32), G: uint8(y * 32), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage())).To(Succeed())
	return buf.Bytes()
}

func encodeJPEG() []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("ToPNG", func() {
	It("should pass PNG data through unchanged", func() {
		data := encodePNG()
		out, err := ToPNG(data, "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(data))
	})

	It("should convert JPEG data to decodable PNG", func() {
		out, err := ToPNG(encodeJPEG(), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())

		img, err := png.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(Equal(8))
		Expect(img.Bounds().Dy()).To(Equal(8))
	})

	It("should assume JPEG when no content type is given", func() {
		out, err := ToPNG(encodeJPEG(), "")
		Expect(err).NotTo(HaveOccurred())
		_, err = png.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should convert BMP data to decodable PNG", func() {
		var buf bytes.Buffer
		Expect(bmp.Encode(&buf, testImage())).To(Succeed())

		out, err := ToPNG(buf.Bytes(), "image/bmp")
		Expect(err).NotTo(HaveOccurred())
		_, err = png.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should convert TIFF data to decodable PNG", func() {
		var buf bytes.Buffer
		Expect(tiff.Encode(&buf, testImage(), nil)).To(Succeed())

		out, err := ToPNG(buf.Bytes(), "image/tiff")
		Expect(err).NotTo(HaveOccurred())
		_, err = png.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should fail on undecodable data", func() {
		_, err := ToPNG([]byte("not an image at all"), "image/jpeg")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Decode", func() {
	It("should decode PNG bytes", func() {
		img, err := Decode(encodePNG())
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(Equal(8))
	})

	It("should fail on garbage", func() {
		_, err := Decode([]byte{0xde, 0xad, 0xbe, 0xef})
		Expect(err).To(HaveOccurred())
	})

	It("should recognize the WebP container", func() {
		// A truncated but well-formed WebP header. A registered decoder
		// rejects the payload with its own error rather than falling
		// through to the unknown-format error.
		header := append([]byte("RIFF\x40\x00\x00\x00WEBPVP8 "), make([]byte, 64)...)
		_, err := Decode(header)
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(MatchError(image.ErrFormat))
	})
})

var _ = Describe("isHEIC", func() {
	It("should recognize the ftyp brands phones emit", func() {
		for _, brand := range []string{"heic", "heif", "mif1", "msf1"} {
			header := append([]byte{0, 0, 0, 24}, []byte("ftyp"+brand)...)
			Expect(isHEIC(header)).To(BeTrue(), brand)
		}
	})

	It("should reject other containers and short data", func() {
		Expect(isHEIC(encodePNG())).To(BeFalse())
		Expect(isHEIC([]byte("tiny"))).To(BeFalse())
		Expect(isHEIC(append([]byte{0, 0, 0, 24}, []byte("ftypisom")...))).To(BeFalse())
	})
})
