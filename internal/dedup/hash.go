// Package dedup finds near-duplicate receipt images with 64-bit
// perceptual hashes, backed by a structural pixel comparison for
// borderline pairs.
package dedup

import (
	"fmt"
	"image"
	"math"
	"math/bits"
	"sort"
	"strconv"

	"github.com/disintegration/imaging"
)

// Method selects the perceptual hash algorithm.
type Method string

const (
	// MethodPHash thresholds the low-frequency DCT block. Robust
	// against rescaling and recompression.
	MethodPHash Method = "phash"
	// MethodDHash compares horizontally adjacent pixels. Cheapest.
	MethodDHash Method = "dhash"
	// MethodBlurHash thresholds the high-frequency residue left after
	// a Gaussian blur.
	MethodBlurHash Method = "blurhash"
)

const hashSize = 8 // 8x8 = 64 bits

// Hash computes the 64-bit perceptual hash of an image and renders it
// as a fixed-width hex string.
func Hash(img image.Image, method Method) (string, error) {
	var h uint64
	switch method {
	case MethodPHash:
		h = perceptualHash(img)
	case MethodDHash:
		h = differenceHash(img)
	case MethodBlurHash:
		h = blurHash(img)
	default:
		return "", fmt.Errorf("unknown hash method %q", method)
	}
	return fmt.Sprintf("%016x", h), nil
}

// Similarity maps the Hamming distance between two hashes onto [0,1],
// where 1.0 means identical. Malformed hashes score 0.
func Similarity(hash1, hash2 string) float64 {
	a, err1 := strconv.ParseUint(hash1, 16, 64)
	b, err2 := strconv.ParseUint(hash2, 16, 64)
	if err1 != nil || err2 != nil {
		return 0.0
	}

	distance := bits.OnesCount64(a ^ b)
	similarity := 1.0 - float64(distance)/64.0
	if similarity < 0 {
		return 0.0
	}
	return similarity
}

// perceptualHash resizes to 32x32, applies a 2D DCT and thresholds the
// 8x8 low-frequency block against its median.
func perceptualHash(img image.Image) uint64 {
	const side = hashSize * 4
	gray := grayMatrix(img, side, side)

	low := dctLowBlock(gray, hashSize)

	flat := make([]float64, 0, hashSize*hashSize)
	for _, row := range low {
		flat = append(flat, row...)
	}
	return packBits(flat, median(flat))
}

// differenceHash resizes to 9x8 and records whether each pixel is
// brighter than its left neighbor.
func differenceHash(img image.Image) uint64 {
	gray := grayMatrix(img, hashSize+1, hashSize)

	var h uint64
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			h <<= 1
			if gray[y][x+1] > gray[y][x] {
				h |= 1
			}
		}
	}
	return h
}

// blurHash resizes to 16x16, subtracts a Gaussian-blurred copy to keep
// only the detail the blur removed, then reduces to 8x8 and thresholds
// against the median.
func blurHash(img image.Image) uint64 {
	const side = hashSize * 2
	resized := imaging.Resize(imaging.Grayscale(img), side, side, imaging.Lanczos)
	blurred := imaging.Blur(resized, 1.0)

	diff := make([][]float64, side)
	for y := 0; y < side; y++ {
		diff[y] = make([]float64, side)
		for x := 0; x < side; x++ {
			diff[y][x] = luminance(resized, x, y) - luminance(blurred, x, y)
		}
	}

	// Average 2x2 blocks down to the final 8x8 grid.
	flat := make([]float64, 0, hashSize*hashSize)
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			sum := diff[2*y][2*x] + diff[2*y][2*x+1] + diff[2*y+1][2*x] + diff[2*y+1][2*x+1]
			flat = append(flat, sum/4)
		}
	}
	return packBits(flat, median(flat))
}

// grayMatrix resizes the image and returns its luminance values as a
// height x width matrix.
func grayMatrix(img image.Image, width, height int) [][]float64 {
	resized := imaging.Resize(imaging.Grayscale(img), width, height, imaging.Lanczos)

	m := make([][]float64, height)
	for y := 0; y < height; y++ {
		m[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			m[y][x] = luminance(resized, x, y)
		}
	}
	return m
}

// luminance reads the red channel, which equals the gray level after
// imaging.Grayscale.
func luminance(img *image.NRGBA, x, y int) float64 {
	return float64(img.Pix[y*img.Stride+x*4])
}

// dctLowBlock computes the top-left size x size block of the 2D DCT-II
// of a square matrix. The transform is separable, so only the needed
// coefficients are computed.
func dctLowBlock(m [][]float64, size int) [][]float64 {
	n := len(m)
	scale := math.Pi / (2 * float64(n))

	// First pass: DCT along rows, keeping size coefficients per row.
	rows := make([][]float64, n)
	for y := 0; y < n; y++ {
		rows[y] = make([]float64, size)
		for v := 0; v < size; v++ {
			var sum float64
			for x := 0; x < n; x++ {
				sum += m[y][x] * math.Cos(float64(2*x+1)*float64(v)*scale)
			}
			rows[y][v] = sum
		}
	}

	// Second pass: DCT down columns of the intermediate result.
	block := make([][]float64, size)
	for u := 0; u < size; u++ {
		block[u] = make([]float64, size)
		for v := 0; v < size; v++ {
			var sum float64
			for y := 0; y < n; y++ {
				sum += rows[y][v] * math.Cos(float64(2*y+1)*float64(u)*scale)
			}
			block[u][v] = sum
		}
	}
	return block
}

// packBits sets one bit per value, MSB first, for values above the
// threshold.
func packBits(values []float64, threshold float64) uint64 {
	var h uint64
	for _, v := range values {
		h <<= 1
		if v > threshold {
			h |= 1
		}
	}
	return h
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// structuralSimilarity resizes both images to their common dimensions
// and maps the PSNR of the pixel difference onto [0,1]. It is a rough
// stand-in for SSIM that is good enough to confirm a hash match.
func structuralSimilarity(img1, img2 image.Image) float64 {
	b1, b2 := img1.Bounds(), img2.Bounds()
	width := min(b1.Dx(), b2.Dx())
	height := min(b1.Dy(), b2.Dy())
	if width == 0 || height == 0 {
		return 0.0
	}

	g1 := imaging.Resize(imaging.Grayscale(img1), width, height, imaging.Lanczos)
	g2 := imaging.Resize(imaging.Grayscale(img2), width, height, imaging.Lanczos)

	var mse float64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := luminance(g1, x, y) - luminance(g2, x, y)
			mse += d * d
		}
	}
	mse /= float64(width * height)

	if mse == 0 {
		return 1.0
	}

	psnr := 20 * math.Log10(255.0/math.Sqrt(mse))
	switch {
	case psnr >= 50:
		return 1.0
	case psnr <= 0:
		return 0.0
	default:
		return psnr / 50.0
	}
}
