package postfx

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/exp/rand"
	"golang.org/x/image/draw"
)

// BlueNoiseTextureDim is the side length of the shared noise lookup
// textures; shaders wrap coordinates with `& (dim - 1)`.
const BlueNoiseTextureDim = 128

// generateNoisePixels builds an RG8 spatio-temporal noise table. Each
// channel is a randomly permuted low-discrepancy (R2) sequence, which keeps
// per-pixel values uniformly distributed while neighbors stay decorrelated.
func generateNoisePixels(seed uint64) []byte {
	const n = BlueNoiseTextureDim * BlueNoiseTextureDim
	rng := rand.New(rand.NewSource(seed))

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

	// Generalized golden ratio (R2 sequence) increments.
	const g = 1.32471795724474602596
	const a1 = 1.0 / g
	const a2 = 1.0 / (g * g)

	pixels := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(perm[i])
		r := a1 * t
		s := a2 * t
		pixels[i*2+0] = byte((r - float64(int(r))) * 255.0)
		pixels[i*2+1] = byte((s - float64(int(s))) * 255.0)
	}
	return pixels
}

// LoadNoisePixels reads a noise image from disk and resamples it to the
// shared lookup dimensions, returning RG8 texel data. Hosts with a real
// blue-noise asset use this instead of the generated table.
func LoadNoisePixels(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, BlueNoiseTextureDim, BlueNoiseTextureDim))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	pixels := make([]byte, BlueNoiseTextureDim*BlueNoiseTextureDim*2)
	for i := 0; i < BlueNoiseTextureDim*BlueNoiseTextureDim; i++ {
		pixels[i*2+0] = dst.Pix[i*4+0]
		pixels[i*2+1] = dst.Pix[i*4+1]
	}
	return pixels, nil
}
