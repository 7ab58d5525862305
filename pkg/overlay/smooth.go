package overlay

import (
	"image"

	"github.com/maskcam/maskcam/pkg/nn"
)

// LandmarkSmoother is an exponential moving average over the sprite
// anchor triangle. Raw pose keypoints jitter by a pixel or two between
// frames, which makes an anchored sprite shimmer.
type LandmarkSmoother struct {
	Alpha float32 // Weight of the newest sample, in (0,1]
	last  []nn.Point
}

func NewLandmarkSmoother(alpha float32) *LandmarkSmoother {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.6
	}
	return &LandmarkSmoother{Alpha: alpha}
}

// Smooth folds the new landmarks into the running average. A change in
// landmark count resets the history.
func (s *LandmarkSmoother) Smooth(landmarks []nn.Point) []nn.Point {
	if len(s.last) != len(landmarks) {
		s.last = append([]nn.Point{}, landmarks...)
		return landmarks
	}
	out := make([]nn.Point, len(landmarks))
	for i, p := range landmarks {
		out[i] = nn.Point{
			X: s.Alpha*p.X + (1-s.Alpha)*s.last[i].X,
			Y: s.Alpha*p.Y + (1-s.Alpha)*s.last[i].Y,
		}
	}
	s.last = out
	return out
}

func (s *LandmarkSmoother) Reset() {
	s.last = nil
}

// boxBlurRGBA runs a separable box blur over a premultiplied-alpha RGBA
// image, in place. Used to feather mask edges and for the
// blurred-background mode.
func boxBlurRGBA(img *image.RGBA, radius int) {
	if radius <= 0 {
		return
	}
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w == 0 || h == 0 {
		return
	}
	tmp := make([]uint8, len(img.Pix))
	window := 2*radius + 1

	// Horizontal pass: img -> tmp
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		out := tmp[y*img.Stride : y*img.Stride+w*4]
		var sum [4]int
		for x := -radius; x <= radius; x++ {
			px := clampIndex(x, w)
			for c := 0; c < 4; c++ {
				sum[c] += int(row[px*4+c])
			}
		}
		for x := 0; x < w; x++ {
			for c := 0; c < 4; c++ {
				out[x*4+c] = uint8(sum[c] / window)
			}
			leave := clampIndex(x-radius, w)
			enter := clampIndex(x+radius+1, w)
			for c := 0; c < 4; c++ {
				sum[c] += int(row[enter*4+c]) - int(row[leave*4+c])
			}
		}
	}

	// Vertical pass: tmp -> img
	for x := 0; x < w; x++ {
		var sum [4]int
		for y := -radius; y <= radius; y++ {
			py := clampIndex(y, h)
			for c := 0; c < 4; c++ {
				sum[c] += int(tmp[py*img.Stride+x*4+c])
			}
		}
		for y := 0; y < h; y++ {
			for c := 0; c < 4; c++ {
				img.Pix[y*img.Stride+x*4+c] = uint8(sum[c] / window)
			}
			leave := clampIndex(y-radius, h)
			enter := clampIndex(y+radius+1, h)
			for c := 0; c < 4; c++ {
				sum[c] += int(tmp[enter*img.Stride+x*4+c]) - int(tmp[leave*img.Stride+x*4+c])
			}
		}
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
