package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/maskcam/maskcam/pkg/nn"
	"github.com/stretchr/testify/require"
)

func solidFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// Full-frame person with the center third of the mask grid set
func centerMaskedCombined() *nn.CombinedFrame {
	mask := nn.NewMask(3, 3)
	mask.Set(1, 1, 1)
	return &nn.CombinedFrame{
		Segmentation: []nn.Detection{{
			Class:         0,
			Confidence:    0.9,
			NormalizedBox: nn.Rect{X: 0, Y: 0, Width: 1, Height: 1},
			Box:           nn.Rect{X: 0, Y: 0, Width: 100, Height: 100},
			Mask:          mask,
		}},
		FrameIndex: 1,
	}
}

func testCompositorOptions() Options {
	opts := DefaultOptions()
	opts.Background = BackgroundColor
	opts.BackgroundColor = color.RGBA{0, 255, 0, 255}
	opts.FeatherRadius = 0
	opts.AutoMirror = false
	return opts
}

func TestCompositeBackgroundReplacement(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	comp := NewCompositor(logs.NewTestingLog(t), testCompositorOptions())
	frame := solidFrame(100, 100, red)

	out := comp.Composite(frame, centerMaskedCombined(), 100, 100)
	require.NotNil(t, out)

	// Center of the mask: hole punched through, camera frame shows
	require.Equal(t, red, out.RGBAAt(50, 50))
	// Corner: outside the mask, replacement color covers the frame
	require.Equal(t, color.RGBA{0, 255, 0, 255}, out.RGBAAt(5, 5))
}

func TestCompositeNilCombined(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	comp := NewCompositor(logs.NewTestingLog(t), testCompositorOptions())
	frame := solidFrame(100, 100, red)

	out := comp.Composite(frame, nil, 100, 100)
	require.Equal(t, red, out.RGBAAt(5, 5))
	require.Equal(t, red, out.RGBAAt(50, 50))
}

func TestCompositeCacheHits(t *testing.T) {
	comp := NewCompositor(logs.NewTestingLog(t), testCompositorOptions())
	frame := solidFrame(100, 100, color.RGBA{255, 0, 0, 255})
	combined := centerMaskedCombined()

	comp.Composite(frame, combined, 100, 100)
	comp.Composite(frame, combined, 100, 100)

	stats := comp.Stats()
	require.Equal(t, int64(1), stats.CacheMisses)
	require.Equal(t, int64(1), stats.CacheHits)

	// A different view size needs a layer of different pixel dimensions,
	// so it must miss rather than replay the 100x100 picture
	comp.Composite(frame, combined, 101, 101)
	stats = comp.Stats()
	require.Equal(t, int64(2), stats.CacheMisses)
	require.Equal(t, int64(1), stats.CacheHits)
}

func TestCompositeBlurBackgroundBypassesCache(t *testing.T) {
	opts := testCompositorOptions()
	opts.Background = BackgroundBlur
	opts.BlurRadius = 2
	comp := NewCompositor(logs.NewTestingLog(t), opts)
	frame := solidFrame(100, 100, color.RGBA{255, 0, 0, 255})
	combined := centerMaskedCombined()

	comp.Composite(frame, combined, 100, 100)
	comp.Composite(frame, combined, 100, 100)

	stats := comp.Stats()
	require.Equal(t, int64(0), stats.CacheHits)
	require.Equal(t, int64(0), stats.CacheMisses)
}

func TestCompositeGeometryMiss(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	comp := NewCompositor(logs.NewTestingLog(t), testCompositorOptions())
	frame := solidFrame(100, 100, red)

	// Detections with degenerate boxes give no geometry; the frame is
	// returned without an overlay and the miss is counted
	combined := &nn.CombinedFrame{
		Segmentation: []nn.Detection{{NormalizedBox: nn.Rect{}, Box: nn.Rect{}}},
	}
	out := comp.Composite(frame, combined, 100, 100)
	require.Equal(t, red, out.RGBAAt(5, 5))
	require.Equal(t, int64(1), comp.Stats().GeometryMisses)
}

func TestCompositeFaceSprite(t *testing.T) {
	opts := testCompositorOptions()
	opts.Background = BackgroundNone
	opts.Sprite = solidFrame(10, 10, color.RGBA{0, 0, 255, 255})
	opts.SmoothingAlpha = 1 // no temporal smoothing in a single-frame test
	comp := NewCompositor(logs.NewTestingLog(t), opts)
	frame := solidFrame(100, 100, color.RGBA{255, 0, 0, 255})

	combined := &nn.CombinedFrame{
		Pose: []nn.Detection{{
			NormalizedBox: nn.Rect{X: 0.3, Y: 0.2, Width: 0.4, Height: 0.6},
			Box:           nn.Rect{X: 30, Y: 20, Width: 40, Height: 60},
			Keypoints: []nn.Point{
				{X: 0.5, Y: 0.5},
				{X: 0.4, Y: 0.4},
				{X: 0.6, Y: 0.4},
			},
		}},
	}
	out := comp.Composite(frame, combined, 100, 100)

	// The sprite triangle spans the nose at (50,50); blue must appear there
	px := out.RGBAAt(50, 48)
	require.Greater(t, px.B, uint8(128), "sprite pixels must land around the anchor triangle")
}
