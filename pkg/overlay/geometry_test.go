package overlay

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/maskcam/maskcam/pkg/nn"
	"github.com/stretchr/testify/require"
)

func fullFrameDetection(sourceWidth, sourceHeight float32) nn.Detection {
	return nn.Detection{
		NormalizedBox: nn.Rect{X: 0, Y: 0, Width: 1, Height: 1},
		Box:           nn.Rect{X: 0, Y: 0, Width: sourceWidth, Height: sourceHeight},
	}
}

func TestResolveGeometryIdentity(t *testing.T) {
	// A full-frame detection in a view of the same size is the identity transform
	det := fullFrameDetection(640, 480)
	geom, err := ResolveGeometry([]nn.Detection{det}, 640, 480)
	require.NoError(t, err)
	require.Equal(t, float32(640), geom.SourceWidth)
	require.Equal(t, float32(480), geom.SourceHeight)
	require.Equal(t, float32(1), geom.Scale)

	projected := geom.ProjectNormalizedRect(det.NormalizedBox)
	require.InDelta(t, 0, projected.X, 1e-6)
	require.InDelta(t, 0, projected.Y, 1e-6)
	require.InDelta(t, 640, projected.Width, 1e-6)
	require.InDelta(t, 480, projected.Height, 1e-6)
}

func TestResolveGeometryCoverFit(t *testing.T) {
	// Cover fit must fill the view in both axes, whatever the aspect ratios
	cases := []struct {
		sourceW, sourceH float32
		viewW, viewH     float32
	}{
		{640, 480, 1280, 720},
		{1920, 1080, 360, 640}, // landscape source in a portrait view
		{320, 240, 320, 240},
		{100, 400, 400, 100},
	}
	for _, c := range cases {
		geom, err := ResolveGeometry([]nn.Detection{fullFrameDetection(c.sourceW, c.sourceH)}, c.viewW, c.viewH)
		require.NoError(t, err)
		require.GreaterOrEqual(t, geom.Scale*geom.SourceWidth, c.viewW-1e-3)
		require.GreaterOrEqual(t, geom.Scale*geom.SourceHeight, c.viewH-1e-3)
		// Offsets center the scaled source
		require.InDelta(t, float64((c.viewW-geom.Scale*c.sourceW)/2), float64(geom.DX), 1e-3)
		require.InDelta(t, float64((c.viewH-geom.Scale*c.sourceH)/2), float64(geom.DY), 1e-3)
	}
}

func TestResolveGeometryIndependentAxes(t *testing.T) {
	// Width comes from the first detection with a usable width, height may
	// come from a different detection
	widthOnly := nn.Detection{
		NormalizedBox: nn.Rect{X: 0, Y: 0, Width: 0.5, Height: 0},
		Box:           nn.Rect{X: 0, Y: 0, Width: 320, Height: 0},
	}
	heightOnly := nn.Detection{
		NormalizedBox: nn.Rect{X: 0, Y: 0, Width: 0, Height: 0.25},
		Box:           nn.Rect{X: 0, Y: 0, Width: 0, Height: 120},
	}
	geom, err := ResolveGeometry([]nn.Detection{widthOnly, heightOnly}, 640, 480)
	require.NoError(t, err)
	require.Equal(t, float32(640), geom.SourceWidth)
	require.Equal(t, float32(480), geom.SourceHeight)
}

func TestResolveGeometryExplicitSizeWins(t *testing.T) {
	det := fullFrameDetection(640, 480)
	det.ImageWidth = 1920
	det.ImageHeight = 1080
	geom, err := ResolveGeometry([]nn.Detection{det}, 640, 480)
	require.NoError(t, err)
	require.Equal(t, float32(1920), geom.SourceWidth)
	require.Equal(t, float32(1080), geom.SourceHeight)
}

func TestResolveGeometryUnavailable(t *testing.T) {
	// No detections
	_, err := ResolveGeometry(nil, 640, 480)
	require.ErrorIs(t, err, ErrGeometryUnavailable)

	// Degenerate view
	_, err = ResolveGeometry([]nn.Detection{fullFrameDetection(640, 480)}, 0, 480)
	require.ErrorIs(t, err, ErrGeometryUnavailable)

	// Degenerate boxes
	degenerate := nn.Detection{
		NormalizedBox: nn.Rect{X: 0, Y: 0, Width: 0, Height: 0},
		Box:           nn.Rect{X: 0, Y: 0, Width: 100, Height: 100},
	}
	_, err = ResolveGeometry([]nn.Detection{degenerate}, 640, 480)
	require.ErrorIs(t, err, ErrGeometryUnavailable)

	// NaN ratio
	nan := nn.Detection{
		NormalizedBox: nn.Rect{X: 0, Y: 0, Width: math32.NaN(), Height: 1},
		Box:           nn.Rect{X: 0, Y: 0, Width: 640, Height: 480},
	}
	_, err = ResolveGeometry([]nn.Detection{nan}, 640, 480)
	require.ErrorIs(t, err, ErrGeometryUnavailable)
}

func TestProjectNormalizedRectClamps(t *testing.T) {
	geom := Geometry{SourceWidth: 100, SourceHeight: 100, Scale: 1}
	// Coordinates beyond [0,1] clamp to the source edges
	projected := geom.ProjectNormalizedRect(nn.Rect{X: -0.5, Y: 0.5, Width: 3, Height: 1})
	require.Equal(t, float32(0), projected.X)
	require.Equal(t, float32(100), projected.Width)
	require.Equal(t, float32(50), projected.Y)
	require.Equal(t, float32(50), projected.Height)
}
