package overlay

import (
	"testing"

	"github.com/maskcam/maskcam/pkg/nn"
	"github.com/stretchr/testify/require"
)

// A deliberately off-center box, so the four flip hypotheses are far apart
func mirrorTestDetection(geom Geometry, viewW, viewH float32, flipH, flipV bool) nn.Detection {
	normalized := nn.Rect{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.25}
	box := geom.ProjectNormalizedRect(normalized)
	if flipH {
		box = mirrorRectH(box, viewW)
	}
	if flipV {
		box = mirrorRectV(box, viewH)
	}
	return nn.Detection{NormalizedBox: normalized, Box: box}
}

func TestDetectMirroring(t *testing.T) {
	geom, err := ResolveGeometry([]nn.Detection{fullFrameDetection(640, 480)}, 640, 480)
	require.NoError(t, err)

	cases := []struct {
		flipH, flipV bool
	}{
		{false, false},
		{true, false},
		{false, true},
		{true, true},
	}
	for _, c := range cases {
		ref := mirrorTestDetection(geom, 640, 480, c.flipH, c.flipV)
		m := DetectMirroring(geom, 640, 480, &ref, Mirroring{})
		require.Equal(t, Mirroring{FlipH: c.flipH, FlipV: c.flipV}, m, "flipH=%v flipV=%v", c.flipH, c.flipV)
	}
}

func TestDetectMirroringFallback(t *testing.T) {
	geom := Geometry{SourceWidth: 640, SourceHeight: 480, Scale: 1}
	fallback := Mirroring{FlipH: true}

	require.Equal(t, fallback, DetectMirroring(geom, 640, 480, nil, fallback))

	empty := nn.Detection{}
	require.Equal(t, fallback, DetectMirroring(geom, 640, 480, &empty, fallback))

	ref := fullFrameDetection(640, 480)
	require.Equal(t, fallback, DetectMirroring(geom, 0, 480, &ref, fallback))
}

func TestDetectMirroringHysteresis(t *testing.T) {
	geom, err := ResolveGeometry([]nn.Detection{fullFrameDetection(640, 480)}, 640, 480)
	require.NoError(t, err)

	// A box almost exactly centered: its horizontal mirror is a fraction
	// of a view unit away from the unflipped hypothesis. The bias margin
	// must keep the no-flip hypothesis to stop flicker.
	normalized := nn.Rect{X: 0.5, Y: 0.2, Width: 0.0002, Height: 0.25}
	ref := nn.Detection{
		NormalizedBox: normalized,
		Box:           mirrorRectH(geom.ProjectNormalizedRect(normalized), 640),
	}
	m := DetectMirroring(geom, 640, 480, &ref, Mirroring{})
	require.False(t, m.FlipH, "a sub-bias improvement must not trigger a flip")
}
