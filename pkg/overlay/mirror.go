package overlay

import (
	"github.com/maskcam/maskcam/pkg/nn"
)

// Mirroring says which axes the upstream pipeline has flipped, relative
// to the coordinate space our geometry predicts. Front cameras mirror
// horizontally; some tensor layouts arrive upside down.
type Mirroring struct {
	FlipH bool
	FlipV bool
}

// A flip hypothesis must beat the current best by this margin (in
// view-space units) before we switch to it. Without the margin, numeric
// noise between frames makes the overlay flip-flicker.
const mirrorBias = 0.5

// DetectMirroring compares the projection of the reference detection's
// normalized box against its view-space bounding box, under all four
// flip hypotheses, and picks the closest. If there is no usable
// reference, the fallback wins.
func DetectMirroring(geom Geometry, viewWidth, viewHeight float32, reference *nn.Detection, fallback Mirroring) Mirroring {
	if viewWidth <= 0 || viewHeight <= 0 || reference == nil ||
		reference.NormalizedBox.IsEmpty() || reference.Box.IsEmpty() {
		return fallback
	}
	predicted := geom.ProjectNormalizedRect(reference.NormalizedBox)
	actual := reference.Box

	best := Mirroring{}
	bestDistance := predicted.EdgeDistance(actual)

	// Evaluate horizontal, then vertical, then combined, updating the
	// running best each time a candidate wins by the full margin.
	candidates := []Mirroring{
		{FlipH: true},
		{FlipV: true},
		{FlipH: true, FlipV: true},
	}
	for _, c := range candidates {
		variant := predicted
		if c.FlipH {
			variant = mirrorRectH(variant, viewWidth)
		}
		if c.FlipV {
			variant = mirrorRectV(variant, viewHeight)
		}
		d := variant.EdgeDistance(actual)
		if d < bestDistance-mirrorBias {
			best = c
			bestDistance = d
		}
	}
	return best
}

func mirrorRectH(r nn.Rect, viewWidth float32) nn.Rect {
	return nn.RectFromEdges(viewWidth-r.Right(), r.Y, viewWidth-r.X, r.Bottom())
}

func mirrorRectV(r nn.Rect, viewHeight float32) nn.Rect {
	return nn.RectFromEdges(r.X, viewHeight-r.Bottom(), r.Right(), viewHeight-r.Y)
}
