// Package overlay maps machine-detection output (boxes, probability
// masks, keypoints) onto a view surface: it recovers the source image
// resolution from the detections themselves, computes a cover-fit
// letterbox transform, detects axis mirroring, rasterizes masks into
// screen-space fill rectangles, and composites the result.
package overlay

import (
	"errors"

	"github.com/chewxy/math32"
	"github.com/maskcam/maskcam/pkg/gen"
	"github.com/maskcam/maskcam/pkg/nn"
)

// ErrGeometryUnavailable means no detection yields a valid source-size
// inference, or the view has zero area. Callers skip overlay rendering
// for the frame; it is never fatal.
var ErrGeometryUnavailable = errors.New("overlay geometry unavailable")

// Geometry is the affine map from source-image pixel space to view
// pixel space for one frame. Created fresh per paint pass from the
// current detection set; never persisted.
type Geometry struct {
	SourceWidth  float32
	SourceHeight float32
	Scale        float32 // Cover fit: scaled source fills the view, cropping overflow in one axis
	DX           float32 // Letterbox offsets, may be negative when the source overflows the view
	DY           float32
}

// ResolveGeometry infers the source image size from the detections and
// builds the cover-fit transform into a view of the given size.
//
// The engines we consume report each box twice: normalized to [0,1] and
// in absolute source pixels. The ratio of the two recovers the source
// size without the engine ever telling us explicitly. Width and height
// are resolved independently; they need not come from the same
// detection. An explicit per-detection image size, when present, wins.
func ResolveGeometry(detections []nn.Detection, viewWidth, viewHeight float32) (Geometry, error) {
	if viewWidth <= 0 || viewHeight <= 0 {
		return Geometry{}, ErrGeometryUnavailable
	}
	sourceWidth := float32(0)
	sourceHeight := float32(0)
	for i := range detections {
		det := &detections[i]
		if sourceWidth <= 0 {
			if det.ImageWidth > 0 {
				sourceWidth = float32(det.ImageWidth)
			} else {
				sourceWidth = sizeRatio(det.Box.Width, det.NormalizedBox.Width)
			}
		}
		if sourceHeight <= 0 {
			if det.ImageHeight > 0 {
				sourceHeight = float32(det.ImageHeight)
			} else {
				sourceHeight = sizeRatio(det.Box.Height, det.NormalizedBox.Height)
			}
		}
		if sourceWidth > 0 && sourceHeight > 0 {
			break
		}
	}
	if sourceWidth <= 0 || sourceHeight <= 0 {
		return Geometry{}, ErrGeometryUnavailable
	}
	scale := math32.Max(viewWidth/sourceWidth, viewHeight/sourceHeight)
	return Geometry{
		SourceWidth:  sourceWidth,
		SourceHeight: sourceHeight,
		Scale:        scale,
		DX:           (viewWidth - sourceWidth*scale) / 2,
		DY:           (viewHeight - sourceHeight*scale) / 2,
	}, nil
}

// Candidate source dimension from an absolute/normalized box pair.
// Returns 0 if the pair is degenerate.
func sizeRatio(absolute, normalized float32) float32 {
	if normalized <= 0 || math32.IsNaN(normalized) || math32.IsInf(normalized, 0) || absolute <= 0 {
		return 0
	}
	ratio := absolute / normalized
	if math32.IsNaN(ratio) || math32.IsInf(ratio, 0) || ratio <= 0 {
		return 0
	}
	return ratio
}

// ProjectNormalizedRect maps a normalized source rect into view space.
// Coordinates are clamped to [0,1] first, and the output edges are
// re-resolved min/max per axis so axis-inverted input can't produce a
// rect with reversed edges.
func (g Geometry) ProjectNormalizedRect(r nn.Rect) nn.Rect {
	x1 := gen.Clamp(r.X, 0, 1)*g.SourceWidth*g.Scale + g.DX
	y1 := gen.Clamp(r.Y, 0, 1)*g.SourceHeight*g.Scale + g.DY
	x2 := gen.Clamp(r.Right(), 0, 1)*g.SourceWidth*g.Scale + g.DX
	y2 := gen.Clamp(r.Bottom(), 0, 1)*g.SourceHeight*g.Scale + g.DY
	return nn.RectFromEdges(x1, y1, x2, y2)
}

// ProjectNormalizedPoint maps a normalized source point into view space.
func (g Geometry) ProjectNormalizedPoint(p nn.Point) nn.Point {
	return nn.Point{
		X: gen.Clamp(p.X, 0, 1)*g.SourceWidth*g.Scale + g.DX,
		Y: gen.Clamp(p.Y, 0, 1)*g.SourceHeight*g.Scale + g.DY,
	}
}
