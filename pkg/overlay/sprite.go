package overlay

import (
	"image"

	"github.com/maskcam/maskcam/pkg/nn"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// COCO pose keypoint indices used for face anchoring
const (
	kpNose     = 0
	kpLeftEye  = 1
	kpRightEye = 2
)

// SpriteCalibration locates the anchor triangle on the sprite template,
// as fractions of the sprite's width and height. These are tunable
// calibration parameters, not algorithmic invariants; the defaults come
// from the reference sprite artwork.
type SpriteCalibration struct {
	EyeLeftX  float64 // Horizontal position of the left eye anchor
	EyeRightX float64 // Horizontal position of the right eye anchor
	EyeY      float64 // Vertical position of both eye anchors
	NoseX     float64
	NoseY     float64

	// Keypoints with confidence below this are treated as absent.
	// Zero disables the gate (some engines omit confidences entirely).
	MinKeypointConfidence float32
}

func DefaultSpriteCalibration() SpriteCalibration {
	return SpriteCalibration{
		EyeLeftX:              0.33,
		EyeRightX:             0.67,
		EyeY:                  0.36,
		NoseX:                 0.50,
		NoseY:                 0.46,
		MinKeypointConfidence: 0,
	}
}

// faceAnchor extracts the view-space nose/eye triangle for the given
// pose detection, or ok=false if the face isn't usable this frame.
// If the engine reports the left eye to the right of the right eye
// (mirrored input), the eyes are swapped so the sprite stays upright.
func faceAnchor(det *nn.Detection, geom Geometry, cal SpriteCalibration) (eyeL, eyeR, nose nn.Point, ok bool) {
	if len(det.Keypoints) <= kpRightEye {
		return
	}
	for _, kp := range []int{kpNose, kpLeftEye, kpRightEye} {
		if len(det.KeypointConfidences) > kp && det.KeypointConfidences[kp] < cal.MinKeypointConfidence {
			return
		}
		// The engines emit (0,0) for keypoints they failed to localize
		p := det.Keypoints[kp]
		if p.X <= 0 || p.Y <= 0 {
			return
		}
	}
	eyeL = geom.ProjectNormalizedPoint(det.Keypoints[kpLeftEye])
	eyeR = geom.ProjectNormalizedPoint(det.Keypoints[kpRightEye])
	nose = geom.ProjectNormalizedPoint(det.Keypoints[kpNose])
	if eyeL.X > eyeR.X {
		eyeL, eyeR = eyeR, eyeL
	}
	if eyeL.Distance(eyeR) < 1 {
		// Eyes collapsed to a point; the affine solve would blow up
		return eyeL, eyeR, nose, false
	}
	return eyeL, eyeR, nose, true
}

// drawSprite warps the sprite so its calibrated anchor triangle lands
// on the detected (smoothed) landmark triangle, then alpha-blends it
// over dst.
func drawSprite(dst *image.RGBA, sprite image.Image, cal SpriteCalibration, eyeL, eyeR, nose nn.Point) bool {
	sb := sprite.Bounds()
	sw := float64(sb.Dx())
	sh := float64(sb.Dy())
	if sw == 0 || sh == 0 {
		return false
	}
	src := [3]nn.Point{
		{X: float32(sw * cal.EyeLeftX), Y: float32(sh * cal.EyeY)},
		{X: float32(sw * cal.EyeRightX), Y: float32(sh * cal.EyeY)},
		{X: float32(sw * cal.NoseX), Y: float32(sh * cal.NoseY)},
	}
	aff, ok := affineFromTriangles(src, [3]nn.Point{eyeL, eyeR, nose})
	if !ok {
		return false
	}
	draw.BiLinear.Transform(dst, aff, sprite, sb, draw.Over, nil)
	return true
}

// affineFromTriangles solves the 2x3 affine transform mapping three
// source points onto three destination points (Cramer's rule).
func affineFromTriangles(src, dst [3]nn.Point) (f64.Aff3, bool) {
	x1, y1 := float64(src[0].X), float64(src[0].Y)
	x2, y2 := float64(src[1].X), float64(src[1].Y)
	x3, y3 := float64(src[2].X), float64(src[2].Y)
	det := x1*(y2-y3) - y1*(x2-x3) + (x2*y3 - x3*y2)
	if det > -1e-6 && det < 1e-6 {
		return f64.Aff3{}, false
	}
	solve := func(u1, u2, u3 float64) (a, b, c float64) {
		a = (u1*(y2-y3) + u2*(y3-y1) + u3*(y1-y2)) / det
		b = (u1*(x3-x2) + u2*(x1-x3) + u3*(x2-x1)) / det
		c = (u1*(x2*y3-x3*y2) + u2*(x3*y1-x1*y3) + u3*(x1*y2-x2*y1)) / det
		return
	}
	a, b, c := solve(float64(dst[0].X), float64(dst[1].X), float64(dst[2].X))
	d, e, f := solve(float64(dst[0].Y), float64(dst[1].Y), float64(dst[2].Y))
	return f64.Aff3{a, b, c, d, e, f}, true
}
