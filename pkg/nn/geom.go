package nn

import (
	"github.com/chewxy/math32"
)

type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

func (p Point) Distance(b Point) float32 {
	return math32.Sqrt((p.X-b.X)*(p.X-b.X) + (p.Y-b.Y)*(p.Y-b.Y))
}

type Rect struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

// RectFromEdges builds a rect from two corner points, resolving min/max
// per axis so that axis-inverted input can't produce negative extents.
func RectFromEdges(x1, y1, x2, y2 float32) Rect {
	return Rect{
		X:      math32.Min(x1, x2),
		Y:      math32.Min(y1, y2),
		Width:  math32.Abs(x2 - x1),
		Height: math32.Abs(y2 - y1),
	}
}

func (r Rect) Right() float32 {
	return r.X + r.Width
}

func (r Rect) Bottom() float32 {
	return r.Y + r.Height
}

func (r Rect) Area() float32 {
	return r.Width * r.Height
}

func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rect) Center() Point {
	return Point{
		X: r.X + r.Width/2,
		Y: r.Y + r.Height/2,
	}
}

func (r Rect) Intersection(b Rect) Rect {
	x1 := math32.Max(r.X, b.X)
	y1 := math32.Max(r.Y, b.Y)
	x2 := math32.Min(r.Right(), b.Right())
	y2 := math32.Min(r.Bottom(), b.Bottom())
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  math32.Max(0, x2-x1),
		Height: math32.Max(0, y2-y1),
	}
}

func (r *Rect) Offset(dx, dy float32) {
	r.X += dx
	r.Y += dy
}

// EdgeDistance is the sum of absolute differences of the four edges.
// Used as the error metric when testing mirroring hypotheses.
func (r Rect) EdgeDistance(b Rect) float32 {
	return math32.Abs(r.X-b.X) +
		math32.Abs(r.Y-b.Y) +
		math32.Abs(r.Right()-b.Right()) +
		math32.Abs(r.Bottom()-b.Bottom())
}
