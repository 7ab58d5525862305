package overlay

import (
	"github.com/chewxy/math32"
	"github.com/maskcam/maskcam/pkg/gen"
	"github.com/maskcam/maskcam/pkg/nn"
)

// RasterizeMask converts a probability grid into screen-space fill
// rectangles, one per run of cells at or above the threshold.
//
// Scanning is restricted to the grid window implied by the detection's
// normalized bounding box, since the grid is empty outside it. Runs of
// passing cells are merged so the draw cost is O(runs), not O(cells) —
// per-cell drawing is the dominant cost at interactive frame rates.
//
// A degenerate grid returns nil: the detection is skipped, not an error.
func RasterizeMask(mask *nn.Mask, geom Geometry, normalizedBox nn.Rect, threshold float32, mirror Mirroring) []nn.Rect {
	if mask == nil || mask.Width <= 0 || mask.Height <= 0 {
		return nil
	}
	gridW := mask.Width
	gridH := mask.Height
	cellW := geom.SourceWidth * geom.Scale / float32(gridW)
	cellH := geom.SourceHeight * geom.Scale / float32(gridH)

	// Grid index window covered by the detection's own box
	row0 := gen.Clamp(int(math32.Floor(gen.Clamp(normalizedBox.Y, 0, 1)*float32(gridH))), 0, gridH)
	row1 := gen.Clamp(int(math32.Ceil(gen.Clamp(normalizedBox.Bottom(), 0, 1)*float32(gridH))), 0, gridH)
	col0 := gen.Clamp(int(math32.Floor(gen.Clamp(normalizedBox.X, 0, 1)*float32(gridW))), 0, gridW)
	col1 := gen.Clamp(int(math32.Ceil(gen.Clamp(normalizedBox.Right(), 0, 1)*float32(gridW))), 0, gridW)

	rects := []nn.Rect{}
	for row := row0; row < row1; row++ {
		mappedRow := row
		if mirror.FlipV {
			mappedRow = gridH - 1 - row
		}
		screenY := geom.DY + float32(mappedRow)*cellH
		for col := col0; col < col1; col++ {
			if mask.At(col, row) < threshold {
				continue
			}
			runStart := col
			for col < col1 && mask.At(col, row) >= threshold {
				col++
			}
			runEnd := col
			// Mirroring a contiguous run maps its end to the new start;
			// the width is unchanged.
			mappedStart := runStart
			if mirror.FlipH {
				mappedStart = gridW - runEnd
			}
			rects = append(rects, nn.Rect{
				X:      geom.DX + float32(mappedStart)*cellW,
				Y:      screenY,
				Width:  float32(runEnd-runStart) * cellW,
				Height: cellH,
			})
		}
	}
	return rects
}
