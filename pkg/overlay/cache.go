package overlay

import (
	"image"
	"strconv"
	"strings"

	"github.com/maskcam/maskcam/pkg/nn"
)

// Successive frames of a near-static scene produce near-identical
// detections. By keying rendered overlay pictures on a quantized
// fingerprint of the detection geometry plus all render flags, we can
// replay a previous rasterization verbatim instead of repainting.

const DefaultPictureCacheSize = 50

// pictureCache is a bounded map with FIFO eviction: once full, the
// oldest inserted key is removed. Mutated only by the compositor on its
// single logical thread, so there is no lock here.
type pictureCache struct {
	maxEntries int
	entries    map[string]*image.RGBA
	order      []string // insertion order, oldest first
}

func newPictureCache(maxEntries int) *pictureCache {
	if maxEntries <= 0 {
		maxEntries = DefaultPictureCacheSize
	}
	return &pictureCache{
		maxEntries: maxEntries,
		entries:    map[string]*image.RGBA{},
	}
}

func (c *pictureCache) get(key string) (*image.RGBA, bool) {
	pic, ok := c.entries[key]
	return pic, ok
}

func (c *pictureCache) put(key string, pic *image.RGBA) {
	if _, exists := c.entries[key]; exists {
		c.entries[key] = pic
		return
	}
	for len(c.entries) >= c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = pic
	c.order = append(c.order, key)
}

func (c *pictureCache) len() int {
	return len(c.entries)
}

func (c *pictureCache) clear() {
	c.entries = map[string]*image.RGBA{}
	c.order = nil
}

// fingerprint quantizes the inputs that affect the rendered overlay
// layer. Box and keypoint coordinates are rounded to whole view pixels;
// sub-pixel wobble between frames must land on the same key.
func fingerprint(detections []nn.Detection, geom Geometry, mirror Mirroring, viewWidth, viewHeight int, threshold, feather float32, opacity float64, background BackgroundMode) string {
	b := strings.Builder{}
	b.Grow(64 + len(detections)*40)
	// The cached layer's pixel dimensions are the view's, so close view
	// sizes must never share a key even when the rounded projections collide
	b.WriteString(strconv.Itoa(viewWidth))
	b.WriteByte('v')
	b.WriteString(strconv.Itoa(viewHeight))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(geom.SourceWidth)))
	b.WriteByte('x')
	b.WriteString(strconv.Itoa(int(geom.SourceHeight)))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(float64(threshold), 'f', 3, 32))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(float64(feather), 'f', 1, 32))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(opacity, 'f', 3, 64))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(background)))
	if mirror.FlipH {
		b.WriteString("|H")
	}
	if mirror.FlipV {
		b.WriteString("|V")
	}
	for i := range detections {
		det := &detections[i]
		b.WriteByte(';')
		writeQuantizedRect(&b, geom.ProjectNormalizedRect(det.NormalizedBox))
		if det.Mask != nil {
			b.WriteByte('m')
			b.WriteString(strconv.Itoa(det.Mask.Width))
			b.WriteByte(',')
			b.WriteString(strconv.Itoa(det.Mask.Height))
		}
		for _, kp := range det.Keypoints {
			p := geom.ProjectNormalizedPoint(kp)
			b.WriteByte('k')
			b.WriteString(strconv.Itoa(roundToInt(p.X)))
			b.WriteByte(',')
			b.WriteString(strconv.Itoa(roundToInt(p.Y)))
		}
	}
	return b.String()
}

func writeQuantizedRect(b *strings.Builder, r nn.Rect) {
	b.WriteString(strconv.Itoa(roundToInt(r.X)))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(roundToInt(r.Y)))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(roundToInt(r.Width)))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(roundToInt(r.Height)))
}

func roundToInt(v float32) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}
