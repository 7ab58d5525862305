package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/cyclopcam/logs"
	"github.com/fogleman/gg"
	"github.com/maskcam/maskcam/pkg/nn"
)

type BackgroundMode int

const (
	BackgroundNone  BackgroundMode = iota // No replacement: the camera frame shows through everywhere
	BackgroundColor                       // Solid fill
	BackgroundImage                       // Replacement image, cover-fit to the view
	BackgroundBlur                        // Blurred copy of the camera frame
)

type Options struct {
	MaskThreshold   float32        // Probability at or above which a mask cell counts as foreground
	FeatherRadius   int            // Mask edge softening in view pixels (0 = hard edges)
	BlurRadius      int            // Background blur strength for BackgroundBlur
	Opacity         float64        // Overlay layer opacity in [0,1]
	Background      BackgroundMode
	BackgroundColor color.RGBA
	BackgroundImage image.Image
	AutoMirror      bool      // Detect axis flips from geometric evidence each frame
	Mirror          Mirroring // Fixed mirroring when AutoMirror is off; also the auto-detect seed
	Sprite          image.Image
	Calibration     SpriteCalibration
	SmoothingAlpha  float32 // Landmark EMA weight for sprite anchoring
	CacheSize       int     // Picture cache entries
}

func DefaultOptions() Options {
	return Options{
		MaskThreshold:   nn.DefaultMaskThreshold,
		FeatherRadius:   2,
		BlurRadius:      10,
		Opacity:         1,
		Background:      BackgroundNone,
		BackgroundColor: color.RGBA{0, 128, 0, 255},
		AutoMirror:      true,
		Calibration:     DefaultSpriteCalibration(),
		SmoothingAlpha:  0.6,
		CacheSize:       DefaultPictureCacheSize,
	}
}

// Compositor paints a combined frame's overlays over the camera frame:
// replacement background with mask regions erased so the person shows
// through, plus an optional face-anchored sprite.
//
// Not safe for concurrent use. One compositor belongs to one display
// loop, which is also what makes the lock-free picture cache sound.
type Compositor struct {
	Log  logs.Log
	opts Options

	cache      *pictureCache
	smoother   *LandmarkSmoother
	lastMirror Mirroring

	// Stats, read via Stats()
	cacheHits      int64
	cacheMisses    int64
	geometryMisses int64
}

type CompositorStats struct {
	CacheHits      int64 `json:"cacheHits"`
	CacheMisses    int64 `json:"cacheMisses"`
	GeometryMisses int64 `json:"geometryMisses"`
}

func NewCompositor(logger logs.Log, opts Options) *Compositor {
	return &Compositor{
		Log:        logger,
		opts:       opts,
		cache:      newPictureCache(opts.CacheSize),
		smoother:   NewLandmarkSmoother(opts.SmoothingAlpha),
		lastMirror: opts.Mirror,
	}
}

func (c *Compositor) Stats() CompositorStats {
	return CompositorStats{
		CacheHits:      c.cacheHits,
		CacheMisses:    c.cacheMisses,
		GeometryMisses: c.geometryMisses,
	}
}

// Composite renders one frame at the given view size. combined may be
// nil (no detections yet), in which case the camera frame is returned
// unadorned. A frame whose geometry can't be resolved gets no overlay
// for this tick; that is expected behavior, not an error.
func (c *Compositor) Composite(frame image.Image, combined *nn.CombinedFrame, viewWidth, viewHeight int) *image.RGBA {
	base := image.NewRGBA(image.Rect(0, 0, viewWidth, viewHeight))
	dc := gg.NewContextForRGBA(base)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	drawCover(dc, frame, viewWidth, viewHeight)
	if combined == nil {
		return base
	}

	// Geometry comes from whichever task produced usable boxes
	geom, err := ResolveGeometry(combined.Segmentation, float32(viewWidth), float32(viewHeight))
	if err != nil {
		geom, err = ResolveGeometry(combined.Pose, float32(viewWidth), float32(viewHeight))
	}
	if err != nil {
		c.geometryMisses++
		return base
	}

	mirror := c.opts.Mirror
	if c.opts.AutoMirror {
		mirror = DetectMirroring(geom, float32(viewWidth), float32(viewHeight), mirrorReference(combined.Segmentation), c.lastMirror)
		c.lastMirror = mirror
	}

	if c.opts.Background != BackgroundNone {
		layer := c.overlayLayer(frame, combined.Segmentation, geom, mirror, viewWidth, viewHeight)
		if layer != nil {
			draw.Draw(base, base.Bounds(), layer, image.Point{}, draw.Over)
		}
	}

	c.drawFaceSprite(base, combined.Pose, geom)
	return base
}

// overlayLayer builds (or replays from cache) the background layer with
// mask regions erased. The erased regions reveal the camera frame drawn
// beneath the layer.
func (c *Compositor) overlayLayer(frame image.Image, detections []nn.Detection, geom Geometry, mirror Mirroring, viewWidth, viewHeight int) *image.RGBA {
	// The blurred-background layer embeds the frame pixels themselves,
	// so a cached copy would go stale as soon as the scene moves.
	cacheable := c.opts.Background != BackgroundBlur
	key := ""
	if cacheable {
		key = fingerprint(detections, geom, mirror, viewWidth, viewHeight, c.opts.MaskThreshold, float32(c.opts.FeatherRadius), c.opts.Opacity, c.opts.Background)
		if layer, ok := c.cache.get(key); ok {
			c.cacheHits++
			return layer
		}
		c.cacheMisses++
	}

	layer := image.NewRGBA(image.Rect(0, 0, viewWidth, viewHeight))
	lg := gg.NewContextForRGBA(layer)
	switch c.opts.Background {
	case BackgroundColor:
		lg.SetColor(c.opts.BackgroundColor)
		lg.Clear()
	case BackgroundImage:
		if c.opts.BackgroundImage == nil {
			return nil
		}
		drawCover(lg, c.opts.BackgroundImage, viewWidth, viewHeight)
	case BackgroundBlur:
		drawCover(lg, frame, viewWidth, viewHeight)
		boxBlurRGBA(layer, c.opts.BlurRadius)
	}

	for i := range detections {
		det := &detections[i]
		if det.Mask == nil {
			continue
		}
		rects := RasterizeMask(det.Mask, geom, det.NormalizedBox, c.opts.MaskThreshold, mirror)
		for _, r := range rects {
			eraseRect(layer, r)
		}
	}
	if c.opts.FeatherRadius > 0 {
		boxBlurRGBA(layer, c.opts.FeatherRadius)
	}
	if c.opts.Opacity < 1 {
		scaleAlpha(layer, c.opts.Opacity)
	}
	if cacheable {
		c.cache.put(key, layer)
	}
	return layer
}

func (c *Compositor) drawFaceSprite(base *image.RGBA, poseDetections []nn.Detection, geom Geometry) {
	if c.opts.Sprite == nil || len(poseDetections) == 0 {
		return
	}
	// First detected person gets the sprite
	eyeL, eyeR, nose, ok := faceAnchor(&poseDetections[0], geom, c.opts.Calibration)
	if !ok {
		return
	}
	smoothed := c.smoother.Smooth([]nn.Point{eyeL, eyeR, nose})
	drawSprite(base, c.opts.Sprite, c.opts.Calibration, smoothed[0], smoothed[1], smoothed[2])
}

// ClearCache drops all cached pictures. The recovery path for memory
// pressure: clear and keep rendering uncached.
func (c *Compositor) ClearCache() {
	c.cache.clear()
}

func mirrorReference(detections []nn.Detection) *nn.Detection {
	for i := range detections {
		if !detections[i].NormalizedBox.IsEmpty() && !detections[i].Box.IsEmpty() {
			return &detections[i]
		}
	}
	return nil
}

// drawCover blits src into the view, scaled to fully fill it (cropping
// overflow on one axis) and centered.
func drawCover(dc *gg.Context, src image.Image, viewWidth, viewHeight int) {
	if src == nil {
		return
	}
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return
	}
	scaleX := float64(viewWidth) / float64(sb.Dx())
	scaleY := float64(viewHeight) / float64(sb.Dy())
	scale := scaleX
	if scaleY > scale {
		scale = scaleY
	}
	dx := (float64(viewWidth) - float64(sb.Dx())*scale) / 2
	dy := (float64(viewHeight) - float64(sb.Dy())*scale) / 2
	dc.Push()
	dc.Translate(dx, dy)
	dc.Scale(scale, scale)
	dc.DrawImage(src, 0, 0)
	dc.Pop()
}

// eraseRect sets the covered pixels fully transparent, punching a hole
// in the layer so whatever is composited beneath shows through.
func eraseRect(layer *image.RGBA, r nn.Rect) {
	ir := image.Rect(roundToInt(r.X), roundToInt(r.Y), roundToInt(r.Right()), roundToInt(r.Bottom()))
	draw.Draw(layer, ir.Intersect(layer.Bounds()), image.Transparent, image.Point{}, draw.Src)
}

// scaleAlpha multiplies all channels by opacity (pixels are
// premultiplied, so color channels scale along with alpha).
func scaleAlpha(img *image.RGBA, opacity float64) {
	if opacity >= 1 {
		return
	}
	if opacity < 0 {
		opacity = 0
	}
	mul := uint32(opacity * 256)
	for i := range img.Pix {
		img.Pix[i] = uint8(uint32(img.Pix[i]) * mul >> 8)
	}
}
