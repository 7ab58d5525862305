package nn

import (
	"encoding/json"
	"fmt"

	"github.com/chewxy/math32"
)

// Inference engines tend to emit loosely structured JSON, with fields
// missing or in inconsistent units depending on the model flavour.
// Rather than defaulting our way past bad input, parsing either yields
// a fully validated Detection or a ParseError naming the field.

// Keypoints are required to be normalized over the full source image.
// We allow a little slack beyond [0,1] for boxes clipped at frame edges.
const keypointSlack = 0.05

type ParseError struct {
	Detection int    // Index of the offending detection within the payload
	Field     string // e.g. "normalizedBox.width"
	Reason    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("detection %v: %v: %v", e.Detection, e.Field, e.Reason)
}

// Wire-format types. These mirror what YOLO-style detection services
// return, before validation.
type wireRect struct {
	X      *float32 `json:"x"`
	Y      *float32 `json:"y"`
	Width  *float32 `json:"width"`
	Height *float32 `json:"height"`
}

type wireMask struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Values []float32 `json:"values"`
}

type wireDetection struct {
	Class               int         `json:"class"`
	Confidence          float32     `json:"confidence"`
	NormalizedBox       *wireRect   `json:"normalizedBox"`
	Box                 *wireRect   `json:"box"`
	Mask                *wireMask   `json:"mask"`
	Keypoints           [][]float32 `json:"keypoints"`
	KeypointConfidences []float32   `json:"keypointConfidences"`
	ImageWidth          int         `json:"imageWidth"`
	ImageHeight         int         `json:"imageHeight"`
}

type wireResult struct {
	ImageWidth  int             `json:"imageWidth"`
	ImageHeight int             `json:"imageHeight"`
	Detections  []wireDetection `json:"detections"`
}

// ParseDetections parses and validates a JSON detection payload.
// On failure the error is a *ParseError identifying the bad field.
func ParseDetections(raw []byte) ([]Detection, error) {
	wire := wireResult{}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &ParseError{Detection: -1, Field: "", Reason: err.Error()}
	}
	detections := make([]Detection, 0, len(wire.Detections))
	for i := range wire.Detections {
		det, err := parseDetection(i, &wire.Detections[i], wire.ImageWidth, wire.ImageHeight)
		if err != nil {
			return nil, err
		}
		detections = append(detections, det)
	}
	return detections, nil
}

func parseDetection(index int, w *wireDetection, payloadWidth, payloadHeight int) (Detection, error) {
	det := Detection{
		Class:       w.Class,
		Confidence:  w.Confidence,
		ImageWidth:  w.ImageWidth,
		ImageHeight: w.ImageHeight,
	}
	// A per-detection image size wins over the payload-level one
	if det.ImageWidth == 0 {
		det.ImageWidth = payloadWidth
	}
	if det.ImageHeight == 0 {
		det.ImageHeight = payloadHeight
	}

	var err error
	if det.NormalizedBox, err = parseRect(index, "normalizedBox", w.NormalizedBox); err != nil {
		return det, err
	}
	if det.Box, err = parseRect(index, "box", w.Box); err != nil {
		return det, err
	}
	for _, c := range []struct {
		name  string
		value float32
	}{
		{"normalizedBox.x", det.NormalizedBox.X},
		{"normalizedBox.y", det.NormalizedBox.Y},
		{"normalizedBox.width", det.NormalizedBox.Width},
		{"normalizedBox.height", det.NormalizedBox.Height},
	} {
		if c.value < -keypointSlack || c.value > 1+keypointSlack {
			return det, &ParseError{Detection: index, Field: c.name, Reason: fmt.Sprintf("%v is outside [0,1]", c.value)}
		}
	}

	if w.Mask != nil {
		if w.Mask.Width <= 0 || w.Mask.Height <= 0 {
			return det, &ParseError{Detection: index, Field: "mask", Reason: fmt.Sprintf("degenerate grid %vx%v", w.Mask.Width, w.Mask.Height)}
		}
		if len(w.Mask.Values) != w.Mask.Width*w.Mask.Height {
			return det, &ParseError{Detection: index, Field: "mask.values",
				Reason: fmt.Sprintf("%v values for a %vx%v grid", len(w.Mask.Values), w.Mask.Width, w.Mask.Height)}
		}
		det.Mask = &Mask{
			Width:  w.Mask.Width,
			Height: w.Mask.Height,
			Values: w.Mask.Values,
		}
	}

	if len(w.Keypoints) != 0 {
		det.Keypoints = make([]Point, len(w.Keypoints))
		for k, kp := range w.Keypoints {
			field := fmt.Sprintf("keypoints[%v]", k)
			if len(kp) != 2 {
				return det, &ParseError{Detection: index, Field: field, Reason: fmt.Sprintf("%v coordinates, expected 2", len(kp))}
			}
			if !isFiniteKeypoint(kp[0]) || !isFiniteKeypoint(kp[1]) {
				return det, &ParseError{Detection: index, Field: field,
					Reason: fmt.Sprintf("(%v,%v) is not a normalized coordinate", kp[0], kp[1])}
			}
			det.Keypoints[k] = Point{X: kp[0], Y: kp[1]}
		}
		if len(w.KeypointConfidences) != 0 {
			if len(w.KeypointConfidences) != len(w.Keypoints) {
				return det, &ParseError{Detection: index, Field: "keypointConfidences",
					Reason: fmt.Sprintf("%v confidences for %v keypoints", len(w.KeypointConfidences), len(w.Keypoints))}
			}
			det.KeypointConfidences = w.KeypointConfidences
		}
	}

	return det, nil
}

func parseRect(index int, field string, w *wireRect) (Rect, error) {
	if w == nil {
		return Rect{}, &ParseError{Detection: index, Field: field, Reason: "missing"}
	}
	coords := []struct {
		name  string
		value *float32
	}{
		{"x", w.X},
		{"y", w.Y},
		{"width", w.Width},
		{"height", w.Height},
	}
	for _, c := range coords {
		if c.value == nil {
			return Rect{}, &ParseError{Detection: index, Field: field + "." + c.name, Reason: "missing"}
		}
		if math32.IsNaN(*c.value) || math32.IsInf(*c.value, 0) {
			return Rect{}, &ParseError{Detection: index, Field: field + "." + c.name, Reason: "not finite"}
		}
	}
	if *w.Width < 0 || *w.Height < 0 {
		return Rect{}, &ParseError{Detection: index, Field: field, Reason: "negative extent"}
	}
	return Rect{X: *w.X, Y: *w.Y, Width: *w.Width, Height: *w.Height}, nil
}

func isFiniteKeypoint(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0) && v >= -keypointSlack && v <= 1+keypointSlack
}
