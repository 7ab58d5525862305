// Package nn defines the detection data model shared by the overlay
// renderer and the frame scheduler, and the port through which
// inference is invoked.
package nn

import (
	"context"
	"time"

	"github.com/maskcam/maskcam/pkg/gen"
)

const DefaultConfidenceThreshold = 0.5
const DefaultMaskThreshold = 0.5

// Task identifies one of the independent inference tasks that run
// against the frame stream.
type Task int

const (
	TaskSegmentation Task = iota
	TaskPose
	NumTasks
)

func (t Task) String() string {
	switch t {
	case TaskSegmentation:
		return "segmentation"
	case TaskPose:
		return "pose"
	}
	return "unknown"
}

// Detection is one recognized object/person in one frame.
// NormalizedBox and Box describe the same rectangle in two coordinate
// systems; their ratio is what lets us recover the source image size
// when the engine doesn't report it (see overlay.ResolveGeometry).
type Detection struct {
	Class         int     `json:"class"`
	Confidence    float32 `json:"confidence"`
	NormalizedBox Rect    `json:"normalizedBox"` // Coordinates in [0,1], relative to the source image
	Box           Rect    `json:"box"`           // Absolute pixels in the same source image

	// Optional fields. Mask is a probability grid whose resolution is
	// independent of the image size. Keypoints are normalized to [0,1]
	// over the full source image (validated at parse time).
	Mask                *Mask     `json:"mask,omitempty"`
	Keypoints           []Point   `json:"keypoints,omitempty"`
	KeypointConfidences []float32 `json:"keypointConfidences,omitempty"`

	// Source image size, when the engine reports it. Zero means unknown.
	ImageWidth  int `json:"imageWidth,omitempty"`
	ImageHeight int `json:"imageHeight,omitempty"`
}

// Mask is a row-major grid of probabilities in [0,1].
type Mask struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Values []float32 `json:"values"` // Width*Height values, row-major
}

func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Values: make([]float32, width*height),
	}
}

func (m *Mask) At(x, y int) float32 {
	return m.Values[y*m.Width+x]
}

func (m *Mask) Set(x, y int, v float32) {
	m.Values[y*m.Width+x] = v
}

// FrameData is one encoded frame. The scheduler owns it until it is
// handed to a task; when fanned out to more than one task queue, each
// task gets its own copy via Clone().
type FrameData struct {
	Bytes []byte
	Index int64 // Monotonic position in a fixed frame sequence
	PTS   time.Time
}

func (f FrameData) Clone() FrameData {
	c := f
	c.Bytes = gen.CopySlice(f.Bytes)
	return c
}

// TaskResult is the output of one inference task on one frame.
// Immutable once created.
type TaskResult struct {
	Task       Task
	Detections []Detection
	FrameIndex int64
	PTS        time.Time
}

// CombinedFrame is created by fan-in once both task results exist for
// the same frame index.
type CombinedFrame struct {
	Segmentation []Detection
	Pose         []Detection
	FrameIndex   int64
	PTS          time.Time
}

// Predictor is the port through which the scheduler invokes inference.
// The scheduler doesn't know (or care) whether this is an in-process
// model, a worker thread, or a remote service.
// A failed Predict is treated by callers as an empty detection result,
// never as a pipeline-fatal error.
type Predictor interface {
	Predict(ctx context.Context, frame []byte, confidenceThreshold float32) ([]Detection, error)
}
