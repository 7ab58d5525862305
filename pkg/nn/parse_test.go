package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDetections(t *testing.T) {
	payload := `{
		"imageWidth": 640,
		"imageHeight": 480,
		"detections": [
			{
				"class": 0,
				"confidence": 0.91,
				"normalizedBox": {"x": 0.25, "y": 0.25, "width": 0.5, "height": 0.5},
				"box": {"x": 160, "y": 120, "width": 320, "height": 240},
				"mask": {"width": 2, "height": 2, "values": [0, 1, 1, 0]},
				"keypoints": [[0.5, 0.3], [0.45, 0.25], [0.55, 0.25]],
				"keypointConfidences": [0.9, 0.8, 0.85]
			}
		]
	}`
	detections, err := ParseDetections([]byte(payload))
	require.NoError(t, err)
	require.Len(t, detections, 1)
	det := detections[0]
	require.Equal(t, 640, det.ImageWidth)
	require.Equal(t, 480, det.ImageHeight)
	require.Equal(t, float32(0.5), det.NormalizedBox.Width)
	require.Equal(t, float32(320), det.Box.Width)
	require.NotNil(t, det.Mask)
	require.Equal(t, float32(1), det.Mask.At(1, 0))
	require.Len(t, det.Keypoints, 3)
	require.Equal(t, float32(0.45), det.Keypoints[1].X)
}

func TestParseDetectionsRejectsBadInput(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		field   string
	}{
		{
			"missing box",
			`{"detections": [{"normalizedBox": {"x": 0, "y": 0, "width": 1, "height": 1}}]}`,
			"box",
		},
		{
			"missing rect coordinate",
			`{"detections": [{"normalizedBox": {"x": 0, "y": 0, "width": 1},
			  "box": {"x": 0, "y": 0, "width": 10, "height": 10}}]}`,
			"normalizedBox.height",
		},
		{
			"normalized box out of range",
			`{"detections": [{"normalizedBox": {"x": 3, "y": 0, "width": 1, "height": 1},
			  "box": {"x": 0, "y": 0, "width": 10, "height": 10}}]}`,
			"normalizedBox.x",
		},
		{
			"mask value count mismatch",
			`{"detections": [{"normalizedBox": {"x": 0, "y": 0, "width": 1, "height": 1},
			  "box": {"x": 0, "y": 0, "width": 10, "height": 10},
			  "mask": {"width": 3, "height": 3, "values": [1, 0]}}]}`,
			"mask.values",
		},
		{
			"pixel-space keypoints",
			`{"detections": [{"normalizedBox": {"x": 0, "y": 0, "width": 1, "height": 1},
			  "box": {"x": 0, "y": 0, "width": 10, "height": 10},
			  "keypoints": [[320, 240]]}]}`,
			"keypoints[0]",
		},
		{
			"confidence count mismatch",
			`{"detections": [{"normalizedBox": {"x": 0, "y": 0, "width": 1, "height": 1},
			  "box": {"x": 0, "y": 0, "width": 10, "height": 10},
			  "keypoints": [[0.5, 0.5], [0.6, 0.5]],
			  "keypointConfidences": [0.9]}]}`,
			"keypointConfidences",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseDetections([]byte(c.payload))
			require.Error(t, err)
			parseErr, ok := err.(*ParseError)
			require.True(t, ok, "error must be a *ParseError, got %T", err)
			require.Equal(t, c.field, parseErr.Field)
		})
	}
}

func TestFrameDataClone(t *testing.T) {
	original := FrameData{Bytes: []byte{1, 2, 3}, Index: 7}
	clone := original.Clone()
	clone.Bytes[0] = 99
	require.Equal(t, byte(1), original.Bytes[0], "clone must not share the byte buffer")
	require.Equal(t, int64(7), clone.Index)
}
