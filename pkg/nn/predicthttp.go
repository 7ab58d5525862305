package nn

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// HTTPPredictor implements Predictor against a remote inference service.
// The frame is POSTed as raw encoded image bytes; the response is a JSON
// detection payload (see ParseDetections).
type HTTPPredictor struct {
	URL    string
	Client *http.Client
}

func NewHTTPPredictor(url string) *HTTPPredictor {
	return &HTTPPredictor{
		URL: url,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *HTTPPredictor) Predict(ctx context.Context, frame []byte, confidenceThreshold float32) ([]Detection, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", p.URL, bytes.NewReader(frame))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	q := req.URL.Query()
	q.Set("confidence", strconv.FormatFloat(float64(confidenceThreshold), 'f', -1, 32))
	req.URL.RawQuery = q.Encode()
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%v. %v", resp.Status, string(body))
	}
	return ParseDetections(body)
}
