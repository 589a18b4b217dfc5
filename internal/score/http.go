package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type httpScorer struct {
	endpoint string
	client   *http.Client
}

type scoreRequest struct {
	Text string `json:"text"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

// NewHTTPScorer posts {"text": ...} to the endpoint and expects
// {"score": x} with x in [0, 1].
func NewHTTPScorer(endpoint string) Scorer {
	return &httpScorer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *httpScorer) Score(ctx context.Context, text string) (float64, error) {
	body, err := json.Marshal(scoreRequest{Text: text})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return 0, fmt.Errorf("%w: status %s", ErrServiceUnavailable, resp.Status)
	}
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("score: unexpected status %s", resp.Status)
	}

	var parsed scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, err
	}
	if parsed.Score < 0 || parsed.Score > 1 {
		return 0, fmt.Errorf("score: value %f out of range", parsed.Score)
	}
	return parsed.Score, nil
}
