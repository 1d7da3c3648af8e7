package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPCheckAgent probes a URL and reports reachability, latency and the
// HTTP status code. An unreachable target is data (up=0), not a collection
// failure.
type HTTPCheckAgent struct {
	id       string
	interval int
	client   *http.Client
}

func init() {
	Register("http_check", func(id string, intervalSeconds int) (Agent, error) {
		return &HTTPCheckAgent{
			id:       id,
			interval: intervalSeconds,
			client:   &http.Client{},
		}, nil
	})
}

func (a *HTTPCheckAgent) Describe() Descriptor {
	return Descriptor{
		ID:              a.id,
		Kind:            "http_check",
		IntervalSeconds: a.interval,
		ConfigSchema: map[string]string{
			"url": "endpoint to probe (required)",
		},
	}
}

func (a *HTTPCheckAgent) Collect(ctx context.Context, settings map[string]string) (map[string]float64, error) {
	url := settings["url"]
	if url == "" {
		return nil, fmt.Errorf("http_check agent %s: url setting is required", a.id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %v", err)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return map[string]float64{
			"up":          0,
			"response_ms": float64(elapsed.Milliseconds()),
		}, nil
	}
	defer resp.Body.Close()

	up := 0.0
	if resp.StatusCode < 500 {
		up = 1.0
	}
	return map[string]float64{
		"up":          up,
		"response_ms": float64(elapsed.Milliseconds()),
		"status_code": float64(resp.StatusCode),
	}, nil
}
