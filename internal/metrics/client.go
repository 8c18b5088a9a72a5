// Package metrics consumes the controller's plaintext observability
// endpoints: a readiness resource returning a JSON object with a success
// flag, and a metrics resource returning newline-separated "<name> <value>"
// lines. The exposition is matched as raw text, never parsed as structured
// metrics.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client reads the controller's status and metrics endpoints and waits for
// the counters to converge to expected values.
type Client struct {
	statusURL  string
	metricsURL string
	httpClient *http.Client
	attempts   int
	interval   time.Duration
}

// NewClient creates a Client with the given retry budget per check. The
// worst-case wait for any single check is attempts * interval.
func NewClient(statusURL, metricsURL string, attempts int, interval time.Duration) *Client {
	return &Client{
		statusURL:  statusURL,
		metricsURL: metricsURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		attempts:   attempts,
		interval:   interval,
	}
}

// statusResponse is the JSON shape of the readiness endpoint.
type statusResponse struct {
	Success bool `json:"success"`
}

// Ready reports whether the controller's status endpoint answers with a
// successful status. Connection errors are returned to the caller, which
// treats them as "not started yet".
func (c *Client) Ready() (bool, error) {
	resp, err := c.httpClient.Get(c.statusURL)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status endpoint returned status %d", resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("failed to decode status response: %w", err)
	}
	return status.Success, nil
}

// snapshot fetches the metrics exposition as raw text. It is called once per
// poll attempt and never cached: a stale snapshot would defeat the
// convergence check.
func (c *Client) snapshot() (string, error) {
	resp, err := c.httpClient.Get(c.metricsURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metrics endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics response: %w", err)
	}
	return string(body), nil
}
