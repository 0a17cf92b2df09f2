package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client forwards calls to a venue adapter over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a venue client for the adapter at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Execute posts the call to the adapter's /execute endpoint.
func (c *Client) Execute(ctx context.Context, call Call) (Receipt, error) {
	body, err := json.Marshal(call)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to marshal call: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Session-ID", call.SessionID.String())
	httpReq.Header.Set("Idempotency-Key", call.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: failed to reach venue: %v", ErrOutcomeUnknown, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("venue returned status %d: %s", resp.StatusCode, string(bodyBytes))
		if resp.StatusCode >= http.StatusInternalServerError {
			return Receipt{}, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
		}
		return Receipt{}, err
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return Receipt{}, fmt.Errorf("%w: failed to decode receipt: %v", ErrOutcomeUnknown, err)
	}
	return receipt, nil
}
