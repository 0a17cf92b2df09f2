package cmd

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xiaot623/gogo/sessiongate/internal/auth"
)

// APIError is an error response from the gateway.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.Status)
}

// Client calls the gateway's /v1 API.
type Client struct {
	baseURL    string
	token      string
	key        ed25519.PrivateKey
	audience   string
	ttl        time.Duration
	now        func() time.Time
	httpClient *http.Client
}

// NewClient creates a client for the profile. A static token wins over the
// key file.
func NewClient(p Profile) (*Client, error) {
	c := &Client{
		baseURL:  strings.TrimSuffix(p.URL, "/"),
		token:    p.Token,
		audience: p.Audience,
		ttl:      p.TokenTTL,
		now:      time.Now,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	if c.token == "" {
		key, err := ReadKey(p.KeyFile)
		if err != nil {
			return nil, err
		}
		c.key = key
	}
	return c, nil
}

// bearer returns the token to present on the next request.
func (c *Client) bearer() (string, error) {
	if c.token != "" {
		return c.token, nil
	}
	return auth.Sign(c.key, c.audience, c.ttl, c.now())
}

// Do sends a request and decodes a 2xx JSON response into out.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	token, err := c.bearer()
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(bodyBytes, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.Status = resp.StatusCode
		return envelope.Error
	}
	// echo's own errors use {"message": ...}
	var plain struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(bodyBytes, &plain); err == nil && plain.Message != "" {
		return &APIError{Status: resp.StatusCode, Message: plain.Message}
	}
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
}

// WatchURL returns the websocket URL for a session's alert stream.
func (c *Client) WatchURL(sessionID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid gateway url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/sessions/" + url.PathEscape(sessionID) + "/watch"
	return u.String(), nil
}
