package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Globals struct {
	Debug   bool
	Version string
}

// apiClient is a thin wrapper over the gateway's REST surface for the CLI
// commands.
type apiClient struct {
	server string
	token  string
	http   *http.Client
}

func newAPIClient(server, token string, timeout time.Duration) *apiClient {
	return &apiClient{
		server: server,
		token:  token,
		http:   &http.Client{Timeout: timeout},
	}
}

// doJSON performs a request with an optional JSON body, decoding a JSON
// response into out when it is non-nil. Non-2xx responses become errors
// carrying the gateway's error payload.
func (c *apiClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("gateway returned %s: %s", resp.Status, payload.Error)
	}
	return fmt.Errorf("gateway returned %s", resp.Status)
}
