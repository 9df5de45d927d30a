// Package trigger calls the remote montage build endpoint.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Request is the montage build instruction sent to the trigger endpoint.
type Request struct {
	RecipeID    string `json:"recipe_id"`
	Prompt      string `json:"prompt"`
	SessionName string `json:"session_name"`
	Dir         string `json:"dir"`
}

// Client issues a single authenticated POST per montage job.
type Client struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Fire posts the build request. Any non-success status is a hard failure for
// this run; the caller leaves the job eligible for a later scan. The response
// body is decoded as JSON when possible, otherwise wrapped as {"raw": text}.
func (c *Client) Fire(ctx context.Context, req Request) (any, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client().Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	text, _ := io.ReadAll(resp.Body)
	var decoded any
	if err := json.Unmarshal(text, &decoded); err != nil {
		decoded = map[string]any{"raw": string(text)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decoded, fmt.Errorf("trigger failed: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return decoded, nil
}
