// Package credit looks up credit scores from the scoring bureau API.
package credit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls the credit-scoring API.
type Client struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a scoring client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Score is a bureau scoring result.
type Score struct {
	Value int    `json:"score"`
	Band  string `json:"band"`
}

// Lookup fetches the score for a national ID number.
func (c *Client) Lookup(nationalID string) (*Score, error) {
	body, err := json.Marshal(map[string]string{"national_id": nationalID})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest("POST", c.Endpoint+"/v1/score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scoring API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var score Score
	if err := json.Unmarshal(respBody, &score); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &score, nil
}
