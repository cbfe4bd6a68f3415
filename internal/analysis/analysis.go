// Package analysis calls the document/image AI analysis service. The
// service is an opaque collaborator: this client only knows its request
// and response shapes.
package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls the analysis API.
type Client struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates an analysis client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 90 * time.Second},
	}
}

type describeRequest struct {
	FileURL  string `json:"file_url"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename,omitempty"`
}

type describeResponse struct {
	Summary string `json:"summary"`
}

// Describe asks the analysis service for a text summary of the stored
// file. The returned string is ready to send to the user.
func (c *Client) Describe(fileURL, mimeType, filename string) (string, error) {
	body, err := json.Marshal(describeRequest{
		FileURL:  fileURL,
		MimeType: mimeType,
		Filename: filename,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest("POST", c.Endpoint+"/v1/describe", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("analysis API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result describeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if result.Summary == "" {
		return "", fmt.Errorf("analysis returned an empty summary")
	}
	return result.Summary, nil
}
