// Package objstore stores inbound media in the object-storage service and
// hands back durable URLs for the analysis pipeline.
package objstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client calls the object-storage HTTP API.
type Client struct {
	Endpoint   string
	Bucket     string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a storage client.
func NewClient(endpoint, bucket, apiKey string) *Client {
	return &Client{
		Endpoint:   endpoint,
		Bucket:     bucket,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type putResponse struct {
	URL string `json:"url"`
}

// Put uploads an object and returns its durable URL.
func (c *Client) Put(name, contentType string, data []byte) (string, error) {
	target := fmt.Sprintf("%s/%s/%s", c.Endpoint, c.Bucket, url.PathEscape(name))

	req, err := http.NewRequest("PUT", target, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
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
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("storage API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result putResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if result.URL == "" {
		// Some deployments answer 200 with an empty body; the object is
		// addressable at the upload path.
		return target, nil
	}
	return result.URL, nil
}

// Get downloads an object by URL.
func (c *Client) Get(objectURL string) ([]byte, error) {
	req, err := http.NewRequest("GET", objectURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("storage API error (status %d)", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
