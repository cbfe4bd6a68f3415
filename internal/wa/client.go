// Package wa is the WhatsApp messaging-provider client: outbound sends,
// media metadata resolution, and media download.
package wa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultBaseURL is the provider's Cloud API base.
const DefaultBaseURL = "https://graph.facebook.com/v21.0"

// Client calls the WhatsApp Business Cloud API.
type Client struct {
	BaseURL       string
	APIKey        string
	PhoneNumberID string
	HTTPClient    *http.Client
}

// NewClient creates a provider client.
func NewClient(baseURL, apiKey, phoneNumberID string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:       baseURL,
		APIKey:        apiKey,
		PhoneNumberID: phoneNumberID,
		HTTPClient:    http.DefaultClient,
	}
}

// SendText sends a single text message to the given phone number.
func (c *Client) SendText(to, text string) (*SendMessageResponse, error) {
	req := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             TextContent{Body: text},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.PhoneNumberID)
	respBody, err := c.do("POST", url, bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}

	var result SendMessageResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &result, nil
}

// MediaURL resolves a media ID to its download metadata. The returned URL
// is short-lived.
func (c *Client) MediaURL(mediaID string) (*Media, error) {
	url := fmt.Sprintf("%s/%s", c.BaseURL, mediaID)
	respBody, err := c.do("GET", url, nil, "")
	if err != nil {
		return nil, err
	}

	var media Media
	if err := json.Unmarshal(respBody, &media); err != nil {
		return nil, fmt.Errorf("unmarshal media metadata: %w", err)
	}
	return &media, nil
}

// Download fetches media content from a previously resolved URL.
func (c *Client) Download(url string) ([]byte, error) {
	return c.do("GET", url, nil, "")
}

func (c *Client) do(method, url string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("provider API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
