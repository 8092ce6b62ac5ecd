package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnauthorized = errors.New("whatsapp api rejected the credentials")
	ErrRejected     = errors.New("whatsapp api rejected the message")
	ErrUpstream     = errors.New("whatsapp api unavailable")
)

// Message is one outbound WhatsApp message. To must already be normalized.
type Message struct {
	To       string
	Text     string
	MediaURL string
}

// Sender delivers a message and returns the provider's reference for it.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Client talks to the WhatsApp gateway over HTTP.
type Client struct {
	BaseURL    string
	Token      string
	SendPath   string
	HTTPClient *http.Client
}

// NewClient returns a Client with a 15 second request timeout.
func NewClient(baseURL, token, sendPath string) *Client {
	if sendPath == "" {
		sendPath = "/send-message"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		SendPath:   sendPath,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type sendRequest struct {
	Number   string `json:"number"`
	Text     string `json:"text"`
	MediaURL string `json:"media_url,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send posts msg to the gateway. When the gateway does not return a message
// id, a local reference is generated so the row can still be traced.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if c.BaseURL == "" {
		return "", fmt.Errorf("%w: base url not configured", ErrUpstream)
	}
	body, err := json.Marshal(sendRequest{Number: msg.To, Text: msg.Text, MediaURL: msg.MediaURL})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+c.SendPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(payload)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
	}

	var out sendResponse
	if err := json.Unmarshal(payload, &out); err == nil && out.ID != "" {
		return out.ID, nil
	}
	return uuid.NewString(), nil
}
