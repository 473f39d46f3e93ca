package whatsapp

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

	"github.com/dpfarias/leadline-backend/pkg/config"
)

const defaultSendTimeout = 5 * time.Second

var errBaseURLRequired = errors.New("whatsapp gateway base url is required")

// Sender delivers one text message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, text string) SendResult
}

// SendResult reports the gateway outcome for a single message.
type SendResult struct {
	Delivered bool
	MessageID string
	Error     string
}

// Client talks to the chat-gateway HTTP API. The request timeout doubles as
// the per-message delivery deadline so one slow call cannot stall a batch.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type sendPayload struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// NewClient builds a gateway client from configuration.
func NewClient(cfg config.WhatsAppConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Send posts the message to the gateway and reports the outcome. Transport
// errors and non-2xx statuses come back as a failed SendResult, never a panic
// or a retry loop.
func (c *Client) Send(ctx context.Context, phone, text string) SendResult {
	if phone == "" {
		return SendResult{Error: "destination phone is empty"}
	}
	if text == "" {
		return SendResult{Error: "message text is empty"}
	}

	body, err := json.Marshal(sendPayload{Number: phone, Text: text})
	if err != nil {
		return SendResult{Error: fmt.Sprintf("encode payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/message/sendText", bytes.NewReader(body))
	if err != nil {
		return SendResult{Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{Error: fmt.Sprintf("gateway request: %v", err)}
	}
	defer resp.Body.Close()

	var decoded sendResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&decoded); err != nil && !errors.Is(err, io.EOF) {
		decoded = sendResponse{}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		reason := decoded.Error
		if reason == "" {
			reason = fmt.Sprintf("gateway returned status %d", resp.StatusCode)
		}
		return SendResult{Error: reason}
	}

	return SendResult{Delivered: true, MessageID: decoded.MessageID}
}
