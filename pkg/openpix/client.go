package openpix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dpfarias/leadline-backend/pkg/config"
)

var errAppIDRequired = errors.New("openpix app id is required")

// Client wraps the provider's charge API. Status changes flow back through
// webhooks, so this client only creates charges.
type Client struct {
	baseURL    string
	appID      string
	httpClient *http.Client
}

// ChargeParams describe a new PIX charge.
type ChargeParams struct {
	CorrelationID string `json:"correlationID"`
	ValueCents    int64  `json:"value"`
	Comment       string `json:"comment,omitempty"`
}

// Charge is the subset of the provider response the service consumes.
type Charge struct {
	CorrelationID string `json:"correlationID"`
	BRCode        string `json:"brCode"`
	QRCodeImage   string `json:"qrCodeImage"`
	Status        string `json:"status"`
}

type chargeEnvelope struct {
	Charge Charge `json:"charge"`
}

// NewClient builds a provider client from configuration.
func NewClient(cfg config.OpenPixConfig) (*Client, error) {
	appID := strings.TrimSpace(cfg.AppID)
	if appID == "" {
		return nil, errAppIDRequired
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appID:      appID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// CreateCharge registers a PIX charge and returns the payable code.
func (c *Client) CreateCharge(ctx context.Context, params ChargeParams) (*Charge, error) {
	if params.CorrelationID == "" {
		return nil, errors.New("correlation id is required")
	}
	if params.ValueCents <= 0 {
		return nil, errors.New("charge value must be positive")
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode charge: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/charge", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.appID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("charge request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var envelope chargeEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode charge response: %w", err)
	}
	return &envelope.Charge, nil
}
