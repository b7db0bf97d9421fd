// Package facilitator queries an x402-style payment facilitator to check
// whether a transaction settled a payment for the gated resource.
//
// The facilitator attests off-process that a payment completed; we treat it
// as one of three interchangeable pieces of evidence, so every failure mode
// here (network error, non-2xx status, malformed body) degrades to "not
// paid" and lets the on-chain checks run.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Config configures the facilitator client.
type Config struct {
	URL         string        // facilitator verify endpoint
	APIKey      string        // bearer token
	HTTPTimeout time.Duration // request timeout (default: 10s)
}

// verifyRequest is the body sent to the facilitator.
type verifyRequest struct {
	TransactionID string `json:"transactionId"`
	Wallet        string `json:"wallet"`
	TokenID       string `json:"tokenId"`
}

// verifyResponse is the facilitator's reply. Only an explicit success flag
// counts as paid.
type verifyResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Client calls the payment facilitator API.
type Client struct {
	url    string
	apiKey string
	client *http.Client
}

// NewClient creates a facilitator client.
func NewClient(cfg Config) *Client {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// CheckPayment asks the facilitator whether txHash settled a payment by
// wallet for tokenID. Returns false on any failure; never returns an error.
func (c *Client) CheckPayment(ctx context.Context, txHash, wallet, tokenID string) bool {
	if c.url == "" {
		return false
	}

	paid, err := c.verify(ctx, txHash, wallet, tokenID)
	if err != nil {
		log.Printf("[facilitator] payment check failed for %s: %v", txHash, err)
		return false
	}
	return paid
}

func (c *Client) verify(ctx context.Context, txHash, wallet, tokenID string) (bool, error) {
	body, err := json.Marshal(verifyRequest{
		TransactionID: txHash,
		Wallet:        wallet,
		TokenID:       tokenID,
	})
	if err != nil {
		return false, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("querying facilitator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("facilitator returned status %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}

	if !vr.Success && vr.Reason != "" {
		log.Printf("[facilitator] payment not verified for %s: %s", txHash, vr.Reason)
	}
	return vr.Success, nil
}
