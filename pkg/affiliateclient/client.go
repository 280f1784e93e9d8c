/**
 * @description
 * This package provides a client for the FirstPromoter affiliate-tracking
 * API. Sales are tracked after a paid order webhook and refunds after a
 * refund webhook. Tracking failures are surfaced to the caller as errors but
 * are treated as non-fatal there: affiliate bookkeeping must never fail a
 * payment webhook.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, net/url, time: Standard Go libraries.
 */
package affiliateclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a client for the FirstPromoter API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new FirstPromoter client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether affiliate tracking is configured at all.
func (c *Client) Enabled() bool {
	return c != nil && c.APIKey != ""
}

// Sale describes one tracked sale attributed to an affiliate reference.
type Sale struct {
	UserID      string
	AmountCents int64
	EventID     string
	RefID       string
	TID         string
}

// TrackSale reports a paid order. The endpoint takes form-encoded fields.
func (c *Client) TrackSale(ctx context.Context, sale Sale) error {
	params := url.Values{}
	params.Set("uid", sale.UserID)
	params.Set("amount", strconv.FormatInt(sale.AmountCents, 10))
	params.Set("event_id", sale.EventID)
	params.Set("ref_id", sale.RefID)
	if sale.TID != "" {
		params.Set("tid", sale.TID)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/track/sale", strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create sale request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("x-api-key", c.APIKey)

	return c.do(req, "track_sale")
}

// Refund describes one tracked refund. AmountCents is always sent negative.
type Refund struct {
	UserID      string
	AmountCents int64
	EventID     string
}

// TrackRefund reports a refunded order.
func (c *Client) TrackRefund(ctx context.Context, refund Refund) error {
	amount := refund.AmountCents
	if amount > 0 {
		amount = -amount
	}
	payload := map[string]any{
		"uid":          refund.UserID,
		"event_id":     refund.EventID,
		"amount_cents": amount,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal refund request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/track/refund", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create refund request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.APIKey)

	return c.do(req, "track_refund")
}

func (c *Client) do(req *http.Request, op string) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=affiliate_client op=%s status=%d body=%q", op, resp.StatusCode, string(bodyBytes))
		return fmt.Errorf("firstpromoter api error: status %d", resp.StatusCode)
	}
	return nil
}
