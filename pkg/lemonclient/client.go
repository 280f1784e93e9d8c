/**
 * @description
 * This package provides a client for the LemonSqueezy payments API. It
 * encapsulates the logic for creating checkout sessions with the custom
 * metadata the webhook handlers later rely on, and for parsing JSON:API
 * responses and errors.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package lemonclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// Client is a client for the LemonSqueezy API.
type Client struct {
	BaseURL    string
	APIKey     string
	StoreID    string
	HTTPClient *http.Client
}

// NewClient creates a new LemonSqueezy API client.
func NewClient(baseURL, apiKey, storeID string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		StoreID: storeID,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CheckoutParams describes one checkout session to create. Custom carries the
// idempotency-relevant metadata (user, plan, studio id, shared webhook
// secret) echoed back by the order webhook.
type CheckoutParams struct {
	VariantID        int64
	Email            string
	Quantity         int
	CustomPriceCents int64 // per-unit discounted price; 0 means list price
	RedirectURL      string
	ReceiptButton    string
	ReceiptNote      string
	Custom           map[string]string
}

// checkoutRequest is the JSON:API payload for POST /v1/checkouts.
type checkoutRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			CustomPrice  *int64 `json:"custom_price,omitempty"`
			CheckoutData struct {
				Email             string            `json:"email,omitempty"`
				Custom            map[string]string `json:"custom"`
				VariantQuantities []variantQuantity `json:"variant_quantities,omitempty"`
			} `json:"checkout_data"`
			ProductOptions struct {
				RedirectURL         string `json:"redirect_url"`
				ReceiptButtonText   string `json:"receipt_button_text,omitempty"`
				ReceiptThankYouNote string `json:"receipt_thank_you_note,omitempty"`
			} `json:"product_options"`
			CheckoutOptions struct {
				Embed bool `json:"embed"`
			} `json:"checkout_options"`
		} `json:"attributes"`
		Relationships struct {
			Store   relationship `json:"store"`
			Variant relationship `json:"variant"`
		} `json:"relationships"`
	} `json:"data"`
}

type relationship struct {
	Data struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

type variantQuantity struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

// CheckoutResponse is the expected response from the checkout endpoint.
type CheckoutResponse struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

// ErrorResponse represents a JSON:API error from LemonSqueezy.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("lemonsqueezy api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown lemonsqueezy api error"
}

// CreateCheckout creates a hosted checkout session and returns its URL.
func (c *Client) CreateCheckout(ctx context.Context, params CheckoutParams) (string, error) {
	reqPayload := checkoutRequest{}
	reqPayload.Data.Type = "checkouts"
	if params.CustomPriceCents > 0 {
		reqPayload.Data.Attributes.CustomPrice = &params.CustomPriceCents
	}
	reqPayload.Data.Attributes.CheckoutData.Email = params.Email
	reqPayload.Data.Attributes.CheckoutData.Custom = params.Custom
	if params.Quantity > 1 {
		reqPayload.Data.Attributes.CheckoutData.VariantQuantities = []variantQuantity{
			{VariantID: params.VariantID, Quantity: params.Quantity},
		}
	}
	reqPayload.Data.Attributes.ProductOptions.RedirectURL = params.RedirectURL
	reqPayload.Data.Attributes.ProductOptions.ReceiptButtonText = params.ReceiptButton
	reqPayload.Data.Attributes.ProductOptions.ReceiptThankYouNote = params.ReceiptNote
	reqPayload.Data.Relationships.Store.Data.Type = "stores"
	reqPayload.Data.Relationships.Store.Data.ID = c.StoreID
	reqPayload.Data.Relationships.Variant.Data.Type = "variants"
	reqPayload.Data.Relationships.Variant.Data.ID = strconv.FormatInt(params.VariantID, 10)

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/checkouts", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create checkout request: %w", err)
	}

	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute checkout request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read checkout response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=lemon_client op=create_checkout status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return "", fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=lemon_client op=create_checkout status=%d title=%q detail=%q", resp.StatusCode, firstErrorTitle(errResp), firstErrorDetail(errResp))
		return "", &errResp
	}

	var successResp CheckoutResponse
	if err := json.Unmarshal(bodyBytes, &successResp); err != nil {
		return "", fmt.Errorf("failed to decode checkout response: %w", err)
	}
	if successResp.Data.Attributes.URL == "" {
		return "", fmt.Errorf("checkout url missing from response")
	}

	return successResp.Data.Attributes.URL, nil
}

func firstErrorTitle(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Title
}

func firstErrorDetail(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
