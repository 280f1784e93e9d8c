/**
 * @description
 * This package provides a client for the external generation service (Modal)
 * that trains studio models and renders headshots. Calls are bounded by an
 * explicit timeout and non-2xx responses are returned as *StatusError so the
 * caller's retry policy can distinguish transient (5xx) from permanent (4xx)
 * failures.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - github.com/google/uuid: Studio identifiers in job payloads.
 */
package modalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client is a client for the Modal generation endpoints.
type Client struct {
	BaseURL    string
	Key        string
	Secret     string
	HTTPClient *http.Client
}

// NewClient creates a new Modal client. The timeout bounds every outbound
// call; after it elapses the call is treated as a transport failure.
func NewClient(baseURL, key, secret string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		Key:     key,
		Secret:  secret,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// StatusError is a non-2xx response from the generation service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("modal api error: status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the failure is worth retrying (server-side 5xx).
// Client errors (4xx) are permanent: the request itself is wrong.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500
}

// TrainingParams describes one model-training job.
type TrainingParams struct {
	StudioID    uuid.UUID `json:"studio_id"`
	DatasetsKey string    `json:"datasets"`
	Gender      string    `json:"gender"`
	Plan        string    `json:"plan"`
}

// GenerationParams describes one headshot render. SendEmail marks the
// designated final unit of a batch; its callback drives studio completion.
type GenerationParams struct {
	StudioID   uuid.UUID `json:"studio_id"`
	Prompt     string    `json:"prompt"`
	WeightsKey string    `json:"weights"`
	SendEmail  bool      `json:"sendemail"`
}

// JobResponse is the acknowledgement returned by the generation endpoints.
type JobResponse struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

// SimilarImageParams describes one similar-image render from an existing asset.
type SimilarImageParams struct {
	SourceKey string `json:"source"`
	Prompt    string `json:"prompt,omitempty"`
}

// EditImageParams describes one prompt-driven edit of an existing asset.
type EditImageParams struct {
	SourceKey string `json:"source"`
	Prompt    string `json:"prompt"`
}

// ImageResponse is the synchronous result of the image endpoints.
type ImageResponse struct {
	ResultKey string `json:"result"`
}

// StartTraining submits a model-training job for a studio.
func (c *Client) StartTraining(ctx context.Context, params TrainingParams) (*JobResponse, error) {
	var resp JobResponse
	if err := c.post(ctx, "/train", "start_training", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateHeadshot submits one headshot render against trained weights.
func (c *Client) GenerateHeadshot(ctx context.Context, params GenerationParams) (*JobResponse, error) {
	var resp JobResponse
	if err := c.post(ctx, "/generate", "generate_headshot", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateSimilarImage renders a new image in the style of the source asset.
func (c *Client) GenerateSimilarImage(ctx context.Context, params SimilarImageParams) (*ImageResponse, error) {
	var resp ImageResponse
	if err := c.post(ctx, "/similar", "generate_similar", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EditImage applies a prompt-driven edit to the source asset.
func (c *Client) EditImage(ctx context.Context, params EditImageParams) (*ImageResponse, error) {
	var resp ImageResponse
	if err := c.post(ctx, "/edit", "edit_image", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// post is a generic helper to execute job submissions.
func (c *Client) post(ctx context.Context, path, op string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Modal-Key", c.Key)
	req.Header.Set("Modal-Secret", c.Secret)

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
		log.Printf("level=warn component=modal_client op=%s status=%d msg=\"non-2xx response\"", op, resp.StatusCode)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	if len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", op, err)
		}
	}
	return nil
}
