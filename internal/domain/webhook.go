/**
 * @description
 * This file defines the inbound webhook payload shapes the studio-service
 * accepts: payment-provider order and refund events, and the generation
 * pipeline's training, headshot, and upscale callbacks.
 *
 * @notes
 * - Signature verification happens over the raw request bytes before any of
 *   these structs are decoded; the shapes here are trusted only after that.
 * - CustomData.WebhookSecret is the shared secret planted at checkout time
 *   and cross-checked on delivery, a second guard besides the HMAC header.
 */

package domain

import "github.com/google/uuid"

// OrderWebhookPayload is the payment provider's order event envelope.
type OrderWebhookPayload struct {
	Data OrderData `json:"data"`
	Meta OrderMeta `json:"meta"`
}

// OrderData carries the provider-side order identity and attributes.
type OrderData struct {
	ID         string          `json:"id"`
	Attributes OrderAttributes `json:"attributes"`
}

// OrderAttributes holds the payment outcome fields the service acts on.
type OrderAttributes struct {
	Status      string `json:"status"` // only "paid" is processed
	Total       int64  `json:"total"`  // in cents
	Currency    string `json:"currency"`
	OrderNumber int64  `json:"order_number"`
}

// OrderMeta wraps the event name and the custom metadata planted at checkout.
type OrderMeta struct {
	EventName  string          `json:"event_name"` // only "order_created" is processed
	CustomData OrderCustomData `json:"custom_data"`
}

// OrderCustomData is the idempotency-relevant metadata attached to the
// checkout session and echoed back by the provider.
type OrderCustomData struct {
	Plan                   string `json:"plan"`
	Quantity               string `json:"quantity"` // providers stringify numbers in custom data
	UserID                 string `json:"user"`
	EmailID                string `json:"email_id,omitempty"`
	StudioID               string `json:"studio_id,omitempty"`
	OrganizationID         string `json:"organization_id,omitempty"`
	WebhookSecret          string `json:"webhook_secret,omitempty"`
	FirstPromoterReference string `json:"first_promoter_reference,omitempty"`
	FirstPromoterTID       string `json:"first_promoter_tid,omitempty"`
}

// RefundWebhookPayload is the payment provider's refund event. The service
// marks the purchase refunded and notifies the affiliate tracker; studio and
// ledger state are left to the support workflow.
type RefundWebhookPayload struct {
	Data OrderData `json:"data"`
	Meta OrderMeta `json:"meta"`
}

// TrainingWebhookPayload is sent by the generation pipeline when model
// training for a studio finishes.
type TrainingWebhookPayload struct {
	StudioID   uuid.UUID `json:"studio_id"`
	Status     string    `json:"status"` // "success" or "failed"
	WeightsKey string    `json:"weights,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// HeadshotWebhookPayload is sent once per generated prompt unit. The unit
// flagged SendEmail is the designated last of its batch; its arrival drives
// the PROCESSING -> COMPLETED transition.
type HeadshotWebhookPayload struct {
	StudioID   uuid.UUID `json:"studio_id"`
	Prompt     string    `json:"prompt"`
	PreviewKey string    `json:"preview,omitempty"`
	ResultKey  string    `json:"result,omitempty"`
	SendEmail  bool      `json:"sendemail"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// UpscaleWebhookPayload attaches the full-resolution object key to an
// existing headshot after the separate upscale step finishes.
type UpscaleWebhookPayload struct {
	HeadshotID uuid.UUID `json:"headshot_id"`
	HDKey      string    `json:"hd"`
}
