/**
 * @description
 * This file contains the HTTP handlers for inbound webhooks: payment-provider
 * order and refund events, and the generation pipeline's training, headshot,
 * and upscale callbacks. Every handler reads the raw body first, verifies the
 * HMAC signature over those exact bytes, and only then decodes JSON.
 *
 * @notes
 * - Payment webhooks that fail processing return 5xx so the provider
 *   redelivers; ignored events and duplicates return 200 so it stops.
 * - Signature failures return 401 and are counted per source.
 *
 * @dependencies
 * - encoding/json, io, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/metrics: Service logic, payload shapes, counters.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/proshoot/studio-service/internal/app"
	"github.com/proshoot/studio-service/internal/domain"
	"github.com/proshoot/studio-service/internal/metrics"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookHandlers holds the service and the per-source signing secrets.
type WebhookHandlers struct {
	service       *app.Service
	lemonSecret   string
	pipelineToken string
}

// NewWebhookHandlers creates a new instance of WebhookHandlers.
func NewWebhookHandlers(service *app.Service, lemonSecret, pipelineToken string) *WebhookHandlers {
	return &WebhookHandlers{
		service:       service,
		lemonSecret:   lemonSecret,
		pipelineToken: pipelineToken,
	}
}

// readAndVerify reads the raw body and checks its signature. On failure it
// writes the response itself and returns nil.
func (h *WebhookHandlers) readAndVerify(w http.ResponseWriter, r *http.Request, source, header, secret string) []byte {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(source, "read_error").Inc()
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return nil
	}
	if !VerifySignature(body, r.Header.Get(header), secret) {
		metrics.WebhooksTotal.WithLabelValues(source, "bad_signature").Inc()
		log.Printf("level=warn component=webhooks source=%s outcome=reject reason=bad_signature", source)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return nil
	}
	return body
}

// LemonOrderHandler processes payment-provider order events.
func (h *WebhookHandlers) LemonOrderHandler(w http.ResponseWriter, r *http.Request) {
	body := h.readAndVerify(w, r, "lemon_order", "X-Signature", h.lemonSecret)
	if body == nil {
		return
	}

	var payload domain.OrderWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhooksTotal.WithLabelValues("lemon_order", "bad_payload").Inc()
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if err := h.service.ProcessOrderWebhook(r.Context(), &payload); err != nil {
		if errors.Is(err, app.ErrWebhookSecretMismatch) {
			metrics.WebhooksTotal.WithLabelValues("lemon_order", "secret_mismatch").Inc()
			http.Error(w, "Invalid webhook secret", http.StatusUnauthorized)
			return
		}
		metrics.WebhooksTotal.WithLabelValues("lemon_order", "error").Inc()
		log.Printf("level=error component=webhooks source=lemon_order order_id=%s err=%v", payload.Data.ID, err)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	metrics.WebhooksTotal.WithLabelValues("lemon_order", "ok").Inc()
	w.WriteHeader(http.StatusOK)
}

// LemonRefundHandler processes payment-provider refund events.
func (h *WebhookHandlers) LemonRefundHandler(w http.ResponseWriter, r *http.Request) {
	body := h.readAndVerify(w, r, "lemon_refund", "X-Signature", h.lemonSecret)
	if body == nil {
		return
	}

	var payload domain.RefundWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhooksTotal.WithLabelValues("lemon_refund", "bad_payload").Inc()
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if err := h.service.ProcessRefundWebhook(r.Context(), &payload); err != nil {
		metrics.WebhooksTotal.WithLabelValues("lemon_refund", "error").Inc()
		log.Printf("level=error component=webhooks source=lemon_refund order_id=%s err=%v", payload.Data.ID, err)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	metrics.WebhooksTotal.WithLabelValues("lemon_refund", "ok").Inc()
	w.WriteHeader(http.StatusOK)
}

// TrainingCompleteHandler processes the model-training callback.
func (h *WebhookHandlers) TrainingCompleteHandler(w http.ResponseWriter, r *http.Request) {
	body := h.readAndVerify(w, r, "training", "X-Pipeline-Signature", h.pipelineToken)
	if body == nil {
		return
	}

	var payload domain.TrainingWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhooksTotal.WithLabelValues("training", "bad_payload").Inc()
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	result, err := h.service.HandleTrainingComplete(r.Context(), &payload)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("training", "error").Inc()
		log.Printf("level=error component=webhooks source=training studio_id=%s err=%v", payload.StudioID, err)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	metrics.WebhooksTotal.WithLabelValues("training", "ok").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// HeadshotCompleteHandler processes one generated-unit callback.
func (h *WebhookHandlers) HeadshotCompleteHandler(w http.ResponseWriter, r *http.Request) {
	body := h.readAndVerify(w, r, "headshot", "X-Pipeline-Signature", h.pipelineToken)
	if body == nil {
		return
	}

	var payload domain.HeadshotWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhooksTotal.WithLabelValues("headshot", "bad_payload").Inc()
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if err := h.service.HandleHeadshotComplete(r.Context(), &payload); err != nil {
		metrics.WebhooksTotal.WithLabelValues("headshot", "error").Inc()
		log.Printf("level=error component=webhooks source=headshot studio_id=%s err=%v", payload.StudioID, err)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	metrics.WebhooksTotal.WithLabelValues("headshot", "ok").Inc()
	w.WriteHeader(http.StatusOK)
}

// UpscaleCompleteHandler attaches the full-resolution key to a headshot.
func (h *WebhookHandlers) UpscaleCompleteHandler(w http.ResponseWriter, r *http.Request) {
	body := h.readAndVerify(w, r, "upscale", "X-Pipeline-Signature", h.pipelineToken)
	if body == nil {
		return
	}

	var payload domain.UpscaleWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhooksTotal.WithLabelValues("upscale", "bad_payload").Inc()
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if err := h.service.HandleUpscaleComplete(r.Context(), &payload); err != nil {
		metrics.WebhooksTotal.WithLabelValues("upscale", "error").Inc()
		log.Printf("level=error component=webhooks source=upscale headshot_id=%s err=%v", payload.HeadshotID, err)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	metrics.WebhooksTotal.WithLabelValues("upscale", "ok").Inc()
	w.WriteHeader(http.StatusOK)
}
