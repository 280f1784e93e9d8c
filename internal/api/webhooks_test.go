package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/proshoot/studio-service/internal/app"
	"github.com/proshoot/studio-service/internal/plans"
)

func newWebhookHandlers() *WebhookHandlers {
	svc := app.NewService(nil, plans.NewValidator(plans.DefaultConfig()), nil, nil, nil, nil, nil, nil, app.ServiceConfig{})
	return NewWebhookHandlers(svc, "lemon-secret", "pipeline-secret")
}

func TestLemonOrderHandler_RejectsBadSignature(t *testing.T) {
	h := newWebhookHandlers()
	body := []byte(`{"meta":{"event_name":"order_created"}}`)

	req := httptest.NewRequest("POST", "/webhooks/lemon-squeezy", bytes.NewReader(body))
	req.Header.Set("X-Signature", "deadbeef")
	rec := httptest.NewRecorder()

	h.LemonOrderHandler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLemonOrderHandler_RejectsMissingSignature(t *testing.T) {
	h := newWebhookHandlers()
	req := httptest.NewRequest("POST", "/webhooks/lemon-squeezy", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	h.LemonOrderHandler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLemonOrderHandler_BadPayload(t *testing.T) {
	h := newWebhookHandlers()
	body := []byte(`not json`)

	req := httptest.NewRequest("POST", "/webhooks/lemon-squeezy", bytes.NewReader(body))
	req.Header.Set("X-Signature", sign(body, "lemon-secret"))
	rec := httptest.NewRecorder()

	h.LemonOrderHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLemonOrderHandler_IgnoredEventAcknowledged(t *testing.T) {
	h := newWebhookHandlers()
	body := []byte(`{"meta":{"event_name":"subscription_created"},"data":{"id":"o1","attributes":{"status":"paid"}}}`)

	req := httptest.NewRequest("POST", "/webhooks/lemon-squeezy", bytes.NewReader(body))
	req.Header.Set("X-Signature", sign(body, "lemon-secret"))
	rec := httptest.NewRecorder()

	h.LemonOrderHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ignored event must be acknowledged, got %d", rec.Code)
	}
}

func TestPipelineHandlers_RejectWrongSecret(t *testing.T) {
	h := newWebhookHandlers()
	body := []byte(`{"studio_id":"00000000-0000-0000-0000-000000000000","status":"success"}`)

	req := httptest.NewRequest("POST", "/webhooks/pipeline/training", bytes.NewReader(body))
	req.Header.Set("X-Pipeline-Signature", sign(body, "wrong-secret"))
	rec := httptest.NewRecorder()

	h.TrainingCompleteHandler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
