/**
 * @description
 * This file processes the inbound webhooks that drive the studio lifecycle:
 * payment-provider order and refund events, and the generation pipeline's
 * training, headshot, and upscale callbacks.
 *
 * Key features:
 * - Order processing is idempotent: the purchase insert's unique provider
 *   payment id rejects redeliveries before any credits are granted.
 * - Training success fans out one generation call per prompt; the designated
 *   final unit carries the send-email flag whose callback completes the studio.
 * - Refunds touch the purchase record and the affiliate tracker only; studio
 *   and ledger adjustments stay with the support workflow.
 *
 * @dependencies
 * - context, errors, fmt, log, strconv: Standard Go libraries.
 * - github.com/google/uuid: For UUID parsing.
 * - internal/domain, internal/metrics, internal/store: Domain models, metrics, data access.
 * - pkg/affiliateclient, pkg/modalclient: External service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/proshoot/studio-service/internal/domain"
	"github.com/proshoot/studio-service/internal/metrics"
	"github.com/proshoot/studio-service/internal/store"
	"github.com/proshoot/studio-service/pkg/affiliateclient"
	"github.com/proshoot/studio-service/pkg/modalclient"
)

var ErrWebhookSecretMismatch = errors.New("webhook custom data secret mismatch")

// ProcessOrderWebhook handles a payment-provider order event. Events other
// than a paid order_created are acknowledged without side effects. A
// redelivered order is detected by the purchase record's unique provider
// payment id and acknowledged as already processed.
func (s *Service) ProcessOrderWebhook(ctx context.Context, payload *domain.OrderWebhookPayload) error {
	if payload.Meta.EventName != "order_created" || payload.Data.Attributes.Status != "paid" {
		log.Printf("level=info component=webhook_processor msg=\"ignoring order event\" event=%s status=%s", payload.Meta.EventName, payload.Data.Attributes.Status)
		return nil
	}

	custom := payload.Meta.CustomData
	if s.cfg.SharedWebhookSecret != "" && custom.WebhookSecret != s.cfg.SharedWebhookSecret {
		return ErrWebhookSecretMismatch
	}

	plan, ok := s.plans.Plan(custom.Plan)
	if !ok {
		return fmt.Errorf("order %s carries unknown plan %q", payload.Data.ID, custom.Plan)
	}
	quantity, err := strconv.ParseInt(custom.Quantity, 10, 64)
	if err != nil || quantity < 1 {
		quantity = 1
	}
	userID, err := uuid.Parse(custom.UserID)
	if err != nil {
		return fmt.Errorf("order %s carries invalid user id %q: %w", payload.Data.ID, custom.UserID, err)
	}

	bucket := domain.CreditBucket(plan.Key)
	purchase := &domain.Purchase{
		ID:                uuid.New(),
		Provider:          paymentProvider,
		ProviderPaymentID: payload.Data.ID,
		Amount:            payload.Data.Attributes.Total,
		Currency:          payload.Data.Attributes.Currency,
		CreditsGranted:    quantity,
		CreditsType:       bucket,
		Status:            "paid",
		Metadata: map[string]any{
			"order_number": payload.Data.Attributes.OrderNumber,
			"user_id":      custom.UserID,
		},
	}
	if err := s.repo.CreatePurchase(ctx, purchase); err != nil {
		if errors.Is(err, store.ErrDuplicatePurchase) {
			metrics.DuplicatePurchasesTotal.Inc()
			log.Printf("level=info component=webhook_processor msg=\"duplicate order delivery; already processed\" provider_payment_id=%s", payload.Data.ID)
			return nil
		}
		return fmt.Errorf("failed to record purchase: %w", err)
	}

	account := domain.PersonalAccount(userID)
	if custom.OrganizationID != "" {
		orgID, parseErr := uuid.Parse(custom.OrganizationID)
		if parseErr != nil {
			return fmt.Errorf("order %s carries invalid organization id %q: %w", payload.Data.ID, custom.OrganizationID, parseErr)
		}
		account = domain.OrganizationAccount(orgID)
	}

	if _, err := s.mutateCredits(ctx, domain.CreditMutation{
		Account: account,
		Bucket:  bucket,
		Delta:   quantity,
		Reason:  "purchase",
	}); err != nil {
		return fmt.Errorf("failed to grant credits for order %s: %w", payload.Data.ID, err)
	}

	// Kick off processing when the checkout was tied to a pending studio.
	if custom.StudioID != "" {
		studioID, parseErr := uuid.Parse(custom.StudioID)
		if parseErr != nil {
			log.Printf("level=warn component=webhook_processor msg=\"order carries invalid studio id; skipping processing\" studio_id=%s err=%v", custom.StudioID, parseErr)
		} else if procErr := s.StartStudioProcessing(ctx, studioID); procErr != nil {
			// Credits are already granted; a processing failure must not fail
			// the webhook or the provider will redeliver a settled order.
			log.Printf("level=error component=webhook_processor msg=\"failed to start studio processing after purchase\" studio_id=%s err=%v", studioID, procErr)
		}
	}

	// Affiliate attribution is best effort.
	if custom.FirstPromoterReference != "" && s.affiliate.Enabled() {
		sale := affiliateclient.Sale{
			UserID:      custom.UserID,
			AmountCents: payload.Data.Attributes.Total,
			EventID:     payload.Data.ID,
			RefID:       custom.FirstPromoterReference,
			TID:         custom.FirstPromoterTID,
		}
		if err := s.affiliate.TrackSale(ctx, sale); err != nil {
			log.Printf("level=warn component=webhook_processor msg=\"failed to track affiliate sale\" order_id=%s err=%v", payload.Data.ID, err)
		}
	}

	return nil
}

// ProcessRefundWebhook marks the purchase refunded and reverses affiliate
// attribution. Already-consumed credits and studio state are deliberately
// left alone.
func (s *Service) ProcessRefundWebhook(ctx context.Context, payload *domain.RefundWebhookPayload) error {
	purchase, err := s.repo.MarkPurchaseRefunded(ctx, paymentProvider, payload.Data.ID)
	if err != nil {
		if errors.Is(err, store.ErrPurchaseNotFound) {
			log.Printf("level=warn component=webhook_processor msg=\"refund for unknown purchase; acknowledging\" provider_payment_id=%s", payload.Data.ID)
			return nil
		}
		return fmt.Errorf("failed to mark purchase refunded: %w", err)
	}

	if s.affiliate.Enabled() {
		userID, _ := purchase.Metadata["user_id"].(string)
		refund := affiliateclient.Refund{
			UserID:      userID,
			AmountCents: purchase.Amount,
			EventID:     payload.Data.ID,
		}
		if err := s.affiliate.TrackRefund(ctx, refund); err != nil {
			log.Printf("level=warn component=webhook_processor msg=\"failed to track affiliate refund\" order_id=%s err=%v", payload.Data.ID, err)
		}
	}
	return nil
}

// HandleTrainingComplete reacts to the training callback. On success the
// studio's weights are stored and generation fans out one call per prompt; on
// failure, or when every fan-out unit fails, the studio is marked FAILED.
func (s *Service) HandleTrainingComplete(ctx context.Context, payload *domain.TrainingWebhookPayload) (*domain.DispatchResult, error) {
	studio, err := s.repo.FindStudioByID(ctx, payload.StudioID)
	if err != nil {
		return nil, err
	}

	if payload.Status != "success" {
		log.Printf("level=error component=webhook_processor msg=\"training failed\" studio_id=%s err=%q", studio.ID, payload.Error)
		if _, trErr := s.transitionStudio(ctx, studio, domain.StudioStatusFailed, "training failed"); trErr != nil {
			return nil, trErr
		}
		return &domain.DispatchResult{}, nil
	}

	if payload.WeightsKey == "" {
		return nil, fmt.Errorf("training callback for studio %s reports success without weights", studio.ID)
	}
	if err := s.repo.UpdateStudioWeights(ctx, studio.ID, studio.Provider, payload.WeightsKey); err != nil {
		return nil, fmt.Errorf("failed to store weights: %w", err)
	}

	plan, ok := s.plans.Plan(studio.Plan)
	if !ok {
		return nil, fmt.Errorf("studio %s carries unknown plan %q", studio.ID, studio.Plan)
	}
	prompts := BuildPrompts(studio.UserAttributes, studio.StylePairs, plan.StylesLimit)
	if len(prompts) == 0 {
		if _, trErr := s.transitionStudio(ctx, studio, domain.StudioStatusFailed, "no prompts to generate"); trErr != nil {
			return nil, trErr
		}
		return &domain.DispatchResult{}, nil
	}

	result := &domain.DispatchResult{}
	for i, prompt := range prompts {
		params := modalclient.GenerationParams{
			StudioID:   studio.ID,
			Prompt:     prompt,
			WeightsKey: payload.WeightsKey,
			SendEmail:  i == len(prompts)-1,
		}
		err := withRetry(ctx, s.cfg.RetryPolicy, func(ctx context.Context) error {
			start := time.Now()
			_, genErr := s.generator.GenerateHeadshot(ctx, params)
			metrics.DispatchDuration.WithLabelValues("generate").Observe(time.Since(start).Seconds())
			if genErr != nil {
				metrics.DispatchAttemptsTotal.WithLabelValues("generate", "failure").Inc()
				return genErr
			}
			metrics.DispatchAttemptsTotal.WithLabelValues("generate", "success").Inc()
			return nil
		})
		if err != nil {
			log.Printf("level=error component=webhook_processor msg=\"generation dispatch failed\" studio_id=%s unit=%d err=%v", studio.ID, i, err)
			result.Failed++
			continue
		}
		result.Dispatched++
	}

	// Settle-all: the studio fails only when no unit reached the pipeline.
	if result.Dispatched == 0 {
		if _, trErr := s.transitionStudio(ctx, studio, domain.StudioStatusFailed, "all generation dispatches failed"); trErr != nil {
			return result, trErr
		}
	}
	return result, nil
}

// HandleHeadshotComplete records one generated asset. The unit flagged as the
// batch's last drives the PROCESSING -> COMPLETED transition, provided at
// least one headshot exists; an empty studio at batch end is marked FAILED.
func (s *Service) HandleHeadshotComplete(ctx context.Context, payload *domain.HeadshotWebhookPayload) error {
	studio, err := s.repo.FindStudioByID(ctx, payload.StudioID)
	if err != nil {
		return err
	}

	if payload.Status == "success" && payload.ResultKey != "" {
		headshot := &domain.Headshot{
			ID:       uuid.New(),
			StudioID: studio.ID,
			Prompt:   payload.Prompt,
		}
		if payload.PreviewKey != "" {
			headshot.Preview = &payload.PreviewKey
		}
		headshot.Result = &payload.ResultKey
		if err := s.repo.CreateHeadshot(ctx, headshot); err != nil {
			return fmt.Errorf("failed to record headshot: %w", err)
		}
		metrics.HeadshotsRecordedTotal.Inc()
	} else {
		log.Printf("level=warn component=webhook_processor msg=\"generation unit failed\" studio_id=%s err=%q", studio.ID, payload.Error)
	}

	if !payload.SendEmail {
		return nil
	}

	headshots, err := s.repo.ListHeadshotsByStudio(ctx, studio.ID)
	if err != nil {
		return fmt.Errorf("failed to count headshots: %w", err)
	}
	target := domain.StudioStatusCompleted
	reason := "generation batch finished"
	if len(headshots) == 0 {
		target = domain.StudioStatusFailed
		reason = "generation batch produced no headshots"
	}
	if _, err := s.transitionStudio(ctx, studio, target, reason); err != nil {
		// A concurrent redelivery of the final unit may have completed the
		// studio already.
		if errors.Is(err, store.ErrInvalidTransition) {
			log.Printf("level=info component=webhook_processor msg=\"studio already settled\" studio_id=%s target=%s", studio.ID, target)
			return nil
		}
		return err
	}
	return nil
}

// HandleUpscaleComplete attaches the full-resolution object key to its
// headshot.
func (s *Service) HandleUpscaleComplete(ctx context.Context, payload *domain.UpscaleWebhookPayload) error {
	if payload.HDKey == "" {
		return errors.New("upscale callback carries no hd key")
	}
	return s.repo.SetHeadshotHD(ctx, payload.HeadshotID, payload.HDKey)
}
