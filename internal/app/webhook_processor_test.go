package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/proshoot/studio-service/internal/domain"
	"github.com/proshoot/studio-service/internal/store"
	"github.com/proshoot/studio-service/pkg/modalclient"
)

func paidOrder(userID uuid.UUID, plan, quantity string) *domain.OrderWebhookPayload {
	return &domain.OrderWebhookPayload{
		Data: domain.OrderData{
			ID: "order-123",
			Attributes: domain.OrderAttributes{
				Status:      "paid",
				Total:       19600,
				Currency:    "USD",
				OrderNumber: 42,
			},
		},
		Meta: domain.OrderMeta{
			EventName: "order_created",
			CustomData: domain.OrderCustomData{
				Plan:          plan,
				Quantity:      quantity,
				UserID:        userID.String(),
				WebhookSecret: "shhh",
			},
		},
	}
}

func TestProcessOrderWebhook_GrantsCredits(t *testing.T) {
	userID := mustUUID(t)

	var purchase *domain.Purchase
	var mutation *domain.CreditMutation
	repo := &stubRepository{
		createPurchase: func(ctx context.Context, p *domain.Purchase) error {
			purchase = p
			return nil
		},
		mutateCredits: func(ctx context.Context, m domain.CreditMutation) (*domain.CreditBalanceResult, error) {
			mutation = &m
			return &domain.CreditBalanceResult{Remaining: 4}, nil
		},
	}
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{})

	if err := svc.ProcessOrderWebhook(context.Background(), paidOrder(userID, "professional", "4")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if purchase == nil {
		t.Fatal("expected purchase recorded")
	}
	if purchase.ProviderPaymentID != "order-123" || purchase.CreditsGranted != 4 || purchase.CreditsType != domain.BucketProfessional {
		t.Errorf("unexpected purchase: %+v", purchase)
	}
	if mutation == nil {
		t.Fatal("expected credits granted")
	}
	if mutation.Delta != 4 || mutation.Bucket != domain.BucketProfessional || mutation.Reason != "purchase" {
		t.Errorf("unexpected mutation: %+v", mutation)
	}
	if mutation.Account.UserID == nil || *mutation.Account.UserID != userID {
		t.Errorf("granted to wrong account: %+v", mutation.Account)
	}
}

func TestProcessOrderWebhook_DuplicateIsAcknowledged(t *testing.T) {
	userID := mustUUID(t)

	granted := false
	repo := &stubRepository{
		createPurchase: func(ctx context.Context, p *domain.Purchase) error {
			return store.ErrDuplicatePurchase
		},
		mutateCredits: func(ctx context.Context, m domain.CreditMutation) (*domain.CreditBalanceResult, error) {
			granted = true
			return &domain.CreditBalanceResult{}, nil
		},
	}
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{})

	if err := svc.ProcessOrderWebhook(context.Background(), paidOrder(userID, "starter", "1")); err != nil {
		t.Fatalf("duplicate delivery must succeed without side effects, got %v", err)
	}
	if granted {
		t.Fatal("duplicate delivery must not grant credits again")
	}
}

func TestProcessOrderWebhook_IgnoresOtherEvents(t *testing.T) {
	userID := mustUUID(t)

	recorded := false
	repo := &stubRepository{
		createPurchase: func(ctx context.Context, p *domain.Purchase) error {
			recorded = true
			return nil
		},
	}
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{})

	unpaid := paidOrder(userID, "starter", "1")
	unpaid.Data.Attributes.Status = "pending"
	if err := svc.ProcessOrderWebhook(context.Background(), unpaid); err != nil {
		t.Fatalf("non-paid order must be acknowledged, got %v", err)
	}

	wrongEvent := paidOrder(userID, "starter", "1")
	wrongEvent.Meta.EventName = "subscription_created"
	if err := svc.ProcessOrderWebhook(context.Background(), wrongEvent); err != nil {
		t.Fatalf("unknown event must be acknowledged, got %v", err)
	}
	if recorded {
		t.Fatal("ignored events must not record purchases")
	}
}

func TestProcessOrderWebhook_SecretMismatch(t *testing.T) {
	userID := mustUUID(t)
	svc := newTestService(&stubRepository{}, &stubGenerator{}, &stubPublisher{})

	payload := paidOrder(userID, "starter", "1")
	payload.Meta.CustomData.WebhookSecret = "wrong"
	if err := svc.ProcessOrderWebhook(context.Background(), payload); !errors.Is(err, ErrWebhookSecretMismatch) {
		t.Fatalf("expected secret mismatch error, got %v", err)
	}
}

func TestProcessOrderWebhook_OrganizationGrant(t *testing.T) {
	userID := mustUUID(t)
	orgID := mustUUID(t)

	var account domain.AccountRef
	repo := &stubRepository{
		mutateCredits: func(ctx context.Context, m domain.CreditMutation) (*domain.CreditBalanceResult, error) {
			account = m.Account
			return &domain.CreditBalanceResult{}, nil
		},
	}
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{})

	payload := paidOrder(userID, "team", "5")
	payload.Meta.CustomData.OrganizationID = orgID.String()
	if err := svc.ProcessOrderWebhook(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.OrganizationID == nil || *account.OrganizationID != orgID {
		t.Fatalf("expected organization account, got %+v", account)
	}
}

func TestProcessOrderWebhook_ProcessingFailureDoesNotFailWebhook(t *testing.T) {
	userID := mustUUID(t)
	studioID := mustUUID(t)

	repo := &stubRepository{
		findStudioByID: func(ctx context.Context, id uuid.UUID) (*domain.Studio, error) {
			return nil, store.ErrStudioNotFound
		},
	}
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{})

	payload := paidOrder(userID, "starter", "1")
	payload.Meta.CustomData.StudioID = studioID.String()
	if err := svc.ProcessOrderWebhook(context.Background(), payload); err != nil {
		t.Fatalf("a settled order must be acknowledged even if processing fails, got %v", err)
	}
}

func TestProcessRefundWebhook(t *testing.T) {
	affiliate := &stubAffiliate{enabled: true}
	repo := &stubRepository{
		markPurchaseRefunded: func(ctx context.Context, provider, providerPaymentID string) (*domain.Purchase, error) {
			return &domain.Purchase{
				ProviderPaymentID: providerPaymentID,
				Amount:            4900,
				Status:            "refunded",
				Metadata:          map[string]any{"user_id": "u-1"},
			}, nil
		},
	}
	svc := NewService(repo, svcPlans(), &stubCheckout{}, &stubGenerator{}, affiliate, &stubSigner{}, &stubPublisher{}, nil, ServiceConfig{RetryPolicy: instantRetryPolicy(1)})

	payload := &domain.RefundWebhookPayload{Data: domain.OrderData{ID: "order-9"}}
	if err := svc.ProcessRefundWebhook(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(affiliate.refunds) != 1 {
		t.Fatalf("expected one affiliate refund, got %d", len(affiliate.refunds))
	}
	if affiliate.refunds[0].AmountCents != 4900 || affiliate.refunds[0].EventID != "order-9" {
		t.Errorf("unexpected refund: %+v", affiliate.refunds[0])
	}
}

func TestProcessRefundWebhook_UnknownPurchaseAcknowledged(t *testing.T) {
	repo := &stubRepository{
		markPurchaseRefunded: func(ctx context.Context, provider, providerPaymentID string) (*domain.Purchase, error) {
			return nil, store.ErrPurchaseNotFound
		},
	}
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{})

	payload := &domain.RefundWebhookPayload{Data: domain.OrderData{ID: "order-unknown"}}
	if err := svc.ProcessRefundWebhook(context.Background(), payload); err != nil {
		t.Fatalf("unknown purchase refund must be acknowledged, got %v", err)
	}
}

func TestHandleTrainingComplete_FansOutPrompts(t *testing.T) {
	studioID := mustUUID(t)

	var weightsStored string
	var dispatched []modalclient.GenerationParams
	repo := &stubRepository{
		findStudioByID: func(ctx context.Context, id uuid.UUID) (*domain.Studio, error) {
			return &domain.Studio{
				ID:            id,
				CreatorUserID: mustUUID(t),
				Plan:          "starter",
				Status:        domain.StudioStatusProcessing,
				StylePairs: []domain.StylePair{
					{Clothing: "navy suit", Background: "office"},
					{Clothing: "black turtleneck", Background: "studio gray"},
				},
				UserAttributes: domain.UserAttributes{Gender: "male"},
			}, nil
		},
		updateStudioWeights: func(ctx context.Context, id uuid.UUID, providerID, weightsKey string) error {
			weightsStored = weightsKey
			return nil
		},
	}
	gen := &stubGenerator{
		generateHeadshot: func(ctx context.Context, params modalclient.GenerationParams) (*modalclient.JobResponse, error) {
			dispatched = append(dispatched, params)
			return &modalclient.JobResponse{CallID: "c", Status: "queued"}, nil
		},
	}
	svc := newTestService(repo, gen, &stubPublisher{})

	result, err := svc.HandleTrainingComplete(context.Background(), &domain.TrainingWebhookPayload{
		StudioID:   studioID,
		Status:     "success",
		WeightsKey: "weights/abc.safetensors",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if weightsStored != "weights/abc.safetensors" {
		t.Errorf("weights not stored: %q", weightsStored)
	}
	if result.Dispatched != 2 || result.Failed != 0 {
		t.Fatalf("expected 2 dispatched, got %+v", result)
	}
	for i, params := range dispatched {
		wantFinal := i == len(dispatched)-1
		if params.SendEmail != wantFinal {
			t.Errorf("unit %d: sendemail=%v, want %v", i, params.SendEmail, wantFinal)
		}
		if params.WeightsKey != "weights/abc.safetensors" {
			t.Errorf("unit %d carries wrong weights key", i)
		}
	}
}

func TestHandleTrainingComplete_FailureMarksStudioFailed(t *testing.T) {
	studioID := mustUUID(t)

	var target domain.StudioStatus
	repo := &stubRepository{
		findStudioByID: func(ctx context.Context, id uuid.UUID) (*domain.Studio, error) {
			return &domain.Studio{ID: id, CreatorUserID: mustUUID(t), Plan: "starter", Status: domain.StudioStatusProcessing}, nil
		},
		transitionStudio: func(ctx context.Context, id uuid.UUID, to domain.StudioStatus) (domain.StudioStatus, error) {
			target = to
			return domain.StudioStatusProcessing, nil
		},
	}
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{})

	_, err := svc.HandleTrainingComplete(context.Background(), &domain.TrainingWebhookPayload{
		StudioID: studioID,
		Status:   "failed",
		Error:    "oom",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target != domain.StudioStatusFailed {
		t.Fatalf("expected FAILED, got %s", target)
	}
}

func TestHandleTrainingComplete_AllDispatchesFailedMarksFailed(t *testing.T) {
	studioID := mustUUID(t)

	var target domain.StudioStatus
	repo := &stubRepository{
		findStudioByID: func(ctx context.Context, id uuid.UUID) (*domain.Studio, error) {
			return &domain.Studio{
				ID:             id,
				CreatorUserID:  mustUUID(t),
				Plan:           "starter",
				Status:         domain.StudioStatusProcessing,
				StylePairs:     []domain.StylePair{{Clothing: "suit", Background: "office"}},
				UserAttributes: domain.UserAttributes{Gender: "female"},
			}, nil
		},
		transitionStudio: func(ctx context.Context, id uuid.UUID, to domain.StudioStatus) (domain.StudioStatus, error) {
			target = to
			return domain.StudioStatusProcessing, nil
		},
	}
	gen := &stubGenerator{
		generateHeadshot: func(ctx context.Context, params modalclient.GenerationParams) (*modalclient.JobResponse, error) {
			return nil, &modalclient.StatusError{StatusCode: 400, Body: "bad prompt"}
		},
	}
	svc := newTestService(repo, gen, &stubPublisher{})

	result, err := svc.HandleTrainingComplete(context.Background(), &domain.TrainingWebhookPayload{
		StudioID:   studioID,
		Status:     "success",
		WeightsKey: "weights/abc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Dispatched != 0 || result.Failed != 1 {
		t.Fatalf("expected all failed, got %+v", result)
	}
	if target != domain.StudioStatusFailed {
		t.Fatalf("expected FAILED, got %s", target)
	}
}

func TestHandleHeadshotComplete_FinalUnitCompletesStudio(t *testing.T) {
	studioID := mustUUID(t)

	var created *domain.Headshot
	var target domain.StudioStatus
	repo := &stubRepository{
		findStudioByID: func(ctx context.Context, id uuid.UUID) (*domain.Studio, error) {
			return &domain.Studio{ID: id, CreatorUserID: mustUUID(t), Plan: "starter", Status: domain.StudioStatusProcessing}, nil
		},
		createHeadshot: func(ctx context.Context, h *domain.Headshot) error {
			created = h
			return nil
		},
		listHeadshotsByStudio: func(ctx context.Context, id uuid.UUID) ([]*domain.Headshot, error) {
			return []*domain.Headshot{created}, nil
		},
		transitionStudio: func(ctx context.Context, id uuid.UUID, to domain.StudioStatus) (domain.StudioStatus, error) {
			target = to
			return domain.StudioStatusProcessing, nil
		},
	}
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{})

	err := svc.HandleHeadshotComplete(context.Background(), &domain.HeadshotWebhookPayload{
		StudioID:  studioID,
		Prompt:    "a prompt",
		ResultKey: "result/1.png",
		SendEmail: true,
		Status:    "success",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil || created.Result == nil || *created.Result != "result/1.png" {
		t.Fatalf("headshot not recorded: %+v", created)
	}
	if target != domain.StudioStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", target)
	}
}

func TestHandleHeadshotComplete_EmptyBatchMarksFailed(t *testing.T) {
	studioID := mustUUID(t)

	var target domain.StudioStatus
	repo := &stubRepository{
		findStudioByID: func(ctx context.Context, id uuid.UUID) (*domain.Studio, error) {
			return &domain.Studio{ID: id, CreatorUserID: mustUUID(t), Plan: "starter", Status: domain.StudioStatusProcessing}, nil
		},
		listHeadshotsByStudio: func(ctx context.Context, id uuid.UUID) ([]*domain.Headshot, error) {
			return nil, nil
		},
		transitionStudio: func(ctx context.Context, id uuid.UUID, to domain.StudioStatus) (domain.StudioStatus, error) {
			target = to
			return domain.StudioStatusProcessing, nil
		},
	}
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{})

	err := svc.HandleHeadshotComplete(context.Background(), &domain.HeadshotWebhookPayload{
		StudioID:  studioID,
		SendEmail: true,
		Status:    "failed",
		Error:     "nsfw filter",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target != domain.StudioStatusFailed {
		t.Fatalf("expected FAILED, got %s", target)
	}
}

func TestHandleHeadshotComplete_IntermediateUnitDoesNotTransition(t *testing.T) {
	studioID := mustUUID(t)

	repo := &stubRepository{
		findStudioByID: func(ctx context.Context, id uuid.UUID) (*domain.Studio, error) {
			return &domain.Studio{ID: id, CreatorUserID: mustUUID(t), Plan: "starter", Status: domain.StudioStatusProcessing}, nil
		},
		transitionStudio: func(ctx context.Context, id uuid.UUID, to domain.StudioStatus) (domain.StudioStatus, error) {
			t.Fatal("intermediate unit must not transition the studio")
			return "", nil
		},
	}
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{})

	err := svc.HandleHeadshotComplete(context.Background(), &domain.HeadshotWebhookPayload{
		StudioID:  studioID,
		ResultKey: "result/2.png",
		Status:    "success",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandleUpscaleComplete(t *testing.T) {
	headshotID := mustUUID(t)

	var storedKey string
	repo := &stubRepository{
		setHeadshotHD: func(ctx context.Context, id uuid.UUID, hdKey string) error {
			storedKey = hdKey
			return nil
		},
	}
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{})

	err := svc.HandleUpscaleComplete(context.Background(), &domain.UpscaleWebhookPayload{
		HeadshotID: headshotID,
		HDKey:      "hd/1.png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if storedKey != "hd/1.png" {
		t.Fatalf("hd key not stored: %q", storedKey)
	}

	if err := svc.HandleUpscaleComplete(context.Background(), &domain.UpscaleWebhookPayload{HeadshotID: headshotID}); err == nil {
		t.Fatal("missing hd key must be rejected")
	}
}
