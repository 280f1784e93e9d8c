package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/proshoot/studio-service/internal/domain"
	"github.com/proshoot/studio-service/internal/plans"
	"github.com/proshoot/studio-service/pkg/affiliateclient"
	"github.com/proshoot/studio-service/pkg/lemonclient"
	"github.com/proshoot/studio-service/pkg/modalclient"
)

// stubRepository implements store.Repository with per-method function fields.
// Unset methods return zero values so tests only wire what they exercise.
type stubRepository struct {
	findUserIDByClerkUserID         func(ctx context.Context, clerkUserID string) (uuid.UUID, error)
	findOrganizationOwnerID         func(ctx context.Context, organizationID uuid.UUID) (uuid.UUID, error)
	isOrganizationMember            func(ctx context.Context, organizationID, userID uuid.UUID) (bool, error)
	getLedger                       func(ctx context.Context, account domain.AccountRef) (*domain.CreditLedger, error)
	mutateCredits                   func(ctx context.Context, m domain.CreditMutation) (*domain.CreditBalanceResult, error)
	transferTeamCredits             func(ctx context.Context, t domain.TeamCreditTransfer) error
	listCreditTransactions          func(ctx context.Context, account domain.AccountRef, limit, offset int) ([]domain.CreditTransaction, error)
	createPurchase                  func(ctx context.Context, p *domain.Purchase) error
	findPurchaseByProviderPaymentID func(ctx context.Context, provider, providerPaymentID string) (*domain.Purchase, error)
	markPurchaseRefunded            func(ctx context.Context, provider, providerPaymentID string) (*domain.Purchase, error)
	upsertPendingStudio             func(ctx context.Context, st *domain.Studio) (domain.StudioStatus, error)
	findStudioByID                  func(ctx context.Context, studioID uuid.UUID) (*domain.Studio, error)
	transitionStudio                func(ctx context.Context, studioID uuid.UUID, to domain.StudioStatus) (domain.StudioStatus, error)
	updateStudioWeights             func(ctx context.Context, studioID uuid.UUID, providerID, weightsKey string) error
	listStudiosByUser               func(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Studio, error)
	listStudiosByOrganization       func(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]domain.Studio, error)
	createHeadshot                  func(ctx context.Context, h *domain.Headshot) error
	setHeadshotHD                   func(ctx context.Context, headshotID uuid.UUID, hdKey string) error
	findHeadshotByID                func(ctx context.Context, headshotID uuid.UUID) (*domain.Headshot, error)
	listHeadshotsByStudio           func(ctx context.Context, studioID uuid.UUID) ([]*domain.Headshot, error)
	toggleFavorite                  func(ctx context.Context, userID, studioID, headshotID uuid.UUID) (bool, error)
	listFavoriteHeadshotIDs         func(ctx context.Context, userID, studioID uuid.UUID) ([]uuid.UUID, error)
}

func (r *stubRepository) FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (uuid.UUID, error) {
	if r.findUserIDByClerkUserID != nil {
		return r.findUserIDByClerkUserID(ctx, clerkUserID)
	}
	return uuid.Nil, nil
}

func (r *stubRepository) FindOrganizationOwnerID(ctx context.Context, organizationID uuid.UUID) (uuid.UUID, error) {
	if r.findOrganizationOwnerID != nil {
		return r.findOrganizationOwnerID(ctx, organizationID)
	}
	return uuid.Nil, nil
}

func (r *stubRepository) IsOrganizationMember(ctx context.Context, organizationID, userID uuid.UUID) (bool, error) {
	if r.isOrganizationMember != nil {
		return r.isOrganizationMember(ctx, organizationID, userID)
	}
	return false, nil
}

func (r *stubRepository) GetLedger(ctx context.Context, account domain.AccountRef) (*domain.CreditLedger, error) {
	if r.getLedger != nil {
		return r.getLedger(ctx, account)
	}
	return &domain.CreditLedger{}, nil
}

func (r *stubRepository) MutateCredits(ctx context.Context, m domain.CreditMutation) (*domain.CreditBalanceResult, error) {
	if r.mutateCredits != nil {
		return r.mutateCredits(ctx, m)
	}
	return &domain.CreditBalanceResult{}, nil
}

func (r *stubRepository) TransferTeamCredits(ctx context.Context, t domain.TeamCreditTransfer) error {
	if r.transferTeamCredits != nil {
		return r.transferTeamCredits(ctx, t)
	}
	return nil
}

func (r *stubRepository) ListCreditTransactions(ctx context.Context, account domain.AccountRef, limit, offset int) ([]domain.CreditTransaction, error) {
	if r.listCreditTransactions != nil {
		return r.listCreditTransactions(ctx, account, limit, offset)
	}
	return nil, nil
}

func (r *stubRepository) CreatePurchase(ctx context.Context, p *domain.Purchase) error {
	if r.createPurchase != nil {
		return r.createPurchase(ctx, p)
	}
	return nil
}

func (r *stubRepository) FindPurchaseByProviderPaymentID(ctx context.Context, provider, providerPaymentID string) (*domain.Purchase, error) {
	if r.findPurchaseByProviderPaymentID != nil {
		return r.findPurchaseByProviderPaymentID(ctx, provider, providerPaymentID)
	}
	return nil, nil
}

func (r *stubRepository) MarkPurchaseRefunded(ctx context.Context, provider, providerPaymentID string) (*domain.Purchase, error) {
	if r.markPurchaseRefunded != nil {
		return r.markPurchaseRefunded(ctx, provider, providerPaymentID)
	}
	return nil, nil
}

func (r *stubRepository) UpsertPendingStudio(ctx context.Context, st *domain.Studio) (domain.StudioStatus, error) {
	if r.upsertPendingStudio != nil {
		return r.upsertPendingStudio(ctx, st)
	}
	return domain.StudioStatusPaymentPending, nil
}

func (r *stubRepository) FindStudioByID(ctx context.Context, studioID uuid.UUID) (*domain.Studio, error) {
	if r.findStudioByID != nil {
		return r.findStudioByID(ctx, studioID)
	}
	return &domain.Studio{ID: studioID}, nil
}

func (r *stubRepository) TransitionStudio(ctx context.Context, studioID uuid.UUID, to domain.StudioStatus) (domain.StudioStatus, error) {
	if r.transitionStudio != nil {
		return r.transitionStudio(ctx, studioID, to)
	}
	return domain.StudioStatusPaymentPending, nil
}

func (r *stubRepository) UpdateStudioWeights(ctx context.Context, studioID uuid.UUID, providerID, weightsKey string) error {
	if r.updateStudioWeights != nil {
		return r.updateStudioWeights(ctx, studioID, providerID, weightsKey)
	}
	return nil
}

func (r *stubRepository) ListStudiosByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Studio, error) {
	if r.listStudiosByUser != nil {
		return r.listStudiosByUser(ctx, userID, limit, offset)
	}
	return nil, nil
}

func (r *stubRepository) ListStudiosByOrganization(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]domain.Studio, error) {
	if r.listStudiosByOrganization != nil {
		return r.listStudiosByOrganization(ctx, organizationID, limit, offset)
	}
	return nil, nil
}

func (r *stubRepository) CreateHeadshot(ctx context.Context, h *domain.Headshot) error {
	if r.createHeadshot != nil {
		return r.createHeadshot(ctx, h)
	}
	return nil
}

func (r *stubRepository) SetHeadshotHD(ctx context.Context, headshotID uuid.UUID, hdKey string) error {
	if r.setHeadshotHD != nil {
		return r.setHeadshotHD(ctx, headshotID, hdKey)
	}
	return nil
}

func (r *stubRepository) FindHeadshotByID(ctx context.Context, headshotID uuid.UUID) (*domain.Headshot, error) {
	if r.findHeadshotByID != nil {
		return r.findHeadshotByID(ctx, headshotID)
	}
	return &domain.Headshot{ID: headshotID}, nil
}

func (r *stubRepository) ListHeadshotsByStudio(ctx context.Context, studioID uuid.UUID) ([]*domain.Headshot, error) {
	if r.listHeadshotsByStudio != nil {
		return r.listHeadshotsByStudio(ctx, studioID)
	}
	return nil, nil
}

func (r *stubRepository) ToggleFavorite(ctx context.Context, userID, studioID, headshotID uuid.UUID) (bool, error) {
	if r.toggleFavorite != nil {
		return r.toggleFavorite(ctx, userID, studioID, headshotID)
	}
	return false, nil
}

func (r *stubRepository) ListFavoriteHeadshotIDs(ctx context.Context, userID, studioID uuid.UUID) ([]uuid.UUID, error) {
	if r.listFavoriteHeadshotIDs != nil {
		return r.listFavoriteHeadshotIDs(ctx, userID, studioID)
	}
	return nil, nil
}

// stubGenerator implements GenerationClient.
type stubGenerator struct {
	startTraining        func(ctx context.Context, params modalclient.TrainingParams) (*modalclient.JobResponse, error)
	generateHeadshot     func(ctx context.Context, params modalclient.GenerationParams) (*modalclient.JobResponse, error)
	generateSimilarImage func(ctx context.Context, params modalclient.SimilarImageParams) (*modalclient.ImageResponse, error)
	editImage            func(ctx context.Context, params modalclient.EditImageParams) (*modalclient.ImageResponse, error)
}

func (g *stubGenerator) StartTraining(ctx context.Context, params modalclient.TrainingParams) (*modalclient.JobResponse, error) {
	if g.startTraining != nil {
		return g.startTraining(ctx, params)
	}
	return &modalclient.JobResponse{CallID: "call-1", Status: "queued"}, nil
}

func (g *stubGenerator) GenerateHeadshot(ctx context.Context, params modalclient.GenerationParams) (*modalclient.JobResponse, error) {
	if g.generateHeadshot != nil {
		return g.generateHeadshot(ctx, params)
	}
	return &modalclient.JobResponse{CallID: "call-1", Status: "queued"}, nil
}

func (g *stubGenerator) GenerateSimilarImage(ctx context.Context, params modalclient.SimilarImageParams) (*modalclient.ImageResponse, error) {
	if g.generateSimilarImage != nil {
		return g.generateSimilarImage(ctx, params)
	}
	return &modalclient.ImageResponse{ResultKey: "result/similar.png"}, nil
}

func (g *stubGenerator) EditImage(ctx context.Context, params modalclient.EditImageParams) (*modalclient.ImageResponse, error) {
	if g.editImage != nil {
		return g.editImage(ctx, params)
	}
	return &modalclient.ImageResponse{ResultKey: "result/edit.png"}, nil
}

// stubCheckout implements CheckoutClient.
type stubCheckout struct {
	createCheckout func(ctx context.Context, params lemonclient.CheckoutParams) (string, error)
}

func (c *stubCheckout) CreateCheckout(ctx context.Context, params lemonclient.CheckoutParams) (string, error) {
	if c.createCheckout != nil {
		return c.createCheckout(ctx, params)
	}
	return "https://checkout.example.com/session", nil
}

// stubAffiliate implements AffiliateTracker.
type stubAffiliate struct {
	enabled     bool
	trackSale   func(ctx context.Context, sale affiliateclient.Sale) error
	trackRefund func(ctx context.Context, refund affiliateclient.Refund) error
	sales       []affiliateclient.Sale
	refunds     []affiliateclient.Refund
}

func (a *stubAffiliate) Enabled() bool { return a.enabled }

func (a *stubAffiliate) TrackSale(ctx context.Context, sale affiliateclient.Sale) error {
	a.sales = append(a.sales, sale)
	if a.trackSale != nil {
		return a.trackSale(ctx, sale)
	}
	return nil
}

func (a *stubAffiliate) TrackRefund(ctx context.Context, refund affiliateclient.Refund) error {
	a.refunds = append(a.refunds, refund)
	if a.trackRefund != nil {
		return a.trackRefund(ctx, refund)
	}
	return nil
}

// stubSigner implements DeliverySigner by prefixing keys.
type stubSigner struct{}

func (s *stubSigner) SignGet(ctx context.Context, key string) (string, error) {
	return "https://cdn.example.com/" + key, nil
}

// stubPublisher implements rabbitmq.Publisher and records routing keys.
type stubPublisher struct {
	routingKeys []string
}

func (p *stubPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	return nil
}

func (p *stubPublisher) Close() {}

// stubLimiter implements RateLimiter with a fixed count.
type stubLimiter struct {
	count      int
	retryAfter int
	err        error
}

func (l *stubLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, l.retryAfter, l.err
}

// instantRetryPolicy keeps tests fast.
func instantRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     func(int) time.Duration { return 0 },
	}
}

func svcPlans() *plans.Validator {
	return plans.NewValidator(plans.DefaultConfig())
}

func newTestService(repo *stubRepository, gen *stubGenerator, pub *stubPublisher) *Service {
	return NewService(
		repo,
		plans.NewValidator(plans.DefaultConfig()),
		&stubCheckout{},
		gen,
		&stubAffiliate{},
		&stubSigner{},
		pub,
		nil,
		ServiceConfig{
			EventExchange:       "studio_events",
			SharedWebhookSecret: "shhh",
			RetryPolicy:         instantRetryPolicy(3),
			SimilarImageCost:    500,
			EditImageCost:       50,
			AIActionRateLimit:   30,
		},
	)
}
