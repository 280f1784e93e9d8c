/**
 * @description
 * This file contains the core business logic for the studio-service. The `Service`
 * struct orchestrates the studio lifecycle, coordinating between the database
 * repository, the payment provider, the generation pipeline, and the message broker.
 *
 * Key features:
 * - Implements the main use cases: checkout creation, pending-studio upsert,
 *   the two-phase reserve/confirm/release flow around credit deduction, and
 *   studio queries with presigned delivery URLs.
 * - The ledger is mutated only through the repository's atomic operation;
 *   this layer decides direction, bucket, and compensating rollbacks.
 * - Publishes lifecycle and credit events to RabbitMQ for asynchronous
 *   processing by other services.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/plans, internal/store, internal/storage: Domain models and data access.
 * - pkg/lemonclient, pkg/modalclient, pkg/affiliateclient, pkg/rabbitmq: External service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/proshoot/studio-service/internal/domain"
	"github.com/proshoot/studio-service/internal/metrics"
	"github.com/proshoot/studio-service/internal/plans"
	"github.com/proshoot/studio-service/internal/store"
	"github.com/proshoot/studio-service/pkg/affiliateclient"
	"github.com/proshoot/studio-service/pkg/lemonclient"
	"github.com/proshoot/studio-service/pkg/modalclient"
	"github.com/proshoot/studio-service/pkg/rabbitmq"
)

const paymentProvider = "lemonsqueezy"

var (
	ErrUnauthorized      = errors.New("caller is not permitted to access this resource")
	ErrStudioNotComplete = errors.New("studio is not in a completed state")
)

// InsufficientCreditsError reports a failed balance check with the amounts
// the caller needs to render a purchase redirect.
type InsufficientCreditsError struct {
	Current  int64
	Required int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: have %d, need %d", e.Current, e.Required)
}

// CheckoutClient creates hosted checkout sessions.
type CheckoutClient interface {
	CreateCheckout(ctx context.Context, params lemonclient.CheckoutParams) (string, error)
}

// GenerationClient is the surface of the external generation service this
// layer depends on.
type GenerationClient interface {
	StartTraining(ctx context.Context, params modalclient.TrainingParams) (*modalclient.JobResponse, error)
	GenerateHeadshot(ctx context.Context, params modalclient.GenerationParams) (*modalclient.JobResponse, error)
	GenerateSimilarImage(ctx context.Context, params modalclient.SimilarImageParams) (*modalclient.ImageResponse, error)
	EditImage(ctx context.Context, params modalclient.EditImageParams) (*modalclient.ImageResponse, error)
}

// AffiliateTracker reports sales and refunds to the affiliate service.
type AffiliateTracker interface {
	Enabled() bool
	TrackSale(ctx context.Context, sale affiliateclient.Sale) error
	TrackRefund(ctx context.Context, refund affiliateclient.Refund) error
}

// DeliverySigner exchanges object keys for presigned URLs.
type DeliverySigner interface {
	SignGet(ctx context.Context, key string) (string, error)
}

// RateLimiter is the fixed-window limiter guarding credit-consuming actions.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// ServiceConfig carries the knobs the service needs beyond its collaborators.
type ServiceConfig struct {
	EventExchange       string
	CheckoutRedirectURL string
	SharedWebhookSecret string
	RetryPolicy         RetryPolicy
	SimilarImageCost    int64
	EditImageCost       int64
	AIActionRateLimit   int
}

// Service provides the core business logic for the studio lifecycle.
type Service struct {
	repo          store.Repository
	plans         *plans.Validator
	checkout      CheckoutClient
	generator     GenerationClient
	affiliate     AffiliateTracker
	signer        DeliverySigner
	eventProducer rabbitmq.Publisher
	rateLimiter   RateLimiter
	cfg           ServiceConfig
}

// NewService creates a new studio service instance.
func NewService(
	repo store.Repository,
	validator *plans.Validator,
	checkout CheckoutClient,
	generator GenerationClient,
	affiliate AffiliateTracker,
	signer DeliverySigner,
	producer rabbitmq.Publisher,
	limiter RateLimiter,
	cfg ServiceConfig,
) *Service {
	if cfg.RetryPolicy.MaxAttempts == 0 {
		cfg.RetryPolicy = DefaultRetryPolicy(3)
	}
	return &Service{
		repo:          repo,
		plans:         validator,
		checkout:      checkout,
		generator:     generator,
		affiliate:     affiliate,
		signer:        signer,
		eventProducer: producer,
		rateLimiter:   limiter,
		cfg:           cfg,
	}
}

// Plans exposes the injected plan validator for handlers that need
// client-safe plan listings.
func (s *Service) Plans() *plans.Validator {
	return s.plans
}

// ResolveInternalUserID converts a Clerk user id string (e.g., "user_abc123") into the
// internal UUID used by our database. This allows handlers to accept Clerk subject ids
// from validated JWTs while our repositories continue to operate on UUIDs.
func (s *Service) ResolveInternalUserID(ctx context.Context, clerkUserID string) (uuid.UUID, error) {
	return s.repo.FindUserIDByClerkUserID(ctx, clerkUserID)
}

// CheckoutRequest describes one checkout session to initiate.
type CheckoutRequest struct {
	Plan                   string
	Quantity               int
	Email                  string
	StudioID               *uuid.UUID
	OrganizationID         *uuid.UUID
	FirstPromoterReference string
	FirstPromoterTID       string
}

// CreateCheckout validates the plan selection, prices it, and creates a
// hosted checkout session carrying the metadata the order webhook needs. No
// local state is mutated; a remote failure surfaces directly.
func (s *Service) CreateCheckout(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (string, error) {
	quote, err := s.plans.Quote(req.Plan, req.Quantity)
	if err != nil {
		return "", err
	}

	custom := map[string]string{
		"user":           userID.String(),
		"plan":           req.Plan,
		"quantity":       strconv.Itoa(quote.Quantity),
		"webhook_secret": s.cfg.SharedWebhookSecret,
	}
	if req.Email != "" {
		custom["email_id"] = req.Email
	}
	if req.StudioID != nil {
		custom["studio_id"] = req.StudioID.String()
	}
	if req.OrganizationID != nil {
		custom["organization_id"] = req.OrganizationID.String()
	}
	if req.FirstPromoterReference != "" {
		custom["first_promoter_reference"] = req.FirstPromoterReference
		custom["first_promoter_tid"] = req.FirstPromoterTID
	}

	url, err := s.checkout.CreateCheckout(ctx, lemonclient.CheckoutParams{
		VariantID:        quote.VariantID,
		Email:            req.Email,
		Quantity:         quote.Quantity,
		CustomPriceCents: quote.DiscountedUnitPrice,
		RedirectURL:      s.cfg.CheckoutRedirectURL,
		ReceiptButton:    "Go to Studio",
		ReceiptNote:      "Thank you for your purchase!",
		Custom:           custom,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return url, nil
}

// CreatePendingStudio records a studio ahead of payment confirmation. The
// upsert is idempotent for checkout retries: an existing PAYMENT_PENDING row
// with the same id is updated in place, any other status is returned as-is
// without mutation.
func (s *Service) CreatePendingStudio(ctx context.Context, userID uuid.UUID, req domain.CreateStudioRequest) (domain.StudioStatus, error) {
	if req.StudioID == uuid.Nil {
		return "", errors.New("studio id is required")
	}
	if strings.TrimSpace(req.StudioName) == "" {
		return "", errors.New("studio name is required")
	}
	if req.DatasetsObjectKey == "" {
		return "", errors.New("datasets object key is required")
	}
	if _, ok := s.plans.Plan(req.Plan); !ok {
		return "", fmt.Errorf("unknown plan %q", req.Plan)
	}
	if req.OrganizationID != nil {
		member, err := s.repo.IsOrganizationMember(ctx, *req.OrganizationID, userID)
		if err != nil {
			return "", fmt.Errorf("failed to check organization membership: %w", err)
		}
		if !member {
			return "", ErrUnauthorized
		}
	}

	studio := &domain.Studio{
		ID:                req.StudioID,
		CreatorUserID:     userID,
		OrganizationID:    req.OrganizationID,
		Name:              req.StudioName,
		Plan:              req.Plan,
		DatasetsObjectKey: req.DatasetsObjectKey,
		StylePairs:        req.StylePairs,
		UserAttributes:    req.UserAttributes,
		Provider:          "modal",
	}
	status, err := s.repo.UpsertPendingStudio(ctx, studio)
	if err != nil {
		return "", fmt.Errorf("failed to upsert pending studio: %w", err)
	}
	return status, nil
}

// StartStudioProcessing runs the reserve/confirm/release flow for one studio:
// transition it to PROCESSING (reserve), deduct one credit from the plan
// bucket (confirm), and dispatch model training. A failed deduction releases
// the reservation with the explicit compensating rollback to PAYMENT_PENDING;
// a failed dispatch marks the studio FAILED.
func (s *Service) StartStudioProcessing(ctx context.Context, studioID uuid.UUID) error {
	studio, err := s.repo.FindStudioByID(ctx, studioID)
	if err != nil {
		return err
	}

	account := domain.PersonalAccount(studio.CreatorUserID)
	bucket := domain.CreditBucket(studio.Plan)
	if studio.OrganizationID != nil {
		account = domain.OrganizationAccount(*studio.OrganizationID)
	}

	// Reserve: claim the studio before touching the ledger.
	from, err := s.transitionStudio(ctx, studio, domain.StudioStatusProcessing, "processing started")
	if err != nil {
		return err
	}

	// Confirm: one credit per studio from the plan bucket.
	studioRef := studio.ID
	_, err = s.mutateCredits(ctx, domain.CreditMutation{
		Account:  account,
		Bucket:   bucket,
		Delta:    -1,
		Reason:   "studio_processing",
		StudioID: &studioRef,
	})
	if err != nil {
		// Release: put the studio back so a later payment or retry can claim
		// it without double-charging. The original error takes precedence.
		if _, rbErr := s.repo.TransitionStudio(ctx, studio.ID, from); rbErr != nil {
			log.Printf("level=error component=service msg=\"CRITICAL: failed to roll back studio after deduction failure\" studio_id=%s err=%v", studio.ID, rbErr)
		} else {
			log.Printf("level=warn component=service msg=\"credit deduction failed; studio rolled back\" studio_id=%s from=%s err=%v", studio.ID, domain.StudioStatusProcessing, err)
		}
		if errors.Is(err, store.ErrInsufficientCredits) {
			ledger, lErr := s.repo.GetLedger(ctx, account)
			current := int64(0)
			if lErr == nil {
				current = ledger.Bucket(bucket)
			}
			return &InsufficientCreditsError{Current: current, Required: 1}
		}
		return err
	}

	// Dispatch training under the bounded retry policy.
	err = withRetry(ctx, s.cfg.RetryPolicy, func(ctx context.Context) error {
		start := time.Now()
		_, dispatchErr := s.generator.StartTraining(ctx, modalclient.TrainingParams{
			StudioID:    studio.ID,
			DatasetsKey: studio.DatasetsObjectKey,
			Gender:      studio.UserAttributes.Gender,
			Plan:        studio.Plan,
		})
		metrics.DispatchDuration.WithLabelValues("train").Observe(time.Since(start).Seconds())
		if dispatchErr != nil {
			metrics.DispatchAttemptsTotal.WithLabelValues("train", "failure").Inc()
			return dispatchErr
		}
		metrics.DispatchAttemptsTotal.WithLabelValues("train", "success").Inc()
		return nil
	})
	if err != nil {
		log.Printf("level=error component=service msg=\"training dispatch failed; marking studio failed\" studio_id=%s err=%v", studio.ID, err)
		if _, failErr := s.repo.TransitionStudio(ctx, studio.ID, domain.StudioStatusFailed); failErr != nil {
			log.Printf("level=error component=service msg=\"CRITICAL: failed to mark studio failed after dispatch failure\" studio_id=%s err=%v", studio.ID, failErr)
		} else {
			s.publishStudioEvent(ctx, studio, domain.StudioStatusProcessing, domain.StudioStatusFailed, "training dispatch failed")
		}
		return fmt.Errorf("failed to dispatch training: %w", err)
	}

	return nil
}

// AcceptStudio is the user-driven COMPLETED -> ACCEPTED transition. It
// unlocks full-resolution delivery and ends refund eligibility.
func (s *Service) AcceptStudio(ctx context.Context, userID, studioID uuid.UUID) error {
	studio, err := s.repo.FindStudioByID(ctx, studioID)
	if err != nil {
		return err
	}
	if studio.CreatorUserID != userID {
		return ErrUnauthorized
	}
	if studio.Status != domain.StudioStatusCompleted {
		return ErrStudioNotComplete
	}
	_, err = s.transitionStudio(ctx, studio, domain.StudioStatusAccepted, "accepted by creator")
	return err
}

// DeleteStudio is the administrative terminal transition to DELETED.
func (s *Service) DeleteStudio(ctx context.Context, userID, studioID uuid.UUID) error {
	studio, err := s.repo.FindStudioByID(ctx, studioID)
	if err != nil {
		return err
	}
	if studio.CreatorUserID != userID {
		return ErrUnauthorized
	}
	_, err = s.transitionStudio(ctx, studio, domain.StudioStatusDeleted, "deleted by creator")
	return err
}

// canViewStudio reports whether the user may read a studio: its creator, or
// any member of its organization.
func (s *Service) canViewStudio(ctx context.Context, studio *domain.Studio, userID uuid.UUID) (bool, error) {
	if studio.CreatorUserID == userID {
		return true, nil
	}
	if studio.OrganizationID != nil {
		return s.repo.IsOrganizationMember(ctx, *studio.OrganizationID, userID)
	}
	return false, nil
}

// GetStudio returns one studio with its headshots, the caller's favorites,
// and presigned delivery URLs. The hd URL is only signed for ACCEPTED
// studios; before acceptance callers get watermarked results only.
func (s *Service) GetStudio(ctx context.Context, userID, studioID uuid.UUID) (*domain.StudioWithHeadshots, error) {
	studio, err := s.repo.FindStudioByID(ctx, studioID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.canViewStudio(ctx, studio, userID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrUnauthorized
	}

	headshots, err := s.repo.ListHeadshotsByStudio(ctx, studioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list headshots: %w", err)
	}
	for _, h := range headshots {
		if h.Preview != nil {
			if url, sErr := s.signer.SignGet(ctx, *h.Preview); sErr == nil {
				h.Preview = &url
			}
		}
		if h.Result != nil {
			if url, sErr := s.signer.SignGet(ctx, *h.Result); sErr == nil {
				h.Result = &url
			}
		}
		if h.HD != nil {
			if studio.Status == domain.StudioStatusAccepted {
				if url, sErr := s.signer.SignGet(ctx, *h.HD); sErr == nil {
					h.HD = &url
				}
			} else {
				h.HD = nil
			}
		}
	}

	favoriteIDs, err := s.repo.ListFavoriteHeadshotIDs(ctx, userID, studioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}

	return &domain.StudioWithHeadshots{
		Studio:      studio,
		Headshots:   headshots,
		FavoriteIDs: favoriteIDs,
	}, nil
}

// ListStudios returns the caller's personal studios.
func (s *Service) ListStudios(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Studio, error) {
	return s.repo.ListStudiosByUser(ctx, userID, limit, offset)
}

// ListOrganizationStudios returns an organization's studios; the caller must
// be a member.
func (s *Service) ListOrganizationStudios(ctx context.Context, userID, organizationID uuid.UUID, limit, offset int) ([]domain.Studio, error) {
	member, err := s.repo.IsOrganizationMember(ctx, organizationID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrUnauthorized
	}
	return s.repo.ListStudiosByOrganization(ctx, organizationID, limit, offset)
}

// ToggleFavorite flips a headshot in or out of the caller's delivery set.
// Only the studio creator may toggle; organization owners can view a studio
// but not curate its selection.
func (s *Service) ToggleFavorite(ctx context.Context, userID, studioID, headshotID uuid.UUID) (bool, error) {
	studio, err := s.repo.FindStudioByID(ctx, studioID)
	if err != nil {
		return false, err
	}
	if studio.CreatorUserID != userID {
		return false, ErrUnauthorized
	}
	headshot, err := s.repo.FindHeadshotByID(ctx, headshotID)
	if err != nil {
		return false, err
	}
	if headshot.StudioID != studioID {
		return false, ErrUnauthorized
	}
	return s.repo.ToggleFavorite(ctx, userID, studioID, headshotID)
}

// GetCredits returns the caller's ledger. A missing ledger row reads as an
// all-zero balance rather than an error.
func (s *Service) GetCredits(ctx context.Context, account domain.AccountRef) (*domain.CreditLedger, error) {
	ledger, err := s.repo.GetLedger(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrLedgerNotFound) {
			return &domain.CreditLedger{UserID: account.UserID, OrganizationID: account.OrganizationID}, nil
		}
		return nil, err
	}
	return ledger, nil
}

// ListCreditTransactions returns the mutation log for the caller's ledger,
// newest first.
func (s *Service) ListCreditTransactions(ctx context.Context, account domain.AccountRef, limit, offset int) ([]domain.CreditTransaction, error) {
	return s.repo.ListCreditTransactions(ctx, account, limit, offset)
}

// transitionStudio applies one lifecycle transition, publishes its event, and
// records its metric.
func (s *Service) transitionStudio(ctx context.Context, studio *domain.Studio, to domain.StudioStatus, reason string) (domain.StudioStatus, error) {
	from, err := s.repo.TransitionStudio(ctx, studio.ID, to)
	if err != nil {
		return from, err
	}
	metrics.StudioTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	s.publishStudioEvent(ctx, studio, from, to, reason)
	return from, nil
}

// mutateCredits applies one ledger mutation, publishes its event, and records
// its metric.
func (s *Service) mutateCredits(ctx context.Context, m domain.CreditMutation) (*domain.CreditBalanceResult, error) {
	result, err := s.repo.MutateCredits(ctx, m)
	if err != nil {
		return nil, err
	}

	direction := "granted"
	routingKey := "credits.granted"
	if m.Delta < 0 {
		direction = "deducted"
		routingKey = "credits.deducted"
	}
	metrics.CreditMutationsTotal.WithLabelValues(direction, string(m.Bucket)).Inc()

	accountID := uuid.Nil
	if m.Account.UserID != nil {
		accountID = *m.Account.UserID
	} else if m.Account.OrganizationID != nil {
		accountID = *m.Account.OrganizationID
	}
	event := domain.CreditEvent{
		EventID:    uuid.NewString(),
		AccountID:  accountID,
		Context:    m.Account.Context(),
		Bucket:     m.Bucket,
		Delta:      m.Delta,
		Remaining:  result.Remaining,
		Reason:     m.Reason,
		StudioID:   m.StudioID,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, s.cfg.EventExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"failed to publish credit event\" routing_key=%s err=%v", routingKey, err)
	}
	return result, nil
}

func (s *Service) publishStudioEvent(ctx context.Context, studio *domain.Studio, from, to domain.StudioStatus, reason string) {
	event := domain.StudioStatusEvent{
		EventID:    uuid.NewString(),
		StudioID:   studio.ID,
		UserID:     studio.CreatorUserID,
		Plan:       studio.Plan,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	routingKey := "studio.status." + strings.ToLower(string(to))
	if err := s.eventProducer.Publish(ctx, s.cfg.EventExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"failed to publish studio event\" routing_key=%s err=%v", routingKey, err)
	}
}
