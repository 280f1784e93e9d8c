/**
 * @description
 * This file implements the pay-per-use AI image actions: generating a similar
 * image from an existing headshot and prompt-driven editing. Both spend from
 * the general balance bucket and are rate limited per user.
 *
 * Key features:
 * - Check-call-deduct ordering: the balance is verified up front, the external
 *   call runs, and credits are deducted only after it succeeds. A crash
 *   between call and deduction favors the user.
 * - Team credit transfer lets an organization owner move purchased credits
 *   into a member's personal ledger.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/modalclient: External generation service.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/proshoot/studio-service/internal/domain"
	"github.com/proshoot/studio-service/internal/store"
	"github.com/proshoot/studio-service/pkg/modalclient"
)

const aiActionRateWindow = time.Minute

// RateLimitedError reports a rejected AI action with the retry hint for the
// Retry-After header.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}

// checkAIAction enforces the per-user rate limit and the balance floor for
// one credit-consuming action.
func (s *Service) checkAIAction(ctx context.Context, userID uuid.UUID, cost int64) error {
	if s.rateLimiter != nil && s.cfg.AIActionRateLimit > 0 {
		count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "ai_action", userID.String(), s.cfg.AIActionRateLimit, aiActionRateWindow)
		if err != nil {
			// A limiter outage must not block paying users.
			log.Printf("level=warn component=service msg=\"rate limiter unavailable; allowing action\" user_id=%s err=%v", userID, err)
		} else if count > s.cfg.AIActionRateLimit {
			return &RateLimitedError{RetryAfterSeconds: retryAfter}
		}
	}

	account := domain.PersonalAccount(userID)
	ledger, err := s.repo.GetLedger(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrLedgerNotFound) {
			return &InsufficientCreditsError{Current: 0, Required: cost}
		}
		return err
	}
	if current := ledger.Bucket(domain.BucketBalance); current < cost {
		return &InsufficientCreditsError{Current: current, Required: cost}
	}
	return nil
}

// deductAIAction charges a completed action against the balance bucket.
func (s *Service) deductAIAction(ctx context.Context, userID uuid.UUID, cost int64, reason string) error {
	_, err := s.mutateCredits(ctx, domain.CreditMutation{
		Account: domain.PersonalAccount(userID),
		Bucket:  domain.BucketBalance,
		Delta:   -cost,
		Reason:  reason,
	})
	return err
}

// GenerateSimilarImage renders a new image in the style of an existing
// headshot. Costs SimilarImageCost balance credits, deducted after the
// external call succeeds.
func (s *Service) GenerateSimilarImage(ctx context.Context, userID, headshotID uuid.UUID, prompt string) (string, error) {
	headshot, err := s.repo.FindHeadshotByID(ctx, headshotID)
	if err != nil {
		return "", err
	}
	studio, err := s.repo.FindStudioByID(ctx, headshot.StudioID)
	if err != nil {
		return "", err
	}
	if studio.CreatorUserID != userID {
		return "", ErrUnauthorized
	}
	if headshot.Result == nil {
		return "", errors.New("headshot has no result image to work from")
	}

	cost := s.cfg.SimilarImageCost
	if err := s.checkAIAction(ctx, userID, cost); err != nil {
		return "", err
	}

	resp, err := s.generator.GenerateSimilarImage(ctx, modalclient.SimilarImageParams{
		SourceKey: *headshot.Result,
		Prompt:    prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate similar image: %w", err)
	}

	if err := s.deductAIAction(ctx, userID, cost, "similar_image"); err != nil {
		return "", fmt.Errorf("failed to deduct credits after generation: %w", err)
	}

	url, err := s.signer.SignGet(ctx, resp.ResultKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign result url: %w", err)
	}
	return url, nil
}

// AIEditImage applies a prompt-driven edit to an existing headshot. Costs
// EditImageCost balance credits, deducted after the external call succeeds.
func (s *Service) AIEditImage(ctx context.Context, userID, headshotID uuid.UUID, prompt string) (string, error) {
	if prompt == "" {
		return "", errors.New("edit prompt is required")
	}
	headshot, err := s.repo.FindHeadshotByID(ctx, headshotID)
	if err != nil {
		return "", err
	}
	studio, err := s.repo.FindStudioByID(ctx, headshot.StudioID)
	if err != nil {
		return "", err
	}
	if studio.CreatorUserID != userID {
		return "", ErrUnauthorized
	}
	if headshot.Result == nil {
		return "", errors.New("headshot has no result image to work from")
	}

	cost := s.cfg.EditImageCost
	if err := s.checkAIAction(ctx, userID, cost); err != nil {
		return "", err
	}

	resp, err := s.generator.EditImage(ctx, modalclient.EditImageParams{
		SourceKey: *headshot.Result,
		Prompt:    prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to edit image: %w", err)
	}

	if err := s.deductAIAction(ctx, userID, cost, "image_edit"); err != nil {
		return "", fmt.Errorf("failed to deduct credits after edit: %w", err)
	}

	url, err := s.signer.SignGet(ctx, resp.ResultKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign result url: %w", err)
	}
	return url, nil
}

// TransferTeamCredits moves team-bucket credits from an organization ledger
// into a member's personal ledger. Only the organization owner may transfer.
func (s *Service) TransferTeamCredits(ctx context.Context, callerUserID uuid.UUID, t domain.TeamCreditTransfer) error {
	if t.Amount < 1 {
		return errors.New("transfer amount must be positive")
	}
	ownerID, err := s.repo.FindOrganizationOwnerID(ctx, t.OrganizationID)
	if err != nil {
		return err
	}
	if ownerID != callerUserID {
		return ErrUnauthorized
	}
	member, err := s.repo.IsOrganizationMember(ctx, t.OrganizationID, t.MemberUserID)
	if err != nil {
		return err
	}
	if !member {
		return ErrUnauthorized
	}
	if err := s.repo.TransferTeamCredits(ctx, t); err != nil {
		if errors.Is(err, store.ErrInsufficientCredits) {
			ledger, lErr := s.repo.GetLedger(ctx, domain.OrganizationAccount(t.OrganizationID))
			current := int64(0)
			if lErr == nil {
				current = ledger.Bucket(t.Bucket)
			}
			return &InsufficientCreditsError{Current: current, Required: t.Amount}
		}
		return err
	}
	return nil
}
