/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the studio-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID generation and handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/proshoot/studio-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User methods
	// Resolve internal UUID from Clerk user id (e.g., "user_abc123").
	FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (uuid.UUID, error)
	// Resolve the owner of an organization for team-account access checks.
	FindOrganizationOwnerID(ctx context.Context, organizationID uuid.UUID) (uuid.UUID, error)
	IsOrganizationMember(ctx context.Context, organizationID uuid.UUID, userID uuid.UUID) (bool, error)

	// Credit ledger methods. MutateCredits is the only write path for
	// balances; it locks the ledger row, enforces the non-negative bucket
	// invariant, and writes exactly one credit_transactions row.
	GetLedger(ctx context.Context, account domain.AccountRef) (*domain.CreditLedger, error)
	MutateCredits(ctx context.Context, m domain.CreditMutation) (*domain.CreditBalanceResult, error)
	TransferTeamCredits(ctx context.Context, t domain.TeamCreditTransfer) error
	ListCreditTransactions(ctx context.Context, account domain.AccountRef, limit, offset int) ([]domain.CreditTransaction, error)

	// Purchase methods. CreatePurchase returns ErrDuplicatePurchase when the
	// provider payment id has already been recorded.
	CreatePurchase(ctx context.Context, p *domain.Purchase) error
	FindPurchaseByProviderPaymentID(ctx context.Context, provider, providerPaymentID string) (*domain.Purchase, error)
	MarkPurchaseRefunded(ctx context.Context, provider, providerPaymentID string) (*domain.Purchase, error)

	// Studio methods
	UpsertPendingStudio(ctx context.Context, s *domain.Studio) (domain.StudioStatus, error)
	FindStudioByID(ctx context.Context, studioID uuid.UUID) (*domain.Studio, error)
	TransitionStudio(ctx context.Context, studioID uuid.UUID, to domain.StudioStatus) (domain.StudioStatus, error)
	UpdateStudioWeights(ctx context.Context, studioID uuid.UUID, providerID, weightsKey string) error
	ListStudiosByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Studio, error)
	ListStudiosByOrganization(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]domain.Studio, error)

	// Headshot methods
	CreateHeadshot(ctx context.Context, h *domain.Headshot) error
	SetHeadshotHD(ctx context.Context, headshotID uuid.UUID, hdKey string) error
	FindHeadshotByID(ctx context.Context, headshotID uuid.UUID) (*domain.Headshot, error)
	ListHeadshotsByStudio(ctx context.Context, studioID uuid.UUID) ([]*domain.Headshot, error)

	// Favorite methods
	ToggleFavorite(ctx context.Context, userID, studioID, headshotID uuid.UUID) (added bool, err error)
	ListFavoriteHeadshotIDs(ctx context.Context, userID, studioID uuid.UUID) ([]uuid.UUID, error)
}
