/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to credits, purchases, studios, headshots, and favorites.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proshoot/studio-service/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrLedgerNotFound       = errors.New("credit ledger not found")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrInvalidBucket        = errors.New("invalid credit bucket")
	ErrDuplicatePurchase    = errors.New("purchase already recorded")
	ErrPurchaseNotFound     = errors.New("purchase not found")
	ErrStudioNotFound       = errors.New("studio not found")
	ErrInvalidTransition    = errors.New("studio status transition not allowed")
	ErrHeadshotNotFound     = errors.New("headshot not found")
)

// uniqueViolation is the Postgres error code signalling a unique-constraint
// conflict, used to detect redelivered payment webhooks.
const uniqueViolation = "23505"

// DB is the subset of the *pgxpool.Pool API the repository uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserIDByClerkUserID resolves the internal UUID from a Clerk user id.
func (r *PostgresRepository) FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (uuid.UUID, error) {
	var id uuid.UUID
	// users table is expected to have a clerk_user_id column (managed during onboarding)
	err := r.db.QueryRow(ctx, "SELECT id FROM users WHERE clerk_user_id = $1", clerkUserID).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrUserNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

// FindOrganizationOwnerID returns the owning user of an organization.
func (r *PostgresRepository) FindOrganizationOwnerID(ctx context.Context, organizationID uuid.UUID) (uuid.UUID, error) {
	var ownerID uuid.UUID
	err := r.db.QueryRow(ctx, "SELECT owner_user_id FROM organizations WHERE id = $1", organizationID).Scan(&ownerID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrOrganizationNotFound
		}
		return uuid.Nil, err
	}
	return ownerID, nil
}

// IsOrganizationMember reports whether the user belongs to the organization
// (the owner counts as a member).
func (r *PostgresRepository) IsOrganizationMember(ctx context.Context, organizationID uuid.UUID, userID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM organization_members WHERE organization_id = $1 AND user_id = $2
			UNION
			SELECT 1 FROM organizations WHERE id = $1 AND owner_user_id = $2
		)
	`
	if err := r.db.QueryRow(ctx, query, organizationID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ledgerFilter returns the WHERE fragment and argument selecting the ledger
// row for an account reference.
func ledgerFilter(account domain.AccountRef) (string, any, error) {
	switch {
	case account.OrganizationID != nil:
		return "organization_id = $1", *account.OrganizationID, nil
	case account.UserID != nil:
		return "user_id = $1", *account.UserID, nil
	}
	return "", nil, ErrLedgerNotFound
}

// GetLedger fetches the credit ledger row for an account.
func (r *PostgresRepository) GetLedger(ctx context.Context, account domain.AccountRef) (*domain.CreditLedger, error) {
	filter, arg, err := ledgerFilter(account)
	if err != nil {
		return nil, err
	}
	var ledger domain.CreditLedger
	query := fmt.Sprintf(`
		SELECT id, user_id, organization_id, balance, starter, professional, studio, team, created_at, updated_at
		FROM credits
		WHERE %s
	`, filter)
	err = r.db.QueryRow(ctx, query, arg).Scan(
		&ledger.ID, &ledger.UserID, &ledger.OrganizationID,
		&ledger.Balance, &ledger.Starter, &ledger.Professional, &ledger.Studio, &ledger.Team,
		&ledger.CreatedAt, &ledger.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLedgerNotFound
		}
		return nil, err
	}
	return &ledger, nil
}

// bucketColumn maps a validated bucket to its column name. The closed switch
// is what makes the fmt.Sprintf SQL below safe.
func bucketColumn(b domain.CreditBucket) (string, error) {
	switch b {
	case domain.BucketBalance:
		return "balance", nil
	case domain.BucketStarter:
		return "starter", nil
	case domain.BucketProfessional:
		return "professional", nil
	case domain.BucketStudio:
		return "studio", nil
	case domain.BucketTeam:
		return "team", nil
	}
	return "", ErrInvalidBucket
}

// MutateCredits applies one deduct (negative delta) or grant (positive delta)
// atomically: the ledger row is locked, the bucket invariant is checked, and
// the balance update plus its credit_transactions record commit together.
// Deductions against a missing ledger fail; grants create the ledger row.
func (r *PostgresRepository) MutateCredits(ctx context.Context, m domain.CreditMutation) (*domain.CreditBalanceResult, error) {
	column, err := bucketColumn(m.Bucket)
	if err != nil {
		return nil, err
	}
	filter, arg, err := ledgerFilter(m.Account)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Lock the ledger row so no concurrent mutation can observe the same
	// pre-deduction balance.
	var ledgerID uuid.UUID
	var current int64
	lockQuery := fmt.Sprintf(`SELECT id, %s FROM credits WHERE %s FOR UPDATE`, column, filter)
	err = tx.QueryRow(ctx, lockQuery, arg).Scan(&ledgerID, &current)
	if err != nil {
		if err != pgx.ErrNoRows {
			return nil, fmt.Errorf("failed to lock credit ledger: %w", err)
		}
		if m.Delta < 0 {
			return nil, ErrLedgerNotFound
		}
		// First grant for this account provisions the ledger row. FOR UPDATE
		// on a missing row takes no lock, so concurrent first grants must
		// converge through ON CONFLICT and re-lock whichever insert won.
		insertLedger := `
			INSERT INTO credits (id, user_id, organization_id, created_at, updated_at)
			VALUES ($1, $2, $3, NOW(), NOW())
			ON CONFLICT DO NOTHING
		`
		if _, err := tx.Exec(ctx, insertLedger, uuid.New(), m.Account.UserID, m.Account.OrganizationID); err != nil {
			return nil, fmt.Errorf("failed to provision credit ledger: %w", err)
		}
		if err := tx.QueryRow(ctx, lockQuery, arg).Scan(&ledgerID, &current); err != nil {
			return nil, fmt.Errorf("failed to lock provisioned credit ledger: %w", err)
		}
	}

	// 2. Enforce the non-negative bucket invariant.
	remaining := current + m.Delta
	if remaining < 0 {
		return nil, ErrInsufficientCredits
	}

	// 3. Apply the balance change.
	updateQuery := fmt.Sprintf(`UPDATE credits SET %s = $1, updated_at = NOW() WHERE id = $2`, column)
	if _, err := tx.Exec(ctx, updateQuery, remaining, ledgerID); err != nil {
		return nil, fmt.Errorf("failed to update credit balance: %w", err)
	}

	// 4. Log the mutation within the same DB transaction for consistency.
	insertTx := `
		INSERT INTO credit_transactions (id, credit_account_id, delta, bucket, reason, context, studio_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	if _, err := tx.Exec(ctx, insertTx, uuid.New(), ledgerID, m.Delta, string(m.Bucket), m.Reason, string(m.Account.Context()), m.StudioID); err != nil {
		return nil, fmt.Errorf("failed to insert credit transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit credit mutation: %w", err)
	}
	return &domain.CreditBalanceResult{Remaining: remaining}, nil
}

// TransferTeamCredits moves credits from an organization ledger to a member's
// personal ledger. Both ledgers are locked in a fixed order (organization
// first) and the two balance changes plus their transaction records commit
// atomically.
func (r *PostgresRepository) TransferTeamCredits(ctx context.Context, t domain.TeamCreditTransfer) error {
	if t.Amount <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}
	column, err := bucketColumn(t.Bucket)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Lock and debit the organization ledger.
	var orgLedgerID uuid.UUID
	var orgBalance int64
	lockOrg := fmt.Sprintf(`SELECT id, %s FROM credits WHERE organization_id = $1 FOR UPDATE`, column)
	err = tx.QueryRow(ctx, lockOrg, t.OrganizationID).Scan(&orgLedgerID, &orgBalance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrLedgerNotFound
		}
		return fmt.Errorf("failed to lock organization ledger: %w", err)
	}
	if orgBalance < t.Amount {
		return ErrInsufficientCredits
	}

	// 2. Lock the member ledger, provisioning it on first transfer.
	var memberLedgerID uuid.UUID
	var memberBalance int64
	lockMember := fmt.Sprintf(`SELECT id, %s FROM credits WHERE user_id = $1 FOR UPDATE`, column)
	err = tx.QueryRow(ctx, lockMember, t.MemberUserID).Scan(&memberLedgerID, &memberBalance)
	if err != nil {
		if err != pgx.ErrNoRows {
			return fmt.Errorf("failed to lock member ledger: %w", err)
		}
		// Same provisioning pattern as MutateCredits: insert with ON CONFLICT,
		// then re-lock the surviving row.
		insertLedger := `
			INSERT INTO credits (id, user_id, created_at, updated_at)
			VALUES ($1, $2, NOW(), NOW())
			ON CONFLICT DO NOTHING
		`
		if _, err := tx.Exec(ctx, insertLedger, uuid.New(), t.MemberUserID); err != nil {
			return fmt.Errorf("failed to provision member ledger: %w", err)
		}
		if err := tx.QueryRow(ctx, lockMember, t.MemberUserID).Scan(&memberLedgerID, &memberBalance); err != nil {
			return fmt.Errorf("failed to lock provisioned member ledger: %w", err)
		}
	}

	updateQuery := fmt.Sprintf(`UPDATE credits SET %s = $1, updated_at = NOW() WHERE id = $2`, column)
	if _, err := tx.Exec(ctx, updateQuery, orgBalance-t.Amount, orgLedgerID); err != nil {
		return fmt.Errorf("failed to debit organization ledger: %w", err)
	}
	if _, err := tx.Exec(ctx, updateQuery, memberBalance+t.Amount, memberLedgerID); err != nil {
		return fmt.Errorf("failed to credit member ledger: %w", err)
	}

	// 3. One transaction row per side of the transfer.
	insertTx := `
		INSERT INTO credit_transactions (id, credit_account_id, delta, bucket, reason, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	if _, err := tx.Exec(ctx, insertTx, uuid.New(), orgLedgerID, -t.Amount, string(t.Bucket), "team_credit_transfer_out", string(domain.CreditContextOrganization)); err != nil {
		return fmt.Errorf("failed to log organization transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, insertTx, uuid.New(), memberLedgerID, t.Amount, string(t.Bucket), "team_credit_transfer_in", string(domain.CreditContextPersonal)); err != nil {
		return fmt.Errorf("failed to log member transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit credit transfer: %w", err)
	}
	return nil
}

// ListCreditTransactions returns the mutation log for an account, newest first.
func (r *PostgresRepository) ListCreditTransactions(ctx context.Context, account domain.AccountRef, limit, offset int) ([]domain.CreditTransaction, error) {
	filter, arg, err := ledgerFilter(account)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`
		SELECT t.id, t.credit_account_id, t.delta, t.bucket, t.reason, t.context, t.studio_id, t.created_at
		FROM credit_transactions t
		INNER JOIN credits c ON c.id = t.credit_account_id
		WHERE c.%s
		ORDER BY t.created_at DESC
		LIMIT $2 OFFSET $3
	`, filter)
	rows, err := r.db.Query(ctx, query, arg, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CreditTransaction
	for rows.Next() {
		var t domain.CreditTransaction
		if err := rows.Scan(&t.ID, &t.CreditAccountID, &t.Delta, &t.Bucket, &t.Reason, &t.Context, &t.StudioID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreatePurchase records an external payment. The unique provider_payment_id
// constraint is the idempotency guard for redelivered webhooks: a conflict
// surfaces as ErrDuplicatePurchase.
func (r *PostgresRepository) CreatePurchase(ctx context.Context, p *domain.Purchase) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal purchase metadata: %w", err)
	}
	query := `
		INSERT INTO purchases (id, provider, provider_payment_id, amount, currency, credits_granted, credits_type, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`
	_, err = r.db.Exec(ctx, query,
		p.ID, p.Provider, p.ProviderPaymentID, p.Amount, p.Currency,
		p.CreditsGranted, string(p.CreditsType), p.Status, metadata,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicatePurchase
		}
		return err
	}
	return nil
}

func scanPurchase(row pgx.Row) (*domain.Purchase, error) {
	var p domain.Purchase
	var metadata []byte
	err := row.Scan(
		&p.ID, &p.Provider, &p.ProviderPaymentID, &p.Amount, &p.Currency,
		&p.CreditsGranted, &p.CreditsType, &p.Status, &metadata, &p.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal purchase metadata: %w", err)
		}
	}
	return &p, nil
}

// FindPurchaseByProviderPaymentID fetches one purchase by its provider identity.
func (r *PostgresRepository) FindPurchaseByProviderPaymentID(ctx context.Context, provider, providerPaymentID string) (*domain.Purchase, error) {
	query := `
		SELECT id, provider, provider_payment_id, amount, currency, credits_granted, credits_type, status, metadata, created_at
		FROM purchases
		WHERE provider = $1 AND provider_payment_id = $2
	`
	return scanPurchase(r.db.QueryRow(ctx, query, provider, providerPaymentID))
}

// MarkPurchaseRefunded flips a purchase to 'refunded' and returns the updated record.
func (r *PostgresRepository) MarkPurchaseRefunded(ctx context.Context, provider, providerPaymentID string) (*domain.Purchase, error) {
	query := `
		UPDATE purchases
		SET status = 'refunded'
		WHERE provider = $1 AND provider_payment_id = $2
		RETURNING id, provider, provider_payment_id, amount, currency, credits_granted, credits_type, status, metadata, created_at
	`
	return scanPurchase(r.db.QueryRow(ctx, query, provider, providerPaymentID))
}

// UpsertPendingStudio inserts a PAYMENT_PENDING studio, or updates it in
// place when the same id already exists and is still PAYMENT_PENDING (a
// checkout retry). The single statement makes concurrent double-submission of
// the same client-generated id race-safe. When the studio exists in any other
// status the call is a no-op and the existing status is returned.
func (r *PostgresRepository) UpsertPendingStudio(ctx context.Context, s *domain.Studio) (domain.StudioStatus, error) {
	stylePairs, err := json.Marshal(s.StylePairs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal style pairs: %w", err)
	}
	attributes, err := json.Marshal(s.UserAttributes)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user attributes: %w", err)
	}

	query := `
		INSERT INTO studios (id, creator_user_id, organization_id, name, plan, status, datasets_object_key, style_pairs, user_attributes, provider, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    plan = EXCLUDED.plan,
		    datasets_object_key = EXCLUDED.datasets_object_key,
		    style_pairs = EXCLUDED.style_pairs,
		    user_attributes = EXCLUDED.user_attributes,
		    updated_at = NOW()
		WHERE studios.status = $6 AND studios.creator_user_id = EXCLUDED.creator_user_id
		RETURNING status
	`
	var status domain.StudioStatus
	err = r.db.QueryRow(ctx, query,
		s.ID, s.CreatorUserID, s.OrganizationID, s.Name, s.Plan,
		string(domain.StudioStatusPaymentPending), s.DatasetsObjectKey,
		stylePairs, attributes, s.Provider,
	).Scan(&status)
	if err == nil {
		return status, nil
	}
	if err != pgx.ErrNoRows {
		return "", err
	}

	// The conflict target exists but was excluded by the WHERE clause; report
	// its current status so the caller can treat this as an idempotent read.
	err = r.db.QueryRow(ctx, "SELECT status FROM studios WHERE id = $1", s.ID).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrStudioNotFound
		}
		return "", err
	}
	return status, nil
}

func scanStudio(row pgx.Row) (*domain.Studio, error) {
	var s domain.Studio
	var stylePairs, attributes, metadata []byte
	err := row.Scan(
		&s.ID, &s.CreatorUserID, &s.OrganizationID, &s.Name, &s.Plan, &s.Status,
		&s.DatasetsObjectKey, &stylePairs, &attributes, &s.Provider, &s.ProviderID,
		&s.Weights, &metadata, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrStudioNotFound
		}
		return nil, err
	}
	if len(stylePairs) > 0 {
		if err := json.Unmarshal(stylePairs, &s.StylePairs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal style pairs: %w", err)
		}
	}
	if len(attributes) > 0 {
		if err := json.Unmarshal(attributes, &s.UserAttributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user attributes: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal studio metadata: %w", err)
		}
	}
	return &s, nil
}

const studioColumns = `id, creator_user_id, organization_id, name, plan, status, datasets_object_key, style_pairs, user_attributes, provider, provider_id, weights, metadata, created_at, updated_at`

// FindStudioByID fetches one studio.
func (r *PostgresRepository) FindStudioByID(ctx context.Context, studioID uuid.UUID) (*domain.Studio, error) {
	query := fmt.Sprintf(`SELECT %s FROM studios WHERE id = $1`, studioColumns)
	return scanStudio(r.db.QueryRow(ctx, query, studioID))
}

// TransitionStudio moves a studio to a new lifecycle status. The current row
// is locked, the transition is validated against the central table in the
// domain package, and the prior status is returned for event publishing.
func (r *PostgresRepository) TransitionStudio(ctx context.Context, studioID uuid.UUID, to domain.StudioStatus) (domain.StudioStatus, error) {
	if !to.IsValid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var from domain.StudioStatus
	err = tx.QueryRow(ctx, "SELECT status FROM studios WHERE id = $1 FOR UPDATE", studioID).Scan(&from)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrStudioNotFound
		}
		return "", fmt.Errorf("failed to lock studio: %w", err)
	}

	if !from.CanTransitionTo(to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if _, err := tx.Exec(ctx, "UPDATE studios SET status = $1, updated_at = NOW() WHERE id = $2", string(to), studioID); err != nil {
		return from, fmt.Errorf("failed to update studio status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return from, fmt.Errorf("failed to commit studio transition: %w", err)
	}
	return from, nil
}

// UpdateStudioWeights records the external provider's job id and trained
// model weights key after training completes.
func (r *PostgresRepository) UpdateStudioWeights(ctx context.Context, studioID uuid.UUID, providerID, weightsKey string) error {
	query := `UPDATE studios SET provider_id = $1, weights = $2, updated_at = NOW() WHERE id = $3`
	result, err := r.db.Exec(ctx, query, providerID, weightsKey, studioID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrStudioNotFound
	}
	return nil
}

func (r *PostgresRepository) listStudios(ctx context.Context, filter string, arg any, limit, offset int) ([]domain.Studio, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`
		SELECT %s FROM studios
		WHERE %s AND status != $4
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, studioColumns, filter)
	rows, err := r.db.Query(ctx, query, arg, limit, offset, string(domain.StudioStatusDeleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Studio
	for rows.Next() {
		s, err := scanStudio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// ListStudiosByUser returns a user's personal studios, newest first. Deleted
// studios are excluded.
func (r *PostgresRepository) ListStudiosByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Studio, error) {
	return r.listStudios(ctx, "creator_user_id = $1 AND organization_id IS NULL", userID, limit, offset)
}

// ListStudiosByOrganization returns an organization's studios, newest first.
func (r *PostgresRepository) ListStudiosByOrganization(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]domain.Studio, error) {
	return r.listStudios(ctx, "organization_id = $1", organizationID, limit, offset)
}

// CreateHeadshot inserts one generated asset row.
func (r *PostgresRepository) CreateHeadshot(ctx context.Context, h *domain.Headshot) error {
	query := `
		INSERT INTO headshots (id, studio_id, prompt, preview, result, hd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	_, err := r.db.Exec(ctx, query, h.ID, h.StudioID, h.Prompt, h.Preview, h.Result, h.HD)
	return err
}

// SetHeadshotHD attaches the full-resolution object key produced by the
// upscale step to an existing headshot.
func (r *PostgresRepository) SetHeadshotHD(ctx context.Context, headshotID uuid.UUID, hdKey string) error {
	result, err := r.db.Exec(ctx, "UPDATE headshots SET hd = $1 WHERE id = $2", hdKey, headshotID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrHeadshotNotFound
	}
	return nil
}

// FindHeadshotByID fetches one headshot.
func (r *PostgresRepository) FindHeadshotByID(ctx context.Context, headshotID uuid.UUID) (*domain.Headshot, error) {
	var h domain.Headshot
	query := `SELECT id, studio_id, prompt, preview, result, hd, created_at FROM headshots WHERE id = $1`
	err := r.db.QueryRow(ctx, query, headshotID).Scan(&h.ID, &h.StudioID, &h.Prompt, &h.Preview, &h.Result, &h.HD, &h.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrHeadshotNotFound
		}
		return nil, err
	}
	return &h, nil
}

// ListHeadshotsByStudio returns all generated assets for a studio, oldest first.
func (r *PostgresRepository) ListHeadshotsByStudio(ctx context.Context, studioID uuid.UUID) ([]*domain.Headshot, error) {
	query := `SELECT id, studio_id, prompt, preview, result, hd, created_at FROM headshots WHERE studio_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, studioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Headshot
	for rows.Next() {
		var h domain.Headshot
		if err := rows.Scan(&h.ID, &h.StudioID, &h.Prompt, &h.Preview, &h.Result, &h.HD, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// ToggleFavorite adds the headshot to the user's delivery set, or removes it
// if already present. Returns whether the favorite now exists.
func (r *PostgresRepository) ToggleFavorite(ctx context.Context, userID, studioID, headshotID uuid.UUID) (bool, error) {
	result, err := r.db.Exec(ctx,
		"DELETE FROM favorites WHERE user_id = $1 AND studio_id = $2 AND headshot_id = $3",
		userID, studioID, headshotID,
	)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() > 0 {
		return false, nil
	}

	insert := `
		INSERT INTO favorites (id, user_id, studio_id, headshot_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, studio_id, headshot_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, insert, uuid.New(), userID, studioID, headshotID); err != nil {
		return false, err
	}
	return true, nil
}

// ListFavoriteHeadshotIDs returns the headshot ids a user has favorited
// within one studio.
func (r *PostgresRepository) ListFavoriteHeadshotIDs(ctx context.Context, userID, studioID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		"SELECT headshot_id FROM favorites WHERE user_id = $1 AND studio_id = $2 ORDER BY created_at ASC",
		userID, studioID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
