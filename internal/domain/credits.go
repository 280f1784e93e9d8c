/**
 * @description
 * This file defines the credit-ledger domain models for the studio-service:
 * the per-account bucketed balance row, the append-only transaction log, and
 * the purchase record that anchors webhook idempotency.
 *
 * @notes
 * - Credits are whole generation units stored as int64; no bucket may go
 *   negative. Mutations happen only through the store's atomic deduct/grant
 *   operation, never through read-then-write from application code.
 * - Purchase.ProviderPaymentID carries a unique constraint; a redelivered
 *   payment webhook surfaces as a unique violation and is treated as
 *   already processed.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// CreditContext records which kind of account a ledger mutation was made
// against.
type CreditContext string

const (
	CreditContextPersonal     CreditContext = "PERSONAL"
	CreditContextOrganization CreditContext = "ORGANIZATION"
)

// CreditBucket names one balance column on the ledger row.
type CreditBucket string

const (
	BucketBalance      CreditBucket = "balance"
	BucketStarter      CreditBucket = "starter"
	BucketProfessional CreditBucket = "professional"
	BucketStudio       CreditBucket = "studio"
	BucketTeam         CreditBucket = "team"
)

// IsValid reports whether b names a real ledger column.
func (b CreditBucket) IsValid() bool {
	switch b {
	case BucketBalance, BucketStarter, BucketProfessional, BucketStudio, BucketTeam:
		return true
	}
	return false
}

// AccountRef identifies the owner of a credit ledger: exactly one of UserID
// or OrganizationID is set.
type AccountRef struct {
	UserID         *uuid.UUID
	OrganizationID *uuid.UUID
}

// Context derives the ledger context from which owner reference is set.
func (r AccountRef) Context() CreditContext {
	if r.OrganizationID != nil {
		return CreditContextOrganization
	}
	return CreditContextPersonal
}

// PersonalAccount builds an AccountRef for a user-owned ledger.
func PersonalAccount(userID uuid.UUID) AccountRef {
	return AccountRef{UserID: &userID}
}

// OrganizationAccount builds an AccountRef for an organization-owned ledger.
func OrganizationAccount(orgID uuid.UUID) AccountRef {
	return AccountRef{OrganizationID: &orgID}
}

// CreditLedger is the per-account balance row. Maps to the `credits` table;
// one row per account, created when the account is provisioned.
type CreditLedger struct {
	ID             uuid.UUID  `json:"id"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	Balance        int64      `json:"balance"`
	Starter        int64      `json:"starter"`
	Professional   int64      `json:"professional"`
	Studio         int64      `json:"studio"`
	Team           int64      `json:"team"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Bucket returns the current amount in the named bucket.
func (l *CreditLedger) Bucket(b CreditBucket) int64 {
	switch b {
	case BucketBalance:
		return l.Balance
	case BucketStarter:
		return l.Starter
	case BucketProfessional:
		return l.Professional
	case BucketStudio:
		return l.Studio
	case BucketTeam:
		return l.Team
	}
	return 0
}

// CreditTransaction is one immutable entry in the append-only mutation log.
// Exactly one row is written per ledger mutation, in the same database
// transaction as the balance change.
type CreditTransaction struct {
	ID              uuid.UUID     `json:"id"`
	CreditAccountID uuid.UUID     `json:"credit_account_id"`
	Delta           int64         `json:"delta"`
	Bucket          CreditBucket  `json:"bucket"`
	Reason          string        `json:"reason"`
	Context         CreditContext `json:"context"`
	StudioID        *uuid.UUID    `json:"studio_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Purchase is the immutable record of one external payment. Duplicate webhook
// deliveries are detected through the unique ProviderPaymentID.
type Purchase struct {
	ID                uuid.UUID      `json:"id"`
	Provider          string         `json:"provider"`
	ProviderPaymentID string         `json:"provider_payment_id"`
	Amount            int64          `json:"amount"` // in cents
	Currency          string         `json:"currency"`
	CreditsGranted    int64          `json:"credits_granted"`
	CreditsType       CreditBucket   `json:"credits_type"`
	Status            string         `json:"status"` // 'paid', 'refunded'
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// CreditMutation describes one atomic deduct or grant against a ledger.
// Delta is positive for grants and negative for deductions.
type CreditMutation struct {
	Account  AccountRef
	Bucket   CreditBucket
	Delta    int64
	Reason   string
	StudioID *uuid.UUID
}

// CreditBalanceResult reports the bucket balance after a successful mutation.
type CreditBalanceResult struct {
	Remaining int64 `json:"remaining_credits"`
}

// TeamCreditTransfer moves credits from an organization ledger to a member's
// personal ledger in one atomic operation.
type TeamCreditTransfer struct {
	OrganizationID uuid.UUID
	MemberUserID   uuid.UUID
	Bucket         CreditBucket
	Amount         int64
}
