/**
 * @description
 * This file defines the studio aggregate and its status lifecycle for the
 * studio-service. A studio represents one user-initiated AI-headshot
 * generation job, from checkout through training, generation, and delivery.
 *
 * @notes
 * - StudioStatus is a closed type; every transition is checked against the
 *   central `allowedTransitions` table via CanTransitionTo. Status string
 *   comparisons must not be scattered across other packages.
 * - A studio in ACCEPTED has unlocked full-resolution delivery and is no
 *   longer refund-eligible, so its only outgoing transition is DELETED.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// StudioStatus enumerates the studio lifecycle states.
type StudioStatus string

const (
	StudioStatusPaymentPending StudioStatus = "PAYMENT_PENDING"
	StudioStatusProcessing     StudioStatus = "PROCESSING"
	StudioStatusCompleted      StudioStatus = "COMPLETED"
	StudioStatusAccepted       StudioStatus = "ACCEPTED"
	StudioStatusFailed         StudioStatus = "FAILED"
	StudioStatusRefunded       StudioStatus = "REFUNDED"
	StudioStatusDeleted        StudioStatus = "DELETED"
)

// allowedTransitions is the single source of truth for the studio state
// machine. PROCESSING -> PAYMENT_PENDING is the compensating rollback used
// when credit deduction fails after the studio row was created optimistically.
var allowedTransitions = map[StudioStatus]map[StudioStatus]bool{
	StudioStatusPaymentPending: {
		StudioStatusProcessing: true,
		StudioStatusRefunded:   true,
		StudioStatusDeleted:    true,
	},
	StudioStatusProcessing: {
		StudioStatusCompleted:      true,
		StudioStatusFailed:         true,
		StudioStatusPaymentPending: true, // compensating rollback
		StudioStatusRefunded:       true,
		StudioStatusDeleted:        true,
	},
	StudioStatusCompleted: {
		StudioStatusAccepted: true,
		StudioStatusRefunded: true,
		StudioStatusDeleted:  true,
	},
	StudioStatusAccepted: {
		StudioStatusDeleted: true,
	},
	StudioStatusFailed: {
		StudioStatusRefunded: true,
		StudioStatusDeleted:  true,
	},
	StudioStatusRefunded: {},
	StudioStatusDeleted:  {},
}

// IsValid reports whether s is one of the known lifecycle states.
func (s StudioStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal reports whether no further transition is permitted from s.
func (s StudioStatus) IsTerminal() bool {
	next, ok := allowedTransitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether the transition s -> to is permitted.
// Unknown states are never allowed to transition anywhere.
func (s StudioStatus) CanTransitionTo(to StudioStatus) bool {
	return allowedTransitions[s][to]
}

// RefundEligible reports whether a studio in state s may still be refunded.
// Acceptance unlocks full-resolution downloads, after which refunds are off
// the table; terminal states are likewise ineligible.
func (s StudioStatus) RefundEligible() bool {
	return s.CanTransitionTo(StudioStatusRefunded)
}

// StylePair is one clothing/background combination a studio generates
// headshots for.
type StylePair struct {
	Clothing   string `json:"clothing"`
	Background string `json:"background"`
}

// UserAttributes captures the subject description used to build generation
// prompts for a studio.
type UserAttributes struct {
	Gender     string `json:"gender"`
	Age        string `json:"age,omitempty"`
	Ethnicity  string `json:"ethnicity,omitempty"`
	HairColor  string `json:"hair_color,omitempty"`
	HairLength string `json:"hair_length,omitempty"`
	EyeColor   string `json:"eye_color,omitempty"`
	Glasses    bool   `json:"glasses,omitempty"`
}

// Studio is the generation job aggregate. It maps to the `studios` table.
// The ID is client-generated so that checkout metadata, webhook payloads and
// the eventual row all refer to the same job. CreatorUserID and
// OrganizationID are immutable once set.
type Studio struct {
	ID                uuid.UUID      `json:"id"`
	CreatorUserID     uuid.UUID      `json:"creator_user_id"`
	OrganizationID    *uuid.UUID     `json:"organization_id,omitempty"`
	Name              string         `json:"name"`
	Plan              string         `json:"plan"`
	Status            StudioStatus   `json:"status"`
	DatasetsObjectKey string         `json:"datasets_object_key"`
	StylePairs        []StylePair    `json:"style_pairs"`
	UserAttributes    UserAttributes `json:"user_attributes"`
	Provider          string         `json:"provider"`
	ProviderID        *string        `json:"provider_id,omitempty"`
	Weights           *string        `json:"weights,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Headshot is one generated asset belonging to a studio. Rows are append-only
// except for the later addition of the hd key by the upscale callback.
type Headshot struct {
	ID        uuid.UUID `json:"id"`
	StudioID  uuid.UUID `json:"studio_id"`
	Prompt    string    `json:"prompt"`
	Preview   *string   `json:"preview,omitempty"`
	Result    *string   `json:"result,omitempty"`
	HD        *string   `json:"hd,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Favorite marks a headshot as part of a user's final delivery set.
// Unique per (user, studio, headshot).
type Favorite struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	StudioID   uuid.UUID `json:"studio_id"`
	HeadshotID uuid.UUID `json:"headshot_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateStudioRequest is the DTO for the studio creation API.
type CreateStudioRequest struct {
	StudioID          uuid.UUID      `json:"studio_id"`
	StudioName        string         `json:"studio_name"`
	Plan              string         `json:"plan"`
	DatasetsObjectKey string         `json:"datasets_object_key"`
	StylePairs        []StylePair    `json:"style_pairs"`
	UserAttributes    UserAttributes `json:"user_attributes"`
	OrganizationID    *uuid.UUID     `json:"organization_id,omitempty"`
}

// StudioWithHeadshots bundles a studio with its generated assets and the
// caller's favorite selection for detail views.
type StudioWithHeadshots struct {
	Studio      *Studio     `json:"studio"`
	Headshots   []*Headshot `json:"headshots"`
	FavoriteIDs []uuid.UUID `json:"favorite_ids"`
}

// DispatchResult summarizes a batch generation fan-out: how many prompt units
// reached the external service and how many failed. The studio completes as
// long as at least one unit succeeded.
type DispatchResult struct {
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
}
