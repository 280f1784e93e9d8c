/**
 * @description
 * This file implements plan validation and pricing for the studio-service.
 * The plan table and team volume-discount tiers are immutable configuration
 * built once at process start and injected into the Validator; validation and
 * pricing are pure functions of that configuration.
 *
 * @notes
 * - Prices are carried in cents (int64) everywhere to avoid floating-point
 *   drift; DiscountedUnitPrice is the rounded per-unit price the payment
 *   provider is asked to charge.
 * - Volume tiers are ordered ascending by MinQuantity; the applicable tier is
 *   the greatest MinQuantity <= quantity.
 */

package plans

import (
	"fmt"
	"math"
	"sort"
)

// Validation error codes returned alongside ValidationError.
const (
	CodeInvalidPlan      = "INVALID_PLAN"
	CodeQuantityExceeded = "QUANTITY_EXCEEDED"
	CodeTeamMinQuantity  = "TEAM_MIN_QUANTITY"
)

// ValidationError describes why a plan/quantity combination was rejected.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AccountContext scopes which kind of account a plan can be bought for.
type AccountContext string

const (
	ContextPersonal AccountContext = "personal"
	ContextTeam     AccountContext = "team"
)

// Plan is one purchasable plan from the static configuration table.
type Plan struct {
	Key            string         `json:"key"`
	UnitPriceCents int64          `json:"unit_price_cents"`
	VariantID      int64          `json:"variant_id"` // payment provider variant
	TotalHeadshots int            `json:"total_headshots"`
	StylesLimit    int            `json:"styles_limit"`
	Context        AccountContext `json:"account_context"`
	MostPopular    bool           `json:"most_popular"`
	MaxQuantity    int            `json:"max_quantity"`
}

// ClientPlan is the client-safe view of a plan: VariantID and pricing are
// intentionally excluded.
type ClientPlan struct {
	Key            string         `json:"key"`
	TotalHeadshots int            `json:"total_headshots"`
	StylesLimit    int            `json:"styles_limit"`
	Context        AccountContext `json:"account_context"`
	MostPopular    bool           `json:"most_popular"`
	MaxQuantity    int            `json:"max_quantity"`
}

// VolumeTier is one discount step for team plans. Discount is a fraction in
// [0,1).
type VolumeTier struct {
	MinQuantity int     `json:"min_quantity"`
	Discount    float64 `json:"discount"`
}

// Config holds the full plan and discount configuration.
type Config struct {
	Plans     map[string]Plan
	TeamTiers []VolumeTier
}

// DefaultConfig returns the production plan table.
func DefaultConfig() Config {
	return Config{
		Plans: map[string]Plan{
			"starter": {
				Key:            "starter",
				UnitPriceCents: 3500,
				VariantID:      996929,
				TotalHeadshots: 40,
				StylesLimit:    10,
				Context:        ContextPersonal,
				MaxQuantity:    100,
			},
			"professional": {
				Key:            "professional",
				UnitPriceCents: 4900,
				VariantID:      996930,
				TotalHeadshots: 60,
				StylesLimit:    20,
				Context:        ContextPersonal,
				MostPopular:    true,
				MaxQuantity:    100,
			},
			"studio": {
				Key:            "studio",
				UnitPriceCents: 5900,
				VariantID:      996931,
				TotalHeadshots: 100,
				StylesLimit:    25,
				Context:        ContextPersonal,
				MaxQuantity:    100,
			},
			"team": {
				Key:            "team",
				UnitPriceCents: 4900,
				VariantID:      996932,
				TotalHeadshots: 100,
				StylesLimit:    25,
				Context:        ContextTeam,
				MaxQuantity:    1000,
			},
		},
		TeamTiers: []VolumeTier{
			{MinQuantity: 2, Discount: 0},
			{MinQuantity: 5, Discount: 0.10},
			{MinQuantity: 25, Discount: 0.20},
			{MinQuantity: 100, Discount: 0.30},
		},
	}
}

// Quote is the deterministic pricing breakdown for a plan/quantity pair. All
// amounts are in cents so the result can be re-derived for auditing.
type Quote struct {
	PlanKey             string  `json:"plan_key"`
	Quantity            int     `json:"quantity"`
	UnitPriceCents      int64   `json:"unit_price_cents"`
	BaseTotalCents      int64   `json:"base_total_cents"`
	Discount            float64 `json:"discount"` // fraction, e.g. 0.10
	SavingsCents        int64   `json:"savings_cents"`
	TotalCents          int64   `json:"total_cents"`
	DiscountedUnitPrice int64   `json:"discounted_unit_price_cents"` // 0 when no discount applies
	VariantID           int64   `json:"variant_id"`
}

// Validator validates plan selections and computes quotes against an
// injected, immutable configuration.
type Validator struct {
	cfg Config
}

// NewValidator sorts the tier table once and returns a validator backed by
// cfg. The caller must not mutate cfg afterwards.
func NewValidator(cfg Config) *Validator {
	sort.Slice(cfg.TeamTiers, func(i, j int) bool {
		return cfg.TeamTiers[i].MinQuantity < cfg.TeamTiers[j].MinQuantity
	})
	return &Validator{cfg: cfg}
}

// Validate checks planKey and quantity against the configuration. Quantities
// below 1 are clamped to 1; the normalized quantity is returned alongside the
// plan. Failures carry a *ValidationError with a stable code.
func (v *Validator) Validate(planKey string, quantity int) (Plan, int, error) {
	plan, ok := v.cfg.Plans[planKey]
	if !ok {
		return Plan{}, 0, &ValidationError{
			Code:    CodeInvalidPlan,
			Message: fmt.Sprintf("invalid plan: %s", planKey),
		}
	}

	if quantity < 1 {
		quantity = 1
	}

	if quantity > plan.MaxQuantity {
		return Plan{}, 0, &ValidationError{
			Code:    CodeQuantityExceeded,
			Message: fmt.Sprintf("quantity %d exceeds maximum allowed (%d) for plan %s", quantity, plan.MaxQuantity, planKey),
		}
	}

	if plan.Context == ContextTeam && quantity < 2 {
		return Plan{}, 0, &ValidationError{
			Code:    CodeTeamMinQuantity,
			Message: "team plan requires minimum 2 credits",
		}
	}

	return plan, quantity, nil
}

// Quote validates the selection and computes the price breakdown. For team
// plans the highest tier with MinQuantity <= quantity applies; other plans
// are never discounted.
func (v *Validator) Quote(planKey string, quantity int) (*Quote, error) {
	plan, qty, err := v.Validate(planKey, quantity)
	if err != nil {
		return nil, err
	}

	baseTotal := plan.UnitPriceCents * int64(qty)
	discount := 0.0
	if plan.Context == ContextTeam {
		for i := len(v.cfg.TeamTiers) - 1; i >= 0; i-- {
			if qty >= v.cfg.TeamTiers[i].MinQuantity {
				discount = v.cfg.TeamTiers[i].Discount
				break
			}
		}
	}

	savings := int64(math.Round(float64(baseTotal) * discount))
	q := &Quote{
		PlanKey:        planKey,
		Quantity:       qty,
		UnitPriceCents: plan.UnitPriceCents,
		BaseTotalCents: baseTotal,
		Discount:       discount,
		SavingsCents:   savings,
		TotalCents:     baseTotal - savings,
		VariantID:      plan.VariantID,
	}
	if discount > 0 {
		q.DiscountedUnitPrice = int64(math.Round(float64(plan.UnitPriceCents) * (1 - discount)))
	}
	return q, nil
}

// ClientPlan returns the client-safe view of one plan.
func (v *Validator) ClientPlan(planKey string) (ClientPlan, error) {
	plan, ok := v.cfg.Plans[planKey]
	if !ok {
		return ClientPlan{}, &ValidationError{
			Code:    CodeInvalidPlan,
			Message: fmt.Sprintf("invalid plan: %s", planKey),
		}
	}
	return ClientPlan{
		Key:            plan.Key,
		TotalHeadshots: plan.TotalHeadshots,
		StylesLimit:    plan.StylesLimit,
		Context:        plan.Context,
		MostPopular:    plan.MostPopular,
		MaxQuantity:    plan.MaxQuantity,
	}, nil
}

// PlansForContext lists the client-safe plans purchasable for an account
// context, sorted by price ascending.
func (v *Validator) PlansForContext(ctx AccountContext) []ClientPlan {
	var keys []string
	for key, plan := range v.cfg.Plans {
		if plan.Context == ctx {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return v.cfg.Plans[keys[i]].UnitPriceCents < v.cfg.Plans[keys[j]].UnitPriceCents
	})
	out := make([]ClientPlan, 0, len(keys))
	for _, key := range keys {
		cp, _ := v.ClientPlan(key)
		out = append(out, cp)
	}
	return out
}

// Plan returns the full server-side plan record for a key.
func (v *Validator) Plan(planKey string) (Plan, bool) {
	plan, ok := v.cfg.Plans[planKey]
	return plan, ok
}
