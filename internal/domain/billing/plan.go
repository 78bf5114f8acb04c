package billing

import (
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Unlimited marks a feature limit without a cap
const Unlimited int64 = -1

// PlanTier identifies a subscription plan
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// String returns the string representation of PlanTier
func (p PlanTier) String() string {
	return string(p)
}

// IsValid returns true if the plan tier is known
func (p PlanTier) IsValid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// IsPaid returns true for tiers that carry a subscription
func (p PlanTier) IsPaid() bool {
	return p == PlanPro || p == PlanEnterprise
}

// FeatureType is a quota-gated feature with a per-cycle free-use cap
type FeatureType string

const (
	FeatureStoryboard      FeatureType = "storyboard"
	FeatureAnalysis        FeatureType = "analysis"
	FeatureAvatar          FeatureType = "avatar"
	FeatureVideoGeneration FeatureType = "videoGeneration"
)

// AllFeatures lists every quota-gated feature
var AllFeatures = []FeatureType{
	FeatureStoryboard,
	FeatureAnalysis,
	FeatureAvatar,
	FeatureVideoGeneration,
}

// String returns the string representation of FeatureType
func (f FeatureType) String() string {
	return string(f)
}

// IsValid returns true if the feature type is known
func (f FeatureType) IsValid() bool {
	switch f {
	case FeatureStoryboard, FeatureAnalysis, FeatureAvatar, FeatureVideoGeneration:
		return true
	}
	return false
}

// ParseFeatureType converts a string to a FeatureType
func ParseFeatureType(s string) (FeatureType, error) {
	f := FeatureType(s)
	if !f.IsValid() {
		return "", shared.NewDomainError("INVALID_FEATURE", "Unknown feature type: "+s)
	}
	return f, nil
}

// Plan describes what a tier costs and what it grants per billing cycle
type Plan struct {
	Tier           PlanTier              `json:"tier"`
	Name           string                `json:"name"`
	MonthlyPrice   decimal.Decimal       `json:"monthly_price"`
	YearlyPrice    decimal.Decimal       `json:"yearly_price"`
	MonthlyCredits int64                 `json:"monthly_credits"`
	FeatureLimits  map[FeatureType]int64 `json:"feature_limits"`
	Features       []string              `json:"features"`
	CycleMonths    int                   `json:"cycle_months"`
	TeamSeats      int                   `json:"team_seats"`
}

// FeatureLimit returns the per-cycle cap for a feature; Unlimited when uncapped.
// Features missing from the table are treated as not included (zero).
func (p Plan) FeatureLimit(feature FeatureType) int64 {
	limit, ok := p.FeatureLimits[feature]
	if !ok {
		return 0
	}
	return limit
}

// AllowsTeams returns true if the plan can own a team
func (p Plan) AllowsTeams() bool {
	return p.TeamSeats > 0
}

func (p Plan) clone() Plan {
	limits := make(map[FeatureType]int64, len(p.FeatureLimits))
	for k, v := range p.FeatureLimits {
		limits[k] = v
	}
	features := make([]string, len(p.Features))
	copy(features, p.Features)
	p.FeatureLimits = limits
	p.Features = features
	return p
}
