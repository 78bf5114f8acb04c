package billing

import (
	"sort"

	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// DefaultRefundCreditsPerUnit converts one refunded currency unit into credits
var DefaultRefundCreditsPerUnit = decimal.RequireFromString("5.8")

var actionCosts = map[Action]int64{
	ActionMVAnalysis:         8,
	ActionIdolGeneration:     3,
	ActionStoryboard:         15,
	ActionForgeImage:         0,
	ActionAIInspiration:      5,
	ActionNBPImage2K:         5,
	ActionNBPImage4K:         9,
	ActionRapid3D:            5,
	ActionRapid3DPBR:         8,
	ActionPro3D:              9,
	ActionPro3DPBR:           12,
	ActionPro3DPBRMV:         15,
	ActionPro3DFull:          18,
	ActionVideoGeneration:    50,
	ActionIdol3D:             30,
	ActionSunoMusicV4:        12,
	ActionSunoMusicV5:        22,
	ActionSunoLyrics:         3,
	ActionKlingVideo:         80,
	ActionKlingMotionControl: 70,
	ActionKlingLipSync:       60,
	ActionKlingImageO1_1K:    8,
	ActionKlingImageO1_2K:    10,
	ActionKlingImageV2_1K:    5,
	ActionKlingImageV2_2K:    7,
}

var plans = map[PlanTier]Plan{
	PlanFree: {
		Tier:           PlanFree,
		Name:           "Free",
		MonthlyPrice:   decimal.Zero,
		YearlyPrice:    decimal.Zero,
		MonthlyCredits: 50,
		FeatureLimits: map[FeatureType]int64{
			FeatureStoryboard:      1,
			FeatureAnalysis:        2,
			FeatureAvatar:          3,
			FeatureVideoGeneration: 0,
		},
		Features: []string{
			"1 storyboard per month",
			"2 video analyses per month",
			"3 idol images per month",
			"Watermarked exports",
		},
		CycleMonths: 1,
	},
	PlanPro: {
		Tier:           PlanPro,
		Name:           "Pro",
		MonthlyPrice:   decimal.NewFromInt(108),
		YearlyPrice:    decimal.NewFromInt(1036),
		MonthlyCredits: 200,
		FeatureLimits: map[FeatureType]int64{
			FeatureStoryboard:      Unlimited,
			FeatureAnalysis:        Unlimited,
			FeatureAvatar:          Unlimited,
			FeatureVideoGeneration: Unlimited,
		},
		Features: []string{
			"200 credits per month",
			"Unlimited storyboards",
			"Unlimited analyses and idol images",
			"Video generation",
			"No watermark",
		},
		CycleMonths: 1,
	},
	PlanEnterprise: {
		Tier:           PlanEnterprise,
		Name:           "Enterprise",
		MonthlyPrice:   decimal.NewFromInt(358),
		YearlyPrice:    decimal.NewFromInt(3437),
		MonthlyCredits: 800,
		FeatureLimits: map[FeatureType]int64{
			FeatureStoryboard:      Unlimited,
			FeatureAnalysis:        Unlimited,
			FeatureAvatar:          Unlimited,
			FeatureVideoGeneration: Unlimited,
		},
		Features: []string{
			"800 credits per month",
			"Everything in Pro",
			"Team workspace with shared credit pool",
			"Priority rendering",
		},
		CycleMonths: 1,
		TeamSeats:   10,
	},
}

// CreditPack is a one-off credit purchase
type CreditPack struct {
	ID      string          `json:"id"`
	Credits int64           `json:"credits"`
	Price   decimal.Decimal `json:"price"`
}

var creditPacks = map[string]CreditPack{
	"small":  {ID: "small", Credits: 50, Price: decimal.NewFromInt(35)},
	"medium": {ID: "medium", Credits: 100, Price: decimal.NewFromInt(68)},
	"large":  {ID: "large", Credits: 250, Price: decimal.NewFromInt(168)},
	"mega":   {ID: "mega", Credits: 500, Price: decimal.NewFromInt(328)},
}

// GetPlan returns the catalog entry for a tier
func GetPlan(tier PlanTier) (Plan, error) {
	plan, ok := plans[tier]
	if !ok {
		return Plan{}, shared.NewDomainError("INVALID_PLAN", "Unknown plan tier: "+string(tier))
	}
	return plan.clone(), nil
}

// MustGetPlan is GetPlan for tiers known at compile time
func MustGetPlan(tier PlanTier) Plan {
	plan, err := GetPlan(tier)
	if err != nil {
		panic(err)
	}
	return plan
}

// Plans returns every plan ordered by monthly price
func Plans() []Plan {
	result := make([]Plan, 0, len(plans))
	for _, p := range plans {
		result = append(result, p.clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MonthlyPrice.LessThan(result[j].MonthlyPrice)
	})
	return result
}

// GetActionCost returns the credit cost of an action. Zero is a valid cost.
func GetActionCost(action Action) (int64, error) {
	cost, ok := actionCosts[action]
	if !ok {
		return 0, ErrUnknownAction(string(action))
	}
	return cost, nil
}

// Costs returns a copy of the full cost table
func Costs() map[Action]int64 {
	result := make(map[Action]int64, len(actionCosts))
	for k, v := range actionCosts {
		result[k] = v
	}
	return result
}

// GetCreditPack returns a credit pack by ID
func GetCreditPack(id string) (CreditPack, error) {
	pack, ok := creditPacks[id]
	if !ok {
		return CreditPack{}, shared.NewDomainError("INVALID_PACK", "Unknown credit pack: "+id)
	}
	return pack, nil
}

// CreditPacks returns every pack ordered by size
func CreditPacks() []CreditPack {
	result := make([]CreditPack, 0, len(creditPacks))
	for _, p := range creditPacks {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Credits < result[j].Credits
	})
	return result
}

// RefundCredits converts a refunded amount in minor currency units into credits,
// rounding up so a partial unit still claws back a whole credit.
func RefundCredits(amountCents int64, creditsPerUnit decimal.Decimal) int64 {
	if amountCents <= 0 {
		return 0
	}
	if creditsPerUnit.IsZero() {
		creditsPerUnit = DefaultRefundCreditsPerUnit
	}
	return decimal.NewFromInt(amountCents).
		Div(decimal.NewFromInt(100)).
		Mul(creditsPerUnit).
		Ceil().
		IntPart()
}
