package accounting

import (
	"fmt"
	"time"
)

// PlanRules holds the entitlement and abuse knobs. The abuse threshold is a
// deployment setting, not part of the schema.
type PlanRules struct {
	FreeQuestionLimit   int
	ProQuestionBonus    int
	PremiumDuration     time.Duration
	PremiumQuestionPool int
	IPAbuseThreshold    int
}

// DefaultPlanRules mirrors the production defaults.
func DefaultPlanRules() PlanRules {
	return PlanRules{
		FreeQuestionLimit:   15,
		ProQuestionBonus:    100,
		PremiumDuration:     30 * 24 * time.Hour,
		PremiumQuestionPool: 9999,
		IPAbuseThreshold:    500,
	}
}

// Entitlement returns the questions_remaining and premium_expiry a user is
// granted when moved to plan at time now.
func (r PlanRules) Entitlement(plan string, now time.Time) (int, *time.Time, error) {
	switch plan {
	case PlanFree:
		return r.FreeQuestionLimit, nil, nil
	case PlanPro:
		return r.ProQuestionBonus, nil, nil
	case PlanPremium:
		expiry := now.Add(r.PremiumDuration)
		return r.PremiumQuestionPool, &expiry, nil
	default:
		return 0, nil, fmt.Errorf("unknown plan %q", plan)
	}
}

// ValidPlan reports whether plan is one of the known plan statuses.
func ValidPlan(plan string) bool {
	switch plan {
	case PlanFree, PlanPro, PlanPremium:
		return true
	default:
		return false
	}
}
