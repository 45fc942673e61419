package billing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// PlanTier is one of the three fixed service levels.
type PlanTier string

const (
	PlanBasic      PlanTier = "basic"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// Plan constants, part of the external contract. IncludedMinutes and the
// overage rate are snapshotted onto the subscription at provisioning time.
const (
	BasicIncludedMinutes      = 600
	ProIncludedMinutes        = 1100
	EnterpriseIncludedMinutes = 3600

	// ProvisioningOverageRateCents is the per-minute overage rate written
	// to new subscriptions.
	ProvisioningOverageRateCents int64 = 25

	// MinTermMonths is the minimum subscription term written to new
	// subscriptions.
	MinTermMonths = 5
)

// DisplayEstimateRate is the illustrative per-minute rate used only by the
// standalone cost-estimate widget. Intentionally decoupled from the
// persisted subscription rate.
var DisplayEstimateRate = decimal.NewFromFloat(0.20)

// Status thresholds, fixed policy, not per-tenant configurable.
const (
	warningThresholdPct = 80
	limitThresholdPct   = 100
)

// StatusTier classifies usage against the plan quota.
type StatusTier string

const (
	StatusNormal    StatusTier = "normal"
	StatusWarning   StatusTier = "warning"
	StatusOverLimit StatusTier = "over-limit"
)

// IncludedMinutes returns the included-minutes quota for a plan.
func IncludedMinutes(plan PlanTier) (int, error) {
	switch plan {
	case PlanBasic:
		return BasicIncludedMinutes, nil
	case PlanPro:
		return ProIncludedMinutes, nil
	case PlanEnterprise:
		return EnterpriseIncludedMinutes, nil
	default:
		return 0, fmt.Errorf("unknown plan %q", plan)
	}
}

// ValidPlan reports whether plan is one of the known tiers.
func ValidPlan(plan string) bool {
	_, err := IncludedMinutes(PlanTier(plan))
	return err == nil
}

// Evaluation is the billing outcome for a usage total against a
// subscription's terms.
type Evaluation struct {
	MinutesUsed     float64         `json:"minutesUsed"`
	IncludedMinutes int             `json:"includedMinutes"`
	OverageMinutes  int64           `json:"overageMinutes"`
	OverageCost     decimal.Decimal `json:"overageCost"`
	PercentageUsed  float64         `json:"percentageUsed"`
	Status          StatusTier      `json:"status"`
}

// Evaluate computes overage and status for minutesUsed against a plan
// quota and a per-minute overage rate in minor currency units. Pure
// function of its inputs.
func Evaluate(minutesUsed float64, includedMinutes int, overageRateCents int64) Evaluation {
	overage := int64(math.Ceil(math.Max(0, minutesUsed-float64(includedMinutes))))

	pct := 0.0
	if includedMinutes > 0 {
		pct = round1(minutesUsed / float64(includedMinutes) * 100)
	}
	if pct > limitThresholdPct {
		pct = limitThresholdPct
	}

	status := StatusNormal
	switch {
	case minutesUsed > float64(includedMinutes):
		status = StatusOverLimit
	case pct >= warningThresholdPct:
		status = StatusWarning
	}

	return Evaluation{
		MinutesUsed:     minutesUsed,
		IncludedMinutes: includedMinutes,
		OverageMinutes:  overage,
		OverageCost:     decimal.New(overage*overageRateCents, -2),
		PercentageUsed:  pct,
		Status:          status,
	}
}

// EstimateDisplayCost computes the illustrative overage cost shown by the
// estimate widget, using the display-only rate.
func EstimateDisplayCost(overageMinutes int64) decimal.Decimal {
	return DisplayEstimateRate.Mul(decimal.NewFromInt(overageMinutes))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
