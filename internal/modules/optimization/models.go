// Package optimization holds the per-user recommendation engine: given a
// user's activity scores and current license, it finds the cheapest SKU
// covering the services the user actually needs and prices the change.
package optimization

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/modules/scoring"
)

// Recommendation actions.
const (
	ActionRemove    = "remove"
	ActionDowngrade = "downgrade"
	ActionUpgrade   = "upgrade"
	ActionNoChange  = "no_change"
)

// Reason codes. Codes are stable identifiers keyed into the reason catalog;
// the rendered text is what reports and the API show.
const (
	ReasonRemoveInactive        = "remove_inactive"
	ReasonRemoveAccountDisabled = "remove_account_disabled"
	ReasonDowngradeE5ToE3       = "downgrade_e5_to_e3"
	ReasonDowngradeE3ToE1       = "downgrade_e3_to_e1"
	ReasonDowngradeToFrontline  = "downgrade_to_frontline"
	ReasonUpgradeMissingService = "upgrade_missing_services"
	ReasonNoChange              = "no_change"
)

// reasonCatalog maps language -> reason code -> format string. Formats take
// (current SKU name, recommended SKU name); remove and no-change formats
// only use the first.
var reasonCatalog = map[string]map[string]string{
	"en": {
		ReasonRemoveInactive:        "No measurable activity in the last 28 days; remove %[1]s",
		ReasonRemoveAccountDisabled: "Account is disabled; remove %[1]s",
		ReasonDowngradeE5ToE3:       "Advanced features of %[1]s are unused; %[2]s covers the observed usage",
		ReasonDowngradeE3ToE1:       "Desktop Office apps are unused; %[2]s covers the observed usage",
		ReasonDowngradeToFrontline:  "Only light collaboration observed; frontline plan %[2]s is sufficient",
		ReasonUpgradeMissingService: "%[1]s does not include services the user relies on; %[2]s does",
		ReasonNoChange:              "%[1]s already matches the observed usage",
	},
}

// RenderReason renders a reason code with the involved SKU display names.
// Unknown languages fall back to English; unknown codes render as the bare
// code so a catalog gap never hides a recommendation.
func RenderReason(lang, code, currentName, recommendedName string) string {
	catalog, ok := reasonCatalog[lang]
	if !ok {
		catalog = reasonCatalog["en"]
	}
	format, ok := catalog[code]
	if !ok {
		return code
	}
	return fmt.Sprintf(format, currentName, recommendedName)
}

// Decision is the engine's verdict for one user. RecommendedSkuID is empty
// for removals; MonthlySavings is signed, negative for upgrades.
type Decision struct {
	Action             string
	CurrentSkuID       string
	CurrentSkuName     string
	RecommendedSkuID   string
	RecommendedSkuName string
	CurrentMonthly     decimal.Decimal
	RecommendedMonthly decimal.Decimal
	MonthlySavings     decimal.Decimal
	ReasonCode         string
	Reason             string
	RequiredServices   []domain.Service
	Scores             scoring.Scores
}
