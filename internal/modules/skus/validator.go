package skus

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Validator answers add-on attachment questions against one registry
// snapshot per call, so a bulk request sees a consistent catalog.
type Validator struct {
	registry *Registry
	log      zerolog.Logger
	now      func() time.Time
}

// NewValidator creates an add-on validator.
func NewValidator(registry *Registry, log zerolog.Logger) *Validator {
	return &Validator{
		registry: registry,
		log:      log.With().Str("service", "addon_validator").Logger(),
	}
}

// Validate runs every check for one (base, add-on) pair. Checks do not
// short-circuit: a failed compatibility check still yields quantity, window,
// prerequisite, and conflict results so the caller sees the full picture.
func (v *Validator) Validate(req ValidationRequest) *ValidationReport {
	return v.validate(v.registry.Snapshot(), req)
}

// ValidateBulk validates every item against the same snapshot and returns
// per-item reports in input order.
func (v *Validator) ValidateBulk(reqs []ValidationRequest) []*ValidationReport {
	snap := v.registry.Snapshot()
	reports := make([]*ValidationReport, len(reqs))
	for i, req := range reqs {
		reports[i] = v.validate(snap, req)
	}
	return reports
}

func (v *Validator) validate(snap *Snapshot, req ValidationRequest) *ValidationReport {
	date := req.Date
	if date == "" {
		date = v.clock().Format("2006-01-02")
	}

	report := &ValidationReport{
		BaseSku:  req.BaseSku,
		AddonSku: req.AddonSku,
		Quantity: req.Quantity,
		Date:     date,
		Valid:    true,
	}

	rule := pickRule(snap.RulesFor(req.AddonSku, req.BaseSku), date)

	v.checkCompatibility(snap, req, rule, report)
	v.checkQuantity(req.Quantity, rule, report)
	v.checkWindow(date, rule, report)
	v.checkPrerequisites(snap, req, report)
	v.checkConflicts(snap, req, rule, report)

	return report
}

// pickRule chooses the rule to judge against: the one effective on the date
// if any, otherwise the newest, so window failures report a concrete rule.
func pickRule(rules []*AddonRule, date string) *AddonRule {
	var newest *AddonRule
	for _, rule := range rules {
		if rule.InWindow(date) {
			return rule
		}
		if newest == nil || rule.EffectiveDate > newest.EffectiveDate {
			newest = rule
		}
	}
	return newest
}

func (v *Validator) checkCompatibility(snap *Snapshot, req ValidationRequest, rule *AddonRule, report *ValidationReport) {
	addon := snap.Sku(req.AddonSku)
	base := snap.Sku(req.BaseSku)

	switch {
	case base == nil:
		report.add(CheckCompatibility, false, fmt.Sprintf("unknown base sku %s", req.BaseSku))
	case addon == nil:
		report.add(CheckCompatibility, false, fmt.Sprintf("unknown add-on sku %s", req.AddonSku))
	case !addon.IsAddon:
		report.add(CheckCompatibility, false, fmt.Sprintf("%s is not an add-on", addon.DisplayName))
	case rule == nil:
		report.add(CheckCompatibility, false,
			fmt.Sprintf("%s cannot attach to %s", addon.DisplayName, base.DisplayName))
	default:
		report.add(CheckCompatibility, true, "")
	}
}

func (v *Validator) checkQuantity(quantity int64, rule *AddonRule, report *ValidationReport) {
	if rule == nil {
		report.add(CheckQuantity, false, "no compatibility rule to bound quantity")
		return
	}

	switch {
	case quantity < rule.MinQuantity:
		report.add(CheckQuantity, false,
			fmt.Sprintf("quantity %d is below the minimum %d", quantity, rule.MinQuantity))
	case rule.MaxQuantity > 0 && quantity > rule.MaxQuantity:
		report.add(CheckQuantity, false,
			fmt.Sprintf("quantity %d exceeds the maximum %d", quantity, rule.MaxQuantity))
	// Rows written outside the seed loader may carry a zero multiplier;
	// treat it as 1 rather than dividing by it.
	case rule.Multiplier > 1 && quantity%rule.Multiplier != 0:
		report.add(CheckQuantity, false,
			fmt.Sprintf("quantity %d is not a multiple of %d", quantity, rule.Multiplier))
	default:
		report.add(CheckQuantity, true, "")
	}
}

func (v *Validator) checkWindow(date string, rule *AddonRule, report *ValidationReport) {
	if rule == nil {
		report.add(CheckWindow, false, "no compatibility rule to provide a window")
		return
	}

	if !rule.InWindow(date) {
		window := rule.EffectiveDate
		if window == "" {
			window = "beginning"
		}
		expiry := rule.ExpiryDate
		if expiry == "" {
			expiry = "open"
		}
		report.add(CheckWindow, false,
			fmt.Sprintf("%s is outside the availability window [%s, %s]", date, window, expiry))
		return
	}
	report.add(CheckWindow, true, "")
}

func (v *Validator) checkPrerequisites(snap *Snapshot, req ValidationRequest, report *ValidationReport) {
	addon := snap.Sku(req.AddonSku)
	if addon == nil || len(addon.PrerequisiteSkus) == 0 {
		report.add(CheckPrerequisites, true, "")
		return
	}

	existing := make(map[string]bool, len(req.ExistingAddons))
	for _, sku := range req.ExistingAddons {
		existing[sku] = true
	}

	var missing []string
	for _, prereq := range addon.PrerequisiteSkus {
		if existing[prereq] {
			continue
		}
		name := prereq
		if info := snap.Sku(prereq); info != nil {
			name = info.DisplayName
		}
		missing = append(missing, name)
	}

	if len(missing) > 0 {
		report.add(CheckPrerequisites, false,
			"missing prerequisite add-ons: "+strings.Join(missing, ", "))
		return
	}
	report.add(CheckPrerequisites, true, "")
}

// checkConflicts flags an existing add-on that occupies the same category on
// this base. Without a rule there is no category to clash with and the
// check passes.
func (v *Validator) checkConflicts(snap *Snapshot, req ValidationRequest, rule *AddonRule, report *ValidationReport) {
	if rule == nil || rule.Category == "" {
		report.add(CheckConflicts, true, "")
		return
	}

	for _, sku := range req.ExistingAddons {
		if sku == req.AddonSku {
			continue
		}
		for _, other := range snap.RulesFor(sku, req.BaseSku) {
			if other.Category != rule.Category {
				continue
			}
			name := sku
			if info := snap.Sku(sku); info != nil {
				name = info.DisplayName
			}
			report.add(CheckConflicts, false,
				fmt.Sprintf("conflicts with %s (both %s)", name, rule.Category))
			return
		}
	}
	report.add(CheckConflicts, true, "")
}

func (v *Validator) clock() time.Time {
	if v.now != nil {
		return v.now()
	}
	return time.Now()
}
