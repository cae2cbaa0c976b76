package optimization

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/modules/directory"
	"github.com/seatwise/seatwise/internal/modules/scoring"
	"github.com/seatwise/seatwise/internal/modules/skus"
)

// Engine evaluates one user at a time against a pinned SKU snapshot and
// price book, so every user in a run is judged against the same catalog.
type Engine struct {
	snap   *skus.Snapshot
	prices *PriceBook
	lang   string
	log    zerolog.Logger
}

// NewEngine builds an engine for one analysis run. lang selects the reason
// catalog language, falling back to English.
func NewEngine(snap *skus.Snapshot, prices *PriceBook, lang string, log zerolog.Logger) *Engine {
	return &Engine{
		snap:   snap,
		prices: prices,
		lang:   lang,
		log:    log.With().Str("service", "recommendation_engine").Logger(),
	}
}

// Evaluate scores the user's usage and decides what to do with their
// license. It returns nil when there is nothing to decide: the user holds
// no active base license, or their SKU is absent from the service matrix
// and coverage cannot be reasoned about.
func (e *Engine) Evaluate(
	user *directory.User,
	assignments []*directory.LicenseAssignment,
	metrics *directory.UsageMetrics,
) *Decision {
	scores := scoring.Compute(metrics)
	required := scores.Required()

	current := e.currentBase(assignments)
	if current == nil {
		return nil
	}

	currentInfo := e.snap.Sku(current.SkuID)
	currentName := e.skuName(current.SkuID, currentInfo)
	currentPrice := e.prices.MonthlyPrice(current.SkuID)

	if scoring.IsInactive(user.AccountEnabled, metrics, scores) {
		code := ReasonRemoveInactive
		if !user.AccountEnabled {
			code = ReasonRemoveAccountDisabled
		}
		return &Decision{
			Action:           ActionRemove,
			CurrentSkuID:     current.SkuID,
			CurrentSkuName:   currentName,
			CurrentMonthly:   currentPrice,
			MonthlySavings:   currentPrice,
			ReasonCode:       code,
			Reason:           RenderReason(e.lang, code, currentName, ""),
			RequiredServices: required,
			Scores:           scores,
		}
	}

	if currentInfo == nil {
		e.log.Debug().
			Str("user_id", user.ID).
			Str("sku_id", current.SkuID).
			Msg("current sku missing from service matrix, skipping user")
		return nil
	}

	best, bestPrice := e.cheapestCovering(required)
	if best == nil || best.SkuID == current.SkuID {
		return e.noChange(current.SkuID, currentName, currentPrice, required, scores)
	}

	switch {
	case bestPrice.LessThan(currentPrice):
		code := e.downgradeReason(currentInfo, best)
		return &Decision{
			Action:             ActionDowngrade,
			CurrentSkuID:       current.SkuID,
			CurrentSkuName:     currentName,
			RecommendedSkuID:   best.SkuID,
			RecommendedSkuName: best.DisplayName,
			CurrentMonthly:     currentPrice,
			RecommendedMonthly: bestPrice,
			MonthlySavings:     currentPrice.Sub(bestPrice),
			ReasonCode:         code,
			Reason:             RenderReason(e.lang, code, currentName, best.DisplayName),
			RequiredServices:   required,
			Scores:             scores,
		}

	case !currentInfo.Covers(required):
		return &Decision{
			Action:             ActionUpgrade,
			CurrentSkuID:       current.SkuID,
			CurrentSkuName:     currentName,
			RecommendedSkuID:   best.SkuID,
			RecommendedSkuName: best.DisplayName,
			CurrentMonthly:     currentPrice,
			RecommendedMonthly: bestPrice,
			MonthlySavings:     currentPrice.Sub(bestPrice),
			ReasonCode:         ReasonUpgradeMissingService,
			Reason:             RenderReason(e.lang, ReasonUpgradeMissingService, currentName, best.DisplayName),
			RequiredServices:   required,
			Scores:             scores,
		}

	default:
		return e.noChange(current.SkuID, currentName, currentPrice, required, scores)
	}
}

// currentBase picks the assignment the engine optimizes: the most expensive
// active base license, ties broken by SKU id. Add-on assignments are never
// optimized directly. When no assignment maps to the matrix the first
// active one is returned so an inactive user can still be priced for
// removal.
func (e *Engine) currentBase(assignments []*directory.LicenseAssignment) *directory.LicenseAssignment {
	var base *directory.LicenseAssignment
	var basePrice decimal.Decimal
	var unmapped *directory.LicenseAssignment

	for _, a := range assignments {
		if a.Status != directory.AssignmentActive {
			continue
		}
		info := e.snap.Sku(a.SkuID)
		if info == nil {
			if unmapped == nil {
				unmapped = a
			}
			continue
		}
		if info.IsAddon {
			continue
		}
		price := e.prices.MonthlyPrice(a.SkuID)
		switch {
		case base == nil:
			base, basePrice = a, price
		case price.GreaterThan(basePrice):
			base, basePrice = a, price
		case price.Equal(basePrice) && a.SkuID < base.SkuID:
			base = a
		}
	}

	if base != nil {
		return base
	}
	return unmapped
}

// cheapestCovering scans the base SKUs for the cheapest one whose services
// include every required service. The scan order is lexicographic by SKU
// id and the comparison is strict, so price ties resolve to the smaller id.
func (e *Engine) cheapestCovering(required []domain.Service) (*skus.SkuInfo, decimal.Decimal) {
	var best *skus.SkuInfo
	var bestPrice decimal.Decimal

	for _, sku := range e.snap.BaseSkus() {
		if !sku.Covers(required) {
			continue
		}
		price := e.prices.MonthlyPrice(sku.SkuID)
		if best == nil || price.LessThan(bestPrice) {
			best, bestPrice = sku, price
		}
	}
	return best, bestPrice
}

// downgradeReason classifies a downgrade by what the move gives up, most
// drastic class first: landing on a frontline plan, losing the desktop
// Office apps, then losing top-tier features.
func (e *Engine) downgradeReason(current, recommended *skus.SkuInfo) string {
	if recommended.Family == skus.FamilyFrontline && current.Family != skus.FamilyFrontline {
		return ReasonDowngradeToFrontline
	}

	for _, service := range current.Services {
		if recommended.Includes(service) {
			continue
		}
		if service == domain.ServiceOfficeDesktop {
			return ReasonDowngradeE3ToE1
		}
	}
	return ReasonDowngradeE5ToE3
}

func (e *Engine) noChange(
	skuID, skuName string,
	price decimal.Decimal,
	required []domain.Service,
	scores scoring.Scores,
) *Decision {
	return &Decision{
		Action:             ActionNoChange,
		CurrentSkuID:       skuID,
		CurrentSkuName:     skuName,
		RecommendedSkuID:   skuID,
		RecommendedSkuName: skuName,
		CurrentMonthly:     price,
		RecommendedMonthly: price,
		MonthlySavings:     decimal.Zero,
		ReasonCode:         ReasonNoChange,
		Reason:             RenderReason(e.lang, ReasonNoChange, skuName, skuName),
		RequiredServices:   required,
		Scores:             scores,
	}
}

func (e *Engine) skuName(skuID string, info *skus.SkuInfo) string {
	if info != nil && info.DisplayName != "" {
		return info.DisplayName
	}
	if m := e.snap.MappingForDirectorySku(skuID); m != nil && m.DisplayName != "" {
		return m.DisplayName
	}
	return skuID
}
