package domain

import "strings"

// Service identifies one of the platform services a SKU can include and
// usage telemetry is scored against.
type Service string

const (
	ServiceExchange           Service = "exchange"
	ServiceOneDrive           Service = "onedrive"
	ServiceSharePoint         Service = "sharepoint"
	ServiceTeams              Service = "teams"
	ServiceOfficeDesktop      Service = "office_desktop"
	ServiceAdvancedSecurity   Service = "advanced_security"
	ServiceAdvancedCompliance Service = "advanced_compliance"
	ServiceAudioConferencing  Service = "audio_conferencing"
	ServicePhoneSystem        Service = "phone_system"
)

// AllServices lists every known service in stable order.
var AllServices = []Service{
	ServiceExchange,
	ServiceOneDrive,
	ServiceSharePoint,
	ServiceTeams,
	ServiceOfficeDesktop,
	ServiceAdvancedSecurity,
	ServiceAdvancedCompliance,
	ServiceAudioConferencing,
	ServicePhoneSystem,
}

// Segment is a commerce price-list customer segment.
type Segment string

const (
	SegmentCommercial Segment = "Commercial"
	SegmentEducation  Segment = "Education"
	SegmentCharity    Segment = "Charity"
)

// NormalizeSegment maps raw catalog values onto the known set. Unknown or
// empty values fall back to Commercial; ok reports whether the input was
// recognized. Raw strings never reach the store.
func NormalizeSegment(raw string) (segment Segment, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "commercial", "corporate":
		return SegmentCommercial, true
	case "education", "academic":
		return SegmentEducation, true
	case "charity", "nonprofit":
		return SegmentCharity, true
	default:
		return SegmentCommercial, false
	}
}

// BillingPlan is a commerce billing period.
type BillingPlan string

const (
	BillingPlanMonthly BillingPlan = "Monthly"
	BillingPlanAnnual  BillingPlan = "Annual"
)

// NormalizeBillingPlan maps raw catalog values onto the known set, including
// the ISO-8601 term codes some price lists carry. Unknown or empty values
// fall back to Annual; ok reports whether the input was recognized.
func NormalizeBillingPlan(raw string) (plan BillingPlan, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "monthly", "p1m":
		return BillingPlanMonthly, true
	case "annual", "p1y":
		return BillingPlanAnnual, true
	default:
		return BillingPlanAnnual, false
	}
}
