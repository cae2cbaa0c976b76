// Package skus holds the SKU compatibility registry: the bidirectional
// mapping between directory SKU identifiers and commerce catalog entries,
// the included-services matrix, and the add-on compatibility rules with
// their validator.
//
// The registry is mostly-read reference data. Lookups go through an
// immutable snapshot that a reload swaps out atomically, so an analysis
// holding a snapshot sees one coherent catalog for its whole run.
package skus

import (
	"github.com/seatwise/seatwise/internal/domain"
)

// Mapping links a directory SKU identifier to its commerce catalog entry.
type Mapping struct {
	ID             string `json:"id"`
	DirectorySkuID string `json:"directory_sku_id"`
	PartNumber     string `json:"part_number"`
	ProductID      string `json:"product_id"`
	SkuID          string `json:"sku_id"`
	DisplayName    string `json:"display_name"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// SKU family values.
const (
	FamilyBusiness   = "business"
	FamilyEnterprise = "enterprise"
	FamilyFrontline  = "frontline"
	FamilyEducation  = "education"
)

// SkuInfo is one row of the included-services matrix.
type SkuInfo struct {
	ID               string           `json:"id"`
	SkuID            string           `json:"sku_id"`
	PartNumber       string           `json:"part_number"`
	DisplayName      string           `json:"display_name"`
	Family           string           `json:"family"`
	Services         []domain.Service `json:"services"`
	MailboxQuotaGB   int64            `json:"mailbox_quota_gb"`
	OneDriveQuotaGB  int64            `json:"onedrive_quota_gb"`
	IsAddon          bool             `json:"is_addon"`
	PrerequisiteSkus []string         `json:"prerequisite_skus"`
	CreatedAt        int64            `json:"-"`
	UpdatedAt        int64            `json:"-"`

	serviceSet map[domain.Service]bool
}

// Includes reports whether the SKU carries the service.
func (s *SkuInfo) Includes(service domain.Service) bool {
	return s.serviceSet[service]
}

// Covers reports whether the SKU carries every required service.
func (s *SkuInfo) Covers(required []domain.Service) bool {
	for _, service := range required {
		if !s.serviceSet[service] {
			return false
		}
	}
	return true
}

func (s *SkuInfo) indexServices() {
	s.serviceSet = make(map[domain.Service]bool, len(s.Services))
	for _, service := range s.Services {
		s.serviceSet[service] = true
	}
}

// AddonRule relates an add-on SKU to a base SKU it may attach to.
// MaxQuantity 0 means unbounded; empty window edges mean open-ended.
type AddonRule struct {
	ID            string `json:"id"`
	AddonSku      string `json:"addon_sku"`
	BaseSku       string `json:"base_sku"`
	Category      string `json:"category"`
	MinQuantity   int64  `json:"min_quantity"`
	MaxQuantity   int64  `json:"max_quantity"`
	Multiplier    int64  `json:"quantity_multiplier"`
	EffectiveDate string `json:"effective_date,omitempty"`
	ExpiryDate    string `json:"expiry_date,omitempty"`
	IsActive      bool   `json:"is_active"`
	CreatedAt     int64  `json:"-"`
	UpdatedAt     int64  `json:"-"`
}

// InWindow reports whether the rule is available on the given ISO date.
func (r *AddonRule) InWindow(date string) bool {
	if r.EffectiveDate != "" && date < r.EffectiveDate {
		return false
	}
	if r.ExpiryDate != "" && date > r.ExpiryDate {
		return false
	}
	return true
}

// Validation check names, in report order.
const (
	CheckCompatibility = "compatibility"
	CheckQuantity      = "quantity"
	CheckWindow        = "effective_window"
	CheckPrerequisites = "prerequisites"
	CheckConflicts     = "conflicts"
)

// ValidationRequest asks whether an add-on may attach to a base SKU.
// ExistingAddons lists add-on SKUs already attached to the same base and
// feeds the prerequisite and conflict checks. An empty date means today.
type ValidationRequest struct {
	BaseSku        string   `json:"base_sku"`
	AddonSku       string   `json:"addon_sku"`
	Quantity       int64    `json:"quantity"`
	Date           string   `json:"date,omitempty"`
	ExistingAddons []string `json:"existing_addons,omitempty"`
}

// CheckResult is one validation check's outcome.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ValidationReport enumerates every check for one (base, add-on) pair.
// All checks run even after one fails.
type ValidationReport struct {
	BaseSku  string        `json:"base_sku"`
	AddonSku string        `json:"addon_sku"`
	Quantity int64         `json:"quantity"`
	Date     string        `json:"date"`
	Valid    bool          `json:"valid"`
	Checks   []CheckResult `json:"checks"`
}

func (r *ValidationReport) add(name string, passed bool, detail string) {
	r.Checks = append(r.Checks, CheckResult{Name: name, Passed: passed, Detail: detail})
	if !passed {
		r.Valid = false
	}
}
