package skus

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/seatwise/seatwise/internal/domain"
)

//go:embed seed.yaml
var seedYAML []byte

type seedMapping struct {
	DirectorySkuID string `yaml:"directory_sku_id"`
	PartNumber     string `yaml:"part_number"`
	ProductID      string `yaml:"product_id"`
	SkuID          string `yaml:"sku_id"`
	DisplayName    string `yaml:"display_name"`
}

type seedSku struct {
	SkuID            string   `yaml:"sku_id"`
	PartNumber       string   `yaml:"part_number"`
	DisplayName      string   `yaml:"display_name"`
	Family           string   `yaml:"family"`
	Services         []string `yaml:"services"`
	MailboxQuotaGB   int64    `yaml:"mailbox_quota_gb"`
	OneDriveQuotaGB  int64    `yaml:"onedrive_quota_gb"`
	IsAddon          bool     `yaml:"is_addon"`
	PrerequisiteSkus []string `yaml:"prerequisite_skus"`
}

type seedRule struct {
	AddonSku      string `yaml:"addon_sku"`
	BaseSku       string `yaml:"base_sku"`
	Category      string `yaml:"category"`
	MinQuantity   int64  `yaml:"min_quantity"`
	MaxQuantity   int64  `yaml:"max_quantity"`
	Multiplier    int64  `yaml:"quantity_multiplier"`
	EffectiveDate string `yaml:"effective_date"`
	ExpiryDate    string `yaml:"expiry_date"`
}

type seedCatalog struct {
	Mappings []seedMapping `yaml:"mappings"`
	Matrix   []seedSku     `yaml:"matrix"`
	Addons   []seedRule    `yaml:"addons"`
}

var knownServices = func() map[string]bool {
	m := make(map[string]bool, len(domain.AllServices))
	for _, s := range domain.AllServices {
		m[string(s)] = true
	}
	return m
}()

// loadSeedCatalog parses and validates the embedded catalog. Service names
// must belong to the canonical set; a typo here should fail the boot, not
// silently drop coverage.
func loadSeedCatalog() (*seedCatalog, error) {
	var catalog seedCatalog
	if err := yaml.Unmarshal(seedYAML, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse seed catalog: %w", err)
	}

	matrixSkus := make(map[string]bool, len(catalog.Matrix))
	for _, s := range catalog.Matrix {
		for _, svc := range s.Services {
			if !knownServices[svc] {
				return nil, fmt.Errorf("seed catalog: sku %s lists unknown service %q", s.PartNumber, svc)
			}
		}
		matrixSkus[s.SkuID] = true
	}
	for _, rule := range catalog.Addons {
		if !matrixSkus[rule.AddonSku] || !matrixSkus[rule.BaseSku] {
			return nil, fmt.Errorf("seed catalog: addon rule %s on %s references a sku missing from the matrix",
				rule.AddonSku, rule.BaseSku)
		}
	}
	return &catalog, nil
}

func (c *seedCatalog) mappings() []*Mapping {
	out := make([]*Mapping, len(c.Mappings))
	for i, m := range c.Mappings {
		out[i] = &Mapping{
			DirectorySkuID: m.DirectorySkuID,
			PartNumber:     m.PartNumber,
			ProductID:      m.ProductID,
			SkuID:          m.SkuID,
			DisplayName:    m.DisplayName,
		}
	}
	return out
}

func (c *seedCatalog) matrix() []*SkuInfo {
	out := make([]*SkuInfo, len(c.Matrix))
	for i, s := range c.Matrix {
		info := &SkuInfo{
			SkuID:            s.SkuID,
			PartNumber:       s.PartNumber,
			DisplayName:      s.DisplayName,
			Family:           s.Family,
			MailboxQuotaGB:   s.MailboxQuotaGB,
			OneDriveQuotaGB:  s.OneDriveQuotaGB,
			IsAddon:          s.IsAddon,
			PrerequisiteSkus: s.PrerequisiteSkus,
		}
		for _, svc := range s.Services {
			info.Services = append(info.Services, domain.Service(svc))
		}
		out[i] = info
	}
	return out
}

func (c *seedCatalog) rules() []*AddonRule {
	out := make([]*AddonRule, len(c.Addons))
	for i, r := range c.Addons {
		rule := &AddonRule{
			AddonSku:      r.AddonSku,
			BaseSku:       r.BaseSku,
			Category:      r.Category,
			MinQuantity:   r.MinQuantity,
			MaxQuantity:   r.MaxQuantity,
			Multiplier:    r.Multiplier,
			EffectiveDate: r.EffectiveDate,
			ExpiryDate:    r.ExpiryDate,
			IsActive:      true,
		}
		if rule.MinQuantity == 0 {
			rule.MinQuantity = 1
		}
		if rule.Multiplier == 0 {
			rule.Multiplier = 1
		}
		out[i] = rule
	}
	return out
}
