package skus

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/utils"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so the seed insert can
// run inside one transaction.
type Querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

const mappingColumns = `id, directory_sku_id, part_number, product_id, sku_id, display_name,
created_at, updated_at`

const matrixColumns = `id, sku_id, part_number, display_name, family, services,
mailbox_quota_gb, onedrive_quota_gb, is_addon, prerequisite_skus, created_at, updated_at`

const ruleColumns = `id, addon_sku, base_sku, category, min_quantity, max_quantity,
quantity_multiplier, effective_date, expiry_date, is_active, created_at, updated_at`

// Repository persists the registry tables in the commerce store.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a SKU registry repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "skus").Logger(),
	}
}

// CountMappings returns the number of stored SKU mappings.
func (r *Repository) CountMappings() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM sku_mappings").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sku mappings: %w", err)
	}
	return count, nil
}

// InsertMapping stores one directory-to-commerce SKU correspondence.
func (r *Repository) InsertMapping(q Querier, m *Mapping) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := q.Exec(`
		INSERT INTO sku_mappings (id, directory_sku_id, part_number, product_id, sku_id,
			display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.DirectorySkuID, m.PartNumber, m.ProductID, m.SkuID,
		m.DisplayName, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sku mapping %s: %w", m.DirectorySkuID, err)
	}
	return nil
}

// InsertSkuInfo stores one service-matrix row. An unset family lands on the
// column default so the row passes the schema's family check.
func (r *Repository) InsertSkuInfo(q Querier, s *SkuInfo) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Family == "" {
		s.Family = FamilyEnterprise
	}
	now := time.Now().Unix()
	s.CreatedAt = now
	s.UpdatedAt = now

	services := make([]string, len(s.Services))
	for i, svc := range s.Services {
		services[i] = string(svc)
	}

	_, err := q.Exec(`
		INSERT INTO sku_service_matrix (id, sku_id, part_number, display_name, family,
			services, mailbox_quota_gb, onedrive_quota_gb, is_addon, prerequisite_skus,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.SkuID, s.PartNumber, s.DisplayName, s.Family,
		utils.JoinCSV(services), s.MailboxQuotaGB, s.OneDriveQuotaGB, boolToInt(s.IsAddon),
		utils.JoinCSV(s.PrerequisiteSkus), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert service matrix row %s: %w", s.SkuID, err)
	}
	return nil
}

// InsertAddonRule stores one add-on compatibility rule.
func (r *Repository) InsertAddonRule(q Querier, rule *AddonRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err := q.Exec(`
		INSERT INTO addon_compatibility (id, addon_sku, base_sku, category, min_quantity,
			max_quantity, quantity_multiplier, effective_date, expiry_date, is_active,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.AddonSku, rule.BaseSku, rule.Category, rule.MinQuantity,
		rule.MaxQuantity, rule.Multiplier, nullIfEmpty(rule.EffectiveDate),
		nullIfEmpty(rule.ExpiryDate), boolToInt(rule.IsActive),
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert addon rule %s on %s: %w", rule.AddonSku, rule.BaseSku, err)
	}
	return nil
}

// ListMappings returns every SKU mapping ordered by part number.
func (r *Repository) ListMappings() ([]Mapping, error) {
	rows, err := r.db.Query("SELECT " + mappingColumns + " FROM sku_mappings ORDER BY part_number")
	if err != nil {
		return nil, fmt.Errorf("failed to query sku mappings: %w", err)
	}
	defer rows.Close()

	var mappings []Mapping
	for rows.Next() {
		var m Mapping
		err := rows.Scan(&m.ID, &m.DirectorySkuID, &m.PartNumber, &m.ProductID, &m.SkuID,
			&m.DisplayName, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sku mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// ListMatrix returns every service-matrix row ordered by SKU id.
func (r *Repository) ListMatrix() ([]SkuInfo, error) {
	rows, err := r.db.Query("SELECT " + matrixColumns + " FROM sku_service_matrix ORDER BY sku_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query service matrix: %w", err)
	}
	defer rows.Close()

	var infos []SkuInfo
	for rows.Next() {
		var s SkuInfo
		var services, prereqs string
		var isAddon int
		err := rows.Scan(&s.ID, &s.SkuID, &s.PartNumber, &s.DisplayName, &s.Family,
			&services, &s.MailboxQuotaGB, &s.OneDriveQuotaGB, &isAddon, &prereqs,
			&s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service matrix row: %w", err)
		}

		for _, svc := range utils.ParseCSV(services) {
			s.Services = append(s.Services, domain.Service(svc))
		}
		s.PrerequisiteSkus = utils.ParseCSV(prereqs)
		s.IsAddon = isAddon != 0
		s.indexServices()
		infos = append(infos, s)
	}
	return infos, rows.Err()
}

// ListAddonRules returns every compatibility rule ordered by add-on then base.
func (r *Repository) ListAddonRules() ([]AddonRule, error) {
	rows, err := r.db.Query("SELECT " + ruleColumns + " FROM addon_compatibility ORDER BY addon_sku, base_sku")
	if err != nil {
		return nil, fmt.Errorf("failed to query addon rules: %w", err)
	}
	defer rows.Close()

	var rules []AddonRule
	for rows.Next() {
		var rule AddonRule
		var effective, expiry sql.NullString
		var active int
		err := rows.Scan(&rule.ID, &rule.AddonSku, &rule.BaseSku, &rule.Category,
			&rule.MinQuantity, &rule.MaxQuantity, &rule.Multiplier, &effective, &expiry,
			&active, &rule.CreatedAt, &rule.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan addon rule: %w", err)
		}

		rule.EffectiveDate = effective.String
		rule.ExpiryDate = expiry.String
		rule.IsActive = active != 0
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
