package skus

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/database"
)

// Snapshot is an immutable view of the registry. Callers that need a stable
// catalog across many lookups (an analysis run, a bulk validation) hold one
// snapshot; a concurrent reload never mutates it.
type Snapshot struct {
	LoadedAt time.Time

	byDirectorySku map[string]*Mapping
	byCommerce     map[string]*Mapping
	matrix         map[string]*SkuInfo
	baseSkus       []*SkuInfo
	rules          map[string][]*AddonRule
}

// MappingForDirectorySku resolves a directory SKU to its commerce catalog
// entry, nil when unmapped.
func (s *Snapshot) MappingForDirectorySku(directorySkuID string) *Mapping {
	return s.byDirectorySku[directorySkuID]
}

// MappingForCommerce resolves a commerce (product, SKU) pair back to the
// directory SKU, nil when unmapped.
func (s *Snapshot) MappingForCommerce(productID, skuID string) *Mapping {
	return s.byCommerce[productID+"|"+skuID]
}

// Sku returns the service-matrix entry for a directory SKU, nil when
// unknown.
func (s *Snapshot) Sku(skuID string) *SkuInfo {
	return s.matrix[skuID]
}

// BaseSkus returns the non-add-on SKUs in lexicographic SKU id order. The
// stable order makes downstream tie-breaking deterministic.
func (s *Snapshot) BaseSkus() []*SkuInfo {
	return s.baseSkus
}

// RulesFor returns the active compatibility rules for an (add-on, base)
// pair.
func (s *Snapshot) RulesFor(addonSku, baseSku string) []*AddonRule {
	return s.rules[addonSku+"|"+baseSku]
}

// Size returns (mappings, matrix rows, rules) for the status endpoint.
func (s *Snapshot) Size() (int, int, int) {
	rules := 0
	for _, r := range s.rules {
		rules += len(r)
	}
	return len(s.byDirectorySku), len(s.matrix), rules
}

// Registry owns the active snapshot and its refresh path. The store is the
// source of truth; the embedded seed catalog only fills an empty store on
// first boot.
type Registry struct {
	repo *Repository
	db   *database.DB
	log  zerolog.Logger

	mu   sync.RWMutex
	snap *Snapshot
}

// NewRegistry creates a SKU registry over the commerce store.
func NewRegistry(repo *Repository, db *database.DB, log zerolog.Logger) *Registry {
	return &Registry{
		repo: repo,
		db:   db,
		log:  log.With().Str("service", "sku_registry").Logger(),
		snap: &Snapshot{
			byDirectorySku: map[string]*Mapping{},
			byCommerce:     map[string]*Mapping{},
			matrix:         map[string]*SkuInfo{},
			rules:          map[string][]*AddonRule{},
		},
	}
}

// EnsureSeeded loads the embedded catalog into an empty store, then builds
// the first snapshot. A store that already has mappings is left alone: the
// admin surface may have changed it since first boot.
func (r *Registry) EnsureSeeded(ctx context.Context) error {
	count, err := r.repo.CountMappings()
	if err != nil {
		return err
	}

	if count == 0 {
		catalog, err := loadSeedCatalog()
		if err != nil {
			return err
		}

		err = database.WithTransactionContext(ctx, r.db.Conn(), func(tx *sql.Tx) error {
			for _, m := range catalog.mappings() {
				if err := r.repo.InsertMapping(tx, m); err != nil {
					return err
				}
			}
			for _, s := range catalog.matrix() {
				if err := r.repo.InsertSkuInfo(tx, s); err != nil {
					return err
				}
			}
			for _, rule := range catalog.rules() {
				if err := r.repo.InsertAddonRule(tx, rule); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to seed sku catalog: %w", err)
		}

		r.log.Info().
			Int("mappings", len(catalog.Mappings)).
			Int("matrix", len(catalog.Matrix)).
			Int("rules", len(catalog.Addons)).
			Msg("Seeded SKU catalog")
	}

	return r.Reload()
}

// Reload reads the registry tables and swaps in a fresh snapshot. Snapshots
// already handed out keep their view.
func (r *Registry) Reload() error {
	mappings, err := r.repo.ListMappings()
	if err != nil {
		return err
	}
	matrix, err := r.repo.ListMatrix()
	if err != nil {
		return err
	}
	rules, err := r.repo.ListAddonRules()
	if err != nil {
		return err
	}

	snap := &Snapshot{
		LoadedAt:       time.Now(),
		byDirectorySku: make(map[string]*Mapping, len(mappings)),
		byCommerce:     make(map[string]*Mapping, len(mappings)),
		matrix:         make(map[string]*SkuInfo, len(matrix)),
		rules:          make(map[string][]*AddonRule),
	}

	for i := range mappings {
		m := &mappings[i]
		snap.byDirectorySku[m.DirectorySkuID] = m
		snap.byCommerce[m.ProductID+"|"+m.SkuID] = m
	}
	for i := range matrix {
		info := &matrix[i]
		snap.matrix[info.SkuID] = info
		if !info.IsAddon {
			snap.baseSkus = append(snap.baseSkus, info)
		}
	}
	sort.Slice(snap.baseSkus, func(i, j int) bool {
		return snap.baseSkus[i].SkuID < snap.baseSkus[j].SkuID
	})
	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive {
			continue
		}
		key := rule.AddonSku + "|" + rule.BaseSku
		snap.rules[key] = append(snap.rules[key], rule)
	}

	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()

	r.log.Debug().
		Int("mappings", len(mappings)).
		Int("matrix", len(matrix)).
		Int("rules", len(rules)).
		Msg("Registry snapshot reloaded")
	return nil
}

// Snapshot returns the current registry view.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}
