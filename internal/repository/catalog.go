package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcart/internal/domain/catalog"
	"github.com/xenking/foodcart/internal/domain/pricing"
)

const (
	getStoreSQL = `SELECT id, name, active, tax_rate, service_fee_rate
		FROM stores WHERE id = $1`

	listZonesSQL = `SELECT id, name, fee, minimum_order, radius_km, center_lat, center_lng
		FROM delivery_zones WHERE store_id = $1 ORDER BY id`

	menuItemColumns = `id, store_id, category_id, name, base_price, available, variants, addon_groups`

	getMenuItemsSQL = `SELECT ` + menuItemColumns + `
		FROM menu_items WHERE store_id = $1 AND id = ANY($2)`

	setItemAvailabilitySQL = `UPDATE menu_items SET available = $2 WHERE id = $1
		RETURNING ` + menuItemColumns

	upsertStoreSQL = `INSERT INTO stores (id, name, active, tax_rate, service_fee_rate)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active,
			tax_rate = EXCLUDED.tax_rate, service_fee_rate = EXCLUDED.service_fee_rate`

	upsertZoneSQL = `INSERT INTO delivery_zones (id, store_id, name, fee, minimum_order, radius_km, center_lat, center_lng)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (store_id, id) DO UPDATE SET name = EXCLUDED.name, fee = EXCLUDED.fee,
			minimum_order = EXCLUDED.minimum_order, radius_km = EXCLUDED.radius_km,
			center_lat = EXCLUDED.center_lat, center_lng = EXCLUDED.center_lng`

	upsertMenuItemSQL = `INSERT INTO menu_items (` + menuItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET store_id = EXCLUDED.store_id, category_id = EXCLUDED.category_id,
			name = EXCLUDED.name, base_price = EXCLUDED.base_price, available = EXCLUDED.available,
			variants = EXCLUDED.variants, addon_groups = EXCLUDED.addon_groups`
)

var (
	_ catalog.Reader = (*CatalogRepository)(nil)
	_ catalog.Writer = (*CatalogRepository)(nil)
)

// CatalogRepository reads stores and menus from PostgreSQL. Variants and
// addon groups live in JSONB columns of their item.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetStore returns a store with its delivery zones.
func (r *CatalogRepository) GetStore(ctx context.Context, id string) (*catalog.Store, error) {
	rows, err := r.pool.Query(ctx, getStoreSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting store %q: %w", id, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanStore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrStoreNotFound
		}
		return nil, fmt.Errorf("getting store %q: %w", id, err)
	}

	rows, err = r.pool.Query(ctx, listZonesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing zones of store %q: %w", id, err)
	}
	s.Zones, err = pgx.CollectRows(rows, scanZone)
	if err != nil {
		return nil, fmt.Errorf("listing zones of store %q: %w", id, err)
	}
	return &s, nil
}

// GetMenuItems returns the store's items matching ids.
func (r *CatalogRepository) GetMenuItems(ctx context.Context, storeID string, ids []string) ([]catalog.MenuItem, error) {
	rows, err := r.pool.Query(ctx, getMenuItemsSQL, storeID, ids)
	if err != nil {
		return nil, fmt.Errorf("getting menu items: %w", err)
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

// SetItemAvailability flips the availability flag of an item.
func (r *CatalogRepository) SetItemAvailability(ctx context.Context, itemID string, available bool) (*catalog.MenuItem, error) {
	rows, err := r.pool.Query(ctx, setItemAvailabilitySQL, itemID, available)
	if err != nil {
		return nil, fmt.Errorf("setting availability of %q: %w", itemID, err)
	}
	item, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrItemNotFound
		}
		return nil, fmt.Errorf("setting availability of %q: %w", itemID, err)
	}
	return &item, nil
}

// SaveStore upserts a store and its zones in one transaction.
func (r *CatalogRepository) SaveStore(ctx context.Context, s catalog.Store) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertStoreSQL, s.ID, s.Name, s.Active, s.TaxRate, s.ServiceFeeRate); err != nil {
			return fmt.Errorf("saving store %q: %w", s.ID, err)
		}
		for _, z := range s.Zones {
			if _, err := tx.Exec(ctx, upsertZoneSQL,
				z.ID, s.ID, z.Name, z.Fee, z.MinimumOrder, z.RadiusKM, z.Center.Lat, z.Center.Lng,
			); err != nil {
				return fmt.Errorf("saving zone %q: %w", z.ID, err)
			}
		}
		return nil
	})
}

// SaveMenuItem upserts a menu item.
func (r *CatalogRepository) SaveMenuItem(ctx context.Context, it catalog.MenuItem) error {
	_, err := r.pool.Exec(ctx, upsertMenuItemSQL,
		it.ID, it.StoreID, it.CategoryID, it.Name, it.BasePrice, it.Available,
		encodeVariants(it.Variants), encodeAddonGroups(it.AddonGroups),
	)
	if err != nil {
		return fmt.Errorf("saving menu item %q: %w", it.ID, err)
	}
	return nil
}

func scanStore(row pgx.CollectableRow) (catalog.Store, error) {
	var s catalog.Store
	err := row.Scan(&s.ID, &s.Name, &s.Active, &s.TaxRate, &s.ServiceFeeRate)
	return s, err
}

func scanZone(row pgx.CollectableRow) (catalog.DeliveryZone, error) {
	var z catalog.DeliveryZone
	err := row.Scan(&z.ID, &z.Name, &z.Fee, &z.MinimumOrder, &z.RadiusKM, &z.Center.Lat, &z.Center.Lng)
	return z, err
}

func scanMenuItem(row pgx.CollectableRow) (catalog.MenuItem, error) {
	var (
		it          catalog.MenuItem
		variants    []byte
		addonGroups []byte
	)
	if err := row.Scan(
		&it.ID, &it.StoreID, &it.CategoryID, &it.Name, &it.BasePrice, &it.Available,
		&variants, &addonGroups,
	); err != nil {
		return it, err
	}
	var err error
	if it.Variants, err = decodeVariants(variants); err != nil {
		return it, fmt.Errorf("decoding variants of %q: %w", it.ID, err)
	}
	if it.AddonGroups, err = decodeAddonGroups(addonGroups); err != nil {
		return it, fmt.Errorf("decoding addon groups of %q: %w", it.ID, err)
	}
	return it, nil
}

func encodeVariants(vs []catalog.Variant) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, v := range vs {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(v.ID)
		e.FieldStart("name")
		e.Str(v.Name)
		e.FieldStart("priceDelta")
		pricing.EncodeMoney(&e, v.PriceDelta)
		e.FieldStart("default")
		e.Bool(v.Default)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeVariants(b []byte) ([]catalog.Variant, error) {
	var out []catalog.Variant
	if len(b) == 0 {
		return out, nil
	}
	err := jx.DecodeBytes(b).Arr(func(d *jx.Decoder) error {
		var v catalog.Variant
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				v.ID, err = d.Str()
			case "name":
				v.Name, err = d.Str()
			case "priceDelta":
				v.PriceDelta, err = pricing.DecodeMoney(d)
			case "default":
				v.Default, err = d.Bool()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func encodeAddonGroups(gs []catalog.AddonGroup) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, g := range gs {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(g.ID)
		e.FieldStart("name")
		e.Str(g.Name)
		e.FieldStart("min")
		e.Int(g.Min)
		e.FieldStart("max")
		e.Int(g.Max)
		e.FieldStart("required")
		e.Bool(g.Required)
		e.FieldStart("addons")
		e.ArrStart()
		for _, a := range g.Addons {
			e.ObjStart()
			e.FieldStart("id")
			e.Str(a.ID)
			e.FieldStart("name")
			e.Str(a.Name)
			e.FieldStart("priceDelta")
			pricing.EncodeMoney(&e, a.PriceDelta)
			e.FieldStart("available")
			e.Bool(a.Available)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeAddonGroups(b []byte) ([]catalog.AddonGroup, error) {
	var out []catalog.AddonGroup
	if len(b) == 0 {
		return out, nil
	}
	err := jx.DecodeBytes(b).Arr(func(d *jx.Decoder) error {
		var g catalog.AddonGroup
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				g.ID, err = d.Str()
			case "name":
				g.Name, err = d.Str()
			case "min":
				g.Min, err = d.Int()
			case "max":
				g.Max, err = d.Int()
			case "required":
				g.Required, err = d.Bool()
			case "addons":
				err = d.Arr(func(d *jx.Decoder) error {
					a := catalog.Addon{Available: true}
					if err := d.Obj(func(d *jx.Decoder, key string) error {
						var err error
						switch key {
						case "id":
							a.ID, err = d.Str()
						case "name":
							a.Name, err = d.Str()
						case "priceDelta":
							a.PriceDelta, err = pricing.DecodeMoney(d)
						case "available":
							a.Available, err = d.Bool()
						default:
							err = d.Skip()
						}
						return err
					}); err != nil {
						return err
					}
					g.Addons = append(g.Addons, a)
					return nil
				})
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		out = append(out, g)
		return nil
	})
	return out, err
}

