package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcart/internal/domain/order"
	"github.com/xenking/foodcart/internal/domain/pricing"
)

const (
	createOrderSQL = `INSERT INTO orders (id, number, user_id, guest_name, guest_email, guest_phone,
		store_id, pricing, total, delivery_method, delivery_address, delivery_zone_id, status,
		handler_id, payment, estimated_ready_at, actual_ready_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	insertStatusUpdateSQL = `INSERT INTO order_status_updates (order_id, seq, status, note, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderByNumberSQL = `SELECT id, number, COALESCE(user_id, ''), guest_name, guest_email, guest_phone,
		store_id, pricing, delivery_method, delivery_address, delivery_zone_id, status, handler_id,
		payment, estimated_ready_at, actual_ready_at, created_at, updated_at
		FROM orders WHERE number = $1`

	listStatusUpdatesSQL = `SELECT status, note, actor, created_at
		FROM order_status_updates WHERE order_id = $1 ORDER BY seq`

	// Only succeeds while the stored status is still the one the caller saw.
	updateStatusSQL = `UPDATE orders SET status = $3, actual_ready_at = $4, updated_at = $5
		WHERE number = $1 AND status = $2
		RETURNING id`

	updateAssignmentSQL = `UPDATE orders SET handler_id = $2, estimated_ready_at = $3, updated_at = now()
		WHERE number = $1`

	nextOrderNumberSQL = `SELECT nextval('order_number_seq')`
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ order.Sequence   = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL. The
// frozen pricing, including the lines, is kept as a JSONB document.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order together with its initial timeline.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	var e jx.Encoder
	o.Pricing.Encode(&e)

	var guestName, guestEmail, guestPhone *string
	if o.Guest != nil {
		guestName, guestEmail, guestPhone = &o.Guest.Name, &o.Guest.Email, &o.Guest.Phone
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.Number, nullString(o.UserID), guestName, guestEmail, guestPhone,
			o.StoreID, e.Bytes(), o.Pricing.Total, string(o.DeliveryMethod), o.DeliveryAddress, o.DeliveryZoneID,
			string(o.Status), o.HandlerID, nullRaw(o.Payment), o.EstimatedReadyAt, o.ActualReadyAt,
			o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating order %q: %w", o.Number, err)
		}
		for i, u := range o.Timeline {
			if _, err := tx.Exec(ctx, insertStatusUpdateSQL, o.ID, i, string(u.Status), u.Note, u.Actor, u.At); err != nil {
				return fmt.Errorf("creating timeline of %q: %w", o.Number, err)
			}
		}
		return nil
	})
}

// GetByNumber returns the order with its full timeline.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByNumberSQL, number)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}

	rows, err = r.pool.Query(ctx, listStatusUpdatesSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("getting timeline of %q: %w", number, err)
	}
	o.Timeline, err = pgx.CollectRows(rows, scanStatusUpdate)
	if err != nil {
		return nil, fmt.Errorf("getting timeline of %q: %w", number, err)
	}
	return o, nil
}

// AppendStatus implements order.Repository.
func (r *OrderRepository) AppendStatus(ctx context.Context, from order.Status, next *order.Order) error {
	last := next.Last()
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, updateStatusSQL,
			next.Number, string(from), string(next.Status), next.ActualReadyAt, next.UpdatedAt,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("updating status of %q: %w", next.Number, err)
		}

		// A concurrent writer that kept the same status already took this seq.
		seq := len(next.Timeline) - 1
		if _, err := tx.Exec(ctx, insertStatusUpdateSQL, id, seq, string(last.Status), last.Note, last.Actor, last.At); err != nil {
			if isUniqueViolation(err) {
				return order.ErrConflict
			}
			return fmt.Errorf("appending timeline of %q: %w", next.Number, err)
		}
		return nil
	})
}

// UpdateAssignment implements order.Repository.
func (r *OrderRepository) UpdateAssignment(ctx context.Context, number string, a order.Assignment) (*order.Order, error) {
	tag, err := r.pool.Exec(ctx, updateAssignmentSQL, number, a.HandlerID, a.EstimatedReadyAt)
	if err != nil {
		return nil, fmt.Errorf("assigning order %q: %w", number, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, order.ErrNotFound
	}
	return r.GetByNumber(ctx, number)
}

// NextOrderNumber draws from the order_number_seq sequence.
func (r *OrderRepository) NextOrderNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, nextOrderNumberSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("drawing order number: %w", err)
	}
	return n, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o                                 order.Order
		guestName, guestEmail, guestPhone *string
		pricingDoc, payment               []byte
		method, status                    string
	)
	if err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &guestName, &guestEmail, &guestPhone,
		&o.StoreID, &pricingDoc, &method, &o.DeliveryAddress, &o.DeliveryZoneID, &status, &o.HandlerID,
		&payment, &o.EstimatedReadyAt, &o.ActualReadyAt, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := o.Pricing.Decode(jx.DecodeBytes(pricingDoc)); err != nil {
		return nil, fmt.Errorf("decoding pricing of %q: %w", o.Number, err)
	}
	o.Items = o.Pricing.Lines
	o.DeliveryMethod = pricing.DeliveryMethod(method)
	o.Status = order.Status(status)
	if len(payment) > 0 {
		o.Payment = jx.Raw(payment)
	}
	if guestName != nil {
		o.Guest = &order.GuestContact{
			Name:  *guestName,
			Email: deref(guestEmail),
			Phone: deref(guestPhone),
		}
	}
	return &o, nil
}

func scanStatusUpdate(row pgx.CollectableRow) (order.StatusUpdate, error) {
	var (
		u      order.StatusUpdate
		status string
		at     time.Time
	)
	err := row.Scan(&status, &u.Note, &u.Actor, &at)
	u.Status = order.Status(status)
	u.At = at.UTC()
	return u, err
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullRaw(b jx.Raw) []byte {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
