package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/foodcart/internal/domain/catalog"
	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/integrity"
)

const instrumentationName = "github.com/xenking/foodcart/internal/domain/pricing"

// Request is a validated cart pricing request.
type Request struct {
	StoreID        string
	Lines          []CartLine
	DeliveryMethod DeliveryMethod
	DeliveryZoneID string
	CouponCode     string
	// UserID is empty for guests.
	UserID string
	// ZipCode is informational and does not affect pricing.
	ZipCode string
}

// CouponResolver prices a coupon. A nil Discount means the coupon does not
// apply.
type CouponResolver interface {
	Resolve(ctx context.Context, req coupon.Request) (*coupon.Discount, error)
}

// Params holds the collaborators of a Calculator.
type Params struct {
	Catalog  catalog.Reader
	Coupons  CouponResolver
	Policies PolicyResolver
	Delivery DeliveryResolver
	Engine   Engine
	Signer   *integrity.Signer
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithTracerProvider sets the tracer provider. Defaults to noop.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Calculator) { c.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider. Defaults to noop.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Calculator) { c.meter = mp.Meter(instrumentationName) }
}

// Calculator runs the full pricing pipeline: engine, coupon, taxes and fees,
// delivery fee and signature.
type Calculator struct {
	p Params

	tracer trace.Tracer
	meter  metric.Meter
	priced metric.Int64Counter
}

// NewCalculator creates a Calculator.
func NewCalculator(p Params, opts ...Option) (*Calculator, error) {
	if p.Catalog == nil || p.Coupons == nil || p.Policies == nil || p.Signer == nil {
		return nil, errors.New("catalog, coupons, policies and signer are required")
	}
	c := &Calculator{
		p:      p,
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, o := range opts {
		o(c)
	}

	var err error
	c.priced, err = c.meter.Int64Counter("foodcart.pricing.carts",
		metric.WithDescription("Carts priced, by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	return c, nil
}

// Calculate prices req and returns a signed summary with a zero tip.
func (c *Calculator) Calculate(ctx context.Context, req Request) (_ *CartSummary, rerr error) {
	ctx, span := c.tracer.Start(ctx, "pricing.Calculate",
		trace.WithAttributes(
			attribute.String("store.id", req.StoreID),
			attribute.Int("cart.lines", len(req.Lines)),
		),
	)
	defer func() {
		outcome := "ok"
		if rerr != nil {
			outcome = "rejected"
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		c.priced.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()

	if req.StoreID == "" {
		return nil, invalid("storeId", "required")
	}
	if !req.DeliveryMethod.Valid() {
		return nil, invalid("deliveryMethod", "must be pickup or delivery")
	}
	if len(req.Lines) == 0 {
		return nil, invalid("items", "at least one item is required")
	}

	store, items, err := c.load(ctx, req)
	if err != nil {
		return nil, err
	}

	lines, subtotal, err := c.p.Engine.Price(req.Lines, items)
	if err != nil {
		return nil, err
	}

	s := &CartSummary{
		StoreID:        store.ID,
		Lines:          lines,
		Subtotal:       subtotal,
		DeliveryMethod: req.DeliveryMethod,
		DeliveryZoneID: req.DeliveryZoneID,
		Tip:            decimal.Zero,
	}

	if req.CouponCode != "" {
		d, err := c.p.Coupons.Resolve(ctx, coupon.Request{
			Code:              req.CouponCode,
			Subtotal:          subtotal,
			StoreID:           store.ID,
			UserID:            req.UserID,
			CategorySubtotals: categorySubtotals(lines),
		})
		if err != nil {
			return nil, errors.Wrap(err, "resolve coupon")
		}
		if d == nil {
			return nil, coupon.ErrIneligible
		}
		s.Discounts = []coupon.Discount{*d}
	}

	s.Taxes, s.Fees = c.p.Policies.PolicyFor(store).Apply(s.DiscountedSubtotal())

	s.DeliveryFee, err = c.p.Delivery.Resolve(req.DeliveryMethod, req.DeliveryZoneID, store.Zones, subtotal)
	if err != nil {
		return nil, err
	}

	s.Total = s.ExpectedTotal()
	if s.Total.GreaterThan(MaxMoney) {
		return nil, invalid("items", "cart total exceeds %s", MaxMoney)
	}
	s.Signature = c.p.Signer.Sign(s.Totals())

	zctx.From(ctx).Debug("Cart priced",
		zap.String("store_id", store.ID),
		zap.Int("lines", len(lines)),
		zap.String("subtotal", s.Subtotal.StringFixed(2)),
		zap.String("total", s.Total.StringFixed(2)),
	)
	return s, nil
}

// load fetches the store and the referenced items concurrently.
func (c *Calculator) load(ctx context.Context, req Request) (*catalog.Store, map[string]catalog.MenuItem, error) {
	ids := make([]string, 0, len(req.Lines))
	seen := make(map[string]struct{}, len(req.Lines))
	for _, l := range req.Lines {
		if _, ok := seen[l.ItemID]; ok {
			continue
		}
		seen[l.ItemID] = struct{}{}
		ids = append(ids, l.ItemID)
	}

	var (
		store   *catalog.Store
		fetched []catalog.MenuItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		store, err = c.p.Catalog.GetStore(gctx, req.StoreID)
		if errors.Is(err, catalog.ErrStoreNotFound) {
			return &NotFoundError{Kind: "store", ID: req.StoreID}
		}
		if err != nil {
			return errors.Wrap(err, "get store")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		fetched, err = c.p.Catalog.GetMenuItems(gctx, req.StoreID, ids)
		if err != nil {
			return errors.Wrap(err, "get menu items")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if !store.Active {
		return nil, nil, &UnavailableError{Kind: "store", ID: store.ID}
	}

	items := make(map[string]catalog.MenuItem, len(fetched))
	for _, it := range fetched {
		items[it.ID] = it
	}
	return store, items, nil
}

func categorySubtotals(lines []PricedLine) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, l := range lines {
		out[l.CategoryID] = out[l.CategoryID].Add(l.LineTotal)
	}
	return out
}
