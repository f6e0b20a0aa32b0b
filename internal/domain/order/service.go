package order

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/integrity"
	"github.com/xenking/foodcart/internal/domain/pricing"
)

const instrumentationName = "github.com/xenking/foodcart/internal/domain/order"

// Pricer computes signed cart summaries.
type Pricer interface {
	Calculate(ctx context.Context, req pricing.Request) (*pricing.CartSummary, error)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Cart            pricing.Request
	DeliveryAddress string
	Tip             decimal.Decimal
	// Guest is required when Cart.UserID is empty.
	Guest *GuestContact
	// Quote is the summary the client was shown. When present its signature
	// and totals must match current pricing.
	Quote   *pricing.CartSummary
	Payment jx.Raw
	Note    string
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider. Defaults to noop.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider. Defaults to noop.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// Service runs checkout and drives orders through their lifecycle.
type Service struct {
	pricer    Pricer
	signer    *integrity.Signer
	coupons   coupon.Redeemer
	orders    Repository
	seq       Sequence
	publisher Publisher
	lifecycle *Lifecycle
	newID     func() string

	tracer      trace.Tracer
	meter       metric.Meter
	created     metric.Int64Counter
	transitions metric.Int64Counter
	rejected    metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	pricer Pricer,
	signer *integrity.Signer,
	coupons coupon.Redeemer,
	orders Repository,
	seq Sequence,
	publisher Publisher,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		pricer:    pricer,
		signer:    signer,
		coupons:   coupons,
		orders:    orders,
		seq:       seq,
		publisher: publisher,
		lifecycle: NewLifecycle(),
		newID:     func() string { return uuid.New().String() },
		tracer:    tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:     metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.created, err = s.meter.Int64Counter("foodcart.orders.created"); err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	if s.transitions, err = s.meter.Int64Counter("foodcart.orders.transitions",
		metric.WithDescription("Order status changes, by target status"),
	); err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	if s.rejected, err = s.meter.Int64Counter("foodcart.coupons.redemptions_rejected"); err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	return s, nil
}

// PlaceOrder runs the checkout pipeline: validate, price, verify the quote,
// apply the tip, redeem the coupon, assign a number, persist and announce.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.String("store.id", req.Cart.StoreID)),
	)
	defer endSpan(span, &rerr)

	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	summary, err := s.pricer.Calculate(ctx, req.Cart)
	if err != nil {
		return nil, errors.Wrap(err, "price cart")
	}

	if req.Quote != nil {
		if err := s.checkQuote(req.Quote, summary); err != nil {
			return nil, err
		}
	}

	summary, err = summary.WithTip(req.Tip)
	if err != nil {
		return nil, err
	}

	redeemed, err := s.redeem(ctx, summary.Discounts, req.Cart.UserID)
	if err != nil {
		return nil, err
	}
	// Every failure below this point must give the coupons back.
	defer func() {
		if rerr != nil {
			s.release(ctx, redeemed, req.Cart.UserID)
		}
	}()

	n, err := s.seq.NextOrderNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "next order number")
	}

	actor := req.Cart.UserID
	if actor == "" {
		actor = "guest"
	}
	o := s.lifecycle.Begin(&Order{
		ID:              s.newID(),
		Number:          FormatNumber(n),
		UserID:          req.Cart.UserID,
		Guest:           req.Guest,
		StoreID:         summary.StoreID,
		Items:           summary.Lines,
		Pricing:         *summary,
		DeliveryMethod:  summary.DeliveryMethod,
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		DeliveryZoneID:  summary.DeliveryZoneID,
		Payment:         req.Payment,
	}, actor, req.Note)

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_number", o.Number),
		zap.String("store_id", o.StoreID),
		zap.String("total", o.Pricing.Total.StringFixed(2)),
	)
	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("delivery_method", string(o.DeliveryMethod))))
	s.publisher.Publish(ctx, StoreChannel(o.StoreID), EventNewOrder, orderPayload(o))

	return o, nil
}

// FormatNumber renders a sequence value as a customer facing order number.
func FormatNumber(n int64) string {
	return fmt.Sprintf("ORD-%06d", n)
}

func (s *Service) checkQuote(quote, fresh *pricing.CartSummary) error {
	if err := quote.Verify(s.signer); err != nil {
		return errors.Wrap(err, "verify quote")
	}
	if !bytes.Equal(integrity.Canonical(quote.Totals()), integrity.Canonical(fresh.Totals())) {
		return ErrQuoteStale
	}
	return nil
}

func (s *Service) redeem(ctx context.Context, discounts []coupon.Discount, userID string) ([]string, error) {
	var redeemed []string
	for _, d := range discounts {
		if err := s.coupons.Redeem(ctx, d.Code, userID); err != nil {
			s.release(ctx, redeemed, userID)
			if errors.Is(err, coupon.ErrExhausted) {
				s.rejected.Add(ctx, 1)
				zctx.From(ctx).Debug("Coupon redemption rejected", zap.String("code", d.Code))
				return nil, coupon.ErrIneligible
			}
			return nil, errors.Wrap(err, "redeem coupon")
		}
		redeemed = append(redeemed, d.Code)
	}
	return redeemed, nil
}

func (s *Service) release(ctx context.Context, redeemed []string, userID string) {
	for _, code := range redeemed {
		if err := s.coupons.Release(ctx, code, userID); err != nil {
			zctx.From(ctx).Error("Release coupon",
				zap.String("code", code),
				zap.Error(err),
			)
		}
	}
}

// Get returns the order with the given number.
func (s *Service) Get(ctx context.Context, number string) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// UpdateStatus applies a lifecycle transition. override permits re-entering
// or skipping non-terminal states and is meant for administrators.
func (s *Service) UpdateStatus(ctx context.Context, number string, to Status, actor, note string, override bool) (*Order, error) {
	step := s.lifecycle.Transition
	if override {
		step = s.lifecycle.Override
	}
	return s.change(ctx, "order.UpdateStatus", number, func(o *Order) (*Order, error) {
		return step(o, to, actor, note)
	})
}

// Refund moves a delivered or picked up order to refunded.
func (s *Service) Refund(ctx context.Context, number, actor, note string) (*Order, error) {
	return s.change(ctx, "order.Refund", number, func(o *Order) (*Order, error) {
		return s.lifecycle.Refund(o, actor, note)
	})
}

func (s *Service) change(ctx context.Context, spanName, number string, step func(*Order) (*Order, error)) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("order.number", number)))
	defer endSpan(span, &rerr)

	current, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	next, err := step(current)
	if err != nil {
		return nil, err
	}
	if err := s.orders.AppendStatus(ctx, current.Status, next); err != nil {
		return nil, errors.Wrap(err, "append status")
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_number", number),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next.Status)),
		zap.String("actor", next.Last().Actor),
	)
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(next.Status))))

	payload := statusPayload(next)
	s.publisher.Publish(ctx, OrderChannel(next.Number), EventStatusUpdate, payload)
	s.publisher.Publish(ctx, StoreChannel(next.StoreID), EventStatusUpdate, payload)
	return next, nil
}

// Assign sets the handling staff member and estimated ready time.
func (s *Service) Assign(ctx context.Context, number string, a Assignment) (*Order, error) {
	if a.EstimatedReadyAt != nil {
		t := a.EstimatedReadyAt.UTC()
		a.EstimatedReadyAt = &t
	}
	o, err := s.orders.UpdateAssignment(ctx, number, a)
	if err != nil {
		return nil, errors.Wrap(err, "update assignment")
	}
	return o, nil
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	if req.Cart.UserID == "" {
		if req.Guest == nil {
			return &pricing.ValidationError{Field: "guest", Reason: "required without a signed in user"}
		}
		if strings.TrimSpace(req.Guest.Name) == "" {
			return &pricing.ValidationError{Field: "guest.name", Reason: "required"}
		}
		if req.Guest.Email == "" && req.Guest.Phone == "" {
			return &pricing.ValidationError{Field: "guest", Reason: "email or phone is required"}
		}
		if req.Guest.Email != "" {
			if _, err := mail.ParseAddress(req.Guest.Email); err != nil {
				return &pricing.ValidationError{Field: "guest.email", Reason: "malformed address"}
			}
		}
	}
	if req.Cart.DeliveryMethod == pricing.DeliveryDelivery && strings.TrimSpace(req.DeliveryAddress) == "" {
		return &pricing.ValidationError{Field: "deliveryAddress", Reason: "required for delivery"}
	}
	if req.Tip.IsNegative() {
		return &pricing.ValidationError{Field: "tip", Reason: "must not be negative"}
	}
	if err := pricing.CheckMoney(req.Tip); err != nil {
		return &pricing.ValidationError{Field: "tip", Reason: "must be at most " + pricing.MaxMoney.String() + " with two decimal places"}
	}
	return nil
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}

