package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/matbakhapp/matbakh/internal/catalog/domain"
	"github.com/matbakhapp/matbakh/internal/events"
	kitchendomain "github.com/matbakhapp/matbakh/internal/kitchen/domain"
	orderdomain "github.com/matbakhapp/matbakh/internal/order/domain"
	"github.com/matbakhapp/matbakh/internal/preptime"
	stockdomain "github.com/matbakhapp/matbakh/internal/stock/domain"
	"github.com/matbakhapp/matbakh/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// cartEntry pairs a cart line with its resolved offer.
type cartEntry struct {
	line  orderdomain.CartLine
	offer *catalogdomain.Offer
}

// kitchenGroup is one kitchen's slice of the cart, in cart order.
type kitchenGroup struct {
	kitchenID snowflake.ID
	entries   []cartEntry
}

// Checkout decomposes the cart into one sub-order per kitchen, snapshotting
// prices, products and timing rules, and decrementing stock atomically. The
// whole decomposition is a single transaction: any failed line rolls back
// every decrement already made.
func (s *Service) Checkout(ctx context.Context, req orderdomain.CheckoutRequest) (*orderdomain.Order, error) {
	order, err := s.checkout(ctx, req)
	if err != nil {
		s.metrics.CheckoutFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	s.metrics.OrdersCreated.Inc()

	subIDs := make([]snowflake.ID, 0, len(order.SubOrders))
	for _, sub := range order.SubOrders {
		subIDs = append(subIDs, sub.ID)
	}
	s.emitter.Emit(ctx, events.OrderCreated{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		SubOrderIDs: subIDs,
		TotalAmount: order.TotalAmount,
	})

	return order, nil
}

func (s *Service) checkout(ctx context.Context, req orderdomain.CheckoutRequest) (*orderdomain.Order, error) {
	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	groups, err := s.resolveCart(ctx, req)
	if err != nil {
		return nil, err
	}

	order, err := s.buildOrder(ctx, req, groups)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolver := s.stock.WithTrx(tx)
		for si, sub := range order.SubOrders {
			for li, line := range sub.LineItems {
				source, err := resolver.Decrement(ctx, line.OfferID, line.Quantity)
				if err != nil {
					return err
				}
				order.SubOrders[si].LineItems[li].StockSource = string(source)
			}
		}
		return tx.Create(order).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) && req.IdempotencyKey != "" {
			// Lost a race against a concurrent retry with the same key. The
			// winner's order is the one the customer gets.
			existing, findErr := s.findByIdempotencyKey(ctx, req.IdempotencyKey)
			if findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	s.log.Info("order decomposed",
		zap.Int64("order_id", order.ID.Int64()),
		zap.Int("sub_orders", len(order.SubOrders)),
		zap.Int64("total_amount", order.TotalAmount),
	)

	return s.GetOrder(ctx, order.ID)
}

func validateCheckout(req orderdomain.CheckoutRequest) error {
	if req.CustomerID == 0 {
		return &orderdomain.ValidationError{Field: "customerId", Reason: "required"}
	}
	if len(req.Lines) == 0 {
		return orderdomain.ErrEmptyCart
	}
	for _, line := range req.Lines {
		if line.OfferID == 0 {
			return &orderdomain.ValidationError{Field: "offerId", Reason: "required"}
		}
		if line.Quantity <= 0 {
			return &orderdomain.ValidationError{Field: "quantity", Reason: "must be positive"}
		}
	}
	return nil
}

// resolveCart loads every offer, checks that kitchens can take the order, and
// groups the lines per kitchen in cart order.
func (s *Service) resolveCart(ctx context.Context, req orderdomain.CheckoutRequest) ([]kitchenGroup, error) {
	var groups []kitchenGroup
	index := map[snowflake.ID]int{}

	for _, line := range req.Lines {
		offer, err := s.offers.FindOne(ctx, &catalogdomain.Offer{ID: line.OfferID})
		if err != nil {
			return nil, err
		}
		if offer == nil {
			return nil, stockdomain.ErrOfferNotFound
		}
		if !offer.Active {
			return nil, stockdomain.ErrOfferNotOrderable
		}

		i, ok := index[offer.KitchenID]
		if !ok {
			i = len(groups)
			index[offer.KitchenID] = i
			groups = append(groups, kitchenGroup{kitchenID: offer.KitchenID})
		}
		groups[i].entries = append(groups[i].entries, cartEntry{line: line, offer: offer})
	}

	for _, g := range groups {
		kitchen, err := s.kitchens.GetByID(ctx, g.kitchenID)
		if err != nil {
			return nil, err
		}
		if kitchen.Status != kitchendomain.KitchenStatusActive {
			return nil, &orderdomain.ValidationError{Field: "kitchen", Reason: "suspended"}
		}

		pref := preferenceFor(req, g.kitchenID)
		for _, e := range g.entries {
			if pref.FulfillmentMode == orderdomain.FulfillmentDelivery && !e.offer.DeliveryEnabled {
				return nil, &orderdomain.ValidationError{Field: "fulfillmentMode", Reason: "delivery not offered"}
			}
			if pref.FulfillmentMode == orderdomain.FulfillmentPickup && !e.offer.PickupEnabled {
				return nil, &orderdomain.ValidationError{Field: "fulfillmentMode", Reason: "pickup not offered"}
			}
		}
		if pref.FulfillmentMode == orderdomain.FulfillmentDelivery && req.DeliveryAddress.Line1 == "" {
			return nil, &orderdomain.ValidationError{Field: "deliveryAddress", Reason: "required for delivery"}
		}

		// Early availability pass. The authoritative check is the conditional
		// decrement inside the transaction.
		for _, e := range g.entries {
			if err := s.stock.Validate(ctx, e.line.OfferID, e.line.Quantity); err != nil {
				return nil, err
			}
		}
	}

	return groups, nil
}

// buildOrder materializes the full order graph in memory. Stock sources are
// filled in during the transaction, everything else is final here.
func (s *Service) buildOrder(ctx context.Context, req orderdomain.CheckoutRequest, groups []kitchenGroup) (*orderdomain.Order, error) {
	now := s.clock.Now().UTC()

	addr, err := json.Marshal(req.DeliveryAddress)
	if err != nil {
		return nil, err
	}

	order := &orderdomain.Order{
		ID:              s.genID.Generate(),
		CustomerID:      req.CustomerID,
		DeliveryAddress: addr,
		Status:          orderdomain.OrderPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}

	for _, g := range groups {
		pref := preferenceFor(req, g.kitchenID)

		sub := orderdomain.SubOrder{
			ID:               s.genID.Generate(),
			OrderID:          order.ID,
			KitchenID:        g.kitchenID,
			FulfillmentMode:  pref.FulfillmentMode,
			TimingPreference: pref.TimingPreference,
			Status:           orderdomain.SubOrderReceived,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		var itemsTotal, deliveryFee int64
		var results []preptime.Result
		for _, e := range g.entries {
			item, result, err := s.buildLineItem(ctx, sub.ID, e, now)
			if err != nil {
				return nil, err
			}
			sub.LineItems = append(sub.LineItems, *item)
			results = append(results, *result)

			itemsTotal += e.line.Quantity * e.offer.Price
			if pref.FulfillmentMode == orderdomain.FulfillmentDelivery && e.offer.DeliveryFee > deliveryFee {
				deliveryFee = e.offer.DeliveryFee
			}
		}

		sub.DeliveryFee = deliveryFee
		sub.TotalAmount = itemsTotal + deliveryFee
		if pref.TimingPreference == orderdomain.TimingCombined {
			combined := preptime.CombinedReadyTime(results)
			sub.CombinedReadyTime = &combined
		}

		order.SubOrders = append(order.SubOrders, sub)
		order.TotalAmount += sub.TotalAmount
	}

	return order, nil
}

func (s *Service) buildLineItem(ctx context.Context, subOrderID snowflake.ID, e cartEntry, now time.Time) (*orderdomain.LineItem, *preptime.Result, error) {
	cfg, err := e.offer.TimingRule()
	if err != nil {
		return nil, nil, err
	}
	if cfg.OptionType == "" {
		cfg = defaultTimingRule()
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	result, err := preptime.Calculate(cfg, now)
	if err != nil {
		return nil, nil, err
	}

	dish, err := s.dishes.FindOne(ctx, &catalogdomain.CatalogDish{ID: e.offer.CatalogDishID})
	if err != nil {
		return nil, nil, err
	}
	var product orderdomain.ProductSnapshot
	if dish != nil {
		product = orderdomain.ProductSnapshot{
			Name:        dish.Name,
			Image:       dish.Image,
			Description: dish.Description,
		}
	}
	productRaw, err := json.Marshal(product)
	if err != nil {
		return nil, nil, err
	}
	cfgRaw, err := json.Marshal(cfg)
	if err != nil {
		return nil, nil, err
	}

	item := &orderdomain.LineItem{
		ID:                      s.genID.Generate(),
		SubOrderID:              subOrderID,
		OfferID:                 e.offer.ID,
		Quantity:                e.line.Quantity,
		UnitPriceAtOrder:        e.offer.Price,
		PrepReadyConfigSnapshot: cfgRaw,
		ReadyAt:                 result.ReadyAt,
		ReadyAtMin:              result.ReadyAtMin,
		ReadyDisplay:            result.Display,
		ProductSnapshot:         productRaw,
		Notes:                   e.line.Notes,
		CreatedAt:               now,
	}
	return item, &result, nil
}

func (s *Service) findByIdempotencyKey(ctx context.Context, key string) (*orderdomain.Order, error) {
	existing, err := s.orderrepo.FindOne(ctx, &orderdomain.Order{IdempotencyKey: &key})
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	return s.GetOrder(ctx, existing.ID)
}

func preferenceFor(req orderdomain.CheckoutRequest, kitchenID snowflake.ID) orderdomain.KitchenPreference {
	pref, ok := req.Preferences[kitchenID]
	if !ok {
		pref = orderdomain.KitchenPreference{}
	}
	if pref.FulfillmentMode == "" {
		pref.FulfillmentMode = orderdomain.FulfillmentPickup
	}
	if pref.TimingPreference == "" {
		pref.TimingPreference = orderdomain.TimingSeparate
	}
	return pref
}

// defaultTimingRule covers offers that never configured prep timing.
func defaultTimingRule() preptime.Config {
	return preptime.Config{
		OptionType:      preptime.OptionFixed,
		PrepTimeMinutes: 30,
	}
}

func failureReason(err error) string {
	var insufficient *stockdomain.InsufficientStockError
	var invalid *orderdomain.ValidationError
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_stock"
	case errors.Is(err, stockdomain.ErrOfferNotFound):
		return "offer_not_found"
	case errors.Is(err, stockdomain.ErrOfferNotOrderable):
		return "offer_not_orderable"
	case errors.Is(err, orderdomain.ErrEmptyCart), errors.As(err, &invalid):
		return "validation"
	default:
		return "internal"
	}
}
