package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/matbakhapp/matbakh/internal/catalog/domain"
	"github.com/matbakhapp/matbakh/internal/clock"
	"github.com/matbakhapp/matbakh/internal/config"
	"github.com/matbakhapp/matbakh/internal/events"
	kitchendomain "github.com/matbakhapp/matbakh/internal/kitchen/domain"
	kitchenservice "github.com/matbakhapp/matbakh/internal/kitchen/service"
	"github.com/matbakhapp/matbakh/internal/observability/metrics"
	orderdomain "github.com/matbakhapp/matbakh/internal/order/domain"
	orderservice "github.com/matbakhapp/matbakh/internal/order/service"
	"github.com/matbakhapp/matbakh/internal/preptime"
	"github.com/matbakhapp/matbakh/internal/providers/pdf"
	"github.com/matbakhapp/matbakh/internal/server"
	settlementdomain "github.com/matbakhapp/matbakh/internal/settlement/domain"
	settlementservice "github.com/matbakhapp/matbakh/internal/settlement/service"
	stockservice "github.com/matbakhapp/matbakh/internal/stock/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// env boots the full HTTP surface over an in-memory database so tests can
// drive the marketplace the way clients do.
type env struct {
	srv   *httptest.Server
	conn  *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&kitchendomain.Kitchen{},
		&catalogdomain.CatalogDish{},
		&catalogdomain.Offer{},
		&orderdomain.Order{},
		&orderdomain.SubOrder{},
		&orderdomain.LineItem{},
		&settlementdomain.Invoice{},
		&settlementdomain.InvoiceLineItem{},
		&settlementdomain.Payout{},
	))
	require.NoError(t, conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_kitchen_period
		 ON invoices (kitchen_id, period_month) WHERE status != 'void'`,
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	m := metrics.New()
	settings := config.NewPlatformSettingsHolderFrom(config.DefaultPlatformSettings())
	kitchens := kitchenservice.NewService(kitchenservice.ServiceParam{DB: conn, Log: log})
	stock := stockservice.NewResolver(stockservice.ResolverParam{DB: conn, Log: log})

	orderSvc := orderservice.NewService(orderservice.ServiceParam{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Clock:    fake,
		Stock:    stock,
		Kitchens: kitchens,
		Settings: settings,
		Emitter:  events.NopEmitter{},
		Metrics:  m,
	})
	settlementSvc := settlementservice.NewService(settlementservice.ServiceParam{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Clock:    fake,
		Kitchens: kitchens,
		Settings: settings,
		Emitter:  events.NopEmitter{},
		Metrics:  m,
	})

	engine := server.NewEngine(log, m)
	server.NewServer(server.ServerParams{
		Gin:           engine,
		Cfg:           config.Config{Environment: "test"},
		DB:            conn,
		GenID:         node,
		OrderSvc:      orderSvc,
		SettlementSvc: settlementSvc,
		StockSvc:      stock,
		KitchenSvc:    kitchens,
		Statements:    pdf.New(),
	})

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return &env{srv: srv, conn: conn, node: node, clock: fake}
}

func (e *env) seedKitchen(t *testing.T, name string) kitchendomain.Kitchen {
	t.Helper()
	kitchen := kitchendomain.Kitchen{
		ID:          e.node.Generate(),
		Name:        name,
		City:        "Riyadh",
		CountryCode: "SA",
		Status:      kitchendomain.KitchenStatusActive,
	}
	require.NoError(t, e.conn.Create(&kitchen).Error)
	return kitchen
}

func (e *env) seedOffer(t *testing.T, kitchenID snowflake.ID, name string, price, stock int64) catalogdomain.Offer {
	t.Helper()
	dish := catalogdomain.CatalogDish{ID: e.node.Generate(), Name: name, Stock: 0}
	require.NoError(t, e.conn.Create(&dish).Error)

	offer := catalogdomain.Offer{
		ID:            e.node.Generate(),
		KitchenID:     kitchenID,
		CatalogDishID: dish.ID,
		Price:         price,
		Stock:         &stock,
		PickupEnabled: true,
		Active:        true,
	}
	require.NoError(t, offer.SetTimingRule(preptime.Config{
		OptionType:      preptime.OptionFixed,
		PrepTimeMinutes: 30,
	}))
	require.NoError(t, e.conn.Create(&offer).Error)
	return offer
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	payload := map[string]json.RawMessage{}
	if resp.Header.Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	}
	return resp, payload
}

func decodeData[T any](t *testing.T, payload map[string]json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(payload["data"], &out))
	return out
}

func TestCheckoutToSettlementFlow(t *testing.T) {
	e := newEnv(t)

	kitchen := e.seedKitchen(t, "Bayt Al Kabsa")
	offer := e.seedOffer(t, kitchen.ID, "Kabsa", 6500, 10)
	customerID := e.node.Generate()

	resp, payload := e.do(t, http.MethodPost, "/v1/orders", map[string]any{
		"customerId": customerID.String(),
		"lines": []map[string]any{
			{"offerId": offer.ID.String(), "quantity": 2},
		},
	}, map[string]string{"Idempotency-Key": "e2e-flow-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	order := decodeData[orderdomain.Order](t, payload)
	require.Len(t, order.SubOrders, 1)
	sub := order.SubOrders[0]
	assert.Equal(t, int64(13000), order.TotalAmount)
	assert.Equal(t, orderdomain.SubOrderReceived, sub.Status)

	// replays must not create a second order or touch stock again
	resp, payload = e.do(t, http.MethodPost, "/v1/orders", map[string]any{
		"customerId": customerID.String(),
		"lines": []map[string]any{
			{"offerId": offer.ID.String(), "quantity": 2},
		},
	}, map[string]string{"Idempotency-Key": "e2e-flow-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	replay := decodeData[orderdomain.Order](t, payload)
	assert.Equal(t, order.ID, replay.ID)

	resp, payload = e.do(t, http.MethodGet, "/v1/offers/"+offer.ID.String()+"/stock", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stockInfo struct {
		Stock int64 `json:"stock"`
	}
	require.NoError(t, json.Unmarshal(payload["data"], &stockInfo))
	assert.Equal(t, int64(8), stockInfo.Stock)

	for _, status := range []orderdomain.SubOrderStatus{
		orderdomain.SubOrderPreparing,
		orderdomain.SubOrderReady,
		orderdomain.SubOrderPickedUp,
		orderdomain.SubOrderCompleted,
	} {
		resp, _ = e.do(t, http.MethodPatch, "/v1/sub-orders/"+sub.ID.String()+"/status", map[string]any{
			"to": status,
		}, nil)
		require.Equalf(t, http.StatusOK, resp.StatusCode, "transition to %s", status)
	}

	resp, payload = e.do(t, http.MethodGet, "/v1/orders/"+order.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	completed := decodeData[orderdomain.Order](t, payload)
	assert.Equal(t, orderdomain.OrderCompleted, completed.Status)

	resp, payload = e.do(t, http.MethodPost, "/v1/invoices", map[string]any{
		"kitchenId":   kitchen.ID.String(),
		"periodMonth": "2026-03",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	invoice := decodeData[settlementdomain.Invoice](t, payload)
	assert.Equal(t, int64(13000), invoice.GrossSales)
	assert.Equal(t, int64(1950), invoice.CommissionTotal)
	assert.Equal(t, int64(293), invoice.VATTotal)
	assert.Equal(t, int64(10757), invoice.NetPayable)

	// a second generation for the same slot is a conflict
	resp, _ = e.do(t, http.MethodPost, "/v1/invoices", map[string]any{
		"kitchenId":   kitchen.ID.String(),
		"periodMonth": "2026-03",
	}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	invoicePath := "/v1/invoices/" + invoice.ID.String()
	resp, _ = e.do(t, http.MethodPost, invoicePath+"/issue", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, invoicePath+"/payouts", map[string]any{
		"amount": invoice.NetPayable,
		"method": "bank_transfer",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// a payout covering the full balance closes the invoice by itself
	resp, payload = e.do(t, http.MethodGet, invoicePath, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	paid := decodeData[settlementdomain.Invoice](t, payload)
	assert.Equal(t, settlementdomain.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, invoice.NetPayable, paid.AmountPaid)
	require.NotNil(t, paid.PaidAt)

	// marking a paid invoice is a no-op
	resp, payload = e.do(t, http.MethodPost, invoicePath+"/pay", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	paid = decodeData[settlementdomain.Invoice](t, payload)
	assert.Equal(t, settlementdomain.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, invoice.NetPayable, paid.AmountPaid)

	resp, _ = e.do(t, http.MethodGet, invoicePath+"/statement", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".pdf")
}

func TestCheckoutRejectsUnknownOffer(t *testing.T) {
	e := newEnv(t)
	customerID := e.node.Generate()

	resp, _ := e.do(t, http.MethodPost, "/v1/orders", map[string]any{
		"customerId": customerID.String(),
		"lines": []map[string]any{
			{"offerId": e.node.Generate().String(), "quantity": 1},
		},
	}, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancellationRestocksOverHTTP(t *testing.T) {
	e := newEnv(t)

	kitchen := e.seedKitchen(t, "Matbakh Noura")
	offer := e.seedOffer(t, kitchen.ID, "Jareesh", 4000, 5)
	customerID := e.node.Generate()

	resp, payload := e.do(t, http.MethodPost, "/v1/orders", map[string]any{
		"customerId": customerID.String(),
		"lines": []map[string]any{
			{"offerId": offer.ID.String(), "quantity": 3},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeData[orderdomain.Order](t, payload)
	sub := order.SubOrders[0]

	resp, _ = e.do(t, http.MethodPatch, "/v1/sub-orders/"+sub.ID.String()+"/status", map[string]any{
		"to":     orderdomain.SubOrderCancelled,
		"reason": "customer_request",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, payload = e.do(t, http.MethodGet, "/v1/offers/"+offer.ID.String()+"/stock", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stockInfo struct {
		Stock int64 `json:"stock"`
	}
	require.NoError(t, json.Unmarshal(payload["data"], &stockInfo))
	assert.Equal(t, int64(5), stockInfo.Stock)

	// a cancelled sub-order is terminal
	resp, errPayload := e.do(t, http.MethodPatch, "/v1/sub-orders/"+sub.ID.String()+"/status", map[string]any{
		"to": orderdomain.SubOrderPreparing,
	}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, errPayload["error"])
}

func TestListInvoicesFilters(t *testing.T) {
	e := newEnv(t)

	kitchen := e.seedKitchen(t, "Bayt Al Kabsa")
	offer := e.seedOffer(t, kitchen.ID, "Kabsa", 5000, 10)
	customerID := e.node.Generate()

	resp, payload := e.do(t, http.MethodPost, "/v1/orders", map[string]any{
		"customerId": customerID.String(),
		"lines":      []map[string]any{{"offerId": offer.ID.String(), "quantity": 1}},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeData[orderdomain.Order](t, payload)
	sub := order.SubOrders[0]

	for _, status := range []orderdomain.SubOrderStatus{
		orderdomain.SubOrderPreparing,
		orderdomain.SubOrderReady,
		orderdomain.SubOrderPickedUp,
		orderdomain.SubOrderCompleted,
	} {
		resp, _ = e.do(t, http.MethodPatch, "/v1/sub-orders/"+sub.ID.String()+"/status", map[string]any{"to": status}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodPost, "/v1/invoices", map[string]any{
		"kitchenId":   kitchen.ID.String(),
		"periodMonth": "2026-03",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	query := fmt.Sprintf("/v1/invoices?kitchenId=%s&period=2026-03", kitchen.ID.String())
	resp, payload = e.do(t, http.MethodGet, query, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	invoices := decodeData[[]settlementdomain.Invoice](t, payload)
	require.Len(t, invoices, 1)
	assert.Equal(t, kitchen.ID, invoices[0].KitchenID)

	resp, payload = e.do(t, http.MethodGet, "/v1/invoices?status=paid", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	invoices = decodeData[[]settlementdomain.Invoice](t, payload)
	assert.Empty(t, invoices)
}
