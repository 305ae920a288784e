package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/matbakhapp/matbakh/internal/clock"
	"github.com/matbakhapp/matbakh/internal/config"
	"github.com/matbakhapp/matbakh/internal/events"
	kitchendomain "github.com/matbakhapp/matbakh/internal/kitchen/domain"
	kitchenservice "github.com/matbakhapp/matbakh/internal/kitchen/service"
	"github.com/matbakhapp/matbakh/internal/observability/metrics"
	orderdomain "github.com/matbakhapp/matbakh/internal/order/domain"
	settlementdomain "github.com/matbakhapp/matbakh/internal/settlement/domain"
	"github.com/matbakhapp/matbakh/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      settlementdomain.Service
	kitchens kitchendomain.Service
	conn     *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&kitchendomain.Kitchen{},
		&orderdomain.SubOrder{},
		&settlementdomain.Invoice{},
		&settlementdomain.InvoiceLineItem{},
		&settlementdomain.Payout{},
	))
	// partial unique index the migrations create in production
	require.NoError(t, conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_kitchen_period
		 ON invoices (kitchen_id, period_month) WHERE status != 'void'`,
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	fake := clock.NewFakeClock(testNow)
	kitchens := kitchenservice.NewService(kitchenservice.ServiceParam{DB: conn, Log: log})

	svc := NewService(ServiceParam{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Clock:    fake,
		Kitchens: kitchens,
		Settings: config.NewPlatformSettingsHolderFrom(config.DefaultPlatformSettings()),
		Emitter:  events.NopEmitter{},
		Metrics:  metrics.New(),
	})

	return &fixture{svc: svc, kitchens: kitchens, conn: conn, node: node, clock: fake}
}

func (f *fixture) seedKitchen(t *testing.T) kitchendomain.Kitchen {
	t.Helper()
	kitchen := kitchendomain.Kitchen{
		ID:          f.node.Generate(),
		Name:        "Umm Salem",
		CountryCode: "SA",
		Status:      kitchendomain.KitchenStatusActive,
	}
	require.NoError(t, f.conn.Create(&kitchen).Error)
	return kitchen
}

func (f *fixture) seedCompletedSub(t *testing.T, kitchenID snowflake.ID, total, commission, vat int64, completedAt time.Time) orderdomain.SubOrder {
	t.Helper()

	rate := int64(1500)
	snap, err := json.Marshal(orderdomain.VATSnapshot{
		Enabled: true, RateBps: 1500, Label: "VAT", SettingsVersion: "v1",
	})
	require.NoError(t, err)

	sub := orderdomain.SubOrder{
		ID:                f.node.Generate(),
		OrderID:           f.node.Generate(),
		KitchenID:         kitchenID,
		Status:            orderdomain.SubOrderCompleted,
		TotalAmount:       total,
		CommissionRateBps: &rate,
		CommissionAmount:  &commission,
		VATAmount:         &vat,
		VATSnapshot:       snap,
		CompletedAt:       &completedAt,
	}
	require.NoError(t, f.conn.Create(&sub).Error)
	return sub
}

func (f *fixture) generate(t *testing.T, kitchenID snowflake.ID, period string) *settlementdomain.Invoice {
	t.Helper()
	invoice, err := f.svc.GenerateInvoice(context.Background(), settlementdomain.GenerateInvoiceRequest{
		KitchenID:   kitchenID,
		PeriodMonth: period,
	})
	require.NoError(t, err)
	return invoice
}

func TestGenerateInvoiceFromSnapshots(t *testing.T) {
	f := newFixture(t)

	kitchen := f.seedKitchen(t)
	march := time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)
	subA := f.seedCompletedSub(t, kitchen.ID, 13000, 1950, 293, march)
	subB := f.seedCompletedSub(t, kitchen.ID, 9500, 1425, 214, march.Add(48*time.Hour))
	// outside the period and wrong status, both excluded
	f.seedCompletedSub(t, kitchen.ID, 7000, 1050, 158, time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))
	cancelled := f.seedCompletedSub(t, kitchen.ID, 5000, 750, 113, march)
	require.NoError(t, f.conn.Model(&orderdomain.SubOrder{}).
		Where("id = ?", cancelled.ID).Update("status", orderdomain.SubOrderCancelled).Error)

	invoice := f.generate(t, kitchen.ID, "2026-03")

	assert.Equal(t, settlementdomain.InvoiceStatusDraft, invoice.Status)
	assert.True(t, strings.HasPrefix(invoice.InvoiceNumber, "INV-202603-"), invoice.InvoiceNumber)
	assert.Equal(t, "SAR", invoice.Currency)
	assert.Equal(t, "VAT", invoice.VATLabel)

	assert.Equal(t, int64(22500), invoice.GrossSales)
	assert.Equal(t, int64(3375), invoice.CommissionTotal)
	assert.Equal(t, int64(507), invoice.VATTotal)
	assert.Equal(t, int64(22500-3375-507), invoice.NetPayable)
	assert.Equal(t, invoice.NetPayable, invoice.AmountDue())
	assert.InDelta(t, 15.0, invoice.CommissionRate, 0.01)

	require.Len(t, invoice.LineItems, 2)
	bySub := map[snowflake.ID]settlementdomain.InvoiceLineItem{}
	for _, line := range invoice.LineItems {
		bySub[line.SubOrderID] = line
	}
	assert.Equal(t, int64(13000-1950-293), bySub[subA.ID].Net)
	assert.Equal(t, int64(9500-1425-214), bySub[subB.ID].Net)
	assert.Equal(t, int64(1500), bySub[subA.ID].CommissionRateBps)
}

func TestGenerateInvoiceDuplicate(t *testing.T) {
	f := newFixture(t)

	kitchen := f.seedKitchen(t)
	march := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	f.seedCompletedSub(t, kitchen.ID, 10000, 1500, 225, march)

	first := f.generate(t, kitchen.ID, "2026-03")

	_, err := f.svc.GenerateInvoice(context.Background(), settlementdomain.GenerateInvoiceRequest{
		KitchenID:   kitchen.ID,
		PeriodMonth: "2026-03",
	})
	var duplicate *settlementdomain.DuplicateInvoiceError
	require.ErrorAs(t, err, &duplicate)
	assert.Equal(t, "2026-03", duplicate.PeriodMonth)

	// voiding frees the period for regeneration
	_, err = f.svc.VoidInvoice(context.Background(), first.ID, "correction")
	require.NoError(t, err)
	second := f.generate(t, kitchen.ID, "2026-03")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestGenerateInvoiceNoActivity(t *testing.T) {
	f := newFixture(t)
	kitchen := f.seedKitchen(t)

	_, err := f.svc.GenerateInvoice(context.Background(), settlementdomain.GenerateInvoiceRequest{
		KitchenID:   kitchen.ID,
		PeriodMonth: "2026-03",
	})
	assert.ErrorIs(t, err, settlementdomain.ErrNoBillableActivity)
}

func TestGenerateInvoiceInvalidPeriod(t *testing.T) {
	f := newFixture(t)
	kitchen := f.seedKitchen(t)

	for _, period := range []string{"", "2026", "march", "2026-13", "03-2026"} {
		_, err := f.svc.GenerateInvoice(context.Background(), settlementdomain.GenerateInvoiceRequest{
			KitchenID:   kitchen.ID,
			PeriodMonth: period,
		})
		assert.ErrorIs(t, err, settlementdomain.ErrInvalidPeriod, period)
	}
}

func TestInvoiceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kitchen := f.seedKitchen(t)
	f.seedCompletedSub(t, kitchen.ID, 10000, 1500, 225, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC))
	invoice := f.generate(t, kitchen.ID, "2026-03")

	issued, err := f.svc.IssueInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.InvoiceStatusIssued, issued.Status)
	require.NotNil(t, issued.IssuedAt)

	// issuing twice is rejected
	_, err = f.svc.IssueInvoice(ctx, invoice.ID)
	var immutable *settlementdomain.ImmutableInvoiceError
	assert.ErrorAs(t, err, &immutable)

	locked, err := f.svc.LockInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.InvoiceStatusLocked, locked.Status)
	require.NotNil(t, locked.LockedAt)
}

func TestFullPayoutClosesInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kitchen := f.seedKitchen(t)
	f.seedCompletedSub(t, kitchen.ID, 10000, 1500, 225, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC))
	invoice := f.generate(t, kitchen.ID, "2026-03")
	net := invoice.NetPayable

	_, err := f.svc.IssueInvoice(ctx, invoice.ID)
	require.NoError(t, err)

	payout, err := f.svc.AddPayout(ctx, settlementdomain.AddPayoutRequest{
		InvoiceID: invoice.ID,
		Amount:    net - 1000,
		Method:    "bank_transfer",
		Reference: "TRX-1001",
	})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.PayoutStatusCompleted, payout.Status)
	require.NotNil(t, payout.PaidAt)

	// a partial payout leaves the invoice open
	open, err := f.svc.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.InvoiceStatusIssued, open.Status)
	assert.Equal(t, int64(1000), open.AmountDue())
	assert.Nil(t, open.PaidAt)

	// the payout that covers the balance closes it, no extra call needed
	_, err = f.svc.AddPayout(ctx, settlementdomain.AddPayoutRequest{
		InvoiceID: invoice.ID,
		Amount:    1000,
		Method:    "bank_transfer",
		Reference: "TRX-1002",
	})
	require.NoError(t, err)

	paid, err := f.svc.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Zero(t, paid.AmountDue())
	assert.Len(t, paid.Payouts, 2)

	// closing again is a no-op
	again, err := f.svc.MarkInvoiceAsPaid(ctx, settlementdomain.MarkPaidRequest{InvoiceID: invoice.ID})
	require.NoError(t, err)
	assert.Equal(t, paid.PaidAt.UTC(), again.PaidAt.UTC())
}

func TestMarkPaidSettlesOutstandingBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kitchen := f.seedKitchen(t)
	f.seedCompletedSub(t, kitchen.ID, 10000, 1500, 225, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC))
	invoice := f.generate(t, kitchen.ID, "2026-03")

	_, err := f.svc.IssueInvoice(ctx, invoice.ID)
	require.NoError(t, err)

	_, err = f.svc.AddPayout(ctx, settlementdomain.AddPayoutRequest{
		InvoiceID: invoice.ID,
		Amount:    2500,
		Method:    "bank_transfer",
	})
	require.NoError(t, err)

	// administrative override settles whatever the ledger did not cover
	paid, err := f.svc.MarkInvoiceAsPaid(ctx, settlementdomain.MarkPaidRequest{InvoiceID: invoice.ID})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, invoice.NetPayable, paid.AmountPaid)
	assert.Zero(t, paid.AmountDue())
	require.NotNil(t, paid.PaidAt)
}

func TestPendingAndFailedPayoutsDoNotApply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kitchen := f.seedKitchen(t)
	f.seedCompletedSub(t, kitchen.ID, 10000, 1500, 225, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC))
	invoice := f.generate(t, kitchen.ID, "2026-03")

	_, err := f.svc.IssueInvoice(ctx, invoice.ID)
	require.NoError(t, err)

	pending, err := f.svc.AddPayout(ctx, settlementdomain.AddPayoutRequest{
		InvoiceID: invoice.ID,
		Amount:    invoice.NetPayable,
		Status:    settlementdomain.PayoutStatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.PayoutStatusPending, pending.Status)
	assert.Nil(t, pending.PaidAt)

	failed, err := f.svc.AddPayout(ctx, settlementdomain.AddPayoutRequest{
		InvoiceID: invoice.ID,
		Amount:    invoice.NetPayable,
		Status:    settlementdomain.PayoutStatusFailed,
	})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.PayoutStatusFailed, failed.Status)
	assert.Nil(t, failed.PaidAt)

	got, err := f.svc.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Zero(t, got.AmountPaid)
	assert.Equal(t, settlementdomain.InvoiceStatusIssued, got.Status)
	assert.Len(t, got.Payouts, 2)

	_, err = f.svc.AddPayout(ctx, settlementdomain.AddPayoutRequest{
		InvoiceID: invoice.ID,
		Amount:    100,
		Status:    settlementdomain.PayoutStatus("refunded"),
	})
	assert.ErrorIs(t, err, settlementdomain.ErrInvalidPayoutStatus)
}

func TestPayoutCannotExceedNetPayable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kitchen := f.seedKitchen(t)
	f.seedCompletedSub(t, kitchen.ID, 10000, 1500, 225, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC))
	invoice := f.generate(t, kitchen.ID, "2026-03")
	_, err := f.svc.IssueInvoice(ctx, invoice.ID)
	require.NoError(t, err)

	_, err = f.svc.AddPayout(ctx, settlementdomain.AddPayoutRequest{
		InvoiceID: invoice.ID,
		Amount:    invoice.NetPayable + 1,
	})
	assert.ErrorIs(t, err, settlementdomain.ErrInvalidAmount)

	_, err = f.svc.AddPayout(ctx, settlementdomain.AddPayoutRequest{
		InvoiceID: invoice.ID,
		Amount:    0,
	})
	assert.ErrorIs(t, err, settlementdomain.ErrInvalidAmount)

	got, err := f.svc.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Zero(t, got.AmountPaid)
}

func TestAddPayoutRequiresIssuedInvoice(t *testing.T) {
	f := newFixture(t)

	kitchen := f.seedKitchen(t)
	f.seedCompletedSub(t, kitchen.ID, 10000, 1500, 225, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC))
	invoice := f.generate(t, kitchen.ID, "2026-03")

	_, err := f.svc.AddPayout(context.Background(), settlementdomain.AddPayoutRequest{
		InvoiceID: invoice.ID,
		Amount:    100,
	})
	var immutable *settlementdomain.ImmutableInvoiceError
	require.ErrorAs(t, err, &immutable)
	assert.Equal(t, settlementdomain.InvoiceStatusDraft, immutable.Status)
}

func TestMarkPaidLiftsUnpaidInvoiceSuspensionWhenRequested(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kitchen := f.seedKitchen(t)
	f.seedCompletedSub(t, kitchen.ID, 10000, 1500, 225, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC))
	invoice := f.generate(t, kitchen.ID, "2026-03")
	_, err := f.svc.IssueInvoice(ctx, invoice.ID)
	require.NoError(t, err)

	require.NoError(t, f.kitchens.Suspend(ctx, kitchen.ID, kitchendomain.SuspensionReasonUnpaidInvoice))

	_, err = f.svc.MarkInvoiceAsPaid(ctx, settlementdomain.MarkPaidRequest{
		InvoiceID:     invoice.ID,
		AutoUnsuspend: true,
	})
	require.NoError(t, err)

	got, err := f.kitchens.GetByID(ctx, kitchen.ID)
	require.NoError(t, err)
	assert.Equal(t, kitchendomain.KitchenStatusActive, got.Status)
}

func TestMarkPaidLeavesSuspensionWithoutOptIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kitchen := f.seedKitchen(t)
	f.seedCompletedSub(t, kitchen.ID, 10000, 1500, 225, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC))
	invoice := f.generate(t, kitchen.ID, "2026-03")
	_, err := f.svc.IssueInvoice(ctx, invoice.ID)
	require.NoError(t, err)

	require.NoError(t, f.kitchens.Suspend(ctx, kitchen.ID, kitchendomain.SuspensionReasonUnpaidInvoice))

	_, err = f.svc.MarkInvoiceAsPaid(ctx, settlementdomain.MarkPaidRequest{InvoiceID: invoice.ID})
	require.NoError(t, err)

	got, err := f.kitchens.GetByID(ctx, kitchen.ID)
	require.NoError(t, err)
	assert.Equal(t, kitchendomain.KitchenStatusSuspended, got.Status)
}

func TestMarkPaidLeavesOtherSuspensionsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kitchen := f.seedKitchen(t)
	f.seedCompletedSub(t, kitchen.ID, 10000, 1500, 225, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC))
	invoice := f.generate(t, kitchen.ID, "2026-03")
	_, err := f.svc.IssueInvoice(ctx, invoice.ID)
	require.NoError(t, err)

	require.NoError(t, f.kitchens.Suspend(ctx, kitchen.ID, "food_safety"))

	_, err = f.svc.MarkInvoiceAsPaid(ctx, settlementdomain.MarkPaidRequest{
		InvoiceID:     invoice.ID,
		AutoUnsuspend: true,
	})
	require.NoError(t, err)

	got, err := f.kitchens.GetByID(ctx, kitchen.ID)
	require.NoError(t, err)
	assert.Equal(t, kitchendomain.KitchenStatusSuspended, got.Status)
}

func TestListInvoicesPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kitchen := f.seedKitchen(t)

	for i, period := range []string{"2026-01", "2026-02", "2026-03"} {
		inv := settlementdomain.Invoice{
			ID:            f.node.Generate(),
			KitchenID:     kitchen.ID,
			PeriodMonth:   period,
			InvoiceNumber: "INV-TEST-" + period,
			Status:        settlementdomain.InvoiceStatusDraft,
			Currency:      "SAR",
			CreatedAt:     testNow.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, f.conn.Create(&inv).Error)
	}

	first, page, err := f.svc.ListInvoices(ctx, settlementdomain.ListInvoicesRequest{
		Page: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextPageToken)
	assert.Equal(t, "2026-03", first[0].PeriodMonth)
	assert.Equal(t, "2026-02", first[1].PeriodMonth)

	rest, page, err := f.svc.ListInvoices(ctx, settlementdomain.ListInvoicesRequest{
		Page: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.False(t, page.HasMore)
	assert.Equal(t, "2026-01", rest[0].PeriodMonth)
}

func TestListInvoicesRejectsBadToken(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.ListInvoices(context.Background(), settlementdomain.ListInvoicesRequest{
		Page: pagination.Pagination{PageToken: "not-a-cursor"},
	})
	require.ErrorIs(t, err, settlementdomain.ErrInvalidPageToken)
}
