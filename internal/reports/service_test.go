package reports

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/migrate"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:reports_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migrate.ApplySQLite(conn))
	return conn
}

func seedPurchase(t *testing.T, conn *gorm.DB, vendorID uuid.UUID, status enums.PurchaseStatus, price, vendorAmt, commission string, at time.Time) {
	t.Helper()
	p := models.Purchase{
		ID:             uuid.New(),
		OrderID:        "ORD-" + uuid.NewString()[:8],
		BuyerID:        uuid.New(),
		ProductID:      uuid.New(),
		VendorID:       vendorID,
		Quantity:       2,
		PurchasePrice:  decimal.RequireFromString(price),
		Status:         status,
		DeliveryMethod: enums.DeliveryMethodPickup,
		PaymentMethod:  enums.PaymentMethodMomo,
		DeliveryFee:    decimal.Zero,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	if status == enums.PurchaseStatusCompleted {
		agent := uuid.New()
		confirmed := at
		p.AgentID = &agent
		p.PickupConfirmedAt = &confirmed
		p.VendorPaymentAmount = decimal.NewNullDecimal(decimal.RequireFromString(vendorAmt))
		p.CommissionAmount = decimal.NewNullDecimal(decimal.RequireFromString(commission))
	}
	require.NoError(t, conn.Omit("Product").Create(&p).Error)
}

func TestVendorSalesGroupsByVendorAndDay(t *testing.T) {
	conn := newTestDB(t)
	vendorA := uuid.New()
	vendorB := uuid.New()
	day1 := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)

	seedPurchase(t, conn, vendorA, enums.PurchaseStatusCompleted, "100.00", "80.00", "20.00", day1)
	seedPurchase(t, conn, vendorA, enums.PurchaseStatusCompleted, "50.00", "40.00", "15.00", day1.Add(2*time.Hour))
	seedPurchase(t, conn, vendorA, enums.PurchaseStatusCompleted, "10.00", "8.00", "2.00", day2)
	seedPurchase(t, conn, vendorB, enums.PurchaseStatusCompleted, "30.00", "24.00", "6.00", day1)
	seedPurchase(t, conn, vendorA, enums.PurchaseStatusAwaitingPickup, "999.00", "", "", day1)

	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)

	report, err := svc.VendorSales(context.Background(), SalesQuery{
		VendorID: &vendorA,
		From:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, report.Days, 2)

	first := report.Days[0]
	require.Equal(t, "2026-03-01", first.Day)
	require.Equal(t, vendorA, first.VendorID)
	require.Equal(t, int64(2), first.Purchases)
	require.Equal(t, int64(4), first.Units)
	require.True(t, decimal.RequireFromString("150.00").Equal(first.Gross))
	require.True(t, decimal.RequireFromString("120.00").Equal(first.VendorAmount))
	require.True(t, decimal.RequireFromString("35.00").Equal(first.Commission))

	require.Equal(t, "2026-03-02", report.Days[1].Day)
	require.Equal(t, int64(3), report.Totals.Purchases)
	require.True(t, decimal.RequireFromString("160.00").Equal(report.Totals.Gross))

	all, err := svc.VendorSales(context.Background(), SalesQuery{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, all.Days, 2)
	require.Equal(t, int64(3), all.Totals.Purchases)
}

func TestVendorSalesRejectsBadRange(t *testing.T) {
	svc, err := NewService(NewRepository(newTestDB(t)))
	require.NoError(t, err)
	now := time.Now().UTC()

	_, err = svc.VendorSales(context.Background(), SalesQuery{From: now, To: now.Add(-time.Hour)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.VendorSales(context.Background(), SalesQuery{From: now.AddDate(-2, 0, 0), To: now})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
