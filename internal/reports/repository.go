package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agaseke/agaseke-backend/internal/repo"
	"github.com/agaseke/agaseke-backend/pkg/enums"
)

const vendorDailySalesSQL = `
SELECT
  vendor_id,
  %s AS day,
  COUNT(*) AS purchases,
  SUM(quantity) AS units,
  SUM(purchase_price) AS gross,
  SUM(vendor_payment_amount) AS vendor_amount,
  SUM(commission_amount) AS commission
FROM purchases
WHERE status = ?
  AND pickup_confirmed_at >= ?
  AND pickup_confirmed_at < ?
  %s
GROUP BY vendor_id, day
ORDER BY day ASC, vendor_id ASC
`

// dayExpr renders pickup_confirmed_at as a UTC YYYY-MM-DD string per dialect.
var dayExpr = map[string]string{
	"postgres": `to_char(pickup_confirmed_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')`,
	"sqlite":   `strftime('%Y-%m-%d', pickup_confirmed_at)`,
}

type dailyRow struct {
	VendorID     string
	Day          string
	Purchases    int64
	Units        int64
	Gross        decimal.NullDecimal
	VendorAmount decimal.NullDecimal
	Commission   decimal.NullDecimal
}

// Repository runs the settlement aggregation queries.
type Repository interface {
	VendorDailySales(ctx context.Context, vendorID *uuid.UUID, from, to time.Time) ([]dailyRow, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

// VendorDailySales groups completed purchases by vendor and completion day within [from, to).
// A nil vendorID covers every vendor.
func (r *repository) VendorDailySales(ctx context.Context, vendorID *uuid.UUID, from, to time.Time) ([]dailyRow, error) {
	conn := r.DB(ctx)
	expr, ok := dayExpr[conn.Dialector.Name()]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect %q", conn.Dialector.Name())
	}
	args := []any{enums.PurchaseStatusCompleted, from.UTC(), to.UTC()}
	vendorFilter := ""
	if vendorID != nil {
		vendorFilter = "AND vendor_id = ?"
		args = append(args, *vendorID)
	}
	var rows []dailyRow
	if err := conn.Raw(fmt.Sprintf(vendorDailySalesSQL, expr, vendorFilter), args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
