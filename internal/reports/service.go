// Package reports aggregates settled purchases for vendor sales reporting.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
)

const maxRange = 366 * 24 * time.Hour

// SalesQuery selects the window and vendor for a sales report. From is inclusive,
// To exclusive; a nil VendorID covers every vendor.
type SalesQuery struct {
	VendorID *uuid.UUID
	From     time.Time
	To       time.Time
}

// DailySales is one vendor's completed purchases on one UTC day.
type DailySales struct {
	VendorID     uuid.UUID       `json:"vendor_id"`
	Day          string          `json:"day"`
	Purchases    int64           `json:"purchases"`
	Units        int64           `json:"units"`
	Gross        decimal.Decimal `json:"gross"`
	VendorAmount decimal.Decimal `json:"vendor_amount"`
	Commission   decimal.Decimal `json:"commission"`
}

type SalesReport struct {
	From   time.Time    `json:"from"`
	To     time.Time    `json:"to"`
	Days   []DailySales `json:"days"`
	Totals SalesTotals  `json:"totals"`
}

type SalesTotals struct {
	Purchases    int64           `json:"purchases"`
	Gross        decimal.Decimal `json:"gross"`
	VendorAmount decimal.Decimal `json:"vendor_amount"`
	Commission   decimal.Decimal `json:"commission"`
}

type Service interface {
	VendorSales(ctx context.Context, q SalesQuery) (*SalesReport, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) VendorSales(ctx context.Context, q SalesQuery) (*SalesReport, error) {
	if q.From.IsZero() || q.To.IsZero() || !q.To.After(q.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	if q.To.Sub(q.From) > maxRange {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "report range exceeds one year")
	}

	rows, err := s.repo.VendorDailySales(ctx, q.VendorID, q.From, q.To)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate vendor sales")
	}

	report := &SalesReport{
		From: q.From.UTC(),
		To:   q.To.UTC(),
		Days: make([]DailySales, 0, len(rows)),
		Totals: SalesTotals{
			Gross:        decimal.Zero,
			VendorAmount: decimal.Zero,
			Commission:   decimal.Zero,
		},
	}
	for _, row := range rows {
		vendorID, err := uuid.Parse(row.VendorID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse vendor id")
		}
		day := DailySales{
			VendorID:     vendorID,
			Day:          row.Day,
			Purchases:    row.Purchases,
			Units:        row.Units,
			Gross:        money(row.Gross),
			VendorAmount: money(row.VendorAmount),
			Commission:   money(row.Commission),
		}
		report.Days = append(report.Days, day)
		report.Totals.Purchases += day.Purchases
		report.Totals.Gross = report.Totals.Gross.Add(day.Gross)
		report.Totals.VendorAmount = report.Totals.VendorAmount.Add(day.VendorAmount)
		report.Totals.Commission = report.Totals.Commission.Add(day.Commission)
	}
	return report, nil
}

func money(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal.Round(2)
}
