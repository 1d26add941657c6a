package types

import (
	"math/big"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// SettlementRow mirrors the purchase_settlements BigQuery schema: one row per completed purchase.
type SettlementRow struct {
	EventID          string               `bigquery:"event_id"`
	PurchaseID       string               `bigquery:"purchase_id"`
	OrderID          string               `bigquery:"order_id"`
	ProductID        string               `bigquery:"product_id"`
	VendorID         string               `bigquery:"vendor_id"`
	BuyerID          string               `bigquery:"buyer_id"`
	AgentID          cbigquery.NullString `bigquery:"agent_id"`
	PreviousStatus   string               `bigquery:"previous_status"`
	PurchasePrice    *big.Rat             `bigquery:"purchase_price"`
	DeliveryFee      *big.Rat             `bigquery:"delivery_fee"`
	VendorAmount     *big.Rat             `bigquery:"vendor_amount"`
	CommissionAmount *big.Rat             `bigquery:"commission_amount"`
	CompletedAt      time.Time            `bigquery:"completed_at"`
	IngestedAt       time.Time            `bigquery:"ingested_at"`
	Payload          cbigquery.NullJSON   `bigquery:"payload"`
}

// SettlementColumns lists the column names a SettlementRow writes.
func SettlementColumns() ([]string, error) {
	schema, err := cbigquery.InferSchema(SettlementRow{})
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(schema))
	for _, field := range schema {
		cols = append(cols, field.Name)
	}
	return cols, nil
}
