package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agaseke/agaseke-backend/api/middleware"
	"github.com/agaseke/agaseke-backend/api/responses"
	"github.com/agaseke/agaseke-backend/api/validators"
	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/pagination"
)

const maxAddressLength = 512

type createPurchaseRequest struct {
	ProductID       uuid.UUID            `json:"product_id" validate:"required"`
	Quantity        int                  `json:"quantity" validate:"required,min=1,max=1000"`
	DeliveryMethod  enums.DeliveryMethod `json:"delivery_method" validate:"required,oneof=pickup delivery"`
	PaymentMethod   enums.PaymentMethod  `json:"payment_method" validate:"required,oneof=momo credit"`
	DeliveryAddress *string              `json:"delivery_address,omitempty" validate:"omitempty,max=512"`
	Latitude        *float64             `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude       *float64             `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

type purchaseResponse struct {
	ID                  uuid.UUID        `json:"id"`
	OrderID             string           `json:"order_id"`
	BuyerID             uuid.UUID        `json:"buyer_id"`
	ProductID           uuid.UUID        `json:"product_id"`
	VendorID            uuid.UUID        `json:"vendor_id"`
	ProductTitle        string           `json:"product_title,omitempty"`
	Quantity            int              `json:"quantity"`
	PurchasePrice       decimal.Decimal  `json:"purchase_price"`
	Status              string           `json:"status"`
	DeliveryMethod      string           `json:"delivery_method"`
	PaymentMethod       string           `json:"payment_method"`
	DeliveryFee         decimal.Decimal  `json:"delivery_fee"`
	DeliveryAddress     *string          `json:"delivery_address,omitempty"`
	Latitude            *float64         `json:"latitude,omitempty"`
	Longitude           *float64         `json:"longitude,omitempty"`
	AgentID             *uuid.UUID       `json:"agent_id,omitempty"`
	PickupConfirmedAt   *time.Time       `json:"pickup_confirmed_at,omitempty"`
	VendorPaymentAmount *decimal.Decimal `json:"vendor_payment_amount,omitempty"`
	CommissionAmount    *decimal.Decimal `json:"commission_amount,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
}

func newPurchaseResponse(p models.Purchase) purchaseResponse {
	resp := purchaseResponse{
		ID:                p.ID,
		OrderID:           p.OrderID,
		BuyerID:           p.BuyerID,
		ProductID:         p.ProductID,
		VendorID:          p.VendorID,
		Quantity:          p.Quantity,
		PurchasePrice:     p.PurchasePrice,
		Status:            string(p.Status),
		DeliveryMethod:    string(p.DeliveryMethod),
		PaymentMethod:     string(p.PaymentMethod),
		DeliveryFee:       p.DeliveryFee,
		DeliveryAddress:   p.DeliveryAddress,
		Latitude:          p.DeliveryLatitude,
		Longitude:         p.DeliveryLongitude,
		AgentID:           p.AgentID,
		PickupConfirmedAt: p.PickupConfirmedAt,
		CreatedAt:         p.CreatedAt,
	}
	if p.Product != nil {
		resp.ProductTitle = p.Product.Title
	}
	if p.VendorPaymentAmount.Valid {
		resp.VendorPaymentAmount = &p.VendorPaymentAmount.Decimal
	}
	if p.CommissionAmount.Valid {
		resp.CommissionAmount = &p.CommissionAmount.Decimal
	}
	return resp
}

func newPurchaseResponses(rows []models.Purchase) []purchaseResponse {
	out := make([]purchaseResponse, 0, len(rows))
	for _, p := range rows {
		out = append(out, newPurchaseResponse(p))
	}
	return out
}

// PurchaseCreate checks out one product for the authenticated buyer.
func PurchaseCreate(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createPurchaseRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.DeliveryAddress != nil {
			addr := validators.SanitizeString(*body.DeliveryAddress, maxAddressLength)
			body.DeliveryAddress = &addr
		}

		purchase, err := svc.Create(r.Context(), purchases.CreateInput{
			BuyerID:         buyerID,
			ProductID:       body.ProductID,
			Quantity:        body.Quantity,
			DeliveryMethod:  body.DeliveryMethod,
			PaymentMethod:   body.PaymentMethod,
			DeliveryAddress: body.DeliveryAddress,
			Latitude:        body.Latitude,
			Longitude:       body.Longitude,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPurchaseResponse(*purchase))
	}
}

// PurchaseList pages through the caller's own purchases, newest first.
func PurchaseList(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListForBuyer(r.Context(), buyerID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pagination.Page[purchaseResponse]{
			Items:      newPurchaseResponses(page.Items),
			NextCursor: page.NextCursor,
		})
	}
}

type transitionRequest struct {
	Status enums.PurchaseStatus `json:"status" validate:"required"`
}

type transitionResponse struct {
	Purchase       purchaseResponse `json:"purchase"`
	PreviousStatus string           `json:"previous_status"`
}

// StaffTransition applies an administrative status change such as processing or cancelled.
func StaffTransition(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		purchaseID, err := validators.ParseURLUUID(r, "purchaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body transitionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Transition(r.Context(), purchases.TransitionInput{
			PurchaseID: purchaseID,
			To:         body.Status,
			ActorID:    actorID,
			ActorRole:  middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, transitionResponse{
			Purchase:       newPurchaseResponse(result.Purchase),
			PreviousStatus: string(result.PreviousStatus),
		})
	}
}

func requireUserID(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return id, nil
}
