package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/pagination"
)

func samplePurchase(buyerID uuid.UUID) models.Purchase {
	return models.Purchase{
		ID:             uuid.New(),
		OrderID:        "AGS-TEST0001",
		BuyerID:        buyerID,
		ProductID:      uuid.New(),
		VendorID:       uuid.New(),
		Quantity:       2,
		PurchasePrice:  decimal.RequireFromString("20000"),
		Status:         enums.PurchaseStatusPending,
		DeliveryMethod: enums.DeliveryMethodPickup,
		PaymentMethod:  enums.PaymentMethodMomo,
		Product:        &models.Product{Title: "Sorghum 5kg"},
	}
}

func TestPurchaseCreateUsesCallerAsBuyer(t *testing.T) {
	buyerID := uuid.New()
	productID := uuid.New()
	var got purchases.CreateInput
	svc := stubPurchases{createFn: func(in purchases.CreateInput) (*models.Purchase, error) {
		got = in
		p := samplePurchase(in.BuyerID)
		return &p, nil
	}}

	body := `{"product_id":"` + productID.String() + `","quantity":2,"delivery_method":"delivery","payment_method":"momo","delivery_address":"  KG 11 Ave  "}`
	req := asUser(newRequest(http.MethodPost, "/api/v1/purchases", body), buyerID, enums.UserRoleUser)
	rec := httptest.NewRecorder()
	PurchaseCreate(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if got.BuyerID != buyerID || got.ProductID != productID || got.Quantity != 2 {
		t.Fatalf("unexpected input %+v", got)
	}
	if got.DeliveryAddress == nil || *got.DeliveryAddress != "KG 11 Ave" {
		t.Fatalf("expected sanitized address, got %v", got.DeliveryAddress)
	}

	var resp purchaseResponse
	decodeData(t, rec, &resp)
	if resp.OrderID != "AGS-TEST0001" || resp.ProductTitle != "Sorghum 5kg" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestPurchaseCreateRejectsInvalidBody(t *testing.T) {
	svc := stubPurchases{createFn: func(purchases.CreateInput) (*models.Purchase, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}
	body := `{"product_id":"` + uuid.NewString() + `","quantity":0,"delivery_method":"drone","payment_method":"momo"}`
	req := asUser(newRequest(http.MethodPost, "/api/v1/purchases", body), uuid.New(), enums.UserRoleUser)
	rec := httptest.NewRecorder()
	PurchaseCreate(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestPurchaseCreateRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	PurchaseCreate(stubPurchases{}, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/purchases", `{}`))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestPurchaseCreatePropagatesDomainError(t *testing.T) {
	svc := stubPurchases{createFn: func(purchases.CreateInput) (*models.Purchase, error) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "out of stock")
	}}
	body := `{"product_id":"` + uuid.NewString() + `","quantity":1,"delivery_method":"pickup","payment_method":"credit"}`
	req := asUser(newRequest(http.MethodPost, "/api/v1/purchases", body), uuid.New(), enums.UserRoleUser)
	rec := httptest.NewRecorder()
	PurchaseCreate(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestPurchaseListPassesPaging(t *testing.T) {
	buyerID := uuid.New()
	var params pagination.Params
	svc := stubPurchases{listFn: func(id uuid.UUID, p pagination.Params) (pagination.Page[models.Purchase], error) {
		if id != buyerID {
			t.Fatalf("expected buyer %s got %s", buyerID, id)
		}
		params = p
		return pagination.Page[models.Purchase]{Items: []models.Purchase{samplePurchase(buyerID)}, NextCursor: "next"}, nil
	}}

	req := asUser(newRequest(http.MethodGet, "/api/v1/purchases?limit=10&cursor=abc", ""), buyerID, enums.UserRoleUser)
	rec := httptest.NewRecorder()
	PurchaseList(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if params.Limit != 10 || params.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", params)
	}
	var page pagination.Page[purchaseResponse]
	decodeData(t, rec, &page)
	if len(page.Items) != 1 || page.NextCursor != "next" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestPurchaseListRejectsLimitOutOfRange(t *testing.T) {
	req := asUser(newRequest(http.MethodGet, "/api/v1/purchases?limit=1000", ""), uuid.New(), enums.UserRoleUser)
	rec := httptest.NewRecorder()
	PurchaseList(stubPurchases{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestStaffTransitionForwardsActor(t *testing.T) {
	staffID := uuid.New()
	purchaseID := uuid.New()
	var got purchases.TransitionInput
	svc := stubPurchases{transitionFn: func(in purchases.TransitionInput) (*purchases.TransitionResult, error) {
		got = in
		p := samplePurchase(uuid.New())
		p.ID = in.PurchaseID
		p.Status = in.To
		return &purchases.TransitionResult{Purchase: p, PreviousStatus: enums.PurchaseStatusPending}, nil
	}}

	req := asUser(newRequest(http.MethodPost, "/", `{"status":"processing"}`), staffID, enums.UserRoleStaff)
	req = withURLParam(req, "purchaseId", purchaseID.String())
	rec := httptest.NewRecorder()
	StaffTransition(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if got.PurchaseID != purchaseID || got.ActorID != staffID || got.ActorRole != enums.UserRoleStaff || got.To != enums.PurchaseStatusProcessing {
		t.Fatalf("unexpected input %+v", got)
	}
	var resp transitionResponse
	decodeData(t, rec, &resp)
	if resp.PreviousStatus != "pending" || resp.Purchase.Status != "processing" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestStaffTransitionRejectsBadPurchaseID(t *testing.T) {
	req := asUser(newRequest(http.MethodPost, "/", `{"status":"processing"}`), uuid.New(), enums.UserRoleStaff)
	req = withURLParam(req, "purchaseId", "not-a-uuid")
	rec := httptest.NewRecorder()
	StaffTransition(stubPurchases{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
