package controllers

import (
	"net/http"
	"time"

	"github.com/agaseke/agaseke-backend/api/middleware"
	"github.com/agaseke/agaseke-backend/api/responses"
	"github.com/agaseke/agaseke-backend/api/validators"
	"github.com/agaseke/agaseke-backend/internal/reports"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/logger"
)

const defaultReportWindow = 30 * 24 * time.Hour

// VendorSalesReport summarizes completed purchases per day. Vendors always see
// their own sales; staff may narrow by vendor_id or see all vendors.
func VendorSalesReport(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		now := time.Now().UTC()
		to, err := validators.ParseQueryDate(r, "to", now)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryDate(r, "from", to.Add(-defaultReportWindow))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		q := reports.SalesQuery{From: from, To: to}
		if middleware.RoleFromContext(r.Context()) == enums.UserRoleVendor {
			q.VendorID = &callerID
		} else {
			vendorID, err := validators.ParseQueryUUID(r, "vendor_id")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			q.VendorID = vendorID
		}

		report, err := svc.VendorSales(r.Context(), q)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
