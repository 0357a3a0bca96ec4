// Package ordercycles exposes the admin order cycle endpoints.
package ordercycles

import (
	"net/http"
	"time"

	"github.com/openfoodnetwork/ofn-backend/api/middleware"
	"github.com/openfoodnetwork/ofn-backend/api/responses"
	"github.com/openfoodnetwork/ofn-backend/api/validators"
	ocsvc "github.com/openfoodnetwork/ofn-backend/internal/ordercycles"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

var now = time.Now

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order cycle service unavailable"))
}

// List returns the order cycles coordinated by enterprises the caller manages.
func List(svc ocsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cycles, err := svc.List(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		at := now()
		out := make([]orderCycleResponse, 0, len(cycles))
		for i := range cycles {
			out = append(out, newOrderCycleResponse(&cycles[i], at))
		}
		responses.WriteSuccess(w, out)
	}
}

// Get returns a single order cycle with its exchanges.
func Get(svc ocsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		id, err := validators.URLParamUUID(r, "orderCycleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		oc, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderCycleResponse(oc, now()))
	}
}

func Create(svc ocsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body orderCycleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		oc, err := svc.Create(r.Context(), userID, body.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderCycleResponse(oc, now()))
	}
}

// Update replaces the order cycle's window, fees and exchanges.
func Update(svc ocsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.URLParamUUID(r, "orderCycleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body orderCycleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		oc, err := svc.Update(r.Context(), userID, id, body.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderCycleResponse(oc, now()))
	}
}

func Clone(svc ocsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.URLParamUUID(r, "orderCycleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		oc, err := svc.Clone(r.Context(), userID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderCycleResponse(oc, now()))
	}
}

// Fees reports the fees a variant accrues through the cycle to a distributor.
func Fees(svc ocsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		id, err := validators.URLParamUUID(r, "orderCycleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variantID, err := validators.RequireQueryUUID(r, "variant_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		distributorID, err := validators.RequireQueryUUID(r, "distributor_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		byType, err := svc.FeesByTypeFor(r.Context(), id, variantID, distributorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, feesResponse{Total: byType.Total(), ByType: byType})
	}
}

// ExchangeProducts pages through the variants an exchange carries.
func ExchangeProducts(svc ocsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		id, err := validators.URLParamUUID(r, "orderCycleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		exchangeID, err := validators.URLParamUUID(r, "exchangeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ExchangeProducts(r.Context(), id, exchangeID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := exchangeProductsResponse{Variants: make([]variantResponse, 0, len(page.Variants)), NextCursor: page.NextCursor}
		for _, v := range page.Variants {
			out.Variants = append(out.Variants, newVariantResponse(v))
		}
		responses.WriteSuccess(w, out)
	}
}
