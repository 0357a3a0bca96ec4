// Package shop exposes the shopper-facing storefront and cart endpoints.
package shop

import (
	"net/http"

	"github.com/openfoodnetwork/ofn-backend/api/responses"
	"github.com/openfoodnetwork/ofn-backend/api/validators"
	"github.com/openfoodnetwork/ofn-backend/internal/productscache"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

// Products serves a distributor's shopfront for an order cycle from the
// products cache.
func Products(svc productscache.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "products cache unavailable"))
			return
		}
		distributorID, err := validators.URLParamUUID(r, "distributorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderCycleID, err := validators.URLParamUUID(r, "orderCycleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		products, err := svc.ProductsFor(r.Context(), distributorID, orderCycleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, products)
	}
}
