// Package variantoverrides exposes hub inventory endpoints.
package variantoverrides

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openfoodnetwork/ofn-backend/api/middleware"
	"github.com/openfoodnetwork/ofn-backend/api/responses"
	"github.com/openfoodnetwork/ofn-backend/api/validators"
	vosvc "github.com/openfoodnetwork/ofn-backend/internal/variantoverrides"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

type overrideRequest struct {
	HubID        uuid.UUID        `json:"hub_id" validate:"required"`
	VariantID    uuid.UUID        `json:"variant_id" validate:"required"`
	Price        *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	CountOnHand  *int             `json:"count_on_hand"`
	OnDemand     *bool            `json:"on_demand"`
	DefaultStock *int             `json:"default_stock" validate:"omitempty,gte=0"`
	Resettable   bool             `json:"resettable"`
	SKU          *string          `json:"sku"`
	TagList      []string         `json:"tag_list"`
}

type bulkRequest struct {
	VariantOverrides []overrideRequest `json:"variant_overrides" validate:"required,min=1,max=500,dive"`
}

type overrideResponse struct {
	ID           uuid.UUID        `json:"id"`
	HubID        uuid.UUID        `json:"hub_id"`
	VariantID    uuid.UUID        `json:"variant_id"`
	Price        *decimal.Decimal `json:"price"`
	CountOnHand  *int             `json:"count_on_hand"`
	OnDemand     *bool            `json:"on_demand"`
	DefaultStock *int             `json:"default_stock"`
	Resettable   bool             `json:"resettable"`
	SKU          *string          `json:"sku"`
	TagList      []string         `json:"tag_list"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type resetResponse struct {
	Reset int64 `json:"reset"`
}

func newOverrideResponses(rows []models.VariantOverride) []overrideResponse {
	out := make([]overrideResponse, 0, len(rows))
	for _, vo := range rows {
		tags := []string(vo.TagList)
		if tags == nil {
			tags = []string{}
		}
		out = append(out, overrideResponse{
			ID:           vo.ID,
			HubID:        vo.HubID,
			VariantID:    vo.VariantID,
			Price:        vo.Price,
			CountOnHand:  vo.CountOnHand,
			OnDemand:     vo.OnDemand,
			DefaultStock: vo.DefaultStock,
			Resettable:   vo.Resettable,
			SKU:          vo.SKU,
			TagList:      tags,
			UpdatedAt:    vo.UpdatedAt,
		})
	}
	return out
}

// List returns the overrides the caller may manage, optionally for one hub.
func List(svc vosvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "variant override service unavailable"))
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		hubID, err := validators.ParseQueryUUID(r, "hub_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListForUser(r.Context(), userID, hubID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOverrideResponses(rows))
	}
}

// BulkUpsert saves a batch of overrides. Rows with every optional field
// empty delete the matching override.
func BulkUpsert(svc vosvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "variant override service unavailable"))
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body bulkRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inputs := make([]vosvc.UpsertInput, 0, len(body.VariantOverrides))
		for _, row := range body.VariantOverrides {
			inputs = append(inputs, vosvc.UpsertInput{
				HubID:        row.HubID,
				VariantID:    row.VariantID,
				Price:        row.Price,
				CountOnHand:  row.CountOnHand,
				OnDemand:     row.OnDemand,
				DefaultStock: row.DefaultStock,
				Resettable:   row.Resettable,
				SKU:          row.SKU,
				TagList:      row.TagList,
			})
		}

		rows, err := svc.BulkUpsert(r.Context(), userID, inputs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOverrideResponses(rows))
	}
}

// ResetStock restores default stock on every resettable override at a hub.
func ResetStock(svc vosvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "variant override service unavailable"))
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		hubID, err := validators.URLParamUUID(r, "hubId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		count, err := svc.ResetStockForHub(r.Context(), userID, hubID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resetResponse{Reset: count})
	}
}
