package shop

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openfoodnetwork/ofn-backend/api/middleware"
	"github.com/openfoodnetwork/ofn-backend/api/responses"
	"github.com/openfoodnetwork/ofn-backend/api/validators"
	"github.com/openfoodnetwork/ofn-backend/internal/orders"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

type distributionRequest struct {
	DistributorID uuid.UUID `json:"distributor_id" validate:"required"`
	OrderCycleID  uuid.UUID `json:"order_cycle_id" validate:"required"`
}

type lineItemRequest struct {
	VariantID uuid.UUID `json:"variant_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=1000"`
}

type lineItemResponse struct {
	ID        uuid.UUID       `json:"id"`
	VariantID uuid.UUID       `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type adjustmentResponse struct {
	ID             uuid.UUID             `json:"id"`
	AdjustableType enums.AdjustableType  `json:"adjustable_type"`
	AdjustableID   uuid.UUID             `json:"adjustable_id"`
	Label          string                `json:"label"`
	Amount         decimal.Decimal       `json:"amount"`
	IncludedTax    decimal.Decimal       `json:"included_tax"`
	State          enums.AdjustmentState `json:"state"`
}

type orderResponse struct {
	ID              uuid.UUID            `json:"id"`
	Number          string               `json:"number"`
	State           enums.OrderState     `json:"state"`
	DistributorID   *uuid.UUID           `json:"distributor_id,omitempty"`
	OrderCycleID    *uuid.UUID           `json:"order_cycle_id,omitempty"`
	ItemTotal       decimal.Decimal      `json:"item_total"`
	AdjustmentTotal decimal.Decimal      `json:"adjustment_total"`
	Total           decimal.Decimal      `json:"total"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	LineItems       []lineItemResponse   `json:"line_items"`
	Adjustments     []adjustmentResponse `json:"adjustments"`
}

func newOrderResponse(o *models.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		Number:          o.Number,
		State:           o.State,
		DistributorID:   o.DistributorID,
		OrderCycleID:    o.OrderCycleID,
		ItemTotal:       o.ItemTotal,
		AdjustmentTotal: o.AdjustmentTotal,
		Total:           o.Total,
		CompletedAt:     o.CompletedAt,
		LineItems:       make([]lineItemResponse, 0, len(o.LineItems)),
		Adjustments:     make([]adjustmentResponse, 0, len(o.Adjustments)),
	}
	for _, li := range o.LineItems {
		resp.LineItems = append(resp.LineItems, lineItemResponse{ID: li.ID, VariantID: li.VariantID, Quantity: li.Quantity, Price: li.Price})
	}
	for _, a := range o.Adjustments {
		resp.Adjustments = append(resp.Adjustments, adjustmentResponse{
			ID:             a.ID,
			AdjustableType: a.AdjustableType,
			AdjustableID:   a.AdjustableID,
			Label:          a.Label,
			Amount:         a.Amount,
			IncludedTax:    a.IncludedTax,
			State:          a.State,
		})
	}
	return resp
}

// ownedOrder loads the order named in the path and checks it belongs to the
// caller. Orders of other users are reported as missing.
func ownedOrder(ctx context.Context, svc orders.Service, r *http.Request) (*models.Order, error) {
	userID, err := middleware.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	orderID, err := validators.URLParamUUID(r, "orderId")
	if err != nil {
		return nil, err
	}
	order, err := svc.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID == nil || *order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
}

// CreateCart opens an empty cart for the caller.
func CreateCart(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
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
		order, err := svc.CreateCart(r.Context(), &userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		order, err := ownedOrder(r.Context(), svc, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// SetDistribution picks where the cart shops. The pairing must be able to
// supply every line item already in the cart.
func SetDistribution(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		order, err := ownedOrder(r.Context(), svc, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body distributionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.SetDistribution(r.Context(), orders.SetDistributionInput{
			OrderID:       order.ID,
			DistributorID: body.DistributorID,
			OrderCycleID:  body.OrderCycleID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(updated))
	}
}

func AddLineItem(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		order, err := ownedOrder(r.Context(), svc, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body lineItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.AddVariant(r.Context(), orders.AddVariantInput{
			OrderID:   order.ID,
			VariantID: body.VariantID,
			Quantity:  body.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(updated))
	}
}

// Complete checks the cart out. Fee adjustments are frozen and stock is
// decremented.
func Complete(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg)
			return
		}
		order, err := ownedOrder(r.Context(), svc, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		completed, err := svc.Complete(r.Context(), order.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(completed))
	}
}
