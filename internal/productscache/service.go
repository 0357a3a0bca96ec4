// Package productscache serves shopfront product listings from redis and
// drops them when catalog, order cycle or override data changes.
package productscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openfoodnetwork/ofn-backend/internal/calculator"
	"github.com/openfoodnetwork/ofn-backend/internal/ordercycles"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/redis"
)

type orderCycleLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.OrderCycle, error)
}

type catalog interface {
	DistributedValidProducts(ctx context.Context, oc models.OrderCycle, distributorID uuid.UUID) ([]models.Product, error)
}

type overrideIndex interface {
	Indexed(ctx context.Context, hubID uuid.UUID) (map[uuid.UUID]models.VariantOverride, error)
}

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	ProductsKey(distributorID, orderCycleID string) string
}

// Service returns the listing a distributor sells in an order cycle.
type Service interface {
	ProductsFor(ctx context.Context, distributorID, orderCycleID uuid.UUID) ([]ShopProduct, error)
}

type service struct {
	orderCycles orderCycleLoader
	catalog     catalog
	overrides   overrideIndex
	store       store
	ttl         time.Duration
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(orderCycles orderCycleLoader, catalog catalog, overrides overrideIndex, store store, ttl time.Duration, logg *logger.Logger) (Service, error) {
	switch {
	case orderCycles == nil:
		return nil, errors.New("order cycle loader required")
	case catalog == nil:
		return nil, errors.New("catalog required")
	case overrides == nil:
		return nil, errors.New("variant override index required")
	case store == nil:
		return nil, errors.New("cache store required")
	case logg == nil:
		return nil, errors.New("logger required")
	}
	return &service{
		orderCycles: orderCycles,
		catalog:     catalog,
		overrides:   overrides,
		store:       store,
		ttl:         ttl,
		logg:        logg,
		now:         time.Now,
	}, nil
}

// ProductsFor reads through the cache. Cache failures degrade to a fresh
// build and are logged.
func (s *service) ProductsFor(ctx context.Context, distributorID, orderCycleID uuid.UUID) ([]ShopProduct, error) {
	key := s.store.ProductsKey(distributorID.String(), orderCycleID.String())
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"distributor_id": distributorID.String(),
		"order_cycle_id": orderCycleID.String(),
	})

	raw, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		var cached []ShopProduct
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			return cached, nil
		}
		s.logg.Warn(logCtx, "discarding unreadable cached listing")
	case !redis.IsMiss(err):
		s.logg.Error(logCtx, "products cache read failed", err)
	}

	listing, err := s.build(ctx, distributorID, orderCycleID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(listing)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode listing")
	}
	if err := s.store.Set(ctx, key, string(payload), s.ttl); err != nil {
		s.logg.Error(logCtx, "products cache write failed", err)
	} else {
		s.logg.Debug(logCtx, "products cache filled")
	}
	return listing, nil
}

func (s *service) build(ctx context.Context, distributorID, orderCycleID uuid.UUID) ([]ShopProduct, error) {
	oc, err := s.orderCycles.FindByID(ctx, orderCycleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order cycle")
	}
	if oc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order cycle not found")
	}
	if !ordercycles.HasDistributor(*oc, distributorID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "distributor does not sell in this order cycle")
	}

	products, err := s.catalog.DistributedValidProducts(ctx, *oc, distributorID)
	if err != nil {
		return nil, err
	}
	overrides, err := s.overrides.Indexed(ctx, distributorID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]ShopProduct, 0, len(products))
	for _, p := range products {
		if p.AvailableOn != nil && p.AvailableOn.After(now) {
			continue
		}
		sp := ShopProduct{
			ID:          p.ID,
			Name:        p.Name,
			SupplierID:  p.SupplierID,
			VariantUnit: string(p.VariantUnit),
		}
		if p.Supplier != nil {
			sp.SupplierName = p.Supplier.Name
		}
		for _, v := range p.Variants {
			item, err := shopVariant(*oc, distributorID, v, overrides)
			if err != nil {
				return nil, err
			}
			sp.Variants = append(sp.Variants, item)
		}
		out = append(out, sp)
	}
	return out, nil
}

func shopVariant(oc models.OrderCycle, distributorID uuid.UUID, v models.Variant, overrides map[uuid.UUID]models.VariantOverride) (ShopVariant, error) {
	sv := ShopVariant{
		ID:          v.ID,
		SKU:         v.SKU,
		DisplayName: v.DisplayName,
		UnitValue:   v.UnitValue,
		Price:       v.Price,
		OnHand:      v.OnHand,
		OnDemand:    v.OnDemand,
	}
	if vo, ok := overrides[v.ID]; ok {
		if vo.Price != nil {
			sv.Price = *vo.Price
		}
		if vo.StockOverridden() {
			sv.OnHand = *vo.CountOnHand
		}
		if vo.OnDemand != nil {
			sv.OnDemand = *vo.OnDemand
		}
		if vo.SKU != nil && *vo.SKU != "" {
			sv.SKU = *vo.SKU
		}
	}

	weight := decimal.Zero
	if v.WeightKg != nil {
		weight = *v.WeightKg
	}
	fees, err := ordercycles.FeesByTypeForItem(oc, v.ID, distributorID, calculator.LineItem(sv.Price, 1, weight))
	if err != nil {
		return ShopVariant{}, err
	}
	sv.Fees = fees
	sv.FeesTotal = decimal.Zero
	for _, amount := range fees {
		sv.FeesTotal = sv.FeesTotal.Add(amount)
	}
	sv.PriceWithFees = sv.Price.Add(sv.FeesTotal)
	return sv, nil
}
