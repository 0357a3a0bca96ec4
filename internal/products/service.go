package product

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/openfoodnetwork/ofn-backend/internal/ordercycles"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
)

type catalogRepository interface {
	FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	ProductsWithVariants(ctx context.Context, variantIDs []uuid.UUID) ([]models.Product, error)
}

// Service answers catalog questions for shopfronts and carts.
type Service interface {
	Variant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	DistributedValidProducts(ctx context.Context, oc models.OrderCycle, distributorID uuid.UUID) ([]models.Product, error)
}

type service struct {
	repo catalogRepository
}

func NewService(repo catalogRepository) (Service, error) {
	if repo == nil {
		return nil, errors.New("product repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Variant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	v, err := s.repo.FindVariant(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	if v == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	return v, nil
}

// DistributedValidProducts lists the products the distributor sells in the
// cycle. Each product's Variants holds only its distributed variants.
func (s *service) DistributedValidProducts(ctx context.Context, oc models.OrderCycle, distributorID uuid.UUID) ([]models.Product, error) {
	distributed := ordercycles.VariantsDistributedBy(oc, distributorID)
	products, err := s.repo.ProductsWithVariants(ctx, distributed)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load distributed products")
	}
	return ValidDistributed(products, distributed), nil
}

// ValidDistributed narrows each product to its distributed variants and drops
// products whose only distributed variant is an obsolete master: the master
// is listed while the product has sellable variants of its own.
func ValidDistributed(products []models.Product, distributed []uuid.UUID) []models.Product {
	inCycle := make(map[uuid.UUID]bool, len(distributed))
	for _, id := range distributed {
		inCycle[id] = true
	}

	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		hasSellable := false
		var kept []models.Variant
		for _, v := range p.Variants {
			if !v.IsMaster {
				hasSellable = true
			}
			if inCycle[v.ID] {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			continue
		}
		if hasSellable && onlyMaster(kept) {
			continue
		}
		if hasSellable {
			kept = withoutMaster(kept)
		}
		p.Variants = kept
		out = append(out, p)
	}
	return out
}

func onlyMaster(variants []models.Variant) bool {
	for _, v := range variants {
		if !v.IsMaster {
			return false
		}
	}
	return true
}

func withoutMaster(variants []models.Variant) []models.Variant {
	out := make([]models.Variant, 0, len(variants))
	for _, v := range variants {
		if !v.IsMaster {
			out = append(out, v)
		}
	}
	return out
}
