package productimport

import (
	"context"

	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/repo"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
)

// Repository resolves the names an upload refers to. Matching is exact and
// case-sensitive.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) EnterprisesByName(ctx context.Context, names []string) (map[string]models.Enterprise, error) {
	var rows []models.Enterprise
	if err := r.byName(ctx, names, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]models.Enterprise, len(rows))
	for _, e := range rows {
		out[e.Name] = e
	}
	return out, nil
}

func (r *Repository) TaxonsByName(ctx context.Context, names []string) (map[string]models.Taxon, error) {
	var rows []models.Taxon
	if err := r.byName(ctx, names, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]models.Taxon, len(rows))
	for _, t := range rows {
		out[t.Name] = t
	}
	return out, nil
}

func (r *Repository) TaxCategoriesByName(ctx context.Context, names []string) (map[string]models.TaxCategory, error) {
	var rows []models.TaxCategory
	if err := r.byName(ctx, names, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]models.TaxCategory, len(rows))
	for _, c := range rows {
		out[c.Name] = c
	}
	return out, nil
}

func (r *Repository) ShippingCategoriesByName(ctx context.Context, names []string) (map[string]models.ShippingCategory, error) {
	var rows []models.ShippingCategory
	if err := r.byName(ctx, names, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]models.ShippingCategory, len(rows))
	for _, c := range rows {
		out[c.Name] = c
	}
	return out, nil
}

func (r *Repository) byName(ctx context.Context, names []string, dest any) error {
	if len(names) == 0 {
		return nil
	}
	return r.DB(ctx).Where("name IN ?", names).Find(dest).Error
}
