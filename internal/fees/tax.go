package fees

import (
	"github.com/shopspring/decimal"

	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
)

var one = decimal.NewFromInt(1)

// Tax splits the tax on amount into the part already included in the price
// and the part charged on top, per the category's rates.
func Tax(amount decimal.Decimal, category *models.TaxCategory) (included, additional decimal.Decimal) {
	included, additional = decimal.Zero, decimal.Zero
	if category == nil {
		return included, additional
	}
	for _, rate := range category.TaxRates {
		if rate.IncludedInPrice {
			included = included.Add(amount.Sub(amount.Div(one.Add(rate.Amount))))
			continue
		}
		additional = additional.Add(amount.Mul(rate.Amount))
	}
	return included.Round(2), additional.Round(2)
}
