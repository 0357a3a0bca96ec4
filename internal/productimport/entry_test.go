package productimport

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

func TestParseCSV(t *testing.T) {
	input := "\ufeffname, supplier,category,price,unit_value,unit_type,variant_unit,on_hand,on_demand,available_on,ignored\n" +
		"Carrots,Green Farm,Vegetables,3.50,500,g,weight,20,yes,2026-03-01,x\n" +
		",,,,,,,,,,\n" +
		"Beets,Green Farm,Vegetables,abc,1,stone,grams,-,maybe,soon,\n"

	entries, err := ParseCSV(strings.NewReader(input), enums.ImportTargetProductList, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "Carrots", first.Name)
	assert.Equal(t, "Green Farm", first.Supplier)
	assert.Equal(t, "3.5", first.Price.String())
	assert.Equal(t, "500", first.UnitValue.String())
	assert.Equal(t, enums.VariantUnitWeight, first.VariantUnit)
	assert.Equal(t, 20, *first.OnHand)
	assert.True(t, *first.OnDemand)
	assert.Equal(t, 2026, first.AvailableOn.Year())
	assert.Empty(t, first.Errors)
	assert.Equal(t, "500", first.StoredUnitValue().String())

	second := entries[1]
	assert.Equal(t, 4, second.Line)
	for _, field := range []string{ColPrice, ColUnitType, ColVariantUnit, ColOnHand, ColOnDemand, ColAvailableOn} {
		assert.Contains(t, second.Errors, field)
	}
}

func TestParseCSVRequiresColumns(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""), enums.ImportTargetProductList, 0)
	require.ErrorIs(t, err, ErrEmptyFile)

	_, err = ParseCSV(strings.NewReader("name,supplier,price,units\n"), enums.ImportTargetProductList, 0)
	require.ErrorIs(t, err, ErrMissingHeader)
	assert.Contains(t, err.Error(), "variant_unit")
	assert.Contains(t, err.Error(), "category")

	_, err = ParseCSV(strings.NewReader("name,supplier,producer,price,units\n"), enums.ImportTargetInventories, 0)
	require.NoError(t, err)
}

func TestParseCSVRowLimit(t *testing.T) {
	input := "name,supplier,producer,price,units\na,b,c,1,1\nd,e,f,1,1\n"
	_, err := ParseCSV(strings.NewReader(input), enums.ImportTargetInventories, 1)
	require.Error(t, err)

	entries, err := ParseCSV(strings.NewReader(input), enums.ImportTargetInventories, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStoredUnitValue(t *testing.T) {
	cases := []struct {
		name  string
		entry Entry
		want  string
	}{
		{"kilograms", Entry{UnitValue: decimalPtr("1.5"), VariantUnit: enums.VariantUnitWeight, VariantUnitScale: decimalPtr("1000")}, "1500"},
		{"millilitres", Entry{UnitValue: decimalPtr("250"), VariantUnit: enums.VariantUnitVolume, VariantUnitScale: decimalPtr("0.001")}, "0.25"},
		{"items ignore scale", Entry{UnitValue: decimalPtr("6"), VariantUnit: enums.VariantUnitItems, VariantUnitScale: decimalPtr("1000")}, "6"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.entry.StoredUnitValue()
			require.NotNil(t, got)
			assert.True(t, decimalPtr(tc.want).Equal(*got), "got %s", got)
		})
	}
	assert.Nil(t, Entry{}.StoredUnitValue())
}

func TestApplyDefaults(t *testing.T) {
	onHand := 4
	e := Entry{OnHand: &onHand, TaxCategory: "Zero"}
	applyDefaults(&e, map[string]Default{
		DefaultOnHand:           {Mode: enums.ImportDefaultOverwriteEmpty, Value: "9"},
		DefaultTaxCategory:      {Mode: enums.ImportDefaultOverwriteAll, Value: "GST"},
		DefaultShippingCategory: {Mode: enums.ImportDefaultOverwriteEmpty, Value: "Chilled"},
		DefaultAvailableOn:      {Mode: enums.ImportDefaultOverwriteEmpty, Value: "2026-01-02"},
	})
	assert.Equal(t, 4, *e.OnHand)
	assert.Equal(t, "GST", e.TaxCategory)
	assert.Equal(t, "Chilled", e.ShippingCategory)
	require.NotNil(t, e.AvailableOn)
	assert.Equal(t, 2, e.AvailableOn.Day())
}

func TestSettingsValidate(t *testing.T) {
	id := uuid.New()
	require.NoError(t, Settings{}.Validate())
	require.NoError(t, Settings{ImportInto: enums.ImportTargetInventories, Enterprises: map[uuid.UUID]EnterpriseSettings{
		id: {ResetAllAbsent: true, Defaults: map[string]Default{DefaultOnHand: {Mode: enums.ImportDefaultOverwriteAll, Value: "0"}}},
	}}.Validate())

	assert.Error(t, Settings{ImportInto: "catalogue"}.Validate())
	assert.Error(t, Settings{Enterprises: map[uuid.UUID]EnterpriseSettings{
		id: {Defaults: map[string]Default{DefaultAvailableOn: {Mode: enums.ImportDefaultOverwriteAll, Value: "next week"}}},
	}}.Validate())
}
