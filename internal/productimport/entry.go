package productimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
)

// Recognised header columns. "units" and "unit_value" are aliases.
const (
	ColName             = "name"
	ColSupplier         = "supplier"
	ColProducer         = "producer"
	ColCategory         = "category"
	ColOnHand           = "on_hand"
	ColOnDemand         = "on_demand"
	ColPrice            = "price"
	ColUnits            = "units"
	ColUnitValue        = "unit_value"
	ColUnitType         = "unit_type"
	ColVariantUnit      = "variant_unit"
	ColVariantUnitScale = "variant_unit_scale"
	ColVariantUnitName  = "variant_unit_name"
	ColDisplayName      = "display_name"
	ColSKU              = "sku"
	ColTaxCategory      = "tax_category"
	ColShippingCategory = "shipping_category"
	ColAvailableOn      = "available_on"
)

var knownColumns = map[string]bool{
	ColName: true, ColSupplier: true, ColProducer: true, ColCategory: true,
	ColOnHand: true, ColOnDemand: true, ColPrice: true, ColUnits: true,
	ColUnitValue: true, ColUnitType: true, ColVariantUnit: true,
	ColVariantUnitScale: true, ColVariantUnitName: true, ColDisplayName: true,
	ColSKU: true, ColTaxCategory: true, ColShippingCategory: true, ColAvailableOn: true,
}

// unit_type scales relative to the base unit (grams, litres).
var unitTypeScales = map[string]decimal.Decimal{
	"g":  decimal.NewFromInt(1),
	"kg": decimal.NewFromInt(1000),
	"t":  decimal.NewFromInt(1000000),
	"oz": decimal.RequireFromString("28.35"),
	"lb": decimal.RequireFromString("453.6"),
	"ml": decimal.RequireFromString("0.001"),
	"l":  decimal.NewFromInt(1),
	"kl": decimal.NewFromInt(1000),
}

var (
	ErrEmptyFile     = errors.New("file has no header row")
	ErrMissingHeader = errors.New("file is missing required columns")
)

// Entry is one data row of an upload plus its validation outcome.
type Entry struct {
	Line int

	Name             string
	Supplier         string
	Producer         string
	Category         string
	OnHand           *int
	OnDemand         *bool
	Price            *decimal.Decimal
	UnitValue        *decimal.Decimal
	UnitType         string
	VariantUnit      enums.VariantUnit
	VariantUnitScale *decimal.Decimal
	VariantUnitName  string
	DisplayName      string
	SKU              string
	TaxCategory      string
	ShippingCategory string
	AvailableOn      *time.Time

	Status enums.ImportEntryStatus
	Errors pkgerrors.FieldErrors

	// Resolved during validation.
	EnterpriseID       uuid.UUID
	ProducerID         uuid.UUID
	TaxonID            uuid.UUID
	TaxCategoryID      *uuid.UUID
	ShippingCategoryID *uuid.UUID
	ProductID          *uuid.UUID
	VariantID          *uuid.UUID
}

// Valid reports whether the entry may be saved.
func (e Entry) Valid() bool {
	return e.Status != "" && e.Status != enums.ImportInvalid && e.Errors.Empty()
}

func (e *Entry) addError(field, message string) {
	if e.Errors == nil {
		e.Errors = pkgerrors.FieldErrors{}
	}
	e.Errors.Add(field, message)
}

// ParseCSV reads the header and data rows. Cell-level problems are recorded
// on the entry; only unreadable files or missing columns fail the call.
func ParseCSV(r io.Reader, target enums.ImportTarget, maxRows int) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if knownColumns[name] {
			columns[name] = i
		}
	}
	if missing := missingColumns(columns, target); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, strings.Join(missing, ", "))
	}

	var entries []Entry
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if blank(record) {
			continue
		}
		if maxRows > 0 && len(entries) >= maxRows {
			return nil, fmt.Errorf("file exceeds %d rows", maxRows)
		}
		entries = append(entries, parseRecord(line, record, columns))
	}
	return entries, nil
}

func missingColumns(columns map[string]int, target enums.ImportTarget) []string {
	required := []string{ColName, ColSupplier, ColPrice, ColVariantUnit, ColCategory}
	if target == enums.ImportTargetInventories {
		required = []string{ColName, ColSupplier, ColProducer, ColPrice}
	}
	var missing []string
	for _, col := range required {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	_, hasUnits := columns[ColUnits]
	_, hasUnitValue := columns[ColUnitValue]
	if !hasUnits && !hasUnitValue {
		missing = append(missing, ColUnits)
	}
	return missing
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseRecord(line int, record []string, columns map[string]int) Entry {
	cell := func(col string) string {
		i, ok := columns[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	e := Entry{
		Line:             line,
		Name:             cell(ColName),
		Supplier:         cell(ColSupplier),
		Producer:         cell(ColProducer),
		Category:         cell(ColCategory),
		UnitType:         strings.ToLower(cell(ColUnitType)),
		VariantUnitName:  cell(ColVariantUnitName),
		DisplayName:      cell(ColDisplayName),
		SKU:              cell(ColSKU),
		TaxCategory:      cell(ColTaxCategory),
		ShippingCategory: cell(ColShippingCategory),
	}

	if raw := cell(ColOnHand); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			e.addError(ColOnHand, "must be a whole number")
		} else {
			e.OnHand = &n
		}
	}
	if raw := cell(ColOnDemand); raw != "" {
		b, err := parseBool(raw)
		if err != nil {
			e.addError(ColOnDemand, "must be true or false")
		} else {
			e.OnDemand = &b
		}
	}
	e.Price = parseDecimal(&e, ColPrice, cell(ColPrice))

	units := cell(ColUnits)
	if units == "" {
		units = cell(ColUnitValue)
	}
	e.UnitValue = parseDecimal(&e, ColUnits, units)
	e.VariantUnitScale = parseDecimal(&e, ColVariantUnitScale, cell(ColVariantUnitScale))

	if raw := cell(ColVariantUnit); raw != "" {
		unit := enums.VariantUnit(strings.ToLower(raw))
		if !unit.IsValid() {
			e.addError(ColVariantUnit, "must be weight, volume or items")
		} else {
			e.VariantUnit = unit
		}
	}
	if e.UnitType != "" {
		scale, ok := unitTypeScales[e.UnitType]
		if !ok {
			e.addError(ColUnitType, "unknown unit type")
		} else if e.VariantUnitScale == nil {
			e.VariantUnitScale = &scale
		}
	}
	if raw := cell(ColAvailableOn); raw != "" {
		at, err := parseDate(raw)
		if err != nil {
			e.addError(ColAvailableOn, "must be a date (YYYY-MM-DD)")
		} else {
			e.AvailableOn = &at
		}
	}
	return e
}

func parseDecimal(e *Entry, field, raw string) *decimal.Decimal {
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		e.addError(field, "must be a number")
		return nil
	}
	return &d
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y":
		return true, nil
	case "0", "false", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", raw)
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}

// StoredUnitValue converts the row's units into the base-unit value variants
// are stored and matched by. Item counts are stored as given.
func (e Entry) StoredUnitValue() *decimal.Decimal {
	if e.UnitValue == nil {
		return nil
	}
	if e.VariantUnit == enums.VariantUnitItems || e.VariantUnitScale == nil {
		v := *e.UnitValue
		return &v
	}
	v := e.UnitValue.Mul(*e.VariantUnitScale)
	return &v
}
