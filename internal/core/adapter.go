package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Field precedence for externally-sourced item records. Older exports and
// import payloads disagree on field names; the first present key wins.
var (
	quantityKeys    = []string{"quantity", "qty"}
	umKeys          = []string{"um", "unit_multiplier"}
	priceKeys       = []string{"price", "price_per_um", "unit_price"}
	vatKeys         = []string{"vat", "vat_rate"}
	descriptionKeys = []string{"description", "text"}
)

// NormalizeItemRecord maps a raw record (decoded JSON object, CSV row
// turned into a map, and so on) onto a LineItem using the fixed
// precedence lists above. Missing um defaults to 1, missing VAT to 0;
// quantity, price and description are left zero-valued for the regular
// item validation to reject.
func NormalizeItemRecord(rec map[string]any) (LineItem, error) {
	item := LineItem{UnitMultiplier: decimal.NewFromInt(1)}

	if v, ok := firstPresent(rec, descriptionKeys); ok {
		s, ok := v.(string)
		if !ok {
			return LineItem{}, fmt.Errorf("%w: description is not a string", ErrInvalidInput)
		}
		item.Description = strings.TrimSpace(s)
	}

	var err error
	if item.Quantity, err = decimalField(rec, quantityKeys, decimal.Zero); err != nil {
		return LineItem{}, err
	}
	if item.UnitMultiplier, err = decimalField(rec, umKeys, decimal.NewFromInt(1)); err != nil {
		return LineItem{}, err
	}
	if item.UnitPrice, err = decimalField(rec, priceKeys, decimal.Zero); err != nil {
		return LineItem{}, err
	}
	if item.VATRate, err = decimalField(rec, vatKeys, decimal.Zero); err != nil {
		return LineItem{}, err
	}

	return item, nil
}

func firstPresent(rec map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func decimalField(rec map[string]any, keys []string, def decimal.Decimal) (decimal.Decimal, error) {
	v, ok := firstPresent(rec, keys)
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s is not numeric", ErrInvalidInput, keys[0])
		}
		return d, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s is not numeric", ErrInvalidInput, keys[0])
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported type for %s", ErrInvalidInput, keys[0])
	}
}
