// Package tariff turns raw WB tariff records into the published coefficient table.
package tariff

import (
	"encoding/json"
	"math"
	"math/big"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ParseNumeric normalizes locale-formatted numbers ("11,2", " 1 000,5 ").
// Anything that does not yield a finite float64 reports false. A string that
// is empty after normalization is zero.
func ParseNumeric(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Decimal{}, false
	case decimal.Decimal:
		return finite(n)
	case float64:
		return fromFloat(n)
	case float32:
		return fromFloat(float64(n))
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(n)), 0), true
	case uint32:
		return decimal.NewFromInt(int64(n)), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0), true
	case json.Number:
		return parseText(string(n))
	case string:
		return parseText(n)
	case gjson.Result:
		switch n.Type {
		case gjson.Number:
			return parseText(n.Raw)
		case gjson.String:
			return parseText(n.Str)
		}
		return decimal.Decimal{}, false
	default:
		return decimal.Decimal{}, false
	}
}

func fromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(f), true
}

func parseText(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return finite(d)
}

// finite rejects values a float64 cannot hold; the grid publishes floats.
func finite(d decimal.Decimal) (decimal.Decimal, bool) {
	if math.IsInf(d.InexactFloat64(), 0) {
		return decimal.Decimal{}, false
	}
	return d, true
}
