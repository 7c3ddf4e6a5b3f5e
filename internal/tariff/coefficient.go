package tariff

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"tariff-sync/internal/models"
)

// PreferredCoefficientFields lists the known coefficient fields, most relevant first.
var PreferredCoefficientFields = []string{
	"boxDeliveryCoefExpr",
	"boxStorageCoefExpr",
	"boxDeliveryMarketplaceCoefExpr",
	"coef",
	"coefficient",
	"k",
}

// ExtractCoefficient picks the representative coefficient of a record. The
// first preferred field that parses wins; otherwise the first numeric-like
// field in document order.
func ExtractCoefficient(r models.TariffRecord) (decimal.Decimal, bool) {
	if !r.IsObject() {
		return decimal.Decimal{}, false
	}
	for _, key := range PreferredCoefficientFields {
		if v, ok := r.Field(key); ok {
			if d, ok := ParseNumeric(v); ok {
				return d, true
			}
		}
	}

	var (
		found decimal.Decimal
		ok    bool
	)
	r.Each(func(_ string, v gjson.Result) bool {
		found, ok = ParseNumeric(v)
		return !ok
	})
	return found, ok
}
