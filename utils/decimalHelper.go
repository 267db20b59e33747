package utils

import (
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MoneyScale is the number of decimal places kept on every persisted
// monetary amount and accumulator.
const MoneyScale = 15

// RoundMoney rounds half away from zero at MoneyScale places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// RateFactor converts a stored percentage (e.g. 4.5) into a
// multiplicative factor (1.045).
func RateFactor(pct decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Add(pct.Div(decimal.NewFromInt(100)))
}

// DecimalFromBson converts a Decimal128 loaded from Mongo. Unparseable
// values come back as zero, matching how legacy records with corrupt
// numerics are treated elsewhere.
func DecimalFromBson(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DecimalToBson converts for persistence, rounding to MoneyScale first.
func DecimalToBson(d decimal.Decimal) primitive.Decimal128 {
	out, err := primitive.ParseDecimal128(RoundMoney(d).String())
	if err != nil {
		out, _ = primitive.ParseDecimal128("0")
	}
	return out
}

// FormatMoney renders a value with thousands separators and two decimal
// places, e.g. 1234567.891 -> "1,234,567.89". Used in observation texts
// written onto applied corrections.
func FormatMoney(d decimal.Decimal) string {
	s := d.Round(2).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.Index(s, ".")
	intPart, fracPart := s[:dot], s[dot:]
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(fracPart)
	return b.String()
}
