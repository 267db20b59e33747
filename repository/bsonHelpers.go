package repository

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/oleodata/cco_backend/utils"
)

// The legacy importers were not consistent about BSON types: money shows
// up as Decimal128, double or even string, and timestamps as BSON dates
// or ISO strings with assorted offsets. The coercers below absorb that.

func coerceDecimal(v interface{}) decimal.Decimal {
	switch t := v.(type) {
	case primitive.Decimal128:
		return utils.DecimalFromBson(t)
	case float64:
		return decimal.NewFromFloat(t)
	case int32:
		return decimal.NewFromInt32(t)
	case int64:
		return decimal.NewFromInt(t)
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func coerceTime(v interface{}) time.Time {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case string:
		parsed, err := utils.ParseFlexibleTime(t)
		if err != nil {
			return time.Time{}
		}
		return parsed.UTC()
	default:
		return time.Time{}
	}
}

func coerceInt(v interface{}) int {
	switch t := v.(type) {
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		return int(t)
	case primitive.Decimal128:
		return int(utils.DecimalFromBson(t).IntPart())
	default:
		return 0
	}
}

func coerceBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func coerceString(v interface{}) string {
	s, _ := v.(string)
	return s
}
