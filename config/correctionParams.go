package config

import (
	"log"
	"os"
	"strconv"
	"sync"
)

// CorrectionParams holds the tunable rules of the monetary correction
// calendar. Values come from env with the defaults the business runs on.
type CorrectionParams struct {
	// RateMonthOffset shifts the anniversary month to the rate
	// reference month. -1 means the September correction uses the
	// August index.
	RateMonthOffset int
	// CutoffDay: corrections applied on or before this day of the
	// anniversary month (23:59:59) are on time. Also gates whether the
	// current month already counts as due.
	CutoffDay int
	// MaxLateMonths: an index correction this many months or more past
	// its anniversary no longer matches it.
	MaxLateMonths int
	// VigenteCutoffDay: day of the anniversary month from which the
	// current-year correction may be proposed.
	VigenteCutoffDay int
}

var (
	paramsOnce sync.Once
	params     CorrectionParams
)

func GetCorrectionParams() CorrectionParams {
	paramsOnce.Do(func() {
		params = CorrectionParams{
			RateMonthOffset:  envInt("CORRECTION_RATE_MONTH_OFFSET", -1),
			CutoffDay:        envInt("CORRECTION_CUTOFF_DAY", 19),
			MaxLateMonths:    envInt("CORRECTION_MAX_LATE_MONTHS", 12),
			VigenteCutoffDay: envInt("VIGENTE_CUTOFF_DAY", 16),
		}
	})
	return params
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("%s=%q is not an integer; using default %d", key, raw, def)
		return def
	}
	return v
}
