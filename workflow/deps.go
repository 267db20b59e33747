package workflow

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"

	"github.com/oleodata/cco_backend/models"
)

// EntityRepository is the slice of the cost-account store the workflows
// need. *repository.CCORepository satisfies it.
type EntityRepository interface {
	FindByID(ctx context.Context, id string) (*models.CCO, error)
	FindCorrectedByID(ctx context.Context, id string) (*models.CCO, error)
	SaveCorrected(ctx context.Context, cco *models.CCO) error
	FindByFilters(ctx context.Context, filters models.SystemFilters) ([]*models.CCO, error)
}

// RateRepository resolves a monthly index rate as a multiplicative
// factor. *repository.RateRepository satisfies it.
type RateRepository interface {
	GetRate(ctx context.Context, year, month int, indexType models.CorrectionEntryType) (decimal.Decimal, error)
}

// SessionStore persists correction sessions.
// *repository.SessionRepository satisfies it.
type SessionStore interface {
	Save(ctx context.Context, session *models.CorrectionSession) error
	FindByID(ctx context.Context, sessionID string) (*models.CorrectionSession, error)
}

// ApplyLocker serializes apply operations per account.
// *redislock.Client satisfies it; a nil locker disables locking.
type ApplyLocker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}
