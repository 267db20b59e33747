package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/oleodata/cco_backend/config"
	"github.com/oleodata/cco_backend/models"
	"github.com/oleodata/cco_backend/utils"
)

const rateRepositoryModule = "repository/rateRepository.go"

// RateRepository resolves monthly index rates. Values are stored as
// percentages (4.5 means 4.5%) and returned as multiplicative factors
// (1.045). Lookups go through Redis first; rates never change once
// published, so a cached factor is always safe to serve.
type RateRepository struct {
	db     *mongo.Database
	logger *logrus.Logger
}

func NewRateRepository(db *mongo.Database, logger *logrus.Logger) *RateRepository {
	return &RateRepository{db: db, logger: logger}
}

type rateDocument struct {
	AnoReferencia int         `bson:"anoReferencia"`
	MesReferencia int         `bson:"mesReferencia"`
	Valor         interface{} `bson:"valor"`
}

func rateCollection(indexType models.CorrectionEntryType) string {
	if indexType == models.EntryTypeIGPM {
		return config.CollectionIGPM
	}
	return config.CollectionIPCA
}

// GetRate returns the correction factor for the reference month of the
// given index. utils.ErrorRateNotFound when the month was never
// published.
func (r *RateRepository) GetRate(ctx context.Context, year, month int, indexType models.CorrectionEntryType) (decimal.Decimal, error) {
	if !indexType.IsIndex() {
		config.LogWarn(r.logger, rateRepositoryModule, "GetRate", "non-index type, falling back to IPCA", bson.M{"tipo": indexType}, "unexpected index type")
		indexType = models.EntryTypeIPCA
	}

	cacheKey := config.RateCacheKey(string(indexType), year, month)
	var cached string
	if hit, err := config.GetRedisObject(cacheKey, &cached); err == nil && hit {
		if factor, perr := decimal.NewFromString(cached); perr == nil {
			return factor, nil
		}
	}

	var doc rateDocument
	err := r.db.Collection(rateCollection(indexType)).FindOne(ctx, bson.M{
		"anoReferencia": year,
		"mesReferencia": month,
	}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return decimal.Zero, fmt.Errorf("%s %02d/%04d: %w", indexType, month, year, utils.ErrorRateNotFound)
		}
		config.LogError(r.logger, rateRepositoryModule, "GetRate", "querying rate", bson.M{"tipo": indexType, "ano": year, "mes": month}, err)
		return decimal.Zero, err
	}

	factor := utils.RateFactor(coerceDecimal(doc.Valor))
	if err := config.SetRedisObject(cacheKey, factor.String(), config.RateCacheTTL); err != nil {
		config.LogWarn(r.logger, rateRepositoryModule, "GetRate", "caching rate", bson.M{"key": cacheKey}, err.Error())
	}
	return factor, nil
}
