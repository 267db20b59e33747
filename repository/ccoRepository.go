package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/oleodata/cco_backend/config"
	"github.com/oleodata/cco_backend/models"
	"github.com/oleodata/cco_backend/utils"
)

const ccoRepositoryModule = "repository/ccoRepository.go"

// CCORepository reads cost accounts from the source collection and
// persists corrected snapshots to the corrected collection. The source
// collection is never written.
type CCORepository struct {
	db     *mongo.Database
	logger *logrus.Logger
}

func NewCCORepository(db *mongo.Database, logger *logrus.Logger) *CCORepository {
	return &CCORepository{db: db, logger: logger}
}

// ccoDocument keeps every volatile field loosely typed; legacy records
// mix BSON types freely (see bsonHelpers.go).
type ccoDocument struct {
	ID                          interface{}          `bson:"_id"`
	ContratoCPP                 interface{}          `bson:"contratoCpp"`
	Campo                       interface{}          `bson:"campo"`
	Remessa                     interface{}          `bson:"remessa"`
	RemessaExposicao            interface{}          `bson:"remessaExposicao"`
	FaseRemessa                 interface{}          `bson:"faseRemessa"`
	Exercicio                   interface{}          `bson:"exercicio"`
	Periodo                     interface{}          `bson:"periodo"`
	OrigemDosGastos             interface{}          `bson:"origemDosGastos"`
	DataReconhecimento          interface{}          `bson:"dataReconhecimento"`
	DataLancamento              interface{}          `bson:"dataLancamento"`
	ValorReconhecido            interface{}          `bson:"valorReconhecido"`
	ValorReconhecidoComOH       interface{}          `bson:"valorReconhecidoComOH"`
	OverHeadTotal               interface{}          `bson:"overHeadTotal"`
	OverHeadExploracao          interface{}          `bson:"overHeadExploracao"`
	OverHeadProducao            interface{}          `bson:"overHeadProducao"`
	ValorReconhecidoExploracao  interface{}          `bson:"valorReconhecidoExploracao"`
	ValorReconhecidoProducao    interface{}          `bson:"valorReconhecidoProducao"`
	ValorLancamentoTotal        interface{}          `bson:"valorLancamentoTotal"`
	ValorNaoReconhecido         interface{}          `bson:"valorNaoReconhecido"`
	ValorReconhecivel           interface{}          `bson:"valorReconhecivel"`
	ValorNaoPassivelRecuperacao interface{}          `bson:"valorNaoPassivelRecuperacao"`
	QuantidadeLancamento        interface{}          `bson:"quantidadeLancamento"`
	FlgRecuperado               interface{}          `bson:"flgRecuperado"`
	CorrecoesMonetarias         []correctionDocument `bson:"correcoesMonetarias"`
}

type correctionDocument struct {
	Tipo                          interface{} `bson:"tipo"`
	SubTipo                       interface{} `bson:"subTipo"`
	Contrato                      interface{} `bson:"contrato"`
	Campo                         interface{} `bson:"campo"`
	DataCorrecao                  interface{} `bson:"dataCorrecao"`
	DataCriacaoCorrecao           interface{} `bson:"dataCriacaoCorrecao"`
	ValorReconhecido              interface{} `bson:"valorReconhecido"`
	ValorReconhecidoComOH         interface{} `bson:"valorReconhecidoComOH"`
	ValorReconhecidoComOhOriginal interface{} `bson:"valorReconhecidoComOhOriginal"`
	OverHeadExploracao            interface{} `bson:"overHeadExploracao"`
	OverHeadProducao              interface{} `bson:"overHeadProducao"`
	OverHeadTotal                 interface{} `bson:"overHeadTotal"`
	DiferencaValor                interface{} `bson:"diferencaValor"`
	TaxaCorrecao                  interface{} `bson:"taxaCorrecao"`
	ValorRecuperado               interface{} `bson:"valorRecuperado"`
	ValorRecuperadoTotal          interface{} `bson:"valorRecuperadoTotal"`
	FaseRemessa                   interface{} `bson:"faseRemessa"`
	QuantidadeLancamento          interface{} `bson:"quantidadeLancamento"`
	ValorLancamentoTotal          interface{} `bson:"valorLancamentoTotal"`
	ValorNaoPassivelRecuperacao   interface{} `bson:"valorNaoPassivelRecuperacao"`
	ValorReconhecivel             interface{} `bson:"valorReconhecivel"`
	ValorNaoReconhecido           interface{} `bson:"valorNaoReconhecido"`
	ValorReconhecidoExploracao    interface{} `bson:"valorReconhecidoExploracao"`
	ValorReconhecidoProducao      interface{} `bson:"valorReconhecidoProducao"`
	IgpmAcumulado                 interface{} `bson:"igpmAcumulado"`
	IgpmAcumuladoReais            interface{} `bson:"igpmAcumuladoReais"`
	Ativo                         interface{} `bson:"ativo"`
	Observacoes                   interface{} `bson:"observacoes"`
	Transferencia                 interface{} `bson:"transferencia"`
}

func documentID(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case primitive.ObjectID:
		return t.Hex()
	default:
		return ""
	}
}

func (d *ccoDocument) toDomain() (*models.CCO, error) {
	cco := &models.CCO{
		ID:                          documentID(d.ID),
		ContratoCPP:                 coerceString(d.ContratoCPP),
		Campo:                       coerceString(d.Campo),
		Remessa:                     coerceInt(d.Remessa),
		RemessaExposicao:            coerceInt(d.RemessaExposicao),
		FaseRemessa:                 coerceString(d.FaseRemessa),
		Exercicio:                   coerceInt(d.Exercicio),
		Periodo:                     coerceInt(d.Periodo),
		OrigemDosGastos:             coerceString(d.OrigemDosGastos),
		DataReconhecimento:          coerceTime(d.DataReconhecimento),
		DataLancamento:              coerceTime(d.DataLancamento),
		ValorReconhecido:            coerceDecimal(d.ValorReconhecido),
		ValorReconhecidoComOH:       coerceDecimal(d.ValorReconhecidoComOH),
		OverHeadTotal:               coerceDecimal(d.OverHeadTotal),
		OverHeadExploracao:          coerceDecimal(d.OverHeadExploracao),
		OverHeadProducao:            coerceDecimal(d.OverHeadProducao),
		ValorReconhecidoExploracao:  coerceDecimal(d.ValorReconhecidoExploracao),
		ValorReconhecidoProducao:    coerceDecimal(d.ValorReconhecidoProducao),
		ValorLancamentoTotal:        coerceDecimal(d.ValorLancamentoTotal),
		ValorNaoReconhecido:         coerceDecimal(d.ValorNaoReconhecido),
		ValorReconhecivel:           coerceDecimal(d.ValorReconhecivel),
		ValorNaoPassivelRecuperacao: coerceDecimal(d.ValorNaoPassivelRecuperacao),
		QuantidadeLancamento:        coerceInt(d.QuantidadeLancamento),
		FlgRecuperado:               coerceBool(d.FlgRecuperado),
	}
	for i := range d.CorrecoesMonetarias {
		cco.CorrecoesMonetarias = append(cco.CorrecoesMonetarias, d.CorrecoesMonetarias[i].toDomain())
	}
	if err := cco.Validate(); err != nil {
		return nil, err
	}
	return cco, nil
}

func (d *correctionDocument) toDomain() models.MonetaryCorrection {
	return models.MonetaryCorrection{
		Tipo:                          models.CorrectionEntryType(coerceString(d.Tipo)),
		SubTipo:                       coerceString(d.SubTipo),
		Contrato:                      coerceString(d.Contrato),
		Campo:                         coerceString(d.Campo),
		DataCorrecao:                  coerceTime(d.DataCorrecao),
		DataCriacaoCorrecao:           coerceTime(d.DataCriacaoCorrecao),
		ValorReconhecido:              coerceDecimal(d.ValorReconhecido),
		ValorReconhecidoComOH:         coerceDecimal(d.ValorReconhecidoComOH),
		ValorReconhecidoComOhOriginal: coerceDecimal(d.ValorReconhecidoComOhOriginal),
		OverHeadExploracao:            coerceDecimal(d.OverHeadExploracao),
		OverHeadProducao:              coerceDecimal(d.OverHeadProducao),
		OverHeadTotal:                 coerceDecimal(d.OverHeadTotal),
		DiferencaValor:                coerceDecimal(d.DiferencaValor),
		TaxaCorrecao:                  coerceDecimal(d.TaxaCorrecao),
		ValorRecuperado:               coerceDecimal(d.ValorRecuperado),
		ValorRecuperadoTotal:          coerceDecimal(d.ValorRecuperadoTotal),
		FaseRemessa:                   coerceString(d.FaseRemessa),
		QuantidadeLancamento:          coerceInt(d.QuantidadeLancamento),
		ValorLancamentoTotal:          coerceDecimal(d.ValorLancamentoTotal),
		ValorNaoPassivelRecuperacao:   coerceDecimal(d.ValorNaoPassivelRecuperacao),
		ValorReconhecivel:             coerceDecimal(d.ValorReconhecivel),
		ValorNaoReconhecido:           coerceDecimal(d.ValorNaoReconhecido),
		ValorReconhecidoExploracao:    coerceDecimal(d.ValorReconhecidoExploracao),
		ValorReconhecidoProducao:      coerceDecimal(d.ValorReconhecidoProducao),
		IgpmAcumulado:                 coerceDecimal(d.IgpmAcumulado),
		IgpmAcumuladoReais:            coerceDecimal(d.IgpmAcumuladoReais),
		Ativo:                         coerceBool(d.Ativo),
		Observacao:                    coerceString(d.Observacoes),
		Transferencia:                 coerceBool(d.Transferencia),
	}
}

func bsonTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return primitive.NewDateTimeFromTime(t.UTC())
}

// fromDomain builds a strongly typed document for the corrected
// collection. Money goes back as Decimal128 at the persistence scale.
func fromDomain(cco *models.CCO) bson.M {
	corrections := make([]bson.M, 0, len(cco.CorrecoesMonetarias))
	for i := range cco.CorrecoesMonetarias {
		c := &cco.CorrecoesMonetarias[i]
		corrections = append(corrections, bson.M{
			"tipo":                          string(c.Tipo),
			"subTipo":                       c.SubTipo,
			"contrato":                      c.Contrato,
			"campo":                         c.Campo,
			"dataCorrecao":                  bsonTime(c.DataCorrecao),
			"dataCriacaoCorrecao":           bsonTime(c.DataCriacaoCorrecao),
			"valorReconhecido":              utils.DecimalToBson(c.ValorReconhecido),
			"valorReconhecidoComOH":         utils.DecimalToBson(c.ValorReconhecidoComOH),
			"valorReconhecidoComOhOriginal": utils.DecimalToBson(c.ValorReconhecidoComOhOriginal),
			"overHeadExploracao":            utils.DecimalToBson(c.OverHeadExploracao),
			"overHeadProducao":              utils.DecimalToBson(c.OverHeadProducao),
			"overHeadTotal":                 utils.DecimalToBson(c.OverHeadTotal),
			"diferencaValor":                utils.DecimalToBson(c.DiferencaValor),
			"taxaCorrecao":                  utils.DecimalToBson(c.TaxaCorrecao),
			"valorRecuperado":               utils.DecimalToBson(c.ValorRecuperado),
			"valorRecuperadoTotal":          utils.DecimalToBson(c.ValorRecuperadoTotal),
			"faseRemessa":                   c.FaseRemessa,
			"quantidadeLancamento":          c.QuantidadeLancamento,
			"valorLancamentoTotal":          utils.DecimalToBson(c.ValorLancamentoTotal),
			"valorNaoPassivelRecuperacao":   utils.DecimalToBson(c.ValorNaoPassivelRecuperacao),
			"valorReconhecivel":             utils.DecimalToBson(c.ValorReconhecivel),
			"valorNaoReconhecido":           utils.DecimalToBson(c.ValorNaoReconhecido),
			"valorReconhecidoExploracao":    utils.DecimalToBson(c.ValorReconhecidoExploracao),
			"valorReconhecidoProducao":      utils.DecimalToBson(c.ValorReconhecidoProducao),
			"igpmAcumulado":                 utils.DecimalToBson(c.IgpmAcumulado),
			"igpmAcumuladoReais":            utils.DecimalToBson(c.IgpmAcumuladoReais),
			"ativo":                         c.Ativo,
			"observacoes":                   c.Observacao,
			"transferencia":                 c.Transferencia,
		})
	}
	return bson.M{
		"_id":                         cco.ID,
		"contratoCpp":                 cco.ContratoCPP,
		"campo":                       cco.Campo,
		"remessa":                     cco.Remessa,
		"remessaExposicao":            cco.RemessaExposicao,
		"faseRemessa":                 cco.FaseRemessa,
		"exercicio":                   cco.Exercicio,
		"periodo":                     cco.Periodo,
		"origemDosGastos":             cco.OrigemDosGastos,
		"dataReconhecimento":          bsonTime(cco.DataReconhecimento),
		"dataLancamento":              bsonTime(cco.DataLancamento),
		"valorReconhecido":            utils.DecimalToBson(cco.ValorReconhecido),
		"valorReconhecidoComOH":       utils.DecimalToBson(cco.ValorReconhecidoComOH),
		"overHeadTotal":               utils.DecimalToBson(cco.OverHeadTotal),
		"overHeadExploracao":          utils.DecimalToBson(cco.OverHeadExploracao),
		"overHeadProducao":            utils.DecimalToBson(cco.OverHeadProducao),
		"valorReconhecidoExploracao":  utils.DecimalToBson(cco.ValorReconhecidoExploracao),
		"valorReconhecidoProducao":    utils.DecimalToBson(cco.ValorReconhecidoProducao),
		"valorLancamentoTotal":        utils.DecimalToBson(cco.ValorLancamentoTotal),
		"valorNaoReconhecido":         utils.DecimalToBson(cco.ValorNaoReconhecido),
		"valorReconhecivel":           utils.DecimalToBson(cco.ValorReconhecivel),
		"valorNaoPassivelRecuperacao": utils.DecimalToBson(cco.ValorNaoPassivelRecuperacao),
		"quantidadeLancamento":        cco.QuantidadeLancamento,
		"flgRecuperado":               cco.FlgRecuperado,
		"correcoesMonetarias":         corrections,
		"dataUltimaCorrecao":          bsonTime(time.Now().UTC()),
	}
}

func (r *CCORepository) findByID(ctx context.Context, collection, id string) (*models.CCO, error) {
	filter := bson.M{"_id": id}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		filter = bson.M{"_id": bson.M{"$in": bson.A{id, oid}}}
	}
	var doc ccoDocument
	err := r.db.Collection(collection).FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.ErrorRecordNotFound
		}
		config.LogError(r.logger, ccoRepositoryModule, "findByID", "decoding cco", bson.M{"id": id, "collection": collection}, err)
		return nil, err
	}
	return doc.toDomain()
}

// FindByID loads an account from the source collection.
func (r *CCORepository) FindByID(ctx context.Context, id string) (*models.CCO, error) {
	return r.findByID(ctx, config.CollectionCCO, id)
}

// FindCorrectedByID loads the corrected snapshot of an account.
func (r *CCORepository) FindCorrectedByID(ctx context.Context, id string) (*models.CCO, error) {
	return r.findByID(ctx, config.CollectionCCOCorrected, id)
}

// FindByFilters streams the accounts matching the scan filters, sorted
// by contract, field and recognition date.
func (r *CCORepository) FindByFilters(ctx context.Context, filters models.SystemFilters) ([]*models.CCO, error) {
	query := bson.M{}
	if filters.CCOID != "" {
		query["_id"] = filters.CCOID
	}
	if filters.ContratoCPP != "" {
		query["contratoCpp"] = filters.ContratoCPP
	}
	if filters.Campo != "" {
		query["campo"] = filters.Campo
	}
	if filters.OrigemDosGastos != "" {
		query["origemDosGastos"] = filters.OrigemDosGastos
	}
	if filters.AnoReconhecimento != 0 {
		query["exercicio"] = filters.AnoReconhecimento
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "contratoCpp", Value: 1},
		{Key: "campo", Value: 1},
		{Key: "dataReconhecimento", Value: 1},
	})
	cursor, err := r.db.Collection(config.CollectionCCO).Find(ctx, query, opts)
	if err != nil {
		config.LogError(r.logger, ccoRepositoryModule, "FindByFilters", "querying ccos", query, err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*models.CCO
	for cursor.Next(ctx) {
		var doc ccoDocument
		if err := cursor.Decode(&doc); err != nil {
			config.LogError(r.logger, ccoRepositoryModule, "FindByFilters", "decoding cco", nil, err)
			continue
		}
		cco, err := doc.toDomain()
		if err != nil {
			config.LogWarn(r.logger, ccoRepositoryModule, "FindByFilters", "skipping invalid cco", bson.M{"id": documentID(doc.ID)}, err.Error())
			continue
		}
		out = append(out, cco)
	}
	return out, cursor.Err()
}

// SaveCorrected upserts the corrected snapshot. The source record is
// left untouched.
func (r *CCORepository) SaveCorrected(ctx context.Context, cco *models.CCO) error {
	if err := cco.Validate(); err != nil {
		return err
	}
	doc := fromDomain(cco)
	_, err := r.db.Collection(config.CollectionCCOCorrected).ReplaceOne(
		ctx,
		bson.M{"_id": cco.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		config.LogError(r.logger, ccoRepositoryModule, "SaveCorrected", "upserting corrected cco", bson.M{"id": cco.ID}, err)
		return err
	}
	return nil
}
