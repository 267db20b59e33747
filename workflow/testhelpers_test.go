package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/oleodata/cco_backend/models"
	"github.com/oleodata/cco_backend/utils"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fakeRateRepo struct {
	rates map[string]decimal.Decimal
}

func newFakeRateRepo() *fakeRateRepo {
	return &fakeRateRepo{rates: make(map[string]decimal.Decimal)}
}

func (f *fakeRateRepo) set(year, month int, factor string) *fakeRateRepo {
	f.rates[fmt.Sprintf("%d-%02d", year, month)] = money(factor)
	return f
}

func (f *fakeRateRepo) GetRate(_ context.Context, year, month int, _ models.CorrectionEntryType) (decimal.Decimal, error) {
	rate, ok := f.rates[fmt.Sprintf("%d-%02d", year, month)]
	if !ok {
		return decimal.Zero, fmt.Errorf("rate %02d/%04d: %w", month, year, utils.ErrorRateNotFound)
	}
	return rate, nil
}

type fakeEntityRepo struct {
	originals map[string]*models.CCO
	corrected map[string]*models.CCO
	saveErr   error
}

func newFakeEntityRepo(ccos ...*models.CCO) *fakeEntityRepo {
	repo := &fakeEntityRepo{
		originals: make(map[string]*models.CCO),
		corrected: make(map[string]*models.CCO),
	}
	for _, cco := range ccos {
		repo.originals[cco.ID] = cco
	}
	return repo
}

func (f *fakeEntityRepo) FindByID(_ context.Context, id string) (*models.CCO, error) {
	cco, ok := f.originals[id]
	if !ok {
		return nil, fmt.Errorf("cco %s: %w", id, utils.ErrorRecordNotFound)
	}
	return cco, nil
}

func (f *fakeEntityRepo) FindCorrectedByID(_ context.Context, id string) (*models.CCO, error) {
	cco, ok := f.corrected[id]
	if !ok {
		return nil, fmt.Errorf("cco %s: %w", id, utils.ErrorRecordNotFound)
	}
	return cco, nil
}

func (f *fakeEntityRepo) SaveCorrected(_ context.Context, cco *models.CCO) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.corrected[cco.ID] = cco
	return nil
}

func (f *fakeEntityRepo) FindByFilters(_ context.Context, _ models.SystemFilters) ([]*models.CCO, error) {
	ids := make([]string, 0, len(f.originals))
	for id := range f.originals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*models.CCO, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.originals[id])
	}
	return out, nil
}

type fakeSessionStore struct {
	sessions map[string]models.CorrectionSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]models.CorrectionSession)}
}

func (f *fakeSessionStore) Save(_ context.Context, session *models.CorrectionSession) error {
	f.sessions[session.SessionID] = *session
	return nil
}

func (f *fakeSessionStore) FindByID(_ context.Context, sessionID string) (*models.CorrectionSession, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, utils.ErrorSessionNotFound)
	}
	return &session, nil
}

func indexCorrection(appliedAt time.Time, original, corrected, taxa string) models.MonetaryCorrection {
	return models.MonetaryCorrection{
		Tipo:                          models.EntryTypeIPCA,
		DataCorrecao:                  appliedAt,
		ValorReconhecidoComOhOriginal: money(original),
		ValorReconhecidoComOH:         money(corrected),
		DiferencaValor:                money(corrected).Sub(money(original)),
		TaxaCorrecao:                  money(taxa),
		Ativo:                         true,
	}
}

func recoveryCorrection(appliedAt time.Time, before, after string) models.MonetaryCorrection {
	return models.MonetaryCorrection{
		Tipo:                          models.EntryTypeRecuperacao,
		DataCorrecao:                  appliedAt,
		ValorReconhecidoComOhOriginal: money(before),
		ValorReconhecidoComOH:         money(after),
		DiferencaValor:                money(after).Sub(money(before)),
		TaxaCorrecao:                  money("1"),
		Ativo:                         true,
	}
}

func testCCO(id string, recognition time.Time, rootValue string, corrections ...models.MonetaryCorrection) *models.CCO {
	return &models.CCO{
		ID:                    id,
		ContratoCPP:           "CPP-001",
		Campo:                 "CAMPO-A",
		DataReconhecimento:    recognition,
		ValorReconhecidoComOH: money(rootValue),
		CorrecoesMonetarias:   corrections,
	}
}
