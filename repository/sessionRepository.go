package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/oleodata/cco_backend/config"
	"github.com/oleodata/cco_backend/models"
	"github.com/oleodata/cco_backend/utils"
)

const sessionRepositoryModule = "repository/sessionRepository.go"

// SessionRepository persists correction sessions. The session itself is
// stored as a JSON payload (decimal amounts serialize as strings, so
// nothing is lost); the queryable identity and status fields are lifted
// to the top level of the document.
type SessionRepository struct {
	db     *mongo.Database
	logger *logrus.Logger
}

func NewSessionRepository(db *mongo.Database, logger *logrus.Logger) *SessionRepository {
	return &SessionRepository{db: db, logger: logger}
}

type sessionDocument struct {
	SessionID string    `bson:"session_id"`
	CCOID     string    `bson:"cco_id"`
	Status    string    `bson:"status"`
	Scenario  string    `bson:"scenario"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
	Payload   string    `bson:"payload"`
}

// Save upserts the session keyed by session id.
func (r *SessionRepository) Save(ctx context.Context, session *models.CorrectionSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		config.LogError(r.logger, sessionRepositoryModule, "Save", "marshaling session", bson.M{"sessionId": session.SessionID}, err)
		return err
	}
	doc := sessionDocument{
		SessionID: session.SessionID,
		CCOID:     session.CCOID,
		Status:    string(session.Status),
		Scenario:  string(session.ScenarioDetected),
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
		Payload:   string(payload),
	}
	_, err = r.db.Collection(config.CollectionSessions).ReplaceOne(
		ctx,
		bson.M{"session_id": session.SessionID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		config.LogError(r.logger, sessionRepositoryModule, "Save", "upserting session", bson.M{"sessionId": session.SessionID}, err)
	}
	return err
}

// FindByID loads a session. utils.ErrorSessionNotFound when absent.
func (r *SessionRepository) FindByID(ctx context.Context, sessionID string) (*models.CorrectionSession, error) {
	var doc sessionDocument
	err := r.db.Collection(config.CollectionSessions).FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.ErrorSessionNotFound
		}
		config.LogError(r.logger, sessionRepositoryModule, "FindByID", "querying session", bson.M{"sessionId": sessionID}, err)
		return nil, err
	}
	var session models.CorrectionSession
	if err := json.Unmarshal([]byte(doc.Payload), &session); err != nil {
		config.LogError(r.logger, sessionRepositoryModule, "FindByID", "unmarshaling session payload", bson.M{"sessionId": sessionID}, err)
		return nil, err
	}
	return &session, nil
}
