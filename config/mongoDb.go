package config

import (
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names of the cost-account store.
const (
	CollectionCCO          = "conta_custo_oleo_entity"
	CollectionCCOCorrected = "conta_custo_oleo_corrigida_entity"
	CollectionIPCA         = "ipca_entity"
	CollectionIGPM         = "igpm_entity"
	CollectionSessions     = "ipca_correction_sessions"
)

var (
	mongoClient *mongo.Client
	mongoDb     *mongo.Database
)

func GetMongoClient() *mongo.Client {
	return mongoClient
}

func GetMongoDatabase() *mongo.Database {
	return mongoDb
}

// ConnectMongoWithRetry connects and sets the global client + database.
// Call from main() before building repositories.
func ConnectMongoWithRetry() {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
		log.Printf("MONGO_URI not set; defaulting to %s", uri)
	}
	dbName := os.Getenv("MONGO_DATABASE")
	if dbName == "" {
		dbName = "sgppServico"
		log.Printf("MONGO_DATABASE not set; defaulting to %s", dbName)
	}

	var attempt int
	for {
		attempt++
		client, err := mongo.Connect(ctx, options.Client().
			ApplyURI(uri).
			SetMaxPoolSize(100).
			SetServerSelectionTimeout(10*time.Second))
		if err == nil {
			err = client.Ping(ctx, readpref.Primary())
		}
		if err == nil {
			mongoClient = client
			mongoDb = client.Database(dbName)
			log.Printf("connected to mongo (attempt=%d db=%s)", attempt, dbName)
			return
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect mongo (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}

func DisconnectMongo() {
	if mongoClient != nil {
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Printf("mongo disconnect: %v", err)
		}
	}
}
