package balance

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBStore implements Store using MongoDB. The credit ledger uses the
// authorization ID as _id, so a replayed credit fails the insert with a
// duplicate key and the balance increment is skipped.
type MongoDBStore struct {
	client   *mongo.Client
	balances *mongo.Collection
	credits  *mongo.Collection
}

type balanceDoc struct {
	CustomerID string    `bson:"_id"`
	Tokens     int64     `bson:"token_balance"`
	AutoTopUp  bool      `bson:"auto_topup"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

type creditDoc struct {
	AuthorizationID string    `bson:"_id"`
	CustomerID      string    `bson:"customer_id"`
	Tokens          int64     `bson:"tokens"`
	Mode            string    `bson:"mode"`
	AppliedAt       time.Time `bson:"applied_at"`
}

// NewMongoDBStore creates a MongoDB-backed store.
func NewMongoDBStore(connectionString, database, collection string) (*MongoDBStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		// Disconnect() error during initialization cleanup is not actionable
		// and would only obscure the original connection failure.
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	if collection == "" {
		collection = "workspace_balances"
	}
	db := client.Database(database)
	store := &MongoDBStore{
		client:   client,
		balances: db.Collection(collection),
		credits:  db.Collection(collection + "_credits"),
	}

	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return store, nil
}

func (s *MongoDBStore) createIndexes(ctx context.Context) error {
	// _id is automatically unique; only the customer lookup needs an index.
	_, err := s.credits.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "customer_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create credit indexes: %w", err)
	}
	return nil
}

// ApplyCredit implements Store.
func (s *MongoDBStore) ApplyCredit(ctx context.Context, credit Credit) (bool, error) {
	appliedAt := credit.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now()
	}

	_, err := s.credits.InsertOne(ctx, creditDoc{
		AuthorizationID: credit.AuthorizationID,
		CustomerID:      credit.CustomerID,
		Tokens:          credit.Tokens,
		Mode:            credit.Mode,
		AppliedAt:       appliedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record credit: %w", err)
	}

	_, err = s.balances.UpdateOne(ctx,
		bson.M{"_id": credit.CustomerID},
		bson.M{
			"$inc":         bson.M{"token_balance": credit.Tokens},
			"$set":         bson.M{"updated_at": appliedAt},
			"$setOnInsert": bson.M{"auto_topup": false},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("increment balance: %w", err)
	}
	return true, nil
}

// Balance implements Store.
func (s *MongoDBStore) Balance(ctx context.Context, customerID string) (Snapshot, error) {
	var doc balanceDoc
	err := s.balances.FindOne(ctx, bson.M{"_id": customerID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("query balance: %w", err)
	}
	return Snapshot{
		CustomerID: doc.CustomerID,
		Tokens:     doc.Tokens,
		AutoTopUp:  doc.AutoTopUp,
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}

// SetAutoTopUp implements Store.
func (s *MongoDBStore) SetAutoTopUp(ctx context.Context, customerID string, enabled bool) error {
	_, err := s.balances.UpdateOne(ctx,
		bson.M{"_id": customerID},
		bson.M{"$set": bson.M{"auto_topup": enabled, "updated_at": time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set auto topup: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *MongoDBStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
