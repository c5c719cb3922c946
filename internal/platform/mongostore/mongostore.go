// Package mongostore connects to the MongoDB deployment used when
// MATCH_STORE=mongo and prepares the collections the repositories need.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	UsersCollection   = "users"
	MatchesCollection = "matches"
)

type Store struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// Connect dials uri, verifies the primary is reachable and returns a Store
// bound to dbName.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetAppName("organlink").
		SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{Client: client, Database: client.Database(dbName)}, nil
}

// Ping satisfies db.Pinger so the health endpoint can report on Mongo.
func (s *Store) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

func (s *Store) Users() *mongo.Collection   { return s.Database.Collection(UsersCollection) }
func (s *Store) Matches() *mongo.Collection { return s.Database.Collection(MatchesCollection) }

// EnsureIndexes creates the unique indexes that back email lookups and the
// one-record-per-(donor, recipient, organ) rule for matches.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.Users().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email_key", Value: 1}},
			Options: options.Index().SetName("users_email_uq").SetUnique(true).
				SetPartialFilterExpression(bson.M{"email_key": bson.M{"$gt": ""}}),
		},
		{Keys: bson.D{{Key: "role", Value: 1}}, Options: options.Index().SetName("users_role")},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	_, err = s.Matches().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "donor_id", Value: 1},
				{Key: "recipient_id", Value: 1},
				{Key: "organ_key", Value: 1},
			},
			Options: options.Index().SetName("matches_triple_uq").SetUnique(true),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}, Options: options.Index().SetName("matches_status")},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}}, Options: options.Index().SetName("matches_recipient")},
	})
	if err != nil {
		return fmt.Errorf("create match indexes: %w", err)
	}
	return nil
}
