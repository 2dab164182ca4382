package session

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// MongoManager starts sessions on a mongo client.
type MongoManager struct {
	client *mongo.Client
}

func NewMongoManager(client *mongo.Client) *MongoManager {
	return &MongoManager{client: client}
}

func (m *MongoManager) StartSession(ctx context.Context) (Session, error) {
	s, err := m.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("starting mongo session: %w", err)
	}
	return &mongoSession{s: s}, nil
}

type mongoSession struct {
	s mongo.Session
}

func (s *mongoSession) Bind(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, s.s)
}

func (s *mongoSession) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// Primary reads with majority read/write concern: inside a transaction
	// every participant must observe the same linearized history.
	opts := options.Transaction().
		SetReadPreference(readpref.Primary()).
		SetReadConcern(readconcern.Majority()).
		SetWriteConcern(writeconcern.Majority())

	_, err := s.s.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, opts)
	return err
}

func (s *mongoSession) End(ctx context.Context) {
	s.s.EndSession(ctx)
}
