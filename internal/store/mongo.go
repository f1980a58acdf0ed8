package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mapsmith/mapsmith/internal/chain"
	"github.com/mapsmith/mapsmith/internal/state"
)

const (
	mapsCollection   = "maps"
	chainsCollection = "chains"
)

// record is the document shape shared by both collections.
type record struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Body      string    `bson:"body"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps maps and chains in the maps and chains collections.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, connectionString, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) LoadMap(ctx context.Context, id string) (*state.MapState, error) {
	rec, err := s.find(ctx, mapsCollection, id)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", id, err)
	}
	return decodeMap([]byte(rec.Body))
}

func (s *MongoStore) SaveMap(ctx context.Context, m *state.MapState) error {
	prepareMap(m)
	body, err := encodeBody(m)
	if err != nil {
		return err
	}
	if err := s.upsert(ctx, mapsCollection, record{ID: m.ID, Name: m.Name, Body: body, UpdatedAt: m.UpdatedAt}); err != nil {
		return fmt.Errorf("saving map %s: %w", m.ID, err)
	}
	return nil
}

func (s *MongoStore) LoadChain(ctx context.Context, id string) (*chain.MapChain, error) {
	rec, err := s.find(ctx, chainsCollection, id)
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", id, err)
	}
	return decodeChain([]byte(rec.Body))
}

func (s *MongoStore) SaveChain(ctx context.Context, c *chain.MapChain) error {
	prepareChain(c)
	body, err := encodeBody(c)
	if err != nil {
		return err
	}
	if err := s.upsert(ctx, chainsCollection, record{ID: c.ID, Name: c.Name, Body: body, UpdatedAt: c.UpdatedAt}); err != nil {
		return fmt.Errorf("saving chain %s: %w", c.ID, err)
	}
	return nil
}

func (s *MongoStore) ListChains(ctx context.Context) ([]chain.MapChain, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(chainsCollection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing chains: %w", err)
	}

	var recs []record
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("reading chains: %w", err)
	}

	chains := make([]chain.MapChain, 0, len(recs))
	for _, rec := range recs {
		c, err := decodeChain([]byte(rec.Body))
		if err != nil {
			return nil, err
		}
		chains = append(chains, *c)
	}
	return chains, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *MongoStore) find(ctx context.Context, collection, id string) (*record, error) {
	var rec record
	err := s.db.Collection(collection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *MongoStore) upsert(ctx context.Context, collection string, rec record) error {
	_, err := s.db.Collection(collection).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: rec.ID}},
		rec,
		options.Replace().SetUpsert(true))
	return err
}
