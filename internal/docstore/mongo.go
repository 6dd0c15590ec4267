package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDatabase implements Database on a MongoDB database.
type MongoDatabase struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo wraps an already connected client. Close disconnects it.
func NewMongo(client *mongo.Client, dbName string) *MongoDatabase {
	return &MongoDatabase{
		client: client,
		db:     client.Database(dbName),
	}
}

func (m *MongoDatabase) Collection(name string) Collection {
	return &mongoCollection{coll: m.db.Collection(name)}
}

func (m *MongoDatabase) EnsureIndex(ctx context.Context, collection string, index Index) error {
	if len(index.Keys) == 0 {
		return errors.New("index requires at least one key")
	}
	keys := bson.D{}
	for _, key := range index.Keys {
		keys = append(keys, bson.E{Key: key, Value: 1})
	}
	model := mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(index.Unique),
	}
	if _, err := m.db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("create index on %s: %w", collection, err)
	}
	return nil
}

func (m *MongoDatabase) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoDatabase) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc any) error {
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (c *mongoCollection) FindOne(ctx context.Context, filter Filter, out any, omit ...string) error {
	projection := bson.M{"_id": 0}
	for _, field := range omit {
		projection[field] = 0
	}
	opts := options.FindOne().SetProjection(projection)

	err := c.coll.FindOne(ctx, mongoFilter(filter), opts).Decode(out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (c *mongoCollection) Find(ctx context.Context, filter Filter, opts FindOptions, out any) error {
	findOpts := options.Find().SetProjection(bson.M{"_id": 0})
	if opts.SortField != "" {
		order := 1
		if opts.SortDesc {
			order = -1
		}
		findOpts.SetSort(bson.D{{Key: opts.SortField, Value: order}})
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cursor, err := c.coll.Find(ctx, mongoFilter(filter), findOpts)
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter Filter, set Fields) (int64, error) {
	if len(set) == 0 {
		return c.coll.CountDocuments(ctx, mongoFilter(filter), options.Count().SetLimit(1))
	}

	result, err := c.coll.UpdateOne(ctx, mongoFilter(filter), bson.M{"$set": bson.M(set)})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return result.MatchedCount, nil
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter Filter) (int64, error) {
	result, err := c.coll.DeleteOne(ctx, mongoFilter(filter))
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func mongoFilter(filter Filter) bson.M {
	m := make(bson.M, len(filter))
	for key, value := range filter {
		m[key] = value
	}
	return m
}
