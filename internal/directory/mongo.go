package directory

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo stores each collection in a MongoDB collection of the same name,
// using the directory key as _id.
type Mongo struct {
	db *mongo.Database
}

// NewMongo wraps an open database handle.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

func (m *Mongo) Insert(ctx context.Context, collection, key string, doc Document) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	body := toBSON(doc)
	body["_id"] = key

	_, err := m.db.Collection(collection).ReplaceOne(ctx,
		bson.M{"_id": key},
		body,
		options.Replace().SetUpsert(true),
	)
	return mapMongoErr(err)
}

func (m *Mongo) Merge(ctx context.Context, collection, key string, fields Document) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	set := toBSON(fields)
	delete(set, "_id")

	res, err := m.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": set})
	if err != nil {
		return mapMongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) GetByKey(ctx context.Context, collection, key string) (Document, error) {
	if err := validateKey(collection, key); err != nil {
		return nil, err
	}
	var raw bson.M
	if err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": key}).Decode(&raw); err != nil {
		return nil, mapMongoErr(err)
	}
	return fromBSON(raw), nil
}

func (m *Mongo) QueryEquals(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	filter := bson.D{}
	for _, f := range filters {
		filter = append(filter, bson.E{Key: f.Field, Value: f.Value})
	}

	cur, err := m.db.Collection(collection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mapMongoErr(err)
	}
	defer cur.Close(ctx)

	var out []Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, fromBSON(raw))
	}
	return out, cur.Err()
}

func (m *Mongo) Delete(ctx context.Context, collection, key string) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	res, err := m.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return mapMongoErr(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureIndexes creates the declared indexes. Unique indexes only cover
// documents that carry every indexed field as a string.
func (m *Mongo) EnsureIndexes(ctx context.Context, specs ...IndexSpec) error {
	byCollection := make(map[string][]mongo.IndexModel)
	for _, spec := range specs {
		keys := bson.D{}
		partial := bson.M{}
		for _, field := range spec.Fields {
			keys = append(keys, bson.E{Key: field, Value: 1})
			partial[field] = bson.M{"$type": "string"}
		}
		opts := options.Index().SetName(spec.Name)
		if spec.Unique {
			opts.SetUnique(true).SetPartialFilterExpression(partial)
		}
		byCollection[spec.Collection] = append(byCollection[spec.Collection], mongo.IndexModel{Keys: keys, Options: opts})
	}

	for collection, models := range byCollection {
		if _, err := m.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.db.Client().Ping(ctx, nil)
}

func toBSON(doc Document) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		if t, ok := v.(time.Time); ok {
			out[k] = primitive.NewDateTimeFromTime(t)
			continue
		}
		out[k] = v
	}
	return out
}

func fromBSON(raw bson.M) Document {
	out := make(Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		switch val := v.(type) {
		case primitive.DateTime:
			out[k] = val.Time().UTC()
		case primitive.A:
			out[k] = []any(val)
		default:
			out[k] = val
		}
	}
	return out
}

func mapMongoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	default:
		return err
	}
}
