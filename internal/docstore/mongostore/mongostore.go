// Package mongostore backs docstore.Store with MongoDB. Every collection name maps
// to a MongoDB collection and the document id is stored as _id.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore"
)

var operators = map[docstore.Operator]string{
	docstore.OpLT:  "$lt",
	docstore.OpLTE: "$lte",
	docstore.OpEQ:  "$eq",
	docstore.OpGTE: "$gte",
	docstore.OpGT:  "$gt",
}

type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	return toDocument(raw), nil
}

func (s *Store) Insert(ctx context.Context, collection, id string, fields docstore.Fields) error {
	doc := bson.M{"_id": id}
	for k, v := range fields {
		doc[k] = v
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return docstore.ErrAlreadyExists
		}
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	coll := s.db.Collection(collection)
	if len(fields) == 0 {
		n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("count %s/%s: %w", collection, id, err)
		}
		if n == 0 {
			return docstore.ErrNotFound
		}
		return nil
	}

	res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	if err := docstore.ValidateFilter(filter); err != nil {
		return nil, err
	}
	q := bson.M{filter.Field: bson.M{operators[filter.Op]: filter.Value}}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.db.Collection(collection).Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("query %s: decode: %w", collection, err)
	}

	docs := make([]docstore.Document, 0, len(rows))
	for _, raw := range rows {
		docs = append(docs, toDocument(raw))
	}
	return docs, nil
}

// Adjust relies on FindOneAndUpdate matching the floor guard and applying $inc in
// one server-side operation, so concurrent callers cannot interleave.
func (s *Store) Adjust(ctx context.Context, collection, id string, adj docstore.Adjustment) (int, error) {
	if err := docstore.ValidateAdjustment(adj); err != nil {
		return 0, err
	}
	coll := s.db.Collection(collection)

	filter := bson.M{"_id": id}
	if adj.Floor != nil {
		filter[adj.Field] = bson.M{"$gte": *adj.Floor - adj.Delta}
	}
	update := bson.M{"$inc": bson.M{adj.Field: adj.Delta}}
	if len(adj.Set) > 0 {
		update["$set"] = bson.M(adj.Set)
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var raw bson.M
	err := coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&raw)
	if err == nil {
		next, _ := toDocument(raw).Fields.Int(adj.Field)
		return next, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("adjust %s/%s: %w", collection, id, err)
	}

	// No match: either the document is missing or the floor guard rejected it.
	current, err := s.Get(ctx, collection, id)
	if err != nil {
		return 0, err
	}
	value, _ := current.Fields.Int(adj.Field)
	return value, &docstore.BelowFloorError{Current: value}
}

func toDocument(raw bson.M) docstore.Document {
	id := fmt.Sprint(raw["_id"])
	delete(raw, "_id")
	return docstore.Document{ID: id, Fields: docstore.Fields(raw)}
}
