package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const mongoCollection = "session_items"

// MongoRepository stores session items in a single MongoDB collection with
// a compound (pk, sk) key and a descending recency index.
type MongoRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoItem struct {
	PK     string `bson:"pk"`
	SK     string `bson:"sk"`
	Data   []byte `bson:"data"`
	GSI1PK string `bson:"gsi1pk,omitempty"`
	GSI1SK string `bson:"gsi1sk,omitempty"`
}

// NewMongoRepository connects to MongoDB and ensures the indexes the keyed
// layout relies on.
func NewMongoRepository(uri, dbName string) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	repo := &MongoRepository{
		client: client,
		coll:   client.Database(dbName).Collection(mongoCollection),
	}

	if err := repo.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	log.Printf("✅ MongoDB session store connected (db: %s)", dbName)
	return repo, nil
}

func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pk", Value: 1}, {Key: "sk", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("pk_sk"),
		},
		{
			// Recency listing: partition key ascending, sort key descending
			Keys:    bson.D{{Key: "gsi1pk", Value: 1}, {Key: "gsi1sk", Value: -1}},
			Options: options.Index().SetName("gsi1").SetSparse(true),
		},
	}

	if _, err := r.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("%w: failed to ensure indexes: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetItem fetches a single item by its composite key
func (r *MongoRepository) GetItem(ctx context.Context, pk, sk string) (Item, error) {
	var doc mongoItem
	err := r.coll.FindOne(ctx, bson.M{"pk": pk, "sk": sk}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return Item{PK: doc.PK, SK: doc.SK, Data: doc.Data, GSI1PK: doc.GSI1PK, GSI1SK: doc.GSI1SK}, nil
}

// PutItem writes an item, replacing any existing record under the same key
func (r *MongoRepository) PutItem(ctx context.Context, item Item) error {
	doc := mongoItem{PK: item.PK, SK: item.SK, Data: item.Data, GSI1PK: item.GSI1PK, GSI1SK: item.GSI1SK}

	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"pk": item.PK, "sk": item.SK},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// QueryByPrefix returns the items under pk whose SK starts with skPrefix,
// ascending by SK.
func (r *MongoRepository) QueryByPrefix(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	// Half-open SK range covers the prefix without a regex scan
	filter := bson.M{
		"pk": pk,
		"sk": bson.M{"$gte": skPrefix, "$lt": skPrefix + "\xff"},
	}
	opts := options.Find().SetSort(bson.D{{Key: "sk", Value: 1}})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer cursor.Close(ctx)

	var items []Item
	for cursor.Next(ctx) {
		var doc mongoItem
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		items = append(items, Item{PK: doc.PK, SK: doc.SK, Data: doc.Data, GSI1PK: doc.GSI1PK, GSI1SK: doc.GSI1SK})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return items, nil
}

// QueryByIndex returns items in a recency partition, most recent first
func (r *MongoRepository) QueryByIndex(ctx context.Context, gsi1pk string, limit int, startAfter string) ([]Item, error) {
	filter := bson.M{"gsi1pk": gsi1pk}
	if startAfter != "" {
		filter["gsi1sk"] = bson.M{"$lt": startAfter}
	}

	opts := options.Find().SetSort(bson.D{{Key: "gsi1sk", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer cursor.Close(ctx)

	var items []Item
	for cursor.Next(ctx) {
		var doc mongoItem
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		items = append(items, Item{PK: doc.PK, SK: doc.SK, Data: doc.Data, GSI1PK: doc.GSI1PK, GSI1SK: doc.GSI1SK})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return items, nil
}

// Name identifies the storage engine
func (r *MongoRepository) Name() string { return "mongodb" }

// Ping checks connectivity to the store
func (r *MongoRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close disconnects from MongoDB
func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
