package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"city_ingest/internal/config"
	"city_ingest/internal/models"
)

// MongoDB implements Store on top of a MongoDB collection with a unique
// fingerprint index.
type MongoDB struct {
	client  *mongo.Client
	records *mongo.Collection
}

func NewMongoDB(cfg config.DBConfig) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Connection))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("can't ping MongoDB: %v", err)
	}

	d := &MongoDB{
		client:  client,
		records: client.Database(cfg.Database).Collection(cfg.Collection),
	}

	if err := d.createIndexes(); err != nil {
		return nil, fmt.Errorf("can't create indexes: %v", err)
	}

	return d, nil
}

func (d *MongoDB) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "fingerprint", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := d.records.Indexes().CreateOne(ctx, indexModel); err != nil && err.Error() != "index already exists" {
		slog.Warn("fingerprint index creation failed", "err", err)
	}

	indexModel = mongo.IndexModel{
		Keys: bson.D{{Key: "category", Value: 1}},
	}
	if _, err := d.records.Indexes().CreateOne(ctx, indexModel); err != nil && err.Error() != "index already exists" {
		slog.Warn("category index creation failed", "err", err)
	}

	return nil
}

func (d *MongoDB) FindByFingerprint(ctx context.Context, fp string) (*models.ExistingRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var rec models.ExistingRecord
	err := d.records.FindOne(ctx, bson.M{"fingerprint": fp}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Upsert writes the record keyed by its fingerprint. The unique index makes
// concurrent upserts of the same fingerprint collapse into a single record.
func (d *MongoDB) Upsert(ctx context.Context, rec *models.ExistingRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"fingerprint": rec.Fingerprint}

	var updateDoc bson.M
	data, err := bson.Marshal(rec)
	if err != nil {
		return err
	}
	if err := bson.Unmarshal(data, &updateDoc); err != nil {
		return err
	}
	delete(updateDoc, "_id")

	_, err = d.records.UpdateOne(ctx, filter, bson.M{"$set": updateDoc}, opts)
	return err
}

func (d *MongoDB) DeleteMany(ctx context.Context, f RecordFilter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := d.records.DeleteMany(ctx, filterToBSON(f))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (d *MongoDB) CountDocuments(ctx context.Context, f RecordFilter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return d.records.CountDocuments(ctx, filterToBSON(f))
}

func (d *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

func filterToBSON(f RecordFilter) bson.M {
	filter := bson.M{}
	if f.Ingested != nil {
		filter["ingested"] = *f.Ingested
	}
	if f.SourceName != "" {
		filter["source_name"] = f.SourceName
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	return filter
}
