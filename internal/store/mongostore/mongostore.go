// Package mongostore keeps metric samples in a MongoDB collection whose TTL
// index expires them after models.MetricRetention.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

const (
	ttlIndexName   = "timestamp_ttl"
	queryIndexName = "vm_id_timestamp"
)

type Config struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

type MetricStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ store.MetricStore = (*MetricStore)(nil)

func Connect(ctx context.Context, cfg Config) (*MetricStore, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "metric_samples"
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &MetricStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(collection),
	}
	if err := s.EnsureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the lookup index and the TTL index that purges samples
// older than the retention period.
func (s *MetricStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, IndexModels())
	if err != nil {
		return fmt.Errorf("failed to create metric indexes: %w", err)
	}
	return nil
}

func IndexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "vm_id", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName(queryIndexName),
		},
		{
			Keys: bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().
				SetName(ttlIndexName).
				SetExpireAfterSeconds(int32(models.MetricRetention / time.Second)),
		},
	}
}

func (s *MetricStore) Append(ctx context.Context, sample *models.MetricSample) error {
	_, err := s.coll.InsertOne(ctx, sample)
	return store.WrapWrite("append", "metric_sample", sample.VMID, err)
}

func (s *MetricStore) Query(ctx context.Context, vmID string, since time.Time) ([]*models.MetricSample, error) {
	filter := QueryFilter(vmID, since)
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var samples []*models.MetricSample
	if err := cursor.All(ctx, &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

func QueryFilter(vmID string, since time.Time) bson.M {
	return bson.M{
		"vm_id":     vmID,
		"timestamp": bson.M{"$gte": since},
	}
}

// PurgeBefore removes samples older than cutoff. The TTL index normally does
// this on its own; the explicit purge serves the retention job and tests.
func (s *MetricStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, store.WrapWrite("purge", "metric_sample", cutoff.Format(time.RFC3339), err)
	}
	return res.DeletedCount, nil
}

func (s *MetricStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MetricStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
