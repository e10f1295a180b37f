package locator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/multierr"
)

// Defaults matching the collection the detection pipeline writes to.
const (
	DefaultDatabase   = "objs_db"
	DefaultCollection = "latest_detected_obj"
)

// detectionDoc is the document shape written by the vision pipeline.
type detectionDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Label     string             `bson:"label"`
	OffsetX   float64            `bson:"offset_x_mm"`
	OffsetY   float64            `bson:"offset_y_mm"`
	Timestamp time.Time          `bson:"ts,omitempty"`
}

// detection converts the document. Without an explicit timestamp the
// ObjectID creation time (second resolution) is used.
func (d detectionDoc) detection() Detection {
	ts := d.Timestamp
	if ts.IsZero() && !d.ID.IsZero() {
		ts = d.ID.Timestamp()
	}
	return Detection{
		Label:     d.Label,
		OffsetX:   d.OffsetX,
		OffsetY:   d.OffsetY,
		Timestamp: ts,
	}
}

// Mongo reads detections from a MongoDB collection.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ Locator = (*Mongo)(nil)

// DialMongo connects to uri and verifies the server is reachable.
func DialMongo(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, multierr.Combine(fmt.Errorf("ping mongo: %w", err), client.Disconnect(ctx))
	}

	return &Mongo{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}, nil
}

// Close disconnects from the server.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// FindLatest returns the most recently inserted detection for label.
func (m *Mongo) FindLatest(ctx context.Context, label string) (Detection, bool, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})

	var doc detectionDoc
	err := m.coll.FindOne(ctx, bson.D{{Key: "label", Value: label}}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Detection{}, false, nil
	}
	if err != nil {
		return Detection{}, false, fmt.Errorf("find %q: %w", label, err)
	}
	return doc.detection(), true, nil
}

// Labels returns the distinct labels in the collection.
func (m *Mongo) Labels(ctx context.Context) ([]string, error) {
	raw, err := m.coll.Distinct(ctx, "label", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("distinct labels: %w", err)
	}
	labels := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			labels = append(labels, s)
		}
	}
	sort.Strings(labels)
	return labels, nil
}
