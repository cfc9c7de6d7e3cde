// Package database keeps an audit trail of submission attempts in mongo.
// The trail is observability, not correctness: the once-per-day guarantee
// lives in the contract, and a nil connection degrades to a no-op sink.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	databaseName         = "workchain"
	receiptsCollection   = "submissionReceipts"
	defaultWriteDeadline = 5 * time.Second
)

// Receipt records one submission attempt and its terminal outcome.
type Receipt struct {
	ID        string    `bson:"_id"`
	Worker    string    `bson:"worker"`
	Employer  string    `bson:"employer"`
	Vault     string    `bson:"vault"`
	Hours     float64   `bson:"hours"`
	Outcome   string    `bson:"outcome"`
	Reason    string    `bson:"reason,omitempty"`
	Signature string    `bson:"signature,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

// Connection is a mongo client scoped to the oracle database.
type Connection struct {
	*mongo.Client
}

// Connect establishes a connection to mongo at the given URL.
func Connect(ctx context.Context, mongoURL string) (*Connection, error) {
	if mongoURL == "" {
		return nil, fmt.Errorf("database: mongo URL is empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURL))
	if err != nil {
		return nil, fmt.Errorf("database: connecting: %w", err)
	}
	return &Connection{client}, nil
}

// RecordSubmission inserts one receipt. A nil connection is a no-op so the
// audit trail never blocks a submission.
func (c *Connection) RecordSubmission(ctx context.Context, r Receipt) error {
	if c == nil {
		return nil
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, defaultWriteDeadline)
	defer cancel()
	collection := c.Database(databaseName).Collection(receiptsCollection)
	_, err := collection.InsertOne(ctx, r)
	return err
}

// CountSubmissions returns the number of receipts for a vault since the
// given time.
func (c *Connection) CountSubmissions(ctx context.Context, vault string, since time.Time) (int64, error) {
	if c == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultWriteDeadline)
	defer cancel()
	collection := c.Database(databaseName).Collection(receiptsCollection)
	filter := bson.M{
		"vault":     vault,
		"createdAt": bson.M{"$gte": since},
	}
	return collection.CountDocuments(ctx, filter)
}

// RecentReceipts returns the newest receipts for a vault, most recent first.
func (c *Connection) RecentReceipts(ctx context.Context, vault string, limit int64) ([]Receipt, error) {
	if c == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultWriteDeadline)
	defer cancel()
	collection := c.Database(databaseName).Collection(receiptsCollection)
	opts := options.Find().
		SetSort(bson.M{"createdAt": -1}).
		SetLimit(limit)
	cur, err := collection.Find(ctx, bson.M{"vault": vault}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var receipts []Receipt
	for cur.Next(ctx) {
		var r Receipt
		if err = cur.Decode(&r); err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, cur.Err()
}
