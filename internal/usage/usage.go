// Package usage accumulates model token consumption per scheduled interview.
package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrInvalidRecordID = errors.New("invalid usage record id")
	ErrRecordNotFound  = errors.New("usage record not found")
)

// Recorder stores the running token total of a usage record.
type Recorder interface {
	SetTokens(ctx context.Context, recordID string, tokens int) error
	IncrementTokens(ctx context.Context, recordID string, tokens int) error
}

// MongoRecorder keeps totals in the tokens field of scheduled interview documents.
type MongoRecorder struct {
	coll *mongo.Collection
}

var _ Recorder = (*MongoRecorder)(nil)

func NewMongoRecorder(coll *mongo.Collection) *MongoRecorder {
	return &MongoRecorder{coll: coll}
}

func (r *MongoRecorder) SetTokens(ctx context.Context, recordID string, tokens int) error {
	return r.update(ctx, recordID, "$set", tokens)
}

func (r *MongoRecorder) IncrementTokens(ctx context.Context, recordID string, tokens int) error {
	return r.update(ctx, recordID, "$inc", tokens)
}

func (r *MongoRecorder) update(ctx context.Context, recordID, op string, tokens int) error {
	id, err := primitive.ObjectIDFromHex(recordID)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRecordID, recordID)
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: op, Value: bson.D{{Key: "tokens", Value: tokens}}}},
	)
	if err != nil {
		return fmt.Errorf("update tokens of %s: %w", recordID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}
	return nil
}

// MemoryRecorder keeps totals in process memory.
type MemoryRecorder struct {
	mu     sync.Mutex
	totals map[string]int
}

var _ Recorder = (*MemoryRecorder)(nil)

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{totals: make(map[string]int)}
}

func (r *MemoryRecorder) SetTokens(_ context.Context, recordID string, tokens int) error {
	if recordID == "" {
		return ErrInvalidRecordID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals[recordID] = tokens
	return nil
}

func (r *MemoryRecorder) IncrementTokens(_ context.Context, recordID string, tokens int) error {
	if recordID == "" {
		return ErrInvalidRecordID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals[recordID] += tokens
	return nil
}

// Tokens reports the current total and whether the record exists.
func (r *MemoryRecorder) Tokens(recordID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total, ok := r.totals[recordID]
	return total, ok
}
