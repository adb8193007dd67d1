package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ttlIndexName = "expires_at_ttl"

// MongoStore keeps sessions in a MongoDB collection keyed by session id.
// Expired documents are hidden on read and purged by a TTL index.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll, now: time.Now}
}

// EnsureIndexes creates the TTL index that removes sessions once expires_at passes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetName(ttlIndexName).SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("create session ttl index: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, record *Record) error {
	if record == nil || record.ID == "" {
		return ErrInvalidID
	}

	if _, err := s.coll.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Record, error) {
	var record Record
	err := s.coll.FindOne(ctx, s.liveFilter(id)).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}

	// the TTL monitor runs once a minute, so expiry is checked here as well
	if record.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (s *MongoStore) Update(ctx context.Context, id string, update Update) error {
	set := updateDocument(update)
	if len(set) == 0 {
		_, err := s.Get(ctx, id)
		return err
	}

	res, err := s.coll.UpdateOne(ctx, s.liveFilter(id), bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *MongoStore) liveFilter(id string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: s.now()}}},
	}
}

func updateDocument(u Update) bson.D {
	set := bson.D{}
	if u.Conversation != nil {
		set = append(set, bson.E{Key: "conversation", Value: u.Conversation})
	}
	if u.Answers != nil {
		set = append(set, bson.E{Key: "answers", Value: u.Answers})
	}
	if u.Questions != nil {
		set = append(set, bson.E{Key: "questions", Value: u.Questions})
	}
	if u.QAPairs != nil {
		set = append(set, bson.E{Key: "qa_pairs", Value: u.QAPairs})
	}
	if u.Violations != nil {
		set = append(set, bson.E{Key: "violations", Value: *u.Violations})
	}
	return set
}
