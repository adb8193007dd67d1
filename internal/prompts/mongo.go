package prompts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoProvider reads templates from the prompts collection.
type MongoProvider struct {
	coll *mongo.Collection
}

var _ Provider = (*MongoProvider)(nil)

func NewMongoProvider(coll *mongo.Collection) *MongoProvider {
	return &MongoProvider{coll: coll}
}

func (p *MongoProvider) Get(ctx context.Context, name string) (string, error) {
	var t Template
	err := p.coll.FindOne(ctx, bson.D{
		{Key: "name", Value: name},
		{Key: "active", Value: true},
	}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("find prompt %q: %w", name, err)
	}
	return strings.TrimSpace(t.Text), nil
}

// List returns active templates ordered by name.
func (p *MongoProvider) List(ctx context.Context) ([]Template, error) {
	cur, err := p.coll.Find(ctx,
		bson.D{{Key: "active", Value: true}},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}

	var out []Template
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	return out, nil
}

// Seed replaces the whole collection with templates and returns the number inserted.
func (p *MongoProvider) Seed(ctx context.Context, templates []Template) (int, error) {
	if len(templates) == 0 {
		return 0, errors.New("no templates to seed")
	}

	if _, err := p.coll.DeleteMany(ctx, bson.D{}); err != nil {
		return 0, fmt.Errorf("clear prompts: %w", err)
	}

	docs := make([]any, 0, len(templates))
	for _, t := range templates {
		docs = append(docs, t)
	}
	res, err := p.coll.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("insert prompts: %w", err)
	}
	return len(res.InsertedIDs), nil
}
