// Package results persists finished interview evaluations.
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/spigell/hh-interviewer/internal/evaluation"
	"github.com/spigell/hh-interviewer/internal/session"
)

// Result is the permanent record of one finished interview.
type Result struct {
	SessionID            string           `json:"session_id" bson:"session_id"`
	CandidateID          string           `json:"candidateId" bson:"candidateId"`
	CredentialID         string           `json:"credentialId" bson:"credentialId"`
	ScheduledInterviewID string           `json:"scheduledInterviewId" bson:"scheduledInterviewId"`
	Score                int              `json:"score" bson:"score"`
	Strengths            []string         `json:"strengths" bson:"strengths"`
	Improvements         []string         `json:"improvements" bson:"improvements"`
	Communication        string           `json:"communication" bson:"communication"`
	TechnicalDepth       string           `json:"technical_depth" bson:"technical_depth"`
	QAPairs              []session.QAPair `json:"qa_pairs" bson:"qa_pairs"`
	RawResult            string           `json:"raw_result" bson:"raw_result"`
	CompletedAt          time.Time        `json:"completed_at" bson:"completed_at"`
	Published            bool             `json:"published" bson:"published"`
}

// New flattens an evaluation into a result document. A missing raw reply is stored as "".
func New(sessionID, candidateID, credentialID, scheduledInterviewID string, ev *evaluation.Evaluation, completedAt time.Time) *Result {
	if ev == nil {
		ev = evaluation.Missing()
	}
	raw := ""
	if ev.RawResult != nil {
		raw = *ev.RawResult
	}
	pairs := session.CloneQAPairs(ev.QAPairs)
	if pairs == nil {
		pairs = []session.QAPair{}
	}

	return &Result{
		SessionID:            sessionID,
		CandidateID:          candidateID,
		CredentialID:         credentialID,
		ScheduledInterviewID: scheduledInterviewID,
		Score:                ev.Score,
		Strengths:            nonNil(ev.Strengths),
		Improvements:         nonNil(ev.Improvements),
		Communication:        string(ev.Communication),
		TechnicalDepth:       string(ev.TechnicalDepth),
		QAPairs:              pairs,
		RawResult:            raw,
		CompletedAt:          completedAt,
	}
}

// Sink stores results.
type Sink interface {
	Save(ctx context.Context, result *Result) error
}

// MongoSink inserts results and marks the scheduled interview completed.
type MongoSink struct {
	results   *mongo.Collection
	scheduled *mongo.Collection
}

var _ Sink = (*MongoSink)(nil)

// NewMongoSink builds a sink. scheduled may be nil to skip completion marking.
func NewMongoSink(results, scheduled *mongo.Collection) *MongoSink {
	return &MongoSink{results: results, scheduled: scheduled}
}

func (s *MongoSink) Save(ctx context.Context, result *Result) error {
	if _, err := s.results.InsertOne(ctx, result); err != nil {
		return fmt.Errorf("insert interview result: %w", err)
	}

	if s.scheduled == nil || result.ScheduledInterviewID == "" {
		return nil
	}
	id, err := primitive.ObjectIDFromHex(result.ScheduledInterviewID)
	if err != nil {
		return fmt.Errorf("scheduled interview id %q: %w", result.ScheduledInterviewID, err)
	}
	_, err = s.scheduled.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "completed", Value: true},
			{Key: "completedAt", Value: result.CompletedAt},
		}}},
	)
	if err != nil {
		return fmt.Errorf("mark interview completed: %w", err)
	}
	return nil
}

// FileSink writes one interview_<session>.json document per result.
type FileSink struct {
	dir string
}

var _ Sink = (*FileSink)(nil)

func NewFileSink(dir string) *FileSink {
	if strings.TrimSpace(dir) == "" {
		dir = "results"
	}
	return &FileSink{dir: dir}
}

func (s *FileSink) Save(_ context.Context, result *Result) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create results directory %s: %w", s.dir, err)
	}

	name := result.SessionID
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		name = result.CompletedAt.UTC().Format("20060102T150405Z")
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode interview result: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("interview_%s.json", name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Path returns where FileSink stores the result of sessionID.
func (s *FileSink) Path(sessionID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("interview_%s.json", sessionID))
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
