// Package session persists interview session records. Every backend keeps all
// state outside the calling process so the interview engine can run on any
// number of workers without session affinity.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/hh-interviewer/internal/ai"
)

// DefaultTTL is how long an unfinished session stays valid.
const DefaultTTL = 2 * time.Hour

var (
	ErrNotFound      = errors.New("session not found or expired")
	ErrAlreadyExists = errors.New("session already exists")
	ErrInvalidID     = errors.New("invalid session id")
)

// QAPair links a question with the candidate answer. Answer stays nil until supplied.
type QAPair struct {
	Question string  `json:"question" bson:"question"`
	Answer   *string `json:"answer" bson:"answer"`
}

// Record is the persisted state of one interview.
type Record struct {
	ID           string    `json:"id" bson:"_id"`
	Conversation []ai.Turn `json:"conversation" bson:"conversation"`
	Answers      []string  `json:"answers" bson:"answers"`
	Questions    []string  `json:"questions" bson:"questions"`
	QAPairs      []QAPair  `json:"qa_pairs" bson:"qa_pairs"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	ExpiresAt    time.Time `json:"expires_at" bson:"expires_at"`
	Violations   int       `json:"violations" bson:"violations"`
}

// New builds a record holding the first question with an open answer.
func New(id string, conversation []ai.Turn, firstQuestion string, now time.Time, ttl time.Duration) *Record {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Record{
		ID:           id,
		Conversation: ai.CloneTurns(conversation),
		Answers:      []string{},
		Questions:    []string{firstQuestion},
		QAPairs:      []QAPair{{Question: firstQuestion}},
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// AddAnswer appends the answer and closes the open QA pair.
func (r *Record) AddAnswer(answer string) {
	r.Answers = append(r.Answers, answer)
	if n := len(r.QAPairs); n > 0 {
		a := answer
		r.QAPairs[n-1].Answer = &a
	}
}

// AddQuestion appends the question together with a new open QA pair.
func (r *Record) AddQuestion(question string) {
	r.Questions = append(r.Questions, question)
	r.QAPairs = append(r.QAPairs, QAPair{Question: question})
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Conversation = ai.CloneTurns(r.Conversation)
	out.Answers = cloneStrings(r.Answers)
	out.Questions = cloneStrings(r.Questions)
	out.QAPairs = CloneQAPairs(r.QAPairs)
	return &out
}

// Update lists the fields to overwrite. Nil fields are left unchanged.
type Update struct {
	Conversation []ai.Turn
	Answers      []string
	Questions    []string
	QAPairs      []QAPair
	Violations   *int
}

// Progress builds the update persisted after every answered question.
func Progress(r *Record) Update {
	return Update{
		Conversation: ai.CloneTurns(r.Conversation),
		Answers:      nonNil(r.Answers),
		Questions:    nonNil(r.Questions),
		QAPairs:      CloneQAPairs(r.QAPairs),
	}
}

func (u Update) Apply(r *Record) {
	if u.Conversation != nil {
		r.Conversation = ai.CloneTurns(u.Conversation)
	}
	if u.Answers != nil {
		r.Answers = cloneStrings(u.Answers)
	}
	if u.Questions != nil {
		r.Questions = cloneStrings(u.Questions)
	}
	if u.QAPairs != nil {
		r.QAPairs = CloneQAPairs(u.QAPairs)
	}
	if u.Violations != nil {
		r.Violations = *u.Violations
	}
}

// Store is the durable keyed persistence used by the interview engine.
// Get returns ErrNotFound for missing and expired records alike.
type Store interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, id string, update Update) error
	Delete(ctx context.Context, id string) error
}

func CloneQAPairs(pairs []QAPair) []QAPair {
	if pairs == nil {
		return nil
	}
	out := make([]QAPair, len(pairs))
	for i, p := range pairs {
		out[i].Question = p.Question
		if p.Answer != nil {
			a := *p.Answer
			out[i].Answer = &a
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return cloneStrings(in)
}
