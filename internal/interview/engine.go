// Package interview runs interview sessions on top of a generation model.
// The engine keeps no state between calls: every operation loads the session
// record, rehydrates the conversation and writes the record back.
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/evaluation"
	"github.com/spigell/hh-interviewer/internal/logger"
	"github.com/spigell/hh-interviewer/internal/prompts"
	"github.com/spigell/hh-interviewer/internal/session"
	"github.com/spigell/hh-interviewer/internal/usage"
	"github.com/spigell/hh-interviewer/internal/utils"
)

// FallbackQuestion is returned instead of a question when the session is gone.
const FallbackQuestion = "Session expired or invalid. Please restart the interview."

const (
	defaultMaxLogLength = 200
	createAttempts      = 3
)

type Deps struct {
	Prompts prompts.Provider
	Model   ai.ChatModel
	Store   session.Store
	// Usage is optional. Token counts are dropped when nil.
	Usage  usage.Recorder
	Logger *zap.Logger
}

type Options struct {
	TTL          time.Duration
	MaxLogLength int
}

type Engine struct {
	prompts   *prompts.Renderer
	model     ai.ChatModel
	store     session.Store
	usage     usage.Recorder
	logger    *zap.Logger
	ttl       time.Duration
	maxLogLen int

	now   func() time.Time
	newID func() string
}

func NewEngine(deps Deps, opts Options) (*Engine, error) {
	switch {
	case deps.Prompts == nil:
		return nil, errors.New("prompt provider is required")
	case deps.Model == nil:
		return nil, errors.New("chat model is required")
	case deps.Store == nil:
		return nil, errors.New("session store is required")
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = session.DefaultTTL
	}
	if opts.MaxLogLength <= 0 {
		opts.MaxLogLength = defaultMaxLogLength
	}

	return &Engine{
		prompts:   prompts.NewRenderer(deps.Prompts),
		model:     deps.Model,
		store:     deps.Store,
		usage:     deps.Usage,
		logger:    log,
		ttl:       opts.TTL,
		maxLogLen: opts.MaxLogLength,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// CreateSession starts a conversation from the system prompt and returns the
// new session id with the first question.
func (e *Engine) CreateSession(ctx context.Context, cfg Config) (string, string, error) {
	if err := cfg.Validate(); err != nil {
		return "", "", err
	}
	log := logger.WithSessionFields(e.logger, "", cfg.ScheduledInterviewID)

	params, err := cfg.Params()
	if err != nil {
		return "", "", err
	}
	system, err := e.prompts.System(ctx, params)
	if err != nil {
		return "", "", err
	}
	first, err := e.prompts.FirstQuestion(ctx)
	if err != nil {
		return "", "", err
	}

	conv := ai.StartConversation(e.model, []ai.Turn{{Role: ai.RoleUser, Text: system}})
	log.Debug("requesting first question", zap.String("prompt", utils.TruncateForLog(first, e.maxLogLen)))

	reply, err := conv.Send(ctx, first)
	if err != nil {
		return "", "", fmt.Errorf("first question: %w", err)
	}
	e.recordUsage(ctx, log, cfg.ScheduledInterviewID, reply.TokenCount, true)

	question := strings.TrimSpace(reply.Text)
	turns := conv.Turns()

	for attempt := 1; ; attempt++ {
		id := e.newID()
		record := session.New(id, turns, question, e.now(), e.ttl)

		err := e.store.Create(ctx, record)
		if err == nil {
			log.Info("interview session created",
				zap.String(logger.FieldSession, id),
				zap.Int("tokens", reply.TokenCount),
			)
			return id, question, nil
		}
		if !errors.Is(err, session.ErrAlreadyExists) || attempt == createAttempts {
			return "", "", fmt.Errorf("store session: %w", err)
		}
		log.Debug("session id collision, generating another", zap.String(logger.FieldSession, id))
	}
}

// NextQuestion records the answer and asks the model for the next question.
// A missing or expired session yields FallbackQuestion with a nil error.
func (e *Engine) NextQuestion(ctx context.Context, sessionID, answer, timeRemaining, scheduledInterviewID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", &ValidationError{Field: "session_id"}
	}
	if answer == "" {
		return "", &ValidationError{Field: "answer"}
	}
	log := logger.WithSessionFields(e.logger, sessionID, scheduledInterviewID)

	record, err := e.store.Get(ctx, sessionID)
	if err != nil {
		if isGone(err) {
			log.Info("session not found for next question")
			return FallbackQuestion, nil
		}
		return "", fmt.Errorf("load session: %w", err)
	}

	prompt, err := e.prompts.NextQuestion(ctx, answer, timeRemaining)
	if err != nil {
		return "", err
	}

	record.AddAnswer(answer)
	conv := ai.StartConversation(e.model, record.Conversation)
	log.Debug("requesting next question",
		zap.Int("answers", len(record.Answers)),
		zap.String("answer", utils.TruncateForLog(answer, e.maxLogLen)),
		zap.String("time_remaining", timeRemaining),
	)

	reply, err := conv.Send(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("next question: %w", err)
	}
	e.recordUsage(ctx, log, scheduledInterviewID, reply.TokenCount, false)

	question := strings.TrimSpace(reply.Text)
	record.AddQuestion(question)
	record.Conversation = conv.Turns()

	if err := e.store.Update(ctx, sessionID, session.Progress(record)); err != nil {
		if isGone(err) {
			log.Info("session disappeared before the next question was stored")
			return FallbackQuestion, nil
		}
		return "", fmt.Errorf("store session: %w", err)
	}

	log.Debug("next question stored",
		zap.Int("questions", len(record.Questions)),
		zap.String("question", utils.TruncateForLog(question, e.maxLogLen)),
	)
	return question, nil
}

// FinishInterview asks the model for the final evaluation and deletes the
// session. It always returns a complete evaluation.
func (e *Engine) FinishInterview(ctx context.Context, sessionID, scheduledInterviewID string) *evaluation.Evaluation {
	log := logger.WithSessionFields(e.logger, sessionID, scheduledInterviewID)

	record, err := e.store.Get(ctx, sessionID)
	if err != nil {
		if !isGone(err) {
			log.Error("failed to load session for finish", zap.Error(err))
		} else {
			log.Info("session not found for finish")
		}
		return evaluation.Missing()
	}
	// the record goes away even when the caller gives up during the summary
	defer e.deleteSession(context.WithoutCancel(ctx), log, sessionID)

	result := e.summarize(ctx, log, record, scheduledInterviewID)
	log.Info("interview finished",
		zap.Int("score", result.Score),
		zap.Int("qa_pairs", len(result.QAPairs)),
	)
	return result
}

func (e *Engine) summarize(ctx context.Context, log *zap.Logger, record *session.Record, scheduledInterviewID string) *evaluation.Evaluation {
	prompt, err := e.prompts.Summary(ctx, record.Violations)
	if err != nil {
		log.Warn("summary prompt unavailable, using default evaluation", zap.Error(err))
		return evaluation.Default().WithTranscript(record.QAPairs, nil)
	}

	conv := ai.StartConversation(e.model, record.Conversation)
	reply, err := conv.Send(ctx, prompt)
	if err != nil {
		log.Warn("summary request failed, using default evaluation", zap.Error(err))
		return evaluation.Default().WithTranscript(record.QAPairs, nil)
	}
	e.recordUsage(ctx, log, scheduledInterviewID, reply.TokenCount, false)

	raw := reply.Text
	result, err := evaluation.Parse(raw)
	if err != nil {
		log.Warn("summary reply is not a valid evaluation, using default",
			zap.Error(err),
			zap.String("reply", utils.TruncateForLog(raw, e.maxLogLen)),
		)
		result = evaluation.Default()
	}
	return result.WithTranscript(record.QAPairs, &raw)
}

func (e *Engine) deleteSession(ctx context.Context, log *zap.Logger, sessionID string) {
	if err := e.store.Delete(ctx, sessionID); err != nil {
		log.Warn("failed to delete finished session", zap.Error(err))
	}
}

// recordUsage is best effort. Failures are logged and never returned.
func (e *Engine) recordUsage(ctx context.Context, log *zap.Logger, recordID string, tokens int, first bool) {
	if e.usage == nil {
		return
	}
	if strings.TrimSpace(recordID) == "" {
		log.Debug("no usage record id, skipping token accounting", zap.Int("tokens", tokens))
		return
	}

	var err error
	if first {
		err = e.usage.SetTokens(ctx, recordID, tokens)
	} else {
		err = e.usage.IncrementTokens(ctx, recordID, tokens)
	}

	switch {
	case err == nil:
		log.Debug("token usage recorded", zap.Int("tokens", tokens), zap.Bool("set", first))
	case errors.Is(err, usage.ErrInvalidRecordID), errors.Is(err, usage.ErrRecordNotFound):
		log.Warn("token usage not recorded", zap.Int("tokens", tokens), zap.Error(err))
	default:
		log.Error("token usage recording failed", zap.Int("tokens", tokens), zap.Error(err))
	}
}

func isGone(err error) bool {
	return errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrInvalidID)
}
