package interview

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/evaluation"
	"github.com/spigell/hh-interviewer/internal/logger"
	"github.com/spigell/hh-interviewer/internal/results"
)

type StartResponse struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type AnswerRequest struct {
	SessionID            string `json:"session_id"`
	Answer               string `json:"answer"`
	TimeRemaining        string `json:"timeRemaining"`
	ScheduledInterviewID string `json:"scheduledInterviewId"`
}

type AnswerResponse struct {
	Question string `json:"question"`
}

type EndRequest struct {
	SessionID            string `json:"session_id"`
	ScheduledInterviewID string `json:"scheduledInterviewId"`
	CredentialID         string `json:"credentialId"`
	// CandidateID identifies the caller. It is only copied into the stored result.
	CandidateID string `json:"candidateId"`
}

// Service is the request/response surface over Engine. After End it hands
// the evaluation to the configured results sink.
type Service struct {
	engine *Engine
	sink   results.Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewService wraps engine. sink may be nil.
func NewService(engine *Engine, sink results.Sink, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{engine: engine, sink: sink, logger: log, now: time.Now}
}

func (s *Service) Start(ctx context.Context, cfg Config) (*StartResponse, error) {
	id, question, err := s.engine.CreateSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &StartResponse{SessionID: id, Question: question}, nil
}

func (s *Service) Answer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	question, err := s.engine.NextQuestion(ctx, req.SessionID, req.Answer, req.TimeRemaining, req.ScheduledInterviewID)
	if err != nil {
		return nil, err
	}
	return &AnswerResponse{Question: question}, nil
}

// End finishes the interview. The only possible error is a missing session id.
func (s *Service) End(ctx context.Context, req EndRequest) (*evaluation.Evaluation, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, &ValidationError{Field: "session_id"}
	}

	ev := s.engine.FinishInterview(ctx, req.SessionID, req.ScheduledInterviewID)

	if s.sink != nil {
		result := results.New(req.SessionID, req.CandidateID, req.CredentialID, req.ScheduledInterviewID, ev, s.now().UTC())
		if err := s.sink.Save(ctx, result); err != nil {
			logger.WithSessionFields(s.logger, req.SessionID, req.ScheduledInterviewID).
				Warn("failed to save interview result", zap.Error(err))
		}
	}

	return ev, nil
}
