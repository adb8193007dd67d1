package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldProvider           = "ai_provider"
	FieldModel              = "ai_model"
	FieldRetries            = "ai_retry_attempts"
	FieldSession            = "session_id"
	FieldScheduledInterview = "scheduled_interview_id"
)

// nonEmpty turns key/value pairs into string fields. Blank values are
// dropped so a session without a usage record logs no empty key.
func nonEmpty(pairs ...string) []zap.Field {
	fields := make([]zap.Field, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if value := strings.TrimSpace(pairs[i+1]); value != "" {
			fields = append(fields, zap.String(pairs[i], value))
		}
	}
	return fields
}

func with(log *zap.Logger, fields []zap.Field) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}

// WithModel tags a generator logger with the model it talks to.
func WithModel(log *zap.Logger, provider, model string, retries int) *zap.Logger {
	fields := nonEmpty(FieldProvider, provider, FieldModel, model)
	if retries > 0 {
		fields = append(fields, zap.Int(FieldRetries, retries))
	}
	return with(log, fields)
}

// SessionFields identifies an interview session and the usage record it bills.
func SessionFields(sessionID, scheduledInterviewID string) []zap.Field {
	return nonEmpty(FieldSession, sessionID, FieldScheduledInterview, scheduledInterviewID)
}

func WithSessionFields(log *zap.Logger, sessionID, scheduledInterviewID string) *zap.Logger {
	return with(log, SessionFields(sessionID, scheduledInterviewID))
}
