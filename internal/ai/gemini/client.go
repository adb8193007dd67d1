package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/utils"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultMaxRetries = 3
	defaultLogLength  = 200

	// Server-suggested waits longer than this are treated as quota exhaustion.
	maxQuotaDelay = 20 * time.Second

	retryInitialInterval = time.Second
	retryMaxInterval     = 10 * time.Second
)

var sleep = time.Sleep

var retryDelayPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*(?:s|sec|secs|second|seconds)\b`)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type clientChats struct {
	chats *genai.Chats
}

func (c clientChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	chat, err := c.chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// Options tune the generator. Zero values fall back to defaults.
type Options struct {
	Model        string
	MaxRetries   int
	MaxLogLength int
	Temperature  float64
}

// Generator adapts the Gemini chat API to ai.ChatModel. It keeps no chat
// between calls: every attempt rebuilds the chat from the supplied history.
type Generator struct {
	chats       chatCreator
	model       string
	maxRetries  int
	maxLogLen   int
	temperature *float32
	logger      *zap.Logger
}

var _ ai.ChatModel = (*Generator)(nil)

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey string, opts Options, logger *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(clientChats{chats: client.Chats}, opts, logger), nil
}

func newGenerator(chats chatCreator, opts Options, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	logLen := opts.MaxLogLength
	if logLen <= 0 {
		logLen = defaultLogLength
	}

	g := &Generator{
		chats:      chats,
		model:      model,
		maxRetries: retries,
		maxLogLen:  logLen,
		logger:     logger,
	}

	if opts.Temperature > 0 {
		t := float32(opts.Temperature)
		g.temperature = &t
	}

	return g
}

// Send rebuilds a chat from history, sends message and returns the reply text with total token usage.
func (g *Generator) Send(ctx context.Context, history []ai.Turn, message string) (*ai.Reply, error) {
	if g == nil || g.chats == nil {
		return nil, fmt.Errorf("%w: gemini generator is not initialized", ai.ErrProvider)
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message must not be empty", ai.ErrProvider)
	}

	attempts := g.maxRetries
	if attempts <= 0 {
		attempts = 1
	}

	schedule := newRetryBackoff()
	contents := toContents(history)

	g.logger.Debug("gemini chat request",
		zap.String("model", g.model),
		zap.Int("history_turns", len(history)),
		zap.Int("message_length", utf8.RuneCountInString(message)),
		zap.String("message_preview", utils.TruncateForLog(message, g.maxLogLen)),
	)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		reply, err := g.send(ctx, contents, message)
		if err == nil {
			g.logger.Debug("gemini chat response",
				zap.String("model", g.model),
				zap.Int("attempt", attempt),
				zap.Int("tokens", reply.TokenCount),
				zap.String("response_preview", utils.TruncateForLog(reply.Text, g.maxLogLen)),
			)
			return reply, nil
		}
		lastErr = err

		if attempt == attempts || !isTemporary(err) || ctx.Err() != nil {
			break
		}

		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			break
		}

		g.logger.Warn("gemini request failed, retrying",
			zap.String("model", g.model),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		sleep(wait)
	}

	return nil, classify(lastErr)
}

func (g *Generator) send(ctx context.Context, history []*genai.Content, message string) (*ai.Reply, error) {
	var config *genai.GenerateContentConfig
	if g.temperature != nil {
		config = &genai.GenerateContentConfig{Temperature: g.temperature}
	}

	chat, err := g.chats.Create(ctx, g.model, config, history)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, errors.New("gemini api returned empty response")
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &ai.Reply{Text: text, TokenCount: tokens}, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func toContents(history []ai.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		role := string(turn.Role)
		if role == "" {
			role = string(ai.RoleUser)
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}

func newRetryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return b
}

func apiError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

func isTemporary(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	apiErr, ok := apiError(err)
	if !ok {
		return false
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		delay, found := retryDelay(apiErr)
		return !found || delay <= maxQuotaDelay
	case apiErr.Code == http.StatusRequestTimeout:
		return true
	case apiErr.Code >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// retryDelay extracts the server-suggested wait from the message or a RetryInfo detail.
func retryDelay(apiErr genai.APIError) (time.Duration, bool) {
	for _, detail := range apiErr.Details {
		raw, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil {
			return d, true
		}
	}

	match := retryDelayPattern.FindStringSubmatch(apiErr.Message)
	if len(match) < 2 {
		return 0, false
	}

	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}

	return time.Duration(seconds * float64(time.Second)), true
}

func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ai.ErrTimeout, err)
	}

	if apiErr, ok := apiError(err); ok {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ai.ErrRateLimited, err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %w", ai.ErrTimeout, err)
		}
	}

	return fmt.Errorf("%w: %w", ai.ErrProvider, err)
}
