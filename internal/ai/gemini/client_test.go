package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/hh-interviewer/internal/ai"
)

type fakeChatCreator struct {
	mu    sync.Mutex
	calls []chatCallRecord
	queue map[string][]fakeChatResponse
}

type chatCallRecord struct {
	model   string
	config  *genai.GenerateContentConfig
	history []*genai.Content
	chat    *fakeChat
}

type fakeChatResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeChat struct {
	mu       sync.Mutex
	response fakeChatResponse
	messages []string
}

func (f *fakeChat) SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, part := range parts {
		f.messages = append(f.messages, part.Text)
	}
	return f.response.resp, f.response.err
}

func newFakeChatCreator() *fakeChatCreator {
	return &fakeChatCreator{queue: make(map[string][]fakeChatResponse)}
}

func (f *fakeChatCreator) enqueue(model string, resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[model] = append(f.queue[model], fakeChatResponse{resp: resp, err: err})
}

func (f *fakeChatCreator) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	responses := f.queue[model]
	if len(responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := responses[0]
	f.queue[model] = responses[1:]
	chat := &fakeChat{response: res}
	f.calls = append(f.calls, chatCallRecord{model: model, config: config, history: history, chat: chat})
	return chat, nil
}

func textResponse(text string, tokens int32) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: tokens},
	}
}

func noSleep(t *testing.T) {
	t.Helper()
	originalSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = originalSleep })
}

func TestGeneratorSendRehydratesHistory(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("gemini-pro", textResponse("  What is a goroutine?  ", 42), nil)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 1,
		logger:     zap.NewNop(),
	}

	history := []ai.Turn{
		{Role: ai.RoleUser, Text: "system prompt"},
		{Role: ai.RoleUser, Text: "start"},
		{Role: ai.RoleModel, Text: "Hello, tell me about yourself."},
	}

	reply, err := g.Send(context.Background(), history, "candidate answer")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if reply.Text != "What is a goroutine?" {
		t.Fatalf("unexpected text: %q", reply.Text)
	}
	if reply.TokenCount != 42 {
		t.Fatalf("expected 42 tokens, got %d", reply.TokenCount)
	}

	if len(chats.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(chats.calls))
	}

	call := chats.calls[0]
	if len(call.history) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(call.history))
	}
	if call.history[2].Role != "model" || call.history[2].Parts[0].Text != "Hello, tell me about yourself." {
		t.Fatalf("unexpected rehydrated turn: %+v", call.history[2])
	}
	if len(call.chat.messages) != 1 || call.chat.messages[0] != "candidate answer" {
		t.Fatalf("unexpected chat message: %+v", call.chat.messages)
	}
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	noSleep(t)

	chats := newFakeChatCreator()
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	chats.enqueue("gemini-pro", nil, tempErr)
	chats.enqueue("gemini-pro", textResponse("retry ok", 7), nil)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 2,
		logger:     zap.NewNop(),
	}

	reply, err := g.Send(context.Background(), []ai.Turn{{Role: ai.RoleUser, Text: "system"}}, "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if reply.Text != "retry ok" {
		t.Fatalf("unexpected output: %q", reply.Text)
	}

	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}

	for _, call := range chats.calls {
		if len(call.history) != 1 || call.history[0].Parts[0].Text != "system" {
			t.Fatalf("expected every attempt to rebuild the chat from history")
		}
		if len(call.chat.messages) != 1 || call.chat.messages[0] != "message" {
			t.Fatalf("unexpected chat message: %+v", call.chat.messages)
		}
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	noSleep(t)

	chats := newFakeChatCreator()
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	chats.enqueue("gemini-pro", nil, tempErr)
	chats.enqueue("gemini-pro", nil, tempErr)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 2,
		logger:     zap.NewNop(),
	}

	_, err := g.Send(context.Background(), nil, "msg")
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if !errors.Is(err, ai.ErrProvider) {
		t.Fatalf("expected provider error class, got %v", err)
	}

	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	chats := newFakeChatCreator()
	quotaErr := genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	}
	chats.enqueue("gemini-pro", nil, quotaErr)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 3,
		logger:     zap.NewNop(),
	}

	_, err := g.Send(context.Background(), nil, "msg")
	if err == nil {
		t.Fatal("expected error when quota delay too long")
	}
	if !errors.Is(err, ai.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}

	if len(chats.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(chats.calls))
	}
}

func TestGeneratorRetriesOnShortQuotaDelay(t *testing.T) {
	noSleep(t)

	chats := newFakeChatCreator()
	quotaErr := genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Details: []map[string]any{{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "2s"}},
	}
	chats.enqueue("gemini-pro", nil, quotaErr)
	chats.enqueue("gemini-pro", textResponse("ok", 1), nil)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 3,
		logger:     zap.NewNop(),
	}

	if _, err := g.Send(context.Background(), nil, "msg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}
}

func TestGeneratorEmptyResponseIsProviderError(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("gemini-pro", &genai.GenerateContentResponse{}, nil)

	g := &Generator{chats: chats, model: "gemini-pro", maxRetries: 1, logger: zap.NewNop()}

	_, err := g.Send(context.Background(), nil, "msg")
	if !errors.Is(err, ai.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestGeneratorRejectsEmptyMessage(t *testing.T) {
	g := &Generator{chats: newFakeChatCreator(), model: "gemini-pro", logger: zap.NewNop()}

	if _, err := g.Send(context.Background(), nil, "   "); !errors.Is(err, ai.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		expect error
	}{
		{name: "rate limit", err: genai.APIError{Code: http.StatusTooManyRequests}, expect: ai.ErrRateLimited},
		{name: "gateway timeout", err: genai.APIError{Code: http.StatusGatewayTimeout}, expect: ai.ErrTimeout},
		{name: "deadline", err: context.DeadlineExceeded, expect: ai.ErrTimeout},
		{name: "bad request", err: genai.APIError{Code: http.StatusBadRequest}, expect: ai.ErrProvider},
		{name: "transport", err: errors.New("connection reset"), expect: ai.ErrProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := classify(tt.err); !errors.Is(got, tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestNewGeneratorDefaults(t *testing.T) {
	g := newGenerator(newFakeChatCreator(), Options{Temperature: 0.4}, nil)

	if g.Model() != defaultModel {
		t.Fatalf("expected default model, got %q", g.Model())
	}
	if g.maxRetries != defaultMaxRetries {
		t.Fatalf("expected default retries, got %d", g.maxRetries)
	}
	if g.temperature == nil || *g.temperature != float32(0.4) {
		t.Fatalf("expected temperature to be set")
	}
}
