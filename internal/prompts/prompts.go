// Package prompts supplies interview instruction templates by name.
package prompts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Template names consumed by the interview engine.
const (
	SystemPrompt        = "system_prompt"
	FirstQuestionPrompt = "first_question_prompt"
	NextQuestionPrompt  = "next_question_prompt"
	SummaryPrompt       = "summary_prompt"

	violationCountToken = "{violation_count}"
)

var ErrNotFound = errors.New("prompt not found or inactive")

// Template is a stored instruction text.
type Template struct {
	Name        string `yaml:"name" bson:"name" json:"name"`
	Description string `yaml:"description" bson:"description" json:"description"`
	Category    string `yaml:"category" bson:"category" json:"category"`
	Active      bool   `yaml:"active" bson:"active" json:"active"`
	Text        string `yaml:"prompt_text" bson:"prompt_text" json:"prompt_text"`
}

// Provider returns the trimmed text of an active template.
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

// TemplateError reports a template that could not be fetched or rendered.
type TemplateError struct {
	Name string
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("prompt %q: %v", e.Name, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// Renderer builds the four engine instructions on top of a Provider.
type Renderer struct {
	provider Provider
}

func NewRenderer(provider Provider) *Renderer {
	return &Renderer{provider: provider}
}

func (r *Renderer) System(ctx context.Context, params map[string]any) (string, error) {
	return r.format(ctx, SystemPrompt, params)
}

func (r *Renderer) FirstQuestion(ctx context.Context) (string, error) {
	return r.get(ctx, FirstQuestionPrompt)
}

func (r *Renderer) NextQuestion(ctx context.Context, answer, timeRemaining string) (string, error) {
	return r.format(ctx, NextQuestionPrompt, map[string]any{
		"answer":         answer,
		"time_remaining": timeRemaining,
	})
}

// Summary substitutes only the violation count. The template embeds example
// JSON whose braces are not placeholders.
func (r *Renderer) Summary(ctx context.Context, violationCount int) (string, error) {
	text, err := r.get(ctx, SummaryPrompt)
	if err != nil {
		return "", err
	}
	return ReplaceToken(text, violationCountToken, violationCount), nil
}

func (r *Renderer) get(ctx context.Context, name string) (string, error) {
	if r == nil || r.provider == nil {
		return "", &TemplateError{Name: name, Err: errors.New("prompt provider is not configured")}
	}
	text, err := r.provider.Get(ctx, name)
	if err != nil {
		return "", &TemplateError{Name: name, Err: err}
	}
	return text, nil
}

func (r *Renderer) format(ctx context.Context, name string, params map[string]any) (string, error) {
	text, err := r.get(ctx, name)
	if err != nil {
		return "", err
	}
	out, err := Format(text, params)
	if err != nil {
		return "", &TemplateError{Name: name, Err: err}
	}
	return out, nil
}

// ReplaceToken substitutes every literal occurrence of token and nothing else.
func ReplaceToken(text, token string, value any) string {
	return strings.ReplaceAll(text, token, fmt.Sprint(value))
}

// Format performs named substitution of {key} placeholders. Doubled braces
// render as literal braces. Unknown keys and stray braces are errors.
func Format(text string, params map[string]any) (string, error) {
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch ch {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end == -1 {
				return "", fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			key := text[i+1 : i+1+end]
			if key == "" || strings.ContainsAny(key, "{ \t\n") {
				return "", fmt.Errorf("invalid placeholder %q at offset %d", key, i)
			}
			value, ok := params[key]
			if !ok {
				return "", fmt.Errorf("missing value for placeholder %q", key)
			}
			b.WriteString(fmt.Sprint(value))
			i += end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("single '}' at offset %d", i)
		default:
			b.WriteByte(ch)
		}
	}

	return b.String(), nil
}
