package prompts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		params  map[string]any
		want    string
		wantErr bool
	}{
		{
			name:   "named placeholders",
			text:   "Role: {role}, {duration} minutes",
			params: map[string]any{"role": "Accountant", "duration": 30},
			want:   "Role: Accountant, 30 minutes",
		},
		{
			name:   "escaped braces",
			text:   "{{\"score\": {score}}}",
			params: map[string]any{"score": 10},
			want:   "{\"score\": 10}",
		},
		{
			name:   "repeated key",
			text:   "{a}-{a}",
			params: map[string]any{"a": "x"},
			want:   "x-x",
		},
		{
			name:   "no placeholders",
			text:   "Start the interview.",
			params: nil,
			want:   "Start the interview.",
		},
		{
			name:    "missing key",
			text:    "Hello {name}",
			params:  map[string]any{},
			wantErr: true,
		},
		{
			name:    "unclosed",
			text:    "Hello {name",
			params:  map[string]any{"name": "x"},
			wantErr: true,
		},
		{
			name:    "stray closing brace",
			text:    "Hello }",
			wantErr: true,
		},
		{
			name:    "json is not a placeholder",
			text:    "{\n  \"score\": 1\n}",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.text, tt.params)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("unexpected result: got %q want %q", got, tt.want)
			}
		})
	}
}

func TestReplaceTokenLeavesOtherBraces(t *testing.T) {
	text := "violations: {violation_count}\n{{\n  \"score\": number\n}}\n{other}"
	got := ReplaceToken(text, violationCountToken, 2)

	want := "violations: 2\n{{\n  \"score\": number\n}}\n{other}"
	if got != want {
		t.Fatalf("unexpected result:\n%s\nwant:\n%s", got, want)
	}
}

type mapProvider map[string]string

func (m mapProvider) Get(_ context.Context, name string) (string, error) {
	text, ok := m[name]
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}

func TestRenderer(t *testing.T) {
	ctx := context.Background()
	r := NewRenderer(mapProvider{
		SystemPrompt:        "Interview for {role}",
		FirstQuestionPrompt: "Start.",
		NextQuestionPrompt:  "Answer: {answer}\nLeft: {time_remaining}",
		SummaryPrompt:       "Violations {violation_count}. Return {\"score\": 1}",
	})

	system, err := r.System(ctx, map[string]any{"role": "Engineer"})
	if err != nil || system != "Interview for Engineer" {
		t.Fatalf("system: %q, %v", system, err)
	}

	next, err := r.NextQuestion(ctx, "I did {things}", "5 minutes")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next != "Answer: I did {things}\nLeft: 5 minutes" {
		t.Fatalf("answer braces must be kept verbatim, got %q", next)
	}

	summary, err := r.Summary(ctx, 0)
	if err != nil || summary != "Violations 0. Return {\"score\": 1}" {
		t.Fatalf("summary: %q, %v", summary, err)
	}

	_, err = r.System(ctx, map[string]any{})
	var tmplErr *TemplateError
	if !errors.As(err, &tmplErr) || tmplErr.Name != SystemPrompt {
		t.Fatalf("expected template error for system prompt, got %v", err)
	}
}

func TestRendererMissingTemplate(t *testing.T) {
	r := NewRenderer(mapProvider{})

	_, err := r.FirstQuestion(context.Background())
	var tmplErr *TemplateError
	if !errors.As(err, &tmplErr) {
		t.Fatalf("expected *TemplateError, got %T", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound in chain, got %v", err)
	}
	if tmplErr.Name != FirstQuestionPrompt {
		t.Fatalf("unexpected template name %q", tmplErr.Name)
	}
}

func systemParams() map[string]any {
	return map[string]any{
		"candidateName":              "Jane",
		"role":                       "Accountant",
		"natureOfRole":               "Full-time",
		"educationalQualification":   "B.Com",
		"pastYearsExperience":        3,
		"pastYearsExperienceField":   "audit",
		"currentYearExperience":      1,
		"currentYearExperienceField": "tax",
		"coreSkillSet":               "IFRS, Excel",
		"typeOfCompany":              "Startup",
		"interviewType":              "Technical",
		"level":                      "Junior",
		"duration":                   30,
	}
}

func TestDefaultsRender(t *testing.T) {
	provider, err := NewDefaultProvider()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	ctx := context.Background()
	r := NewRenderer(provider)

	system, err := r.System(ctx, systemParams())
	if err != nil {
		t.Fatalf("render system prompt: %v", err)
	}
	if !strings.Contains(system, "Role: Accountant") || !strings.Contains(system, "Duration: 30 minutes") {
		t.Fatalf("system prompt not rendered: %s", system)
	}

	if _, err := r.FirstQuestion(ctx); err != nil {
		t.Fatalf("first question prompt: %v", err)
	}

	next, err := r.NextQuestion(ctx, "my answer", "12 minutes")
	if err != nil {
		t.Fatalf("render next question prompt: %v", err)
	}
	if !strings.Contains(next, "my answer") || !strings.Contains(next, "Time remaining: 12 minutes") {
		t.Fatalf("next question prompt not rendered: %s", next)
	}

	summary, err := r.Summary(ctx, 3)
	if err != nil {
		t.Fatalf("summary prompt: %v", err)
	}
	if !strings.Contains(summary, "violations: 3") {
		t.Fatalf("violation count not substituted: %s", summary)
	}
	if strings.Contains(summary, violationCountToken) {
		t.Fatalf("token left in summary prompt")
	}

	list, err := provider.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("expected 4 default templates, got %d", len(list))
	}
}

func TestStaticProviderInactiveAndTrim(t *testing.T) {
	p := NewStaticProvider([]Template{
		{Name: "a", Active: true, Text: "  padded\n"},
		{Name: "b", Active: false, Text: "hidden"},
	})

	got, err := p.Get(context.Background(), "a")
	if err != nil || got != "padded" {
		t.Fatalf("unexpected template: %q, %v", got, err)
	}
	if _, err := p.Get(context.Background(), "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("inactive template must be not found, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "prompts.yaml")
	content := "templates:\n  - name: first_question_prompt\n    active: true\n    prompt_text: Hi\n"
	if err := os.WriteFile(valid, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	templates, err := LoadFile(valid)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(templates) != 1 || templates[0].Text != "Hi" {
		t.Fatalf("unexpected templates: %+v", templates)
	}

	dup := filepath.Join(dir, "dup.yaml")
	content = "templates:\n  - name: a\n  - name: a\n"
	if err := os.WriteFile(dup, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(dup); err == nil {
		t.Fatalf("expected duplicate name error")
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
