package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultTemplates []byte

// File is the on-disk layout of a template set.
type File struct {
	Templates []Template `yaml:"templates"`
}

// StaticProvider serves templates held in memory.
type StaticProvider struct {
	templates map[string]Template
}

var _ Provider = (*StaticProvider)(nil)

// Defaults returns the built-in template set.
func Defaults() ([]Template, error) {
	return parseTemplates(defaultTemplates)
}

// LoadFile reads a YAML template set from path.
func LoadFile(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file %s: %w", path, err)
	}
	templates, err := parseTemplates(data)
	if err != nil {
		return nil, fmt.Errorf("prompts file %s: %w", path, err)
	}
	return templates, nil
}

func NewStaticProvider(templates []Template) *StaticProvider {
	p := &StaticProvider{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		p.templates[t.Name] = t
	}
	return p
}

// NewDefaultProvider serves the built-in templates.
func NewDefaultProvider() (*StaticProvider, error) {
	templates, err := Defaults()
	if err != nil {
		return nil, err
	}
	return NewStaticProvider(templates), nil
}

func (p *StaticProvider) Get(_ context.Context, name string) (string, error) {
	t, ok := p.templates[name]
	if !ok || !t.Active {
		return "", ErrNotFound
	}
	return strings.TrimSpace(t.Text), nil
}

// List returns active templates ordered by name.
func (p *StaticProvider) List(context.Context) ([]Template, error) {
	out := make([]Template, 0, len(p.templates))
	for _, t := range p.templates {
		if t.Active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func parseTemplates(data []byte) ([]Template, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse prompts yaml: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Templates))
	for i, t := range file.Templates {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("template %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("template %q is defined twice", name)
		}
		seen[name] = struct{}{}
		file.Templates[i].Name = name
	}
	return file.Templates, nil
}
