// Package prompts loads model prompt templates from a YAML file and renders
// them with text/template. Templates are parsed once at load time so a broken
// template fails startup instead of a live request.
package prompts

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

type Store struct {
	templates map[string]*template.Template
}

func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}

	var entries map[string]string
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse prompts yaml: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("prompts file %s is empty", path)
	}

	store := &Store{templates: make(map[string]*template.Template, len(entries))}
	for name, text := range entries {
		tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %q: %w", name, err)
		}
		store.templates[name] = tmpl
	}
	return store, nil
}

func (s *Store) Render(name string, args map[string]any) (string, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, args); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", name, err)
	}
	return sb.String(), nil
}

// Names lists the loaded prompt names, mainly for startup validation.
func (s *Store) Names() []string {
	out := make([]string, 0, len(s.templates))
	for name := range s.templates {
		out = append(out, name)
	}
	return out
}
