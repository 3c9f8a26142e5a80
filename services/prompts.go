package services

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed assets/prompts.yaml
var promptsYAML []byte

//go:embed assets/ranking.schema.json
var rankingSchemaJSON []byte

// PromptTemplate is one entry of the prompt catalog
type PromptTemplate struct {
	Description string `yaml:"description"`
	Template    string `yaml:"template"`
}

// PromptCatalog holds the parsed prompt templates by name
type PromptCatalog struct {
	templates map[string]*template.Template
}

var promptFuncs = template.FuncMap{
	"join": strings.Join,
}

// LoadPromptCatalog parses a YAML catalog of named templates
func LoadPromptCatalog(data []byte) (*PromptCatalog, error) {
	var raw map[string]PromptTemplate
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}

	c := &PromptCatalog{templates: make(map[string]*template.Template, len(raw))}
	for name, p := range raw {
		if strings.TrimSpace(p.Template) == "" {
			return nil, fmt.Errorf("prompt %q has an empty template", name)
		}
		t, err := template.New(name).Funcs(promptFuncs).Option("missingkey=error").Parse(p.Template)
		if err != nil {
			return nil, fmt.Errorf("compile prompt %q: %w", name, err)
		}
		c.templates[name] = t
	}
	return c, nil
}

// DefaultPromptCatalog returns the catalog embedded in the binary
func DefaultPromptCatalog() (*PromptCatalog, error) {
	return LoadPromptCatalog(promptsYAML)
}

// Render executes the named template with data
func (c *PromptCatalog) Render(name string, data any) (string, error) {
	t, ok := c.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
