package llm

import (
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Tier selects which configured model serves a template.
type Tier string

const (
	TierStandard Tier = "standard"
	TierLite     Tier = "lite"
)

// Template is a named prompt with its model tier and the tools the model may
// call while answering it.
type Template struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Tier        Tier     `yaml:"tier"`
	Tools       []string `yaml:"tools"`
	Prompt      string   `yaml:"prompt"`

	tmpl *template.Template
}

// Render executes the prompt with the given input as template data.
func (t *Template) Render(input any) (string, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, input); err != nil {
		return "", fmt.Errorf("render template %s: %w", t.ID, err)
	}
	return buf.String(), nil
}

// Catalog holds the prompt templates keyed by ID.
type Catalog struct {
	templates map[string]*Template
}

// LoadCatalog parses every YAML file matching pattern in fsys.
func LoadCatalog(fsys fs.FS, pattern string) (*Catalog, error) {
	files, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("glob templates: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no templates match %q", pattern)
	}

	c := &Catalog{templates: make(map[string]*Template, len(files))}
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var t Template
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if err := c.add(&t, path.Base(name)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(t *Template, source string) error {
	if t.ID == "" {
		return fmt.Errorf("%s: template id is required", source)
	}
	if _, dup := c.templates[t.ID]; dup {
		return fmt.Errorf("%s: duplicate template id %q", source, t.ID)
	}
	switch t.Tier {
	case "":
		t.Tier = TierStandard
	case TierStandard, TierLite:
	default:
		return fmt.Errorf("%s: unknown tier %q", source, t.Tier)
	}
	tmpl, err := template.New(t.ID).Option("missingkey=error").Parse(t.Prompt)
	if err != nil {
		return fmt.Errorf("%s: parse prompt: %w", source, err)
	}
	t.tmpl = tmpl
	c.templates[t.ID] = t
	return nil
}

// Get returns the template with the given ID.
func (c *Catalog) Get(id string) (*Template, bool) {
	t, ok := c.templates[id]
	return t, ok
}

// IDs returns all template IDs in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.templates))
	for id := range c.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
