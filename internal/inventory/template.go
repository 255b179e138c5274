package inventory

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// ItemTemplate describes how to build an Item. Templates are loaded from YAML
// content files and act as the item builder: they validate and default fields.
type ItemTemplate struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Image       string            `yaml:"image"`
	Background  string            `yaml:"background"`
	Width       int               `yaml:"width"`
	Height      int               `yaml:"height"`
	Stackable   bool              `yaml:"stackable"`
	StackSize   int               `yaml:"stack_size"`
	Metadata    map[string]string `yaml:"metadata"`
}

// Validate checks that the ItemTemplate satisfies its invariants. Zero
// dimensions are allowed and default to 1 in Build.
//
// Precondition: t is non-nil.
// Postcondition: returns nil iff all fields are valid.
func (t *ItemTemplate) Validate() error {
	var errs []error
	if t.ID == "" {
		errs = append(errs, errors.New("ID must not be empty"))
	}
	if t.Width < 0 {
		errs = append(errs, fmt.Errorf("Width must be >= 0, got %d", t.Width))
	}
	if t.Height < 0 {
		errs = append(errs, fmt.Errorf("Height must be >= 0, got %d", t.Height))
	}
	if t.Width > MaxDimension || t.Height > MaxDimension {
		errs = append(errs, fmt.Errorf("footprint %dx%d exceeds %d", t.Width, t.Height, MaxDimension))
	}
	if t.Stackable && t.StackSize < 0 {
		errs = append(errs, fmt.Errorf("StackSize must be >= 0 for stackable items, got %d", t.StackSize))
	}
	if !t.Stackable && t.StackSize != 0 {
		errs = append(errs, errors.New("StackSize requires Stackable"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("template validation failed: %v", errors.Join(errs...))
	}
	return nil
}

// Build returns a new Item with a fresh ID.
//
// Precondition: t.Validate() returns nil.
// Postcondition: the item has Width, Height >= 1; StackSize is NotStackable for
// non-stackable templates and >= 1 for stackable ones.
func (t *ItemTemplate) Build() *Item {
	it := &Item{
		ID:          NewItemID(),
		Width:       max(t.Width, 1),
		Height:      max(t.Height, 1),
		StackSize:   NotStackable,
		Name:        t.Name,
		Description: t.Description,
		Image:       t.Image,
		Background:  t.Background,
	}
	if t.Stackable {
		it.StackSize = max(t.StackSize, 1)
	}
	if len(t.Metadata) > 0 {
		it.Metadata = maps.Clone(t.Metadata)
	}
	return it
}

// LoadTemplates reads all *.yaml and *.yml files from dir, parses each as an
// ItemTemplate, validates it, and returns the collected slice.
//
// Precondition: dir is a readable directory path.
// Postcondition: returns all valid templates or the first encountered error.
func LoadTemplates(dir string) ([]*ItemTemplate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("LoadTemplates: cannot read directory %q: %w", dir, err)
	}

	var out []*ItemTemplate
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("LoadTemplates: cannot read file %q: %w", path, err)
		}
		var t ItemTemplate
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("LoadTemplates: cannot parse file %q: %w", path, err)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("LoadTemplates: invalid template in %q: %w", path, err)
		}
		out = append(out, &t)
	}
	return out, nil
}

// TemplateRegistry holds item templates indexed by ID.
type TemplateRegistry struct {
	templates map[string]*ItemTemplate
}

// NewTemplateRegistry returns a registry seeded with templates.
//
// Postcondition: returns an error on the first duplicate ID.
func NewTemplateRegistry(templates ...*ItemTemplate) (*TemplateRegistry, error) {
	r := &TemplateRegistry{templates: make(map[string]*ItemTemplate, len(templates))}
	for _, t := range templates {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t to the registry.
//
// Precondition: t must not be nil.
// Postcondition: Template(t.ID) returns (t, true); returns error if t.ID already registered.
func (r *TemplateRegistry) Register(t *ItemTemplate) error {
	if _, exists := r.templates[t.ID]; exists {
		return fmt.Errorf("inventory: TemplateRegistry.Register: template ID %q already registered", t.ID)
	}
	r.templates[t.ID] = t
	return nil
}

// Template returns the template for id and whether it was found.
func (r *TemplateRegistry) Template(id string) (*ItemTemplate, bool) {
	t, ok := r.templates[id]
	return t, ok
}

// Build creates a new Item from the template registered under id.
func (r *TemplateRegistry) Build(id string) (*Item, error) {
	t, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("inventory: unknown template %q", id)
	}
	return t.Build(), nil
}

// IDs returns all registered template IDs in sorted order.
func (r *TemplateRegistry) IDs() []string {
	return slices.Sorted(maps.Keys(r.templates))
}
