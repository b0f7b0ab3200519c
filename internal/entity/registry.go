// Package entity resolves "app.Model" references to the tables saved filters run against.
package entity

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// ErrUnknownEntity is returned when a reference does not match a registered entity.
var ErrUnknownEntity = errors.New("unknown entity")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Entity describes a filterable table.
type Entity struct {
	Label      string   `mapstructure:"label"`
	Table      string   `mapstructure:"table"`
	PrimaryKey string   `mapstructure:"primary_key"`
	Ordering   string   `mapstructure:"ordering"`
	Fields     []string `mapstructure:"fields"`
}

// AppLabel is the namespace half of the label.
func (e *Entity) AppLabel() string {
	app, _, _ := strings.Cut(e.Label, ".")
	return app
}

// ModelName is the type half of the label.
func (e *Entity) ModelName() string {
	_, model, _ := strings.Cut(e.Label, ".")
	return model
}

// ChangelistPath is the admin listing path for the entity.
func (e *Entity) ChangelistPath() string {
	return fmt.Sprintf("/admin/%s/%s/", strings.ToLower(e.AppLabel()), strings.ToLower(e.ModelName()))
}

// HasField reports whether name is a filterable column.
func (e *Entity) HasField(name string) bool {
	for _, f := range e.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// UnknownFields returns the entries of fields the entity does not expose.
func (e *Entity) UnknownFields(fields []string) []string {
	var unknown []string
	for _, f := range fields {
		if !e.HasField(f) {
			unknown = append(unknown, f)
		}
	}
	return unknown
}

// Registry is the set of entities known to the service.
type Registry struct {
	byLabel map[string]*Entity
}

// NewRegistry validates and indexes entities by case-insensitive label.
func NewRegistry(entities ...Entity) (*Registry, error) {
	r := &Registry{byLabel: make(map[string]*Entity, len(entities))}
	for i := range entities {
		e := entities[i]
		if err := normalize(&e); err != nil {
			return nil, err
		}
		key := strings.ToLower(e.Label)
		if _, dup := r.byLabel[key]; dup {
			return nil, fmt.Errorf("entity %s registered twice", e.Label)
		}
		r.byLabel[key] = &e
	}
	return r, nil
}

// Load reads the registry from a YAML (or any viper supported) file with an
// "entities" list.
func Load(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read entities file: %w", err)
	}
	var entities []Entity
	if err := v.UnmarshalKey("entities", &entities); err != nil {
		return nil, fmt.Errorf("decode entities file: %w", err)
	}
	return NewRegistry(entities...)
}

// Resolve looks up an "app.Model" reference.
func (r *Registry) Resolve(label string) (*Entity, error) {
	if r != nil {
		if e, ok := r.byLabel[strings.ToLower(strings.TrimSpace(label))]; ok {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, label)
}

// ResolvePath looks up an entity by the app and model segments of its admin path.
func (r *Registry) ResolvePath(app, model string) (*Entity, error) {
	return r.Resolve(app + "." + model)
}

// Labels lists registered labels alphabetically.
func (r *Registry) Labels() []string {
	labels := make([]string, 0, len(r.byLabel))
	for _, e := range r.byLabel {
		labels = append(labels, e.Label)
	}
	sort.Strings(labels)
	return labels
}

func normalize(e *Entity) error {
	app, model, ok := strings.Cut(e.Label, ".")
	if !ok || !identifierPattern.MatchString(app) || !identifierPattern.MatchString(model) {
		return fmt.Errorf("entity label %q must look like app.Model", e.Label)
	}
	for _, part := range strings.Split(e.Table, ".") {
		if !identifierPattern.MatchString(part) {
			return fmt.Errorf("entity %s: invalid table %q", e.Label, e.Table)
		}
	}
	if e.PrimaryKey == "" {
		e.PrimaryKey = "id"
	}
	if !identifierPattern.MatchString(e.PrimaryKey) {
		return fmt.Errorf("entity %s: invalid primary key %q", e.Label, e.PrimaryKey)
	}
	for _, f := range e.Fields {
		if !identifierPattern.MatchString(f) || strings.Contains(f, "__") {
			return fmt.Errorf("entity %s: invalid field %q", e.Label, f)
		}
	}
	if !e.HasField(e.PrimaryKey) {
		e.Fields = append([]string{e.PrimaryKey}, e.Fields...)
	}
	if e.Ordering == "" {
		e.Ordering = "-" + e.PrimaryKey
	}
	if !e.HasField(strings.TrimPrefix(e.Ordering, "-")) {
		return fmt.Errorf("entity %s: ordering %q is not a field", e.Label, e.Ordering)
	}
	return nil
}
