package persona

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store exposes persona retrieval for the backend.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
	Default() Persona
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
// The first item is the default persona.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the configured personas.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

// Default returns the first persona, or the built-in one when empty.
func (s *MemoryStore) Default() Persona {
	if len(s.items) == 0 {
		return Seed()[0]
	}
	return s.items[0]
}

type personaFile struct {
	Personas []Persona `yaml:"personas"`
}

// LoadFile reads personas from a YAML file of the form `personas: [...]`.
func LoadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}

	var doc personaFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode persona file: %w", err)
	}
	if len(doc.Personas) == 0 {
		return nil, errors.New("persona file defines no personas")
	}

	for i := range doc.Personas {
		p := &doc.Personas[i]
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("persona #%d has no name", i+1)
		}
		if p.ID == "" {
			p.ID = fmt.Sprintf("persona-%d", i+1)
		}
	}
	return doc.Personas, nil
}
