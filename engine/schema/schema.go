// Package schema declares the closed vocabulary for one ingestion run:
// entity types, relation types, and the permitted
// (subjectType, relationType, objectType) triples.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/loreweave/loreweave/engine/domain"
)

// Triple is one permitted (subject type, relation type, object type)
// combination.
type Triple struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// Schema is the vocabulary the extraction engine is constrained by.
// Immutable for the duration of one ingestion run.
type Schema struct {
	entities  map[string]struct{}
	relations map[string]struct{}
	allowed   map[Triple]struct{}
	enforce   bool

	entityList   []string
	relationList []string
	tripleList   []Triple
}

// Config is the serializable form of a Schema, as found in pipeline
// configuration files.
type Config struct {
	Entities        []string    `json:"entities"`
	Relations       []string    `json:"relations"`
	PotentialSchema [][3]string `json:"potential_schema"`
	Enforce         bool        `json:"enforce"`
}

// New builds a Schema from its configuration. Every triple must refer to
// declared entity and relation types.
func New(cfg Config) (*Schema, error) {
	if len(cfg.Entities) == 0 {
		return nil, domain.NewConfigError("schema.entities", "at least one entity type required")
	}

	s := &Schema{
		entities:  make(map[string]struct{}, len(cfg.Entities)),
		relations: make(map[string]struct{}, len(cfg.Relations)),
		allowed:   make(map[Triple]struct{}, len(cfg.PotentialSchema)),
		enforce:   cfg.Enforce,
	}

	for _, e := range cfg.Entities {
		e = strings.TrimSpace(e)
		if e == "" {
			return nil, domain.NewConfigError("schema.entities", "empty entity type")
		}
		if _, dup := s.entities[e]; dup {
			continue
		}
		s.entities[e] = struct{}{}
		s.entityList = append(s.entityList, e)
	}
	for _, r := range cfg.Relations {
		r = strings.TrimSpace(r)
		if r == "" {
			return nil, domain.NewConfigError("schema.relations", "empty relation type")
		}
		if _, dup := s.relations[r]; dup {
			continue
		}
		s.relations[r] = struct{}{}
		s.relationList = append(s.relationList, r)
	}
	for _, t := range cfg.PotentialSchema {
		triple := Triple{Subject: t[0], Relation: t[1], Object: t[2]}
		if _, ok := s.entities[triple.Subject]; !ok {
			return nil, domain.NewConfigError("schema.potential_schema",
				fmt.Sprintf("subject type %q not declared", triple.Subject))
		}
		if _, ok := s.relations[triple.Relation]; !ok {
			return nil, domain.NewConfigError("schema.potential_schema",
				fmt.Sprintf("relation type %q not declared", triple.Relation))
		}
		if _, ok := s.entities[triple.Object]; !ok {
			return nil, domain.NewConfigError("schema.potential_schema",
				fmt.Sprintf("object type %q not declared", triple.Object))
		}
		if _, dup := s.allowed[triple]; dup {
			continue
		}
		s.allowed[triple] = struct{}{}
		s.tripleList = append(s.tripleList, triple)
	}
	return s, nil
}

// LoadFile reads a JSON schema configuration from disk.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewConfigError("schema", err.Error())
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, domain.NewConfigError("schema", fmt.Sprintf("parse %s: %v", path, err))
	}
	return New(cfg)
}

// Enforce reports whether triples outside the allow-list are dropped.
func (s *Schema) Enforce() bool { return s.enforce }

// HasEntityType reports whether t is a declared entity type.
func (s *Schema) HasEntityType(t string) bool {
	_, ok := s.entities[t]
	return ok
}

// HasRelationType reports whether t is a declared relation type.
func (s *Schema) HasRelationType(t string) bool {
	_, ok := s.relations[t]
	return ok
}

// Allows reports whether the triple is permitted. When enforcement is
// off, every triple is permitted.
func (s *Schema) Allows(t Triple) bool {
	if !s.enforce {
		return true
	}
	_, ok := s.allowed[t]
	return ok
}

// EntityTypes returns the declared entity types in declaration order.
func (s *Schema) EntityTypes() []string { return append([]string(nil), s.entityList...) }

// RelationTypes returns the declared relation types in declaration order.
func (s *Schema) RelationTypes() []string { return append([]string(nil), s.relationList...) }

// Triples returns the allowed triples in declaration order.
func (s *Schema) Triples() []Triple { return append([]Triple(nil), s.tripleList...) }

// Describe renders the schema as prompt text: node labels, relationship
// types, and the permitted patterns, one per line.
func (s *Schema) Describe() string {
	var b strings.Builder
	b.WriteString("Entity types: ")
	b.WriteString(strings.Join(s.entityList, ", "))
	b.WriteString("\nRelation types: ")
	b.WriteString(strings.Join(s.relationList, ", "))
	if len(s.tripleList) > 0 {
		b.WriteString("\nAllowed patterns:\n")
		patterns := make([]string, len(s.tripleList))
		for i, t := range s.tripleList {
			patterns[i] = fmt.Sprintf("(:%s)-[:%s]->(:%s)", t.Subject, t.Relation, t.Object)
		}
		sort.Strings(patterns)
		b.WriteString(strings.Join(patterns, "\n"))
	}
	return b.String()
}
