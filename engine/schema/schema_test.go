package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/loreweave/loreweave/engine/domain"
)

func duneConfig(enforce bool) Config {
	return Config{
		Entities:  []string{"Person", "Organization", "Location"},
		Relations: []string{"SITUATED_AT", "LED_BY"},
		PotentialSchema: [][3]string{
			{"Person", "SITUATED_AT", "Location"},
			{"Organization", "LED_BY", "Person"},
		},
		Enforce: enforce,
	}
}

func TestNewValidatesTripleVocabulary(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown subject", Config{
			Entities:        []string{"Person"},
			Relations:       []string{"KNOWS"},
			PotentialSchema: [][3]string{{"Ghola", "KNOWS", "Person"}},
		}},
		{"unknown relation", Config{
			Entities:        []string{"Person"},
			Relations:       []string{"KNOWS"},
			PotentialSchema: [][3]string{{"Person", "BETRAYS", "Person"}},
		}},
		{"unknown object", Config{
			Entities:        []string{"Person"},
			Relations:       []string{"KNOWS"},
			PotentialSchema: [][3]string{{"Person", "KNOWS", "Planet"}},
		}},
		{"no entities", Config{Relations: []string{"KNOWS"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestAllowsUnderEnforcement(t *testing.T) {
	s, err := New(duneConfig(true))
	if err != nil {
		t.Fatal(err)
	}
	if !s.Allows(Triple{"Person", "SITUATED_AT", "Location"}) {
		t.Error("declared triple should be allowed")
	}
	if s.Allows(Triple{"Organization", "SITUATED_AT", "Person"}) {
		t.Error("undeclared triple must be dropped under enforcement")
	}
	if s.Allows(Triple{"Location", "LED_BY", "Person"}) {
		t.Error("undeclared triple must be dropped under enforcement")
	}
}

func TestAllowsWithEnforcementOff(t *testing.T) {
	s, err := New(duneConfig(false))
	if err != nil {
		t.Fatal(err)
	}
	if !s.Allows(Triple{"Organization", "SITUATED_AT", "Person"}) {
		t.Error("any triple is accepted when enforcement is off")
	}
}

func TestVocabularyLookups(t *testing.T) {
	s, err := New(duneConfig(true))
	if err != nil {
		t.Fatal(err)
	}
	if !s.HasEntityType("Person") || s.HasEntityType("Sandworm") {
		t.Error("entity type lookup wrong")
	}
	if !s.HasRelationType("LED_BY") || s.HasRelationType("BETRAYS") {
		t.Error("relation type lookup wrong")
	}
	if got := s.EntityTypes(); len(got) != 3 || got[0] != "Person" {
		t.Errorf("EntityTypes() = %v", got)
	}
}

func TestDescribeListsPatterns(t *testing.T) {
	s, err := New(duneConfig(true))
	if err != nil {
		t.Fatal(err)
	}
	desc := s.Describe()
	for _, want := range []string{
		"Person, Organization, Location",
		"SITUATED_AT, LED_BY",
		"(:Person)-[:SITUATED_AT]->(:Location)",
		"(:Organization)-[:LED_BY]->(:Person)",
	} {
		if !strings.Contains(desc, want) {
			t.Errorf("Describe() missing %q:\n%s", want, desc)
		}
	}
}
