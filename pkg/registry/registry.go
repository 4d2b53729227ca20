// Package registry defines the fixed set of optional external data sources a
// user can scope searches to. Registration order is part of the contract:
// downstream scope semantics follow this order, and the toggle layer must
// preserve it across persistence reloads.
package registry

import "nextrial-session/internal/models"

// SourceDefinition describes one data source in the fixed registry.
type SourceDefinition struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	Description    string `json:"description"`
	DefaultEnabled bool   `json:"defaultEnabled"`
}

// definitions is the fixed registry, in registration order. Entries are
// never removed at runtime; corrupt persisted state resets to these.
var definitions = []SourceDefinition{
	{
		ID:          "ctgov",
		DisplayName: "ClinicalTrials.gov",
		Description: "Trial registry records and recruiting-site data",
	},
	{
		ID:          "pubmed",
		DisplayName: "PubMed",
		Description: "Biomedical literature abstracts",
	},
	{
		ID:          "rxnorm",
		DisplayName: "RxNorm",
		Description: "Normalized drug names and relationships",
	},
	{
		ID:          "openfda",
		DisplayName: "openFDA Labels",
		Description: "Drug product labeling",
	},
}

// Definitions returns the fixed registry in registration order.
func Definitions() []SourceDefinition {
	out := make([]SourceDefinition, len(definitions))
	copy(out, definitions)
	return out
}

// DefaultToggles returns the registry as toggle state with default flags.
func DefaultToggles() []models.SourceToggle {
	out := make([]models.SourceToggle, len(definitions))
	for i, def := range definitions {
		out[i] = models.SourceToggle{
			ID:          def.ID,
			DisplayName: def.DisplayName,
			Enabled:     def.DefaultEnabled,
		}
	}
	return out
}

// Lookup returns the definition for id, if registered.
func Lookup(id string) (SourceDefinition, bool) {
	for _, def := range definitions {
		if def.ID == id {
			return def, true
		}
	}
	return SourceDefinition{}, false
}
