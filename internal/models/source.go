package models

// SourceToggle is one optional external data source a user can enable or
// disable to scope searches. The collection keeps a fixed registration
// order across toggles and persistence reloads.
type SourceToggle struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Enabled     bool   `json:"enabled"`
}
