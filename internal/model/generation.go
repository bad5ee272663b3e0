package model

// GenerationEvent is one append-only audit record of a successful
// generation. Events are never updated or deleted by the running system.
type GenerationEvent struct {
	ID         string         `json:"id"`
	Owner      string         `json:"owner"`
	ArtifactID string         `json:"artifact_id"`
	Parameters map[string]any `json:"parameters"`
	CreatedAt  string         `json:"created_at"`
}

// StoreStats summarizes the persisted collections for the admin dashboard.
type StoreStats struct {
	TotalArtifacts int  `json:"total_artifacts"`
	TotalEvents    int  `json:"total_events"`
	UniqueOwners   int  `json:"unique_owners"`
	Healthy        bool `json:"healthy"`
}
