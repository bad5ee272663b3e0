package model

// Artifact is the persisted metadata of one generated image. The id is
// assigned at creation and immutable; the only field that may change
// afterwards is IsFavorite. Owner holds the identity key of the creator
// ("user:<id>" or "ip:<addr>").
type Artifact struct {
	ID             string  `json:"id"`
	Owner          string  `json:"owner"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	GuidanceScale  float64 `json:"guidance_scale,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
	Model          string  `json:"model"`
	FileURL        string  `json:"file_url"`
	ThumbnailURL   string  `json:"thumbnail_url"`
	FileSize       int64   `json:"file_size"`
	GenerationTime float64 `json:"generation_time"`
	CreatedAt      string  `json:"created_at"`
	IsFavorite     bool    `json:"is_favorite"`
}
