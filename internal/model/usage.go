package model

// UsageStats is the user-visible view of a daily quota bucket. ResetAt is
// the next UTC midnight in RFC 3339, the moment the counter starts over.
type UsageStats struct {
	CanGenerate  bool   `json:"can_generate"`
	CurrentUsage int    `json:"current_usage"`
	Limit        int    `json:"limit"`
	Remaining    int    `json:"remaining"`
	ResetAt      string `json:"reset_time"`
	IdentityType string `json:"user_type"`
}
