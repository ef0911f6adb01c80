package request

type SubmitJobRequest struct {
	UserID      string `json:"user_id"`
	CommunityID string `json:"community_id"`
	SourceURL   string `json:"source_url"`
	Kind        string `json:"kind,omitempty"` // "profile" or "recipe"
}

type ConfirmExtractionRequest struct {
	Count int `json:"count"`
}

type ExtractMoreRequest struct {
	AdditionalCount int `json:"additional_count"`
}

// RetryChunksRequest retries either one named chunk or, with no body /
// no chunk number, every failed chunk.
type RetryChunksRequest struct {
	ChunkNumber *int `json:"chunk_number,omitempty"`
}

type AnalyzeSegmentsRequest struct {
	VideoURL      string   `json:"video_url"`
	Instructions  []string `json:"instructions"`
	TotalDuration float64  `json:"total_duration"`
}
