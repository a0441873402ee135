package models

// Candidate difficulty values assigned by the generator.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Candidate is an AI-proposed flashcard awaiting user accept/reject. It is
// never persisted; accepted candidates become Flashcards on save.
type Candidate struct {
	ID         string  `json:"id"`
	FrontText  string  `json:"front_text"`
	BackText   string  `json:"back_text"`
	Confidence float64 `json:"confidence"`
	Difficulty string  `json:"difficulty"`
	Category   string  `json:"category"`
}

// GenerationMetadata describes one generation call. Immutable after
// creation; ModelUsed is "mock-model" or "fallback" when the orchestrator
// served the request from the degraded path.
type GenerationMetadata struct {
	ModelUsed        string `json:"model_used"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	RetryCount       int    `json:"retry_count"`
}

// Duplicate types reported by the duplicate check.
const (
	DuplicateExact   = "exact"
	DuplicateSimilar = "similar"
	DuplicateNone    = "none"
)

// DuplicateCheckResult is the outcome of screening a candidate against a
// user's stored flashcards.
type DuplicateCheckResult struct {
	IsDuplicate         bool    `json:"is_duplicate"`
	ExistingFlashcardID string  `json:"existing_flashcard_id,omitempty"`
	SimilarityScore     float64 `json:"similarity_score"`
	DuplicateType       string  `json:"duplicate_type"`
}
