package aiservice

import "hash/fnv"

// MockModelName is reported in generation metadata when the degraded path
// served the request.
const MockModelName = "mock-model"

var mockPool = []ParsedFlashcard{
	{FrontText: "What is spaced repetition?", BackText: "A learning technique that schedules reviews at increasing intervals to improve long-term retention.", Difficulty: "easy", Category: "learning"},
	{FrontText: "What does the forgetting curve describe?", BackText: "The decline of memory retention over time when information is not reviewed.", Difficulty: "easy", Category: "learning"},
	{FrontText: "What is active recall?", BackText: "Retrieving information from memory without looking at the source, which strengthens retention more than re-reading.", Difficulty: "medium", Category: "learning"},
	{FrontText: "What is the testing effect?", BackText: "The finding that taking practice tests improves long-term memory more than additional studying.", Difficulty: "medium", Category: "learning"},
	{FrontText: "What is interleaving in study practice?", BackText: "Mixing different topics or problem types within a study session instead of blocking them by type.", Difficulty: "hard", Category: "learning"},
	{FrontText: "What is elaborative encoding?", BackText: "Connecting new information to existing knowledge to create richer memory traces.", Difficulty: "medium", Category: "learning"},
	{FrontText: "What is a mnemonic device?", BackText: "A memory aid that encodes information in an easily retrievable form, such as an acronym or rhyme.", Difficulty: "easy", Category: "learning"},
	{FrontText: "What is desirable difficulty?", BackText: "A learning condition that feels harder but produces more durable learning, such as retrieval practice.", Difficulty: "hard", Category: "learning"},
}

// MockGenerator produces deterministic flashcards when the real provider is
// unusable: the same input text always yields the same selection, so the
// degraded path stays predictable for users and testable in CI.
type MockGenerator struct{}

// Generate picks a stable 3-5 card window from the fixed pool based on a
// hash of the input text.
func (MockGenerator) Generate(text string, count int) []ParsedFlashcard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()

	n := 3 + int(seed%3)
	if count > 0 && count < n {
		n = count
	}
	start := int(seed) % len(mockPool)
	if start < 0 {
		start += len(mockPool)
	}

	cards := make([]ParsedFlashcard, 0, n)
	for i := 0; i < n; i++ {
		cards = append(cards, mockPool[(start+i)%len(mockPool)])
	}
	return cards
}
