// Package duplicates screens proposed flashcards against a user's stored
// cards before persistence.
package duplicates

import (
	"context"

	"github.com/cardsmith/cardsmith-api/models"
	"github.com/cardsmith/cardsmith-api/store"
	"github.com/cardsmith/cardsmith-api/textmatch"
)

// DefaultSimilarityThreshold is the near-duplicate cutoff for the weighted
// similarity score.
const DefaultSimilarityThreshold = 0.8

const (
	frontWeight = 0.7
	backWeight  = 0.3
)

// Detector finds exact (hash) and near (similarity) duplicates. The near
// check is a full scan of the user's card set per call, which is fine at
// hundreds of cards per user but does not scale to very large sets.
type Detector struct {
	store     store.CardStore
	threshold float64
}

func NewDetector(cardStore store.CardStore, threshold float64) *Detector {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &Detector{store: cardStore, threshold: threshold}
}

// Check screens a candidate's text against the user's non-deleted cards.
// An exact hash match on the front text wins immediately with score 1.0;
// otherwise the best weighted similarity (0.7 front + 0.3 back when back
// text is supplied) is compared against the threshold.
func (d *Detector) Check(ctx context.Context, userID uint, frontText, backText string) (models.DuplicateCheckResult, error) {
	hash := textmatch.Hash(frontText)
	exact, err := d.store.FindByHash(ctx, userID, hash)
	if err != nil {
		return models.DuplicateCheckResult{}, err
	}
	if exact != nil {
		return models.DuplicateCheckResult{
			IsDuplicate:         true,
			ExistingFlashcardID: exact.PublicID,
			SimilarityScore:     1.0,
			DuplicateType:       models.DuplicateExact,
		}, nil
	}

	cards, err := d.store.ListActive(ctx, userID)
	if err != nil {
		return models.DuplicateCheckResult{}, err
	}

	bestScore := 0.0
	bestID := ""
	for _, card := range cards {
		score := textmatch.Similarity(frontText, card.FrontText)
		if backText != "" {
			score = frontWeight*score + backWeight*textmatch.Similarity(backText, card.BackText)
		}
		if score > bestScore {
			bestScore = score
			bestID = card.PublicID
		}
	}

	if bestScore >= d.threshold {
		return models.DuplicateCheckResult{
			IsDuplicate:         true,
			ExistingFlashcardID: bestID,
			SimilarityScore:     bestScore,
			DuplicateType:       models.DuplicateSimilar,
		}, nil
	}
	return models.DuplicateCheckResult{
		DuplicateType: models.DuplicateNone,
	}, nil
}
