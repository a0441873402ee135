package duplicates

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cardsmith/cardsmith-api/models"
	"github.com/cardsmith/cardsmith-api/store"
	"github.com/cardsmith/cardsmith-api/textmatch"
)

func newTestStore(t *testing.T) *store.GormCardStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.FlashcardSet{}, &models.Flashcard{}))
	return store.NewGormCardStore(db)
}

func seedCard(t *testing.T, s *store.GormCardStore, userID uint, publicID, front, back string) {
	t.Helper()
	require.NoError(t, s.Insert(context.Background(), &models.Flashcard{
		PublicID:      publicID,
		FrontText:     front,
		BackText:      back,
		FrontTextHash: textmatch.Hash(front),
		BackTextHash:  textmatch.Hash(back),
		Source:        models.SourceManual,
		UserID:        userID,
		SetID:         1,
	}))
}

func TestCheckExactDuplicatePunctuationOnly(t *testing.T) {
	s := newTestStore(t)
	seedCard(t, s, 1, "card-1", "What is the capital of France?", "Paris")
	d := NewDetector(s, 0.8)

	// Only punctuation differs: normalizes to the same hash
	result, err := d.Check(context.Background(), 1, "What is the capital of France?!", "Paris")
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, models.DuplicateExact, result.DuplicateType)
	assert.Equal(t, 1.0, result.SimilarityScore)
	assert.Equal(t, "card-1", result.ExistingFlashcardID)
}

func TestCheckSimilarDuplicateTypo(t *testing.T) {
	s := newTestStore(t)
	seedCard(t, s, 1, "card-1", "What is the capital of France?", "Paris")
	d := NewDetector(s, 0.8)

	// One-letter typo: hash differs, similarity stays high
	result, err := d.Check(context.Background(), 1, "What is the capitol of France?", "Paris")
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, models.DuplicateSimilar, result.DuplicateType)
	assert.Greater(t, result.SimilarityScore, 0.9)
	assert.Less(t, result.SimilarityScore, 1.0)
	assert.Equal(t, "card-1", result.ExistingFlashcardID)
}

func TestCheckNoDuplicate(t *testing.T) {
	s := newTestStore(t)
	seedCard(t, s, 1, "card-1", "What is the capital of France?", "Paris")
	d := NewDetector(s, 0.8)

	result, err := d.Check(context.Background(), 1, "What is a monad?", "A monoid in the category of endofunctors.")
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	assert.Equal(t, models.DuplicateNone, result.DuplicateType)
	assert.Equal(t, 0.0, result.SimilarityScore)
	assert.Empty(t, result.ExistingFlashcardID)
}

func TestCheckScopedToUser(t *testing.T) {
	s := newTestStore(t)
	seedCard(t, s, 1, "card-1", "What is the capital of France?", "Paris")
	d := NewDetector(s, 0.8)

	// Another user's identical card is not a duplicate
	result, err := d.Check(context.Background(), 2, "What is the capital of France?", "Paris")
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
}

func TestCheckIgnoresSoftDeletedCards(t *testing.T) {
	s := newTestStore(t)
	seedCard(t, s, 1, "card-1", "What is the capital of France?", "Paris")

	var card models.Flashcard
	require.NoError(t, s.DB.Where("public_id = ?", "card-1").First(&card).Error)
	require.NoError(t, s.SoftDelete(context.Background(), card.ID))

	d := NewDetector(s, 0.8)
	result, err := d.Check(context.Background(), 1, "What is the capital of France?", "Paris")
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
}

func TestCheckWeightsBackText(t *testing.T) {
	s := newTestStore(t)
	seedCard(t, s, 1, "card-1", "Define photosynthesis", "The process plants use to convert light into energy.")
	d := NewDetector(s, 0.8)

	// Near-identical front, very different back: the weighted score lands
	// below what the front alone would give.
	withBack, err := d.Check(context.Background(), 1, "Define photosynthesiss", "Something else entirely, unrelated to plants.")
	require.NoError(t, err)
	frontOnly, err := d.Check(context.Background(), 1, "Define photosynthesis x", "")
	require.NoError(t, err)
	assert.Less(t, withBack.SimilarityScore, frontOnly.SimilarityScore)
}

func TestFindByHashMissReturnsNil(t *testing.T) {
	s := newTestStore(t)
	card, err := s.FindByHash(context.Background(), 1, textmatch.Hash("nothing here"))
	require.NoError(t, err)
	assert.Nil(t, card)
}
