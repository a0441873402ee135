package aiservice

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardsmith/cardsmith-api/logger"
)

type stubProvider struct {
	model string
	calls int
	fn    func(system, user string) (string, error)
}

func (s *stubProvider) Complete(ctx context.Context, system, user string) (string, error) {
	s.calls++
	return s.fn(system, user)
}

func (s *stubProvider) Model() string {
	if s.model == "" {
		return "stub-model"
	}
	return s.model
}

const threeCardResponse = `{"flashcards":[
	{"front_text":"What is a goroutine?","back_text":"A lightweight thread managed by the Go runtime.","difficulty":"easy","category":"go"},
	{"front_text":"What does the select statement do?","back_text":"Waits on multiple channel operations.","difficulty":"medium","category":"go"},
	{"front_text":"What is a nil map read?","back_text":"Reads from a nil map return zero values; writes panic.","difficulty":"hard","category":"go"}
]}`

func newTestOrchestrator(p Provider) *Orchestrator {
	log := logger.NewNop()
	breaker := NewBreaker(DefaultBreakerConfig(), log)
	retry := NewRetryManager(log)
	retry.Register("test-fast", RetryStrategy{
		MaxAttempts:       2,
		BaseDelay:         time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
		BackoffMultiplier: 2,
		JitterFactor:      0,
		RetryableKinds:    []ErrorKind{KindRateLimit, KindTimeout, KindModelError, KindNetwork},
	})
	o := NewOrchestrator(p, breaker, retry, log)
	o.strategy = "test-fast"
	return o
}

func TestGenerateHappyPath(t *testing.T) {
	provider := &stubProvider{fn: func(system, user string) (string, error) {
		return threeCardResponse, nil
	}}
	o := newTestOrchestrator(provider)

	result, err := o.Generate(context.Background(), GenerationRequest{
		Topic: "Go concurrency", Difficulty: "medium", Count: 5,
	})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 3)

	seen := map[string]bool{}
	for _, c := range result.Candidates {
		assert.NotEmpty(t, c.ID)
		assert.False(t, seen[c.ID], "candidate IDs must be unique")
		seen[c.ID] = true
		assert.LessOrEqual(t, len(c.FrontText), 200)
		assert.LessOrEqual(t, len(c.BackText), 500)
		assert.GreaterOrEqual(t, c.Confidence, 0.70)
		assert.LessOrEqual(t, c.Confidence, 0.99)
	}

	assert.Equal(t, "stub-model", result.Metadata.ModelUsed)
	assert.Equal(t, 0, result.Metadata.RetryCount)
	assert.GreaterOrEqual(t, result.Metadata.ProcessingTimeMs, int64(0))
	assert.Equal(t, ModeLive, o.Mode())
}

func TestGenerateCapsCandidateCount(t *testing.T) {
	provider := &stubProvider{fn: func(system, user string) (string, error) {
		return threeCardResponse, nil
	}}
	o := newTestOrchestrator(provider)

	result, err := o.Generate(context.Background(), GenerationRequest{Topic: "Go", Count: 2})
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 2)
}

func TestGenerateCachesByFingerprint(t *testing.T) {
	provider := &stubProvider{fn: func(system, user string) (string, error) {
		return threeCardResponse, nil
	}}
	o := newTestOrchestrator(provider)

	req := GenerationRequest{Topic: "Go concurrency", Difficulty: "easy", Count: 3}
	_, err := o.Generate(context.Background(), req)
	require.NoError(t, err)
	_, err = o.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls)
}

func TestGenerateAuthFailureDegradesPermanently(t *testing.T) {
	provider := &stubProvider{fn: func(system, user string) (string, error) {
		return "", newError(KindAuthentication, false, "bad key")
	}}
	o := newTestOrchestrator(provider)

	result, err := o.Generate(context.Background(), GenerationRequest{Topic: "Roman history", Count: 5})
	require.NoError(t, err)
	assert.Equal(t, ModeDegraded, o.Mode())
	assert.Equal(t, "fallback", result.Metadata.ModelUsed)
	assert.NotEmpty(t, result.Candidates)

	// Degraded is one-way: later calls never touch the provider again
	callsAfterFirst := provider.calls
	second, err := o.Generate(context.Background(), GenerationRequest{Topic: "Roman history", Count: 5})
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, provider.calls)
	assert.Equal(t, MockModelName, second.Metadata.ModelUsed)

	// Deterministic mock: same input, same cards
	third, err := o.Generate(context.Background(), GenerationRequest{Topic: "Roman history", Count: 5})
	require.NoError(t, err)
	require.Len(t, third.Candidates, len(second.Candidates))
	for i := range second.Candidates {
		assert.Equal(t, second.Candidates[i].FrontText, third.Candidates[i].FrontText)
	}
}

func TestGenerateMalformedResponseDegrades(t *testing.T) {
	provider := &stubProvider{fn: func(system, user string) (string, error) {
		return "I refuse to answer in JSON.", nil
	}}
	o := newTestOrchestrator(provider)

	result, err := o.Generate(context.Background(), GenerationRequest{Topic: "Chemistry", Count: 4})
	require.NoError(t, err)
	assert.Equal(t, ModeDegraded, o.Mode())
	assert.Equal(t, "fallback", result.Metadata.ModelUsed)
	assert.NotEmpty(t, result.Candidates)
}

func TestGenerateCircuitOpenServesFallback(t *testing.T) {
	provider := &stubProvider{fn: func(system, user string) (string, error) {
		return threeCardResponse, nil
	}}
	o := newTestOrchestrator(provider)
	o.breaker.ForceOpen("test")

	result, err := o.Generate(context.Background(), GenerationRequest{Topic: "Biology", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, 0, provider.calls)
	assert.Equal(t, "fallback", result.Metadata.ModelUsed)
	assert.Equal(t, ModeDegraded, o.Mode())
}

func TestGenerateRetryableErrorsExhaust(t *testing.T) {
	provider := &stubProvider{fn: func(system, user string) (string, error) {
		return "", &ProviderError{Kind: KindRateLimit, Message: "slow down", Retryable: true, RetryAfter: 0}
	}}
	o := newTestOrchestrator(provider)

	_, err := o.Generate(context.Background(), GenerationRequest{Topic: "Physics", Count: 3})
	require.Error(t, err)
	assert.Equal(t, KindRateLimit, KindOf(err))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, ModeLive, o.Mode())
}

func TestGenerateTopicFromText(t *testing.T) {
	var gotUser string
	provider := &stubProvider{fn: func(system, user string) (string, error) {
		gotUser = user
		return threeCardResponse, nil
	}}
	o := newTestOrchestrator(provider)

	longText := ""
	for len(longText) < 1200 {
		longText += "The mitochondria is the powerhouse of the cell. "
	}
	_, err := o.Generate(context.Background(), GenerationRequest{Text: longText})
	require.NoError(t, err)
	assert.Contains(t, gotUser, "...")
	assert.NotContains(t, gotUser, longText)
}

func TestTruncateSmart(t *testing.T) {
	assert.Equal(t, "short text", TruncateSmart("short text", 200))

	// Prefers a sentence boundary inside the window
	text := ""
	for len(text) < 400 {
		text += "This is a sentence. "
	}
	out := TruncateSmart(text, 200)
	assert.LessOrEqual(t, len(out), 200)
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "sentence.")

	// Falls back to a word boundary when no sentence end lands late enough
	words := ""
	for len(words) < 400 {
		words += "word "
	}
	out = TruncateSmart(words, 200)
	assert.LessOrEqual(t, len(out), 200)
	assert.Contains(t, out, "...")
}

func TestTruncateSmartMultibyte(t *testing.T) {
	// The limit counts runes; a cut must never split a multibyte character.
	text := strings.Repeat("光合作用将光能转化为化学能", 30)
	out := TruncateSmart(text, 200)
	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, utf8.RuneCountInString(out), 200)
	assert.Contains(t, out, "...")

	// A short multibyte string passes through untouched even though its
	// byte length exceeds the limit.
	short := strings.Repeat("字", 150)
	assert.Equal(t, short, TruncateSmart(short, 200))
}

func TestConfidenceRanges(t *testing.T) {
	for i := 0; i < 50; i++ {
		easy := confidenceFor("easy")
		medium := confidenceFor("medium")
		hard := confidenceFor("hard")
		for _, c := range []float64{easy, medium, hard} {
			assert.GreaterOrEqual(t, c, 0.70)
			assert.LessOrEqual(t, c, 0.99)
		}
		assert.InDelta(t, 0.95, easy, 0.021)
		assert.InDelta(t, 0.90, medium, 0.021)
		assert.InDelta(t, 0.85, hard, 0.021)
	}
}
