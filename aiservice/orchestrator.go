package aiservice

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cardsmith/cardsmith-api/logger"
	"github.com/cardsmith/cardsmith-api/models"
)

// Mode is the orchestrator's serving mode. The transition live->degraded is
// one-way for the lifetime of the instance: once the provider proves
// unusable, all further generations come from the deterministic mock.
type Mode string

const (
	ModeLive     Mode = "live"
	ModeDegraded Mode = "degraded"
)

// MaxRetryAttempts bounds whole-generation retries, on top of the retry
// manager's per-call attempts.
const MaxRetryAttempts = 3

const (
	maxTopicLen   = 200
	maxContextLen = 1000
	responseTTL   = 5 * time.Minute
)

// GenerationRequest describes one generation call. Either Text or Topic is
// set; handlers validate lengths before calling Generate.
type GenerationRequest struct {
	Text              string
	Topic             string
	Difficulty        string
	Count             int
	Category          string
	AdditionalContext string
}

// GenerationResult is a candidate batch plus its metadata.
type GenerationResult struct {
	Candidates []models.Candidate        `json:"candidates"`
	Metadata   models.GenerationMetadata `json:"generation_metadata"`
}

// Orchestrator turns raw user text into validated flashcard candidates,
// tolerating an unreliable provider: calls go through the circuit breaker
// and retry manager, responses are parsed and validated, and unusable
// providers degrade the instance to mock generation.
type Orchestrator struct {
	provider Provider
	breaker  *Breaker
	retry    *RetryManager
	mock     MockGenerator
	log      *logger.Logger
	strategy string

	mu   sync.Mutex
	mode Mode
}

func NewOrchestrator(provider Provider, breaker *Breaker, retry *RetryManager, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		breaker:  breaker,
		retry:    retry,
		log:      log,
		strategy: "default",
		mode:     ModeLive,
	}
}

// Mode returns the current serving mode.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

func (o *Orchestrator) degrade(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mode == ModeDegraded {
		return
	}
	o.mode = ModeDegraded
	o.log.Warn("generation degraded to mock output", "reason", reason)
}

// Generate produces flashcard candidates for the request. Transient
// failures are retried up to MaxRetryAttempts whole-generation attempts;
// authentication, circuit-open and malformed-response failures flip the
// instance into degraded mode and the request is served by the mock
// generator instead of failing.
func (o *Orchestrator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	start := time.Now()

	topic := req.Topic
	if topic == "" {
		topic = TruncateSmart(req.Text, maxTopicLen)
	}
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = models.DifficultyMedium
	}
	count := req.Count
	if count <= 0 || count > 10 {
		count = 5
	}

	startedDegraded := o.Mode() == ModeDegraded

	var lastErr error
	for attempt := 0; attempt < MaxRetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if o.Mode() == ModeDegraded {
			cards := o.mock.Generate(topic+req.Text, count)
			modelUsed := MockModelName
			if !startedDegraded {
				modelUsed = "fallback"
			}
			return o.buildResult(cards, topic, difficulty, count, req.Category, modelUsed, start, attempt), nil
		}

		cards, err := o.generateLive(ctx, topic, difficulty, count, req.Category, req.AdditionalContext)
		if err == nil {
			return o.buildResult(cards, topic, difficulty, count, req.Category, o.provider.Model(), start, attempt), nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, err
		}
		if o.shouldDegrade(err) {
			o.degrade(err.Error())
			continue
		}
		if !IsRetryable(err) {
			return nil, wrapGenerationError(err)
		}
		o.log.Warn("generation attempt failed, retrying",
			"attempt", attempt+1,
			"max_attempts", MaxRetryAttempts,
			"error", err.Error(),
		)
	}
	return nil, wrapGenerationError(lastErr)
}

func (o *Orchestrator) generateLive(ctx context.Context, topic, difficulty string, count int, category, additionalContext string) ([]ParsedFlashcard, error) {
	system, user := buildPrompts(topic, difficulty, count, category, additionalContext)
	cacheKey := fingerprint(topic, difficulty, count, category, o.provider.Model())

	result, err := o.retry.ExecuteWithRetry(ctx, func(ctx context.Context) (string, error) {
		var raw string
		execErr := o.breaker.Execute(ctx, func(ctx context.Context) error {
			var callErr error
			raw, callErr = o.provider.Complete(ctx, system, user)
			return callErr
		})
		return raw, execErr
	}, o.strategy, cacheKey, responseTTL)
	if err != nil {
		return nil, err
	}

	cards, err := ParseFlashcardPayload(result.Data)
	if err != nil {
		return nil, err
	}
	if len(cards) > count {
		cards = cards[:count]
	}
	return cards, nil
}

// shouldDegrade reports whether a failure means the provider itself is
// unusable: bad credentials, a circuit held open, or responses that fail
// validation. These switch the instance to mock generation permanently.
func (o *Orchestrator) shouldDegrade(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	switch KindOf(err) {
	case KindAuthentication, KindValidation:
		return true
	}
	return false
}

func (o *Orchestrator) buildResult(cards []ParsedFlashcard, topic, difficulty string, count int, category, modelUsed string, start time.Time, retries int) *GenerationResult {
	candidates := make([]models.Candidate, 0, len(cards))
	for _, card := range cards {
		cat := card.Category
		if cat == "" {
			cat = category
		}
		candidates = append(candidates, models.Candidate{
			ID:         uuid.NewString(),
			FrontText:  card.FrontText,
			BackText:   card.BackText,
			Confidence: confidenceFor(card.Difficulty),
			Difficulty: card.Difficulty,
			Category:   cat,
		})
	}
	return &GenerationResult{
		Candidates: candidates,
		Metadata: models.GenerationMetadata{
			ModelUsed:        modelUsed,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			RetryCount:       retries,
		},
	}
}

// confidenceFor synthesizes a confidence score from the assigned
// difficulty, with a small random variance, clamped to [0.70, 0.99].
func confidenceFor(difficulty string) float64 {
	var base float64
	switch difficulty {
	case models.DifficultyEasy:
		base = 0.95
	case models.DifficultyHard:
		base = 0.85
	default:
		base = 0.90
	}
	c := base + (rand.Float64()*0.04 - 0.02)
	if c < 0.70 {
		c = 0.70
	}
	if c > 0.99 {
		c = 0.99
	}
	return c
}

func buildPrompts(topic, difficulty string, count int, category, additionalContext string) (system, user string) {
	system = `You are a flashcard author. Respond with JSON only, shaped as
{"flashcards": [{"front_text": "...", "back_text": "...", "difficulty": "easy|medium|hard", "category": "..."}]}.
front_text must be at most 200 characters and back_text at most 500. No other properties.`

	var b strings.Builder
	fmt.Fprintf(&b, "Create %d %s flashcards about: %s\n", count, difficulty, topic)
	if category != "" {
		fmt.Fprintf(&b, "Category: %s\n", category)
	}
	if additionalContext != "" {
		fmt.Fprintf(&b, "Additional context: %s\n", TruncateSmart(additionalContext, maxContextLen))
	}
	return system, b.String()
}

// fingerprint derives the cache key for a generation request.
func fingerprint(topic, difficulty string, count int, category, model string) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s", topic, difficulty, count, category, model)
}

func wrapGenerationError(err error) error {
	if err == nil {
		return newError(KindUnknown, false, "generation failed")
	}
	if errors.Is(err, ErrCircuitOpen) {
		return &ProviderError{Kind: KindUnknown, Message: "generation service unavailable", Retryable: true, Err: err}
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Kind: KindUnknown, Message: "generation failed", Retryable: false, Err: err}
}

// TruncateSmart shortens text to at most limit characters, preferring a
// sentence boundary found after 70% of the truncation window, then the last
// word boundary after 80%, and appends an ellipsis when it cuts. The limit
// counts runes, never bytes, so a cut cannot split a multibyte character.
func TruncateSmart(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	window := runes[:limit-3]

	sentenceFloor := int(float64(len(window)) * 0.7)
	best := -1
	for i := sentenceFloor; i < len(window); i++ {
		switch window[i] {
		case '.', '!', '?', '\n':
			best = i
		}
	}
	if best >= 0 {
		return strings.TrimSpace(string(window[:best+1])) + "..."
	}

	wordFloor := int(float64(len(window)) * 0.8)
	for i := len(window) - 1; i >= wordFloor; i-- {
		if window[i] == ' ' {
			return strings.TrimSpace(string(window[:i])) + "..."
		}
	}
	return strings.TrimSpace(string(window)) + "..."
}
