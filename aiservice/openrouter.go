package aiservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cardsmith/cardsmith-api/logger"
)

// OpenRouterClient is the production Provider. It makes a single attempt
// per Complete call and maps HTTP outcomes onto the error taxonomy; the
// retry manager and circuit breaker sit above it.
type OpenRouterClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenRouterClient(log *logger.Logger) (*OpenRouterClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENROUTER_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENROUTER_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("OPENROUTER_MODEL"))
	if model == "" {
		model = "openai/gpt-4o-mini"
	}

	timeoutSec := 60
	if v := os.Getenv("OPENROUTER_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &OpenRouterClient{
		log:        log,
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (c *OpenRouterClient) Model() string { return c.model }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenRouterClient) Complete(ctx context.Context, system, user string) (string, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", newError(KindUnknown, false, "encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return "", newError(KindUnknown, false, "build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newError(KindNetwork, true, "read response body: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := classifyStatus(resp.StatusCode, raw)
		if perr.Kind == KindRateLimit {
			perr.RetryAfter = retryAfterSeconds(resp)
		}
		c.log.Warn("provider request failed",
			"status", resp.StatusCode,
			"kind", string(perr.Kind),
			"retryable", perr.Retryable,
		)
		return "", perr
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", newError(KindModelError, true, "decode completion: %v", err)
	}
	if len(parsed.Choices) == 0 {
		return "", newError(KindModelError, true, "completion has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// classifyStatus maps an HTTP status to an error kind at the boundary, so
// nothing downstream ever matches on message text.
func classifyStatus(status int, body []byte) *ProviderError {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newError(KindAuthentication, false, "provider rejected credentials (status %d)", status)
	case status == http.StatusTooManyRequests:
		return newError(KindRateLimit, true, "provider rate limit (status %d)", status)
	case status == http.StatusRequestTimeout:
		return newError(KindTimeout, true, "provider timeout (status %d)", status)
	case status >= 500:
		return newError(KindModelError, true, "provider error (status %d): %s", status, snippet)
	default:
		return newError(KindUnknown, false, "unexpected provider status %d: %s", status, snippet)
	}
}

func classifyTransportError(err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Kind: KindTimeout, Message: "provider call timed out", Retryable: true, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &ProviderError{Kind: KindUnknown, Message: "provider call canceled", Retryable: false, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ProviderError{Kind: KindTimeout, Message: "provider call timed out", Retryable: true, Err: err}
	}
	return &ProviderError{Kind: KindNetwork, Message: "provider call failed", Retryable: true, Err: err}
}

func retryAfterSeconds(resp *http.Response) int {
	if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return secs
		}
	}
	return 0
}
