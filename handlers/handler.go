package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/cardsmith/cardsmith-api/aiservice"
	"github.com/cardsmith/cardsmith-api/duplicates"
	"github.com/cardsmith/cardsmith-api/logger"
)

type DBHandler struct {
	*gorm.DB
	Log       *logger.Logger
	Generator *aiservice.Orchestrator
	Detector  *duplicates.Detector
	Breaker   *aiservice.Breaker
	Retry     *aiservice.RetryManager
}

// apiError is the JSON error envelope shared by every endpoint.
type apiError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	IsRetryable bool   `json:"is_retryable"`
	RetryAfter  int    `json:"retry_after,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, code, message string, retryable bool) {
	respondJSON(w, status, apiError{Code: code, Message: message, IsRetryable: retryable})
}

// respondProviderError maps the generation error taxonomy onto HTTP.
func respondProviderError(w http.ResponseWriter, err error) {
	if errors.Is(err, aiservice.ErrCircuitOpen) {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Generation service is temporarily unavailable.", true)
		return
	}

	var pe *aiservice.ProviderError
	if !errors.As(err, &pe) {
		respondError(w, http.StatusInternalServerError, "UNKNOWN", "Generation failed.", false)
		return
	}

	status := http.StatusBadGateway
	switch pe.Kind {
	case aiservice.KindRateLimit:
		status = http.StatusTooManyRequests
		if pe.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(pe.RetryAfter))
		}
	case aiservice.KindTimeout:
		status = http.StatusGatewayTimeout
	case aiservice.KindUnknown:
		if pe.Retryable {
			// Wrapped circuit-open surfaces here.
			status = http.StatusServiceUnavailable
		} else {
			status = http.StatusInternalServerError
		}
	}
	respondJSON(w, status, apiError{
		Code:        string(pe.Kind),
		Message:     pe.Message,
		IsRetryable: pe.Retryable,
		RetryAfter:  pe.RetryAfter,
	})
}
