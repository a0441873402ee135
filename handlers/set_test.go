package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardsmith/cardsmith-api/middleware"
	"github.com/cardsmith/cardsmith-api/models"
)

// doAsClaims issues a GET with validated Auth0 claims on the context, in the
// same shape EnsureValidToken leaves them, so the optional sync middleware
// resolves the caller the way it does in production.
func (e *testEnv) doAsClaims(t *testing.T, path, auth0ID, nickname string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	claims := &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{Subject: auth0ID},
		CustomClaims:     &middleware.CustomClaims{Nickname: nickname},
	}
	req = req.WithContext(context.WithValue(req.Context(), jwtmiddleware.ContextKey{}, claims))
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func TestOwnerReadsOwnPrivateSet(t *testing.T) {
	env := newTestEnv(t)
	set := env.createSet(t, "Private notes") // IsPublic defaults to false

	rec := env.doAsClaims(t, "/api/sets/"+set.PublicID, env.user.Auth0ID, env.user.Nickname)
	require.Equal(t, http.StatusOK, rec.Code, "owner denied own private set: %s", rec.Body.String())

	var resp struct {
		models.FlashcardSet
		IsOwner bool `json:"IsOwner"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsOwner)
	assert.Equal(t, set.PublicID, resp.PublicID)
}

func TestAnonymousDeniedPrivateSet(t *testing.T) {
	env := newTestEnv(t)
	set := env.createSet(t, "Private notes")

	rec := env.do(t, http.MethodGet, "/api/sets/"+set.PublicID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOwnerReadsPrivateSetFlashcards(t *testing.T) {
	env := newTestEnv(t)
	set := env.createSet(t, "Private notes")

	rec := env.do(t, http.MethodPost, "/api/sets/"+set.PublicID+"/flashcards", map[string]interface{}{
		"front_text": "What is HTTP?",
		"back_text":  "The protocol the web runs on.",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.doAsClaims(t, "/api/sets/"+set.PublicID+"/flashcards", env.user.Auth0ID, env.user.Nickname)
	require.Equal(t, http.StatusOK, rec.Code)

	var cards []models.Flashcard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cards))
	assert.Len(t, cards, 1)

	rec = env.do(t, http.MethodGet, "/api/sets/"+set.PublicID+"/flashcards", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUserSetListingIncludesPrivateForOwner(t *testing.T) {
	env := newTestEnv(t)
	env.createSet(t, "Private notes")

	rec := env.do(t, http.MethodPost, "/api/sets", map[string]interface{}{
		"Title":    "Public notes",
		"IsPublic": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.doAsClaims(t, "/api/users/"+env.user.Nickname+"/sets", env.user.Auth0ID, env.user.Nickname)
	require.Equal(t, http.StatusOK, rec.Code)
	var sets []models.FlashcardSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sets))
	assert.Len(t, sets, 2)

	rec = env.do(t, http.MethodGet, "/api/users/"+env.user.Nickname+"/sets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sets))
	require.Len(t, sets, 1)
	assert.Equal(t, "Public notes", sets[0].Title)
}

func TestPublicSetReadableAnonymously(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/sets", map[string]interface{}{
		"Title":    "Public notes",
		"IsPublic": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var set models.FlashcardSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))

	rec = env.do(t, http.MethodGet, "/api/sets/"+set.PublicID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		IsOwner bool `json:"IsOwner"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.IsOwner)
}
