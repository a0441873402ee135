package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cardsmith/cardsmith-api/auth"
	"github.com/cardsmith/cardsmith-api/config"
)

// DevLogin handles POST /api/auth/dev-login. Only registered when Auth0 is
// not configured: it issues the HS256 session cookie the dev middleware
// accepts, so the app is usable without an identity provider locally.
func DevLogin(w http.ResponseWriter, r *http.Request) {
	if !config.Env.IsDevelopment {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	var req struct {
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Nickname == "" {
		http.Error(w, "nickname is required", http.StatusBadRequest)
		return
	}

	token, err := auth.CreateToken(req.Nickname)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, auth.SessionCookie(token, config.Env.CookieSecure, config.Env.Domain))
	respondJSON(w, http.StatusOK, map[string]string{"nickname": req.Nickname})
}

// Logout clears the session cookie.
func Logout(w http.ResponseWriter, r *http.Request) {
	cookie := auth.SessionCookie("", config.Env.CookieSecure, config.Env.Domain)
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
	w.WriteHeader(http.StatusNoContent)
}
