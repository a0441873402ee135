package middleware

import (
	"context"
	"log"
	"net/http"

	"github.com/cardsmith/cardsmith-api/config"
	"github.com/cardsmith/cardsmith-api/models"
	"github.com/cardsmith/cardsmith-api/utils"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
)

type contextKey string

const userContextKey contextKey = "user"

// WithUser attaches a user to the context the same way the sync middleware
// does. Handler tests use it to skip the auth stack.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the synced user attached by the sync middleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok
}

func nicknameFromClaims(r *http.Request) string {
	claims, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	if !ok {
		return ""
	}
	customClaims, ok := claims.CustomClaims.(*CustomClaims)
	if !ok || customClaims == nil {
		return ""
	}
	return customClaims.Nickname
}

// syncUser upserts the Auth0 identity into the local users table, updating
// the nickname when the claims carry a newer one.
func syncUser(auth0ID, nickname string) (*models.User, error) {
	var user models.User
	result := config.Database.Where("auth0_id = ?", auth0ID).First(&user)

	if result.Error != nil {
		// User does not exist, create a new one
		user = models.User{
			Auth0ID:  auth0ID,
			Nickname: nickname,
		}
		if err := config.Database.Create(&user).Error; err != nil {
			return nil, err
		}
		log.Printf("Created new user: %s\n", user.Nickname)
		return &user, nil
	}

	if nickname != "" && user.Nickname != nickname {
		user.Nickname = nickname
		if err := config.Database.Save(&user).Error; err != nil {
			return nil, err
		}
		log.Printf("Updated user nickname: %s\n", user.Nickname)
	}
	return &user, nil
}

// SyncUserMiddleware ensures the Auth0 user exists in the DB and attaches it to context
func SyncUserMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth0ID, ok := utils.GetAuth0ID(r)
		if !ok || auth0ID == "" {
			http.Error(w, "No Auth0 subject found", http.StatusUnauthorized)
			return
		}

		user, err := syncUser(auth0ID, nicknameFromClaims(r))
		if err != nil {
			http.Error(w, "Failed to sync user", http.StatusInternalServerError)
			log.Println("User sync error:", err)
			return
		}

		// Add user to context for downstream handlers
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

// OptionalSyncUser attaches the synced user when the request carries
// validated claims and passes it through anonymously otherwise. Read routes
// that serve both public and private content use it: the handler's
// ownership check needs the caller's identity, but anonymous readers of
// public content must not be turned away.
func OptionalSyncUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth0ID, ok := utils.GetAuth0ID(r)
		if !ok || auth0ID == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := syncUser(auth0ID, nicknameFromClaims(r))
		if err != nil {
			http.Error(w, "Failed to sync user", http.StatusInternalServerError)
			log.Println("User sync error:", err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	}
}
