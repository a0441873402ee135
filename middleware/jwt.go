package middleware

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"

	"github.com/cardsmith/cardsmith-api/auth"
	"github.com/cardsmith/cardsmith-api/config"
)

// CustomClaims carries the extra Auth0 claims we care about.
type CustomClaims struct {
	Nickname string `json:"nickname"`
}

// Validate satisfies the validator.CustomClaims interface.
func (c *CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// EnsureValidToken validates bearer tokens against Auth0. Credentials are
// optional at this layer: public reads pass through unauthenticated and
// ownership checks happen in the handlers. Without an AUTH0_DOMAIN the
// local-development cookie session is accepted instead.
func EnsureValidToken() func(next http.Handler) http.Handler {
	if config.Env.Auth0Domain == "" {
		log.Println("AUTH0_DOMAIN not set, using development cookie sessions")
		return devSessionMiddleware
	}

	issuerURL, err := url.Parse("https://" + config.Env.Auth0Domain + "/")
	if err != nil {
		log.Fatalf("failed to parse the issuer url: %v", err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{config.Env.Auth0Audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		log.Fatalf("failed to set up the jwt validator: %v", err)
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("Encountered error while validating JWT: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"UNAUTHORIZED","message":"Failed to validate JWT."}`))
	}

	m := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
		jwtmiddleware.WithCredentialsOptional(true),
	)
	return m.CheckJWT
}

// devSessionMiddleware accepts the HS256 cookie session issued by the
// dev-login endpoint and injects claims in the same shape the Auth0
// middleware would, so downstream code doesn't care which path ran.
func devSessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("auth_token")
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		nickname, err := auth.VerifyToken(cookie.Value)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		claims := &validator.ValidatedClaims{
			RegisteredClaims: validator.RegisteredClaims{Subject: "dev|" + nickname},
			CustomClaims:     &CustomClaims{Nickname: nickname},
		}
		ctx := context.WithValue(r.Context(), jwtmiddleware.ContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
