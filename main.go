package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/cardsmith/cardsmith-api/aiservice"
	"github.com/cardsmith/cardsmith-api/config"
	"github.com/cardsmith/cardsmith-api/duplicates"
	"github.com/cardsmith/cardsmith-api/handlers"
	"github.com/cardsmith/cardsmith-api/logger"
	"github.com/cardsmith/cardsmith-api/middleware"
	"github.com/cardsmith/cardsmith-api/ratelimit"
	"github.com/cardsmith/cardsmith-api/store"
)

// unconfiguredProvider stands in when no API key is present. Every call
// fails as an authentication error, which degrades the orchestrator to
// deterministic mock output on the first generation.
type unconfiguredProvider struct{}

func (unconfiguredProvider) Complete(ctx context.Context, system, user string) (string, error) {
	return "", &aiservice.ProviderError{Kind: aiservice.KindAuthentication, Message: "no AI provider configured", Retryable: false}
}

func (unconfiguredProvider) Model() string { return "unconfigured" }

func init() {
	// Load .env file if not in production environment
	if os.Getenv("RAILWAY_ENVIRONMENT_NAME") == "" {
		err := godotenv.Load()
		if err != nil {
			log.Printf("Warning: .env file not found, environment variables might not be loaded: %v", err)
		}
	}
}

func main() {
	appLog, err := logger.New(config.Env.LogMode)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer appLog.Sync()

	// Initialize database connection
	config.Connect()
	authMiddleware := middleware.EnsureValidToken()

	// Generation pipeline: provider behind circuit breaker + retry manager,
	// degrading to deterministic mock output when the provider is unusable.
	breaker := aiservice.NewBreaker(aiservice.DefaultBreakerConfig(), appLog)
	retryManager := aiservice.NewRetryManager(appLog)

	var provider aiservice.Provider
	provider, err = aiservice.NewOpenRouterClient(appLog)
	if err != nil {
		appLog.Warn("AI provider not configured, serving mock generations", "error", err.Error())
		provider = unconfiguredProvider{}
	}
	orchestrator := aiservice.NewOrchestrator(provider, breaker, retryManager, appLog)

	cardStore := store.NewGormCardStore(config.Database)
	detector := duplicates.NewDetector(cardStore, config.Env.SimilarityThreshold)
	limiter := ratelimit.NewLimiter(config.Env.GenerationMaxRequests, config.Env.GenerationWindow)

	DBHandler := &handlers.DBHandler{
		DB:        config.Database,
		Log:       appLog,
		Generator: orchestrator,
		Detector:  detector,
		Breaker:   breaker,
		Retry:     retryManager,
	}
	mux := http.NewServeMux()

	// Session (development only; Auth0 handles production identity)
	mux.HandleFunc("POST /api/auth/dev-login", handlers.DevLogin)
	mux.HandleFunc("POST /api/auth/logout", handlers.Logout)

	// Generation
	mux.HandleFunc("POST /api/generations", middleware.SyncUserMiddleware(middleware.RateLimitByUser(limiter, DBHandler.GenerateCandidates)))
	mux.HandleFunc("POST /api/flashcards/check-duplicate", middleware.SyncUserMiddleware(DBHandler.CheckDuplicate))

	// Set
	mux.HandleFunc("GET /api/sets/{setID}", middleware.OptionalSyncUser(DBHandler.GetSetByID))
	mux.HandleFunc("POST /api/sets", middleware.SyncUserMiddleware(DBHandler.CreateFlashCardSet))
	mux.HandleFunc("POST /api/sets/with-cards", middleware.SyncUserMiddleware(DBHandler.CreateSetWithCards))
	mux.HandleFunc("PUT /api/sets/{setID}", middleware.SyncUserMiddleware(DBHandler.UpdateSetByID))
	mux.HandleFunc("DELETE /api/sets/{setID}", middleware.SyncUserMiddleware(DBHandler.DeleteSetByID))

	// User sets
	mux.HandleFunc("GET /api/users/{nickname}/sets", middleware.OptionalSyncUser(DBHandler.GetSetsForUser))

	// Flashcard
	mux.HandleFunc("POST /api/sets/{setID}/flashcards", middleware.SyncUserMiddleware(DBHandler.CreateFlashCard))
	mux.HandleFunc("GET /api/sets/{setID}/flashcards/{flashcardID}", middleware.SyncUserMiddleware(DBHandler.GetFlashcardByID))
	mux.HandleFunc("GET /api/sets/{setID}/flashcards", middleware.OptionalSyncUser(DBHandler.GetFlashcardsForSet))
	mux.HandleFunc("PUT /api/sets/{setID}/flashcards/{flashcardID}", middleware.SyncUserMiddleware(DBHandler.UpdateFlashCardByID))
	mux.HandleFunc("DELETE /api/sets/{setID}/flashcards/{flashcardID}", middleware.SyncUserMiddleware(DBHandler.DeleteFlashCardByID))
	mux.HandleFunc("POST /api/flashcards/{flashcardID}/review", middleware.SyncUserMiddleware(DBHandler.ReviewFlashcard))

	// Ops
	mux.HandleFunc("GET /api/ops/breaker", DBHandler.BreakerStatus)
	mux.HandleFunc("POST /api/ops/breaker/reset", middleware.SyncUserMiddleware(DBHandler.BreakerReset))

	// Configure CORS with specific options
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "https://app.cardsmith.dev"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"},
		AllowCredentials: true,
		MaxAge:           86400,
	}).Handler(authMiddleware(mux))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080" // fallback port for local development
	}
	serverAddr := "0.0.0.0:" + port

	appLog.Info("listening", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		appLog.Fatal("server exited", "error", err.Error())
	}
}
