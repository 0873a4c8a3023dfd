package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/socialnet/backend/internal/middleware"
	"github.com/socialnet/backend/internal/storage"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Logger        *slog.Logger
	Store         Pinger
	Auth          AuthService
	Tokens        middleware.TokenVerifier
	Relationships RelationshipManager
	Users         UserDirectory
	Authz         Authorizer
	Media         storage.ObjectStore
	LoginLimiter  middleware.RateLimiter
	CookieSecure  bool
	RefreshTTL    time.Duration
}

// NewRouter wires every route onto a chi router.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	health := HealthHandler{Store: deps.Store}
	authHandler := AuthHandler{Auth: deps.Auth, CookieSecure: deps.CookieSecure, RefreshTTL: deps.RefreshTTL}
	users := UserHandler{Auth: deps.Auth, Users: deps.Users, Relationships: deps.Relationships, Authz: deps.Authz, Media: deps.Media}
	friends := FriendHandler{Relationships: deps.Relationships}

	router := chi.NewRouter()
	router.Use(
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.RequestLogger(logger),
	)

	router.Get("/healthz", health.Handle)

	router.Route("/auth", func(r chi.Router) {
		r.With(middleware.RateLimit(deps.LoginLimiter, "login")).Post("/", authHandler.Login)
		r.Get("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
	})

	router.Post("/users", users.Register)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(deps.Tokens))

		r.Get("/users", users.List)
		r.Get("/users/{userID}", users.Get)
		r.Delete("/users", users.Delete)
		r.Put("/users/profile-picture", users.UpdateProfilePicture)
		r.Put("/users/cover-picture", users.UpdateCoverPicture)

		r.Post("/friend-request", friends.Send)
		r.Post("/friend-request/accept", friends.Accept)
		r.Delete("/friend-request/reject", friends.Reject)
		r.Delete("/friend-request/cancel", friends.Cancel)
		r.Delete("/unfollow", friends.Unfriend)
	})

	return router
}
