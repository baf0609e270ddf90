// Package server builds the router and the *http.Server.
//
// COMPOSITION ROOT:
// cmd/server/main.go constructs the repositories, services and handlers;
// this package only decides which URL goes to which handler and which
// middleware runs where, so the whole route table reads in one place.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/vinstackcode/internal/auth"
	"github.com/sakif/vinstackcode/internal/handler"
	"github.com/sakif/vinstackcode/internal/middleware"
)

// Config is the HTTP-level configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	CORSOrigins []string

	// RateLimit caps requests per client IP per window on /api and /auth.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers are the route targets. All are required.
type Handlers struct {
	Auth          *handler.AuthHandler
	Snippets      *handler.SnippetHandler
	Collaboration *handler.CollaborationHandler
	Notifications *handler.NotificationHandler
	Workspace     *handler.WorkspaceHandler
	Integrations  *handler.IntegrationHandler
	Execute       *handler.ExecuteHandler
	Realtime      *handler.RealtimeHandler
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Server is the API's HTTP server. It satisfies supervisor.HTTPServer.
type Server struct {
	router *chi.Mux
	http   *http.Server
	logger *slog.Logger
}

func New(cfg Config, h Handlers, tokens *auth.TokenService, health HealthCheck, logger *slog.Logger) *Server {
	s := &Server{router: chi.NewRouter(), logger: logger}
	s.routes(cfg, h, tokens, health)

	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", slog.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// routes wires the table below.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID before the logger, so every log line carries it
//  2. RealIP before the rate limiter, so limits are per client and not per proxy
//  3. Recoverer innermost of the globals, so a panic still gets logged as a 500
//
// WRITE TIMEOUTS AND WEBSOCKETS:
// The websocket upgrade clears the server's connection deadlines, and the
// realtime client sets its own before every write, so WriteTimeout does not
// cut long-lived channels.
func (s *Server) routes(cfg Config, h Handlers, tokens *auth.TokenService, health HealthCheck) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth(health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimit > 0 && cfg.RateLimitWindow > 0 {
		limit = httprate.Limit(cfg.RateLimit, cfg.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByRealIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many requests"}`))
			}),
		)
	}

	required := auth.RequireAuth(tokens)
	optional := auth.OptionalAuth(tokens)

	r.Route("/auth", func(r chi.Router) {
		r.Use(limit)
		r.Get("/github/login", h.Auth.HandleGitHubLogin)
		r.Get("/github/callback", h.Auth.HandleGitHubCallback)
		r.Post("/register", h.Auth.HandleRegister)
		r.Post("/login", h.Auth.HandleLogin)
		r.Post("/logout", h.Auth.HandleLogout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(limit)

		// Public reads: anonymous callers see public snippets, signed-in
		// callers also see what is shared with them.
		r.Group(func(r chi.Router) {
			r.Use(optional)
			r.Get("/snippets", h.Snippets.HandleList)
			r.Get("/snippets/{id}", h.Snippets.HandleGet)
			r.Get("/snippets/{id}/versions", h.Snippets.HandleVersions)
			r.Get("/snippets/{id}/versions/{number}", h.Snippets.HandleVersion)
			r.Get("/snippets/{id}/collaborators", h.Collaboration.HandleListCollaborators)
			r.Get("/snippets/{id}/comments", h.Collaboration.HandleThreads)
			r.Get("/quests", h.Workspace.HandleQuests)
			r.Get("/quests/{id}", h.Workspace.HandleQuest)
			r.Get("/execute/languages", h.Execute.HandleLanguages)
			r.Post("/tags/suggest", h.Snippets.HandleSuggestTags)
			r.Post("/execute", h.Execute.HandleExecute)
			r.Get("/realtime/snippets/{id}", h.Realtime.HandleSnippet)
		})

		r.Group(func(r chi.Router) {
			r.Use(required)
			r.Get("/me", h.Auth.HandleMe)

			r.Post("/snippets", h.Snippets.HandleCreate)
			r.Put("/snippets/{id}", h.Snippets.HandleUpdate)
			r.Delete("/snippets/{id}", h.Snippets.HandleDelete)
			r.Post("/snippets/{id}/versions/{number}/restore", h.Snippets.HandleRestore)
			r.Post("/snippets/{id}/like", h.Snippets.HandleLike)
			r.Delete("/snippets/{id}/like", h.Snippets.HandleUnlike)

			r.Post("/snippets/{id}/collaborators", h.Collaboration.HandleInvite)
			r.Post("/snippets/{id}/collaborators/accept", h.Collaboration.HandleAccept)
			r.Delete("/snippets/{id}/collaborators/{userID}", h.Collaboration.HandleRemoveCollaborator)
			r.Post("/snippets/{id}/comments", h.Collaboration.HandleComment)
			r.Put("/snippets/{id}/comments/{commentID}", h.Collaboration.HandleResolve)
			r.Delete("/snippets/{id}/comments/{commentID}", h.Collaboration.HandleDeleteComment)

			r.Get("/notifications", h.Notifications.HandleList)
			r.Get("/notifications/unread-count", h.Notifications.HandleUnreadCount)
			r.Post("/notifications/read-all", h.Notifications.HandleMarkAllRead)
			r.Post("/notifications/{id}/read", h.Notifications.HandleMarkRead)
			r.Delete("/notifications/{id}", h.Notifications.HandleDelete)

			r.Get("/player", h.Workspace.HandlePlayer)
			r.Post("/quests/{id}/submit", h.Workspace.HandleSubmit)
			r.Get("/folders", h.Workspace.HandleListFolders)
			r.Post("/folders", h.Workspace.HandleCreateFolder)
			r.Get("/teams", h.Workspace.HandleListTeams)
			r.Post("/teams", h.Workspace.HandleCreateTeam)
			r.Get("/teams/{id}", h.Workspace.HandleGetTeam)
			r.Post("/teams/{id}/members", h.Workspace.HandleAddMember)
			r.Delete("/teams/{id}/members/{userID}", h.Workspace.HandleRemoveMember)
			r.Get("/activities", h.Workspace.HandleActivities)

			r.Post("/media/speech", h.Integrations.HandleSpeech)
			r.Post("/media/videos", h.Integrations.HandleCreateVideo)
			r.Get("/media/videos/{id}", h.Integrations.HandleVideo)
			r.Post("/billing/checkout", h.Integrations.HandleCheckout)
			r.Post("/billing/portal", h.Integrations.HandlePortal)
			r.Get("/billing/subscription", h.Integrations.HandleSubscription)
			r.Post("/mentor/ask", h.Integrations.HandleAsk)

			r.Get("/realtime/notifications", h.Realtime.HandleNotifications)
		})
	})
}

func (s *Server) handleHealth(check HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				s.logger.Warn("health check failed", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprint(w, `{"status":"unavailable"}`)
				return
			}
		}
		_, _ = fmt.Fprint(w, `{"status":"ok"}`)
	}
}
