package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"papercast/internal/ratelimit"
	"papercast/internal/util"
	"papercast/pkg/domain"
	"papercast/services/upload/internal/app"
)

// multipartOverhead is the allowance for form fields and boundaries on
// top of the file ceiling.
const multipartOverhead = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Identity       IdentityProvider
	UploadLimiter  ratelimit.Limiter
	CORSOrigins    []string
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the upload service.
type Server struct {
	app      *app.App
	identity IdentityProvider
	limiter  ratelimit.Limiter
	origins  []string
	trusted  *util.TrustedProxies
	router   chi.Router
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Identity == nil {
		return nil, errors.New("identity provider required")
	}
	s := &Server{
		app:      cfg.App,
		identity: cfg.Identity,
		limiter:  cfg.UploadLimiter,
		origins:  cfg.CORSOrigins,
		trusted:  cfg.TrustedProxies,
		router:   chi.NewRouter(),
	}
	if s.limiter == nil {
		s.limiter = ratelimit.Unlimited{}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(s.trusted, util.WithSecurityHeaders(util.WithCORS(s.origins, s.router))))
}

func (s *Server) routes() {
	r := s.router
	r.Use(withMetrics)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, domain.KindNotFound, "SYSTEM_NOT_FOUND", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, domain.KindValidation, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.withActor)

		// uploads
		r.Post("/uploads", s.handleSubmit)
		r.Get("/uploads", s.handleListMine)
		r.Get("/uploads/{id}", s.handleGet)
		r.Get("/uploads/{id}/download", s.handleDownload)
		r.Patch("/uploads/{id}", s.handleAdminPatch)
		r.Delete("/uploads/{id}", s.handleDelete)

		// admin
		r.Get("/admin/uploads", s.handleAdminList)

		// workers
		r.Get("/internal/uploads/queue", s.handleQueue)
		r.Post("/internal/uploads/{id}/transition", s.handleTransition)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type actorContextKey struct{}

// withActor resolves the caller once. Requests without credentials pass
// through as anonymous and are rejected by the app; bad credentials stop here.
func (s *Server) withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok, err := s.identity.CurrentActor(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, domain.KindUnauthorized, codeForKind(domain.KindUnauthorized), "unauthorized")
			return
		}
		if !ok {
			actor = domain.Actor{}
		}
		ctx := r.Context()
		if ok {
			ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("actor_id", actor.ID, "actor_role", actor.Role))
		}
		ctx = context.WithValue(ctx, actorContextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(r *http.Request) domain.Actor {
	actor, _ := r.Context().Value(actorContextKey{}).(domain.Actor)
	return actor
}
