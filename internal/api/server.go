// Package api exposes the governance service over HTTP for the admin UI.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/alma-cli/internal/governance"
	"github.com/sells-group/alma-cli/internal/model"
)

// ActorHeader carries the id of the user making the request.
const ActorHeader = "X-Actor-ID"

// Governance is the service surface the API calls.
type Governance interface {
	Create(ctx context.Context, req governance.CreateRequest, actorID string) (*model.Intervention, error)
	GetByID(ctx context.Context, id, actorID string) (*model.Intervention, error)
	List(ctx context.Context, f model.InterventionFilter) ([]model.Intervention, int, error)
	Update(ctx context.Context, req governance.UpdateRequest, actorID string) (*model.Intervention, error)
	SubmitForReview(ctx context.Context, id, actorID string) error
	Approve(ctx context.Context, id, actorID string) error
	Publish(ctx context.Context, id, actorID string) error
	LinkOutcomes(ctx context.Context, id string, ids []string) error
	LinkEvidence(ctx context.Context, id string, ids []string) error
	LinkContexts(ctx context.Context, id string, ids []string) error
	CheckPermission(ctx context.Context, id string, action model.PermittedUse) (*governance.PermissionResult, error)
	RevokeConsent(ctx context.Context, id, actorID, reason string) error
	RecordConsent(ctx context.Context, id, actorID string, expiresAt *time.Time) (*model.ConsentLedgerEntry, error)
	UsageHistory(ctx context.Context, id string, f model.UsageFilter) ([]model.UsageLogEntry, error)
}

var _ Governance = (*governance.Service)(nil)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// Ping is called by /health. Nil means always healthy.
	Ping func(ctx context.Context) error
}

type handler struct {
	gov  Governance
	ping func(ctx context.Context) error
	log  *zap.Logger
}

// NewRouter builds the HTTP handler for the governance API.
func NewRouter(gov Governance, opts Options) http.Handler {
	h := &handler{
		gov:  gov,
		ping: opts.Ping,
		log:  zap.L().With(zap.String("component", "api")),
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", ActorHeader},
		MaxAge:         300,
	}))
	r.Use(h.observe)

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/interventions", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Patch("/", h.update)
			r.Post("/submit", h.submit)
			r.Post("/approve", h.approve)
			r.Post("/publish", h.publish)
			r.Put("/outcomes", h.links(model.LinkOutcomes))
			r.Put("/evidence", h.links(model.LinkEvidence))
			r.Put("/contexts", h.links(model.LinkContexts))
			r.Get("/consent", h.checkConsent)
			r.Post("/consent", h.recordConsent)
			r.Post("/consent/revoke", h.revokeConsent)
			r.Get("/usage", h.usage)
		})
	})

	return r
}

// observe logs and counts each request by its route pattern.
func (h *handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestsTotal.WithLabelValues(r.Method, route, statusClass(status)).Inc()

		h.log.Debug("api: request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			h.log.Warn("api: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
