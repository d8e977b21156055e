// Package server exposes the webhook and admin HTTP API: lead intake,
// on-demand linking, and dead letter queue inspection.
package server

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/voicebridge/leadlink/internal/config"
	"github.com/voicebridge/leadlink/internal/match"
	"github.com/voicebridge/leadlink/internal/model"
	"github.com/voicebridge/leadlink/internal/resilience"
	"github.com/voicebridge/leadlink/internal/store"
)

// Server holds the HTTP API dependencies.
type Server struct {
	store  store.Store
	linker *match.Linker

	rateLimit     int
	rateWindow    time.Duration
	dlqMaxRetries int

	// linkTimeout bounds background link attempts kicked off by the
	// webhook and batch endpoints.
	linkTimeout time.Duration
}

// New creates a Server. The linker may run in the background for webhook
// deliveries, so the store must outlive in-flight requests.
func New(st store.Store, linker *match.Linker, cfg *config.Config) *Server {
	rateLimit := cfg.Server.RateLimit
	if rateLimit <= 0 {
		rateLimit = 60
	}
	window := time.Duration(cfg.Server.RateWindowSecs) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	maxRetries := cfg.Batch.MaxDLQRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Server{
		store:         st,
		linker:        linker,
		rateLimit:     rateLimit,
		rateWindow:    window,
		dlqMaxRetries: maxRetries,
		linkTimeout:   2 * time.Minute,
	}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger())
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(rateLimiter(s.rateLimit, s.rateWindow))

		r.Post("/webhook/lead", s.handleWebhookLead)

		r.Route("/api", func(r chi.Router) {
			r.Post("/link", s.handleLink)
			r.Post("/link/batch", s.handleLinkBatch)
			r.Get("/leads", s.handleListLeads)
			r.Get("/leads/{leadID}", s.handleGetLead)
			r.Get("/dlq", s.handleDLQStatus)
		})
	})

	return r
}

// linkInBackground runs a link attempt detached from the request, recording
// failures in the dead letter queue for the retry command to pick up.
func (s *Server) linkInBackground(lead model.Lead) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.linkTimeout)
		defer cancel()

		res, err := s.linker.Link(ctx, lead)
		if err != nil {
			zap.L().Error("server: background link failed",
				zap.String("lead_id", lead.ID),
				zap.Error(err),
			)
			// The link context may already be expired (that is often why the
			// attempt failed), so the DLQ write gets its own deadline.
			dlqCtx, dlqCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer dlqCancel()
			entry := resilience.NewDLQEntry(lead.ID, err, s.dlqMaxRetries)
			if dlqErr := s.store.EnqueueDLQ(dlqCtx, entry); dlqErr != nil {
				zap.L().Error("server: enqueue dlq failed",
					zap.String("lead_id", lead.ID),
					zap.Error(dlqErr),
				)
			}
			return
		}
		if !res.Matched {
			return
		}
		zap.L().Info("server: background link complete",
			zap.String("lead_id", lead.ID),
			zap.String("conversation_id", res.ConversationID),
			zap.Int("score", res.Score),
		)
	}()
}
