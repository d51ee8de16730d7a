package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/storewise-ai/server/internal/ratelimit"
	logx "github.com/storewise-ai/server/pkg/logger"
)

// Pinger reports backend health for the healthz endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps collects everything the router needs.
type Deps struct {
	Handlers  *Handlers
	Webhooks  *Webhooks
	Limiter   *ratelimit.Limiter
	AppSecret string
	DB        Pinger
	Redis     Pinger
}

type redisPinger struct{ rdb redis.UniversalClient }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// NewRedisPinger adapts a go-redis client for the health check.
func NewRedisPinger(rdb redis.UniversalClient) Pinger {
	return redisPinger{rdb: rdb}
}

// NewRouter assembles the chi router: authenticated API routes, HMAC-verified
// webhook routes, and an unauthenticated health check.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		for _, p := range []Pinger{deps.DB, deps.Redis} {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(SessionTokenAuth(deps.AppSecret))
		if deps.Limiter != nil {
			api.Use(RateLimit(deps.Limiter))
		}

		api.Post("/chat", deps.Handlers.Chat)
		api.Get("/usage", deps.Handlers.Usage)
		api.Get("/subscription", deps.Handlers.GetSubscription)
		api.Put("/subscription", deps.Handlers.UpdateSubscription)
		api.Delete("/conversations/{id}", deps.Handlers.ClearConversation)
	})

	r.Route("/webhooks", func(wh chi.Router) {
		wh.Post("/app/uninstalled", deps.Webhooks.AppUninstalled)
		wh.Post("/shop/update", deps.Webhooks.ShopUpdate)
	})

	return r
}

// Server wraps http.Server with graceful shutdown.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

func NewServer(cfg Config, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		},
		shutdownTimeout: time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.srv.Addr).Msg("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	logx.Info().Msg("http server shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
