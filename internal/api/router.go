package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/askdocs/askdocs/internal/api/handlers"
	"github.com/askdocs/askdocs/internal/api/middleware"
	"github.com/askdocs/askdocs/internal/config"
	"github.com/askdocs/askdocs/internal/index"
	"github.com/askdocs/askdocs/internal/queue"
	"github.com/askdocs/askdocs/internal/retrieval"
)

// Deps carries the wired services the router exposes. QueueClient may be nil
// in single-process local mode; reindex requests then run inline.
type Deps struct {
	DB           *pgxpool.Pool
	Redis        *redis.Client
	Config       *config.Config
	Generator    *retrieval.Generator
	Orchestrator *retrieval.Orchestrator
	Reindexer    *index.Reindexer
	QueueClient  *queue.Client
}

type Router struct {
	mux  *chi.Mux
	deps Deps
}

func NewRouter(deps Deps) *Router {
	return &Router{mux: chi.NewRouter(), deps: deps}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	health := handlers.NewHealthHandler(rt.deps.DB, rt.deps.Redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	queryH := handlers.NewQueryHandler(rt.deps.Generator, rt.deps.Orchestrator)
	reindexH := handlers.NewReindexHandler(rt.deps.QueueClient, rt.deps.Reindexer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", queryH.Query)
		r.Post("/search", queryH.Search)
		r.Post("/reindex", reindexH.Trigger)
	})

	return r
}
