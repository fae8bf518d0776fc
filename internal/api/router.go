package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/valuenetwork/valueflow/internal/api/handlers"
	mw "github.com/valuenetwork/valueflow/internal/api/middleware"
	"github.com/valuenetwork/valueflow/internal/buildconfig"
	"github.com/valuenetwork/valueflow/internal/config"
	"github.com/valuenetwork/valueflow/internal/domain"
	"github.com/valuenetwork/valueflow/internal/service"
	"github.com/valuenetwork/valueflow/internal/store"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router       *chi.Mux
	Revaluer     *service.RevaluerService
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	agentStore := store.NewAgentStore(db)
	eventStore := store.NewEventStore(db)
	resourceStore := store.NewResourceStore(db)
	processStore := store.NewProcessStore(db)
	exchangeStore := store.NewExchangeStore(db)
	equationStore := store.NewEquationStore(db)
	claimStore := store.NewClaimStore(db)
	txRunner := store.NewTxRunner(db)

	// Services
	rollupSvc := service.NewRollUpService(eventStore, resourceStore, processStore, logger)
	shareSvc := service.NewShareService(eventStore, resourceStore, processStore, logger)
	distributionSvc := service.NewDistributionService(eventStore, resourceStore, agentStore, claimStore, equationStore, shareSvc, txRunner, logger)
	revaluerSvc := service.NewRevaluerService(resourceStore, rollupSvc, logger)

	// Handlers
	agentHandler := handlers.NewAgentHandler(agentStore, claimStore)
	eventHandler := handlers.NewEventHandler(eventStore)
	resourceHandler := handlers.NewResourceHandler(resourceStore, equationStore, rollupSvc, shareSvc)
	processHandler := handlers.NewProcessHandler(processStore, eventStore)
	exchangeHandler := handlers.NewExchangeHandler(exchangeStore, eventStore)
	equationHandler := handlers.NewEquationHandler(equationStore, distributionSvc)
	claimHandler := handlers.NewClaimHandler(claimStore)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Revaluer:  revaluerSvc,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/agents", func(r chi.Router) {
			r.Post("/", agentHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", agentHandler.GetByID)
				r.Get("/claims", agentHandler.ListClaims)
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", eventHandler.Create)
			r.Get("/{id}", eventHandler.GetByID)
		})

		r.Route("/resources", func(r chi.Router) {
			r.Post("/", resourceHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", resourceHandler.GetByID)
				r.Post("/rollup", resourceHandler.RollUp)
				r.Post("/income-shares", resourceHandler.IncomeShares)
			})
		})

		r.Route("/processes", func(r chi.Router) {
			r.Post("/", processHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", processHandler.GetByID)
				r.Get("/events", processHandler.GetEvents)
			})
		})

		r.Route("/exchanges", func(r chi.Router) {
			r.Post("/", exchangeHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", exchangeHandler.GetByID)
				r.Get("/events", exchangeHandler.GetEvents)
			})
		})

		r.Route("/equations", func(r chi.Router) {
			r.Post("/", equationHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", equationHandler.GetByID)
				r.Post("/run", equationHandler.Run)
			})
		})

		r.Route("/claims", func(r chi.Router) {
			r.Get("/{id}", claimHandler.GetByID)
			r.Get("/{id}/events", claimHandler.GetEvents)
		})
	})

	return app
}

// NewRouter returns just the chi.Mux.
func NewRouter(db *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	return NewApp(db, logger).Router
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores satisfy the domain interfaces at compile time.
var (
	_ domain.AgentStore    = (*store.AgentStore)(nil)
	_ domain.EventStore    = (*store.EventStore)(nil)
	_ domain.ResourceStore = (*store.ResourceStore)(nil)
	_ domain.ProcessStore  = (*store.ProcessStore)(nil)
	_ domain.ExchangeStore = (*store.ExchangeStore)(nil)
	_ domain.EquationStore = (*store.EquationStore)(nil)
	_ domain.ClaimStore    = (*store.ClaimStore)(nil)
	_ domain.TxRunner      = (*store.TxRunner)(nil)
)
