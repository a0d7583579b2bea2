package issuer

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/alovak/cardflow-issuing/internal/middleware"
	"github.com/alovak/cardflow-issuing/internal/security"
	"github.com/alovak/cardflow-issuing/network"
	"github.com/alovak/cardflow-issuing/sandbox"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slog"
)

// App is the sandbox application: the card management facade wired to the
// sandbox card network and exposed over HTTP.
type App struct {
	srv     *http.Server
	wg      *sync.WaitGroup
	Addr    string
	logger  *slog.Logger
	config  *Config
	db      *sql.DB
	manager *Manager
	network *sandbox.Service
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "issuer"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:     &sync.WaitGroup{},
		logger: logger,
		config: config,
	}
}

// Manager returns the facade, available after Start.
func (a *App) Manager() *Manager { return a.manager }

// Network returns the sandbox card network, available after Start.
func (a *App) Network() *sandbox.Service { return a.network }

func (a *App) Start() error {
	a.logger.Info("starting app...")

	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	repository, err := a.openRepository()
	if err != nil {
		return err
	}

	sandboxCfg, err := a.sandboxConfig()
	if err != nil {
		return err
	}
	a.network = sandbox.NewService(a.logger, repository, security.NewHMACProvider([]byte(a.config.CVVKey)), sandboxCfg)
	for _, token := range a.config.SessionTokens {
		a.network.AddSession(token)
	}

	var svc network.Service = a.network
	if a.config.BreakerEnabled {
		svc = network.NewBreakerService(a.logger, a.network, a.config.Breaker)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics, err := NewPrometheusSink(registry, a.config.MetricsNamespace)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	a.manager = NewManager(a.logger, svc, a.config, metrics)

	router := chi.NewRouter()
	router.Use(middleware.NewStructuredLogger(a.logger))

	api := NewAPI(a.manager)
	api.AppendRoutes(router)

	limiter := middleware.NewRateLimiter(a.config.DevRateLimit, a.config.DevRateBurst, a.logger)
	router.Route("/dev", func(r chi.Router) {
		r.Use(limiter.Handler)
		NewDevAPI(a.network, a.manager).AppendRoutes(r)
	})

	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.network.Ping(ctx); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}

	a.Addr = l.Addr().String()

	a.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

func (a *App) openRepository() (*sandbox.Repository, error) {
	if a.config.RepoBackend != "pg" {
		return sandbox.NewRepository(), nil
	}

	db, err := sql.Open("postgres", a.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := sandbox.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sandbox schema: %w", err)
	}

	a.db = db
	return sandbox.NewPGRepository(db, []byte(a.config.PANHashKey)), nil
}

func (a *App) sandboxConfig() (sandbox.Config, error) {
	cfg := sandbox.DefaultConfig()
	cfg.BIN = a.config.BINPrefix
	cfg.Product = a.config.CardProduct
	cfg.Latency = a.config.SandboxLatency

	if a.config.ExpiryTZ != "" {
		loc, err := time.LoadLocation(a.config.ExpiryTZ)
		if err != nil {
			return cfg, fmt.Errorf("loading expiry timezone %s: %w", a.config.ExpiryTZ, err)
		}
		cfg.Expiry.Location = loc
	}
	return cfg, nil
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("shutting down http server", "err", err)
	}

	// cancel callback operations still in flight and wait for them
	a.manager.Logout()
	a.manager.Wait()

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("closing database", "err", err)
		}
	}

	a.wg.Wait()

	a.logger.Info("app stopped")
}
