// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lendr/internal/api"
	"github.com/starford/lendr/internal/lending"
	"github.com/starford/lendr/internal/libraryapi"
	"github.com/starford/lendr/internal/loan"
	"github.com/starford/lendr/internal/mcpserver"
	"github.com/starford/lendr/internal/policyfile"
	"github.com/starford/lendr/internal/sse"
)

// Version is reported by the CLI and the MCP server.
const Version = "0.1.0"

// Runtime holds the components shared by the gateway, the MCP server and
// the CLI.
type Runtime struct {
	Config   *Config
	Logger   *slog.Logger
	Clock    loan.Clock
	Client   *libraryapi.Client
	Policies *policyfile.Holder
	Service  *lending.Service
	Admin    *lending.Admin
}

// NewRuntime builds the lending components from the given options.
func NewRuntime(opts ...Option) (*Runtime, error) {
	return newRuntime(newApplication(opts), nil)
}

func newApplication(opts []Option) *application {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.logOutput == nil {
		app.logOutput = os.Stdout
	}
	return app
}

func newRuntime(app *application, events lending.EventFunc) (*Runtime, error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))

	clock := app.clock
	if clock == nil {
		loc, err := cfg.Loan.Location()
		if err != nil {
			return nil, fmt.Errorf("loan timezone: %w", err)
		}
		clock = loan.SystemClock{Location: loc}
	}

	policy := cfg.Loan.Policy
	if cfg.Loan.PolicyFile != "" {
		p, err := policyfile.Load(cfg.Loan.PolicyFile)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	policies := policyfile.NewHolder(policy)

	clientOpts := []libraryapi.Option{
		libraryapi.WithLogger(logger),
		libraryapi.WithTimeout(cfg.Library.Timeout),
	}
	switch {
	case app.token != "":
		clientOpts = append(clientOpts, libraryapi.WithToken(app.token))
	case !cfg.Auth.Forwarding() && cfg.Library.Token != "":
		clientOpts = append(clientOpts, libraryapi.WithToken(cfg.Library.Token))
	}
	client := libraryapi.New(cfg.Library.BaseURL, clientOpts...)

	svcOpts := []lending.Option{lending.WithLogger(logger)}
	if cfg.Auth.Forwarding() {
		// Members only wait on their own requests.
		svcOpts = append(svcOpts, lending.WithCallerKey(libraryapi.CallerKey))
	}
	if events != nil {
		svcOpts = append(svcOpts, lending.WithEvents(events))
	}

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Clock:    clock,
		Client:   client,
		Policies: policies,
		Service:  lending.NewService(client, clock, policies, svcOpts...),
		Admin:    lending.NewAdmin(client, clock, logger),
	}, nil
}

// NewHTTPHandler builds the gateway: health checks plus the API under /api.
func (rt *Runtime) NewHTTPHandler(events http.Handler) (http.Handler, error) {
	cfg := rt.Config

	routerCfg := api.RouterConfig{
		AuthMode: cfg.Auth.Mode,
		Token:    cfg.Auth.Token,
		Events:   events,
	}
	if cfg.RateLimit.Rate != "" {
		l, err := api.NewRateLimiter(cfg.RateLimit.Rate)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		routerCfg.Limiter = l
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","max_duration_days":%d}`, rt.Policies.Current().MaxDurationDays)
	})

	r.Mount("/api", api.NewRouter(rt.Service, rt.Admin, routerCfg))
	return r, nil
}

// Run starts the gateway with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)

	broker := sse.NewBroker(sse.WithCatalogThrottle(2 * time.Second))
	defer broker.Close()

	rt, err := newRuntime(app, broker.PublishLoanEvent)
	if err != nil {
		return err
	}
	cfg := rt.Config
	logger := rt.Logger
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_url", cfg.Library.BaseURL),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("rate_limit", cfg.RateLimit.Rate),
		slog.String("policy_file", cfg.Loan.PolicyFile),
		slog.Int("max_duration_days", rt.Policies.Current().MaxDurationDays),
		slog.String("log_level", cfg.App.LogLevel.String()))

	handler, err := rt.NewHTTPHandler(broker)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	// Reload the policy file and announce changes over SSE.
	if cfg.Loan.PolicyFile != "" {
		g.Go(func() error {
			if err := policyfile.Watch(gCtx, cfg.Loan.PolicyFile, rt.Policies, logger, broker.PublishPolicy); err != nil {
				logger.Warn("policy watcher unavailable", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		cancel()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout until stdin closes. Logs go
// to stderr unless WithLogOutput says otherwise.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	// Stdio has no per-request tokens to forward.
	if app.token == "" && app.config != nil {
		app.token = app.config.Library.Token
	}

	rt, err := newRuntime(app, nil)
	if err != nil {
		return err
	}
	slog.SetDefault(rt.Logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if path := rt.Config.Loan.PolicyFile; path != "" {
		go func() {
			if err := policyfile.Watch(ctx, path, rt.Policies, rt.Logger, nil); err != nil {
				rt.Logger.Warn("policy watcher unavailable", slog.String("error", err.Error()))
			}
		}()
	}

	rt.Logger.Info("MCP server starting", slog.String("library_url", rt.Config.Library.BaseURL))
	return mcpserver.New(rt.Service, Version).ServeStdio()
}
