package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	httpapi "github.com/GriffinCanCode/ConceptCanvas/internal/api/http"
	"github.com/GriffinCanCode/ConceptCanvas/internal/api/middleware"
	"github.com/GriffinCanCode/ConceptCanvas/internal/api/ws"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/attemptlog"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/compiler"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/deps"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/orchestrator"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/sandbox"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/validator"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/config"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/ConceptCanvas/internal/providers/llm"
)

// ServiceName is reported by the gRPC health service
const ServiceName = "conceptcanvas"

// Server wraps the HTTP and gRPC servers and the pipeline behind them
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	router   *gin.Engine
	handler  http.Handler
	model    *llm.Client
	compiler httpapi.SourceCompiler
	pool     *sandbox.Pool
	relay    *ws.Relay
	grpc     *grpc.Server
	health   *health.Server
}

// New builds the pipeline and registers routes. Nothing listens until Run.
func New(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return NewWithLogger(cfg, logger)
}

// NewWithLogger is New with a caller-supplied logger
func NewWithLogger(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	logger.Info("Initializing ConceptCanvas server",
		zap.String("port", cfg.Server.Port),
		zap.String("model", cfg.LLM.Model),
		zap.Int("max_retries", cfg.Orchestrator.MaxRetries))

	model, err := newModel(cfg.LLM)
	if err != nil {
		return nil, err
	}

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("canvas", logger.Component("tracing"))

	table := deps.Default()
	base := compiler.New(table).
		WithLogger(logger.Component("compiler")).
		WithMetrics(metrics)

	var comp orchestrator.Compiler = base
	var apiComp httpapi.SourceCompiler = base
	cacheLen := func() int { return 0 }
	if cfg.Compiler.CacheSize > 0 {
		cached, err := compiler.NewCached(base, cfg.Compiler.CacheSize)
		if err != nil {
			return nil, err
		}
		comp, apiComp, cacheLen = cached, cached, cached.Len
	}

	model.WithLogger(logger.Component("llm")).WithMetrics(metrics)
	if cfg.LLM.APIKey == "" {
		logger.Warn("LLM_API_KEY is not set; generation requests will be rejected by the model endpoint")
	}

	orch := orchestrator.New(model, validator.New(table), comp, cfg.Orchestrator.MaxRetries).
		WithLogger(logger.Component("orchestrator")).
		WithMetrics(metrics).
		WithTracer(tracer)
	if cfg.AttemptLog.Dir != "" {
		sink, err := attemptlog.NewFileSink(cfg.AttemptLog.Dir, logger.Component("attemptlog"))
		if err != nil {
			return nil, fmt.Errorf("failed to create attempt log: %w", err)
		}
		orch.WithSink(sink)
		logger.Info("Attempt log enabled", zap.String("dir", cfg.AttemptLog.Dir))
	}

	page := sandbox.Page()
	if err := sandbox.ValidatePage(page, table); err != nil {
		return nil, fmt.Errorf("invalid sandbox page: %w", err)
	}
	pool, err := sandbox.NewPool(sandbox.Config{
		Timeout:          cfg.Sandbox.Timeout,
		MaxCallStackSize: cfg.Sandbox.MaxCallStackSize,
		PoolSize:         cfg.Sandbox.PoolSize,
		AcquireTimeout:   cfg.Sandbox.AcquireTimeout,
		EnableConsole:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox pool: %w", err)
	}
	factory := sandbox.NewHeadlessFactory(pool, page).WithLogger(logger.Component("sandbox"))

	relay := ws.NewRelay(logger.Component("relay")).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowedOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst))
		limit := middleware.DefaultRateLimitConfig()
		limit.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limit.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limit))

		if global := cfg.RateLimit.GlobalRequestsPerSecond; global > 0 {
			all := limit
			all.RequestsPerSecond = global
			all.Burst = max(global, cfg.RateLimit.Burst)
			router.Use(middleware.GlobalRateLimit(all))
		}
	}

	handlers := httpapi.NewHandlers(orch, apiComp, logger.Component("api")).
		WithPreviewer(factory).
		WithMetrics(metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Pipeline
	router.POST("/api/compile", handlers.Compile)
	router.POST("/api/chat/generate", handlers.Generate)
	router.POST("/api/preview", handlers.Preview)

	// Client error reports
	router.POST("/api/log/runtime-error", handlers.LogRuntimeError)
	router.POST("/api/log/compile-error", handlers.LogCompileError)
	router.POST("/api/logs", handlers.StreamLogs)

	// Sandbox
	router.GET("/sandbox", handlers.SandboxPage)
	router.GET("/sandbox/ws", relay.HandleConnection)
	router.GET("/api/sandbox/:session", relay.HandleStatus)
	router.POST("/api/sandbox/:session/inject", relay.HandleInject)

	aggregator := httpapi.NewMetricsAggregator(metrics).
		AddSource("llm", func() any { return gin.H{"breaker": model.BreakerState().String()} }).
		AddSource("sandbox_pool", func() any { return pool.Stats() }).
		AddSource("compile_cache", func() any { return gin.H{"entries": cacheLen(), "capacity": cfg.Compiler.CacheSize} }).
		AddSource("sandbox_sessions", func() any { return gin.H{"active": relay.Len()} })

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", aggregator.GetAggregatedMetrics)

	s := &Server{
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		router:   router,
		handler:  compress(router),
		model:    model,
		compiler: apiComp,
		pool:     pool,
		relay:    relay,
	}
	if cfg.GRPC.Enabled {
		s.grpc, s.health = newGRPC(tracer, metrics)
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func newModel(cfg config.LLMConfig) (*llm.Client, error) {
	var prompts *llm.Prompts
	if cfg.PromptsFile != "" {
		data, err := os.ReadFile(cfg.PromptsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompts: %w", err)
		}
		if prompts, err = llm.ParsePrompts(data); err != nil {
			return nil, fmt.Errorf("failed to parse prompts %s: %w", cfg.PromptsFile, err)
		}
	}
	client, err := llm.New(llm.Config{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		ClassifierModel:   cfg.ClassifierModel,
		MaxTokens:         cfg.MaxTokens,
		Timeout:           cfg.Timeout,
		RetryMax:          cfg.RetryMax,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Language:          cfg.Language,
	}, prompts)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	return client, nil
}

// compress gzips responses except WebSocket upgrades, which need the raw
// connection
func compress(next http.Handler) http.Handler {
	gz := gzhttp.GzipHandler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

func newGRPC(tracer *tracing.Tracer, metrics *monitoring.Metrics) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer), unaryMetrics(metrics)),
		grpc.ChainStreamInterceptor(tracing.GRPCStreamInterceptor(tracer)),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

func unaryMetrics(metrics *monitoring.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		metrics.RecordGRPCCall(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

// Handler returns the HTTP handler with compression applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured addresses and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	httpLis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	var grpcLis net.Listener
	if s.grpc != nil {
		grpcAddr := net.JoinHostPort(s.config.Server.Host, s.config.GRPC.Port)
		if grpcLis, err = net.Listen("tcp", grpcAddr); err != nil {
			httpLis.Close()
			return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
		}
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve serves HTTP on httpLis and the health service on grpcLis until ctx
// is done, then shuts both down gracefully. grpcLis may be nil.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if grpcLis != nil && s.grpc != nil {
		g.Go(func() error {
			s.logger.Info("Starting gRPC health server", zap.String("addr", grpcLis.Addr().String()))
			if err := s.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if s.grpc != nil {
			s.health.Shutdown()
			s.grpc.GracefulStop()
		}
		s.relay.Close()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases the sandbox pool and tracer and flushes the logger
func (s *Server) Close() error {
	s.relay.Close()
	var errs []error
	if err := s.pool.Close(); err != nil && !errors.Is(err, sandbox.ErrPoolClosed) {
		errs = append(errs, fmt.Errorf("failed to close sandbox pool: %w", err))
	}
	s.tracer.Close()
	s.logger.Sync()
	return errors.Join(errs...)
}
