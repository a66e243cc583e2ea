// Package httpapi implements cmd/spiral-server's HTTP and WebSocket
// front door: a gin router exposing document evaluation, cached-result
// lookup, cron-based re-submission, and a live execution trace stream,
// generalizing the teacher's internal/infrastructure/api/rest +
// internal/application/observer + internal/application/trigger layers
// from workflow/execution/trigger database rows to SPIRAL documents
// addressed by canonical digest or caller-supplied schedule id.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/hybscloud/spiral/pkg/canon/cache"
	"github.com/hybscloud/spiral/pkg/config"
	"github.com/hybscloud/spiral/pkg/ir"
	"github.com/hybscloud/spiral/pkg/logging"
)

// Server owns every piece of shared state cmd/spiral-server's handlers
// need: configuration, the structured logger, the WebSocket hub, the
// cron scheduler, and (optionally) the Redis-backed result cache.
type Server struct {
	cfg         *config.Config
	logger      *logging.Logger
	tracer      trace.Tracer
	hub         *Hub
	cron        *CronScheduler
	resultCache *cache.Cache
	redis       *redis.Client
	router      *gin.Engine
	httpServer  *http.Server
}

// New wires a Server from cfg: Redis connects best-effort (a failure
// disables the result cache and cron's result caching, but evaluation
// still works, mirroring the teacher's "continue without Redis, it's
// optional" main.go pattern); the gin router, WebSocket hub, and cron
// scheduler are always created. tracer may be nil (tracing disabled),
// in which case every document evaluation's orchestrator runs untraced.
func New(cfg *config.Config, log *logging.Logger, tracer trace.Tracer) *Server {
	s := &Server{cfg: cfg, logger: log, tracer: tracer}

	if rdb, err := NewRedisClient(cfg.Redis); err != nil {
		log.Warn("redis unavailable, result cache disabled", "error", err)
	} else {
		s.redis = rdb
		s.resultCache = cache.New(rdb, cfg.Redis.TTL)
	}

	s.hub = NewHub(log)
	s.cron = NewCronScheduler(cfg.Cron.MaxJobs, s.runScheduled, s.resultCache, log)

	s.router = s.newRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) runScheduled(ctx context.Context, doc *ir.Document) (any, error) {
	rendered, _, err := s.evaluateDocument(ctx, doc)
	return rendered, err
}

func (s *Server) newRouter() *gin.Engine {
	if s.cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(Recovery(s.logger))
	r.Use(RequestLogger(s.logger))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "healthy"}) })
	r.GET("/ready", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ready"}) })

	v1 := r.Group("/v1")
	v1.Use(RequireAuth(s.cfg.Server.JWTSecret))
	{
		v1.POST("/documents/evaluate", s.HandleEvaluate)
		v1.GET("/documents/:digest/result", s.HandleGetResult)
		v1.POST("/documents/:id/schedule", s.HandleSchedule)
		v1.DELETE("/documents/:id/schedule", s.HandleUnschedule)
	}
	r.GET("/v1/ws/executions/:execution_id", s.HandleExecutionStream)

	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully within cfg.Server.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("server shutdown initiated")
		s.cron.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if s.redis != nil {
			_ = s.redis.Close()
		}
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
