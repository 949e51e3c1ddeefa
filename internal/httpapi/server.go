// Package httpapi serves the cascade admin API over gin.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mesh-intelligence/lawcascade/internal/cascade"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Service is the coordinator surface the API exposes.
type Service interface {
	StartDiscovery(ctx context.Context, sessionID string, sources []types.LawID) (*types.DiscoveryReport, error)
	ContinueDiscovery(ctx context.Context, sessionID string, entryIDs []string) (*types.DiscoveryReport, error)
	List(ctx context.Context, f types.Filter) (*cascade.Listing, error)
	Sessions(ctx context.Context) ([]types.SessionSummary, error)
	RunBatch(ctx context.Context, req cascade.BatchRequest) (*types.BatchResult, error)
	ReleaseDeferred(ctx context.Context, ids []string) (int, error)
	SkipEntries(ctx context.Context, ids []string) (int, error)
	DeleteEntry(ctx context.Context, id string) (bool, error)
	ClearSession(ctx context.Context, sessionID string) (int, error)
	ClearProcessed(ctx context.Context, sessionID string) (int, error)
}

var _ Service = (*cascade.Coordinator)(nil)

// shutdownTimeout bounds graceful shutdown of Run.
const shutdownTimeout = 15 * time.Second

// NewRouter builds the gin engine with every route registered.
func NewRouter(svc Service, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	registerValidators()

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	setupRoutes(router, &handlers{svc: svc, logger: logger})
	return router
}

func setupRoutes(router *gin.Engine, h *handlers) {
	router.GET("/health", h.health)

	v1 := router.Group("/v1/cascade")
	{
		v1.GET("", h.list)
		v1.POST("/batch", h.batch)
		v1.DELETE("/processed", h.clearProcessed)

		sessions := v1.Group("/sessions")
		sessions.GET("", h.sessions)
		sessions.POST("/:sessionId/discover", h.discover)
		sessions.POST("/:sessionId/continue", h.continueDiscovery)
		sessions.DELETE("/:sessionId", h.clearSession)

		entries := v1.Group("/entries")
		entries.POST("/release", h.release)
		entries.POST("/skip", h.skip)
		entries.DELETE("/:id", h.deleteEntry)
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// Run serves router on addr until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, addr string, router http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("admin API shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
