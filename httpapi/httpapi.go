// Package httpapi is the HTTP surface of one agent service.
//
// Every service exposes the same four routes: a health probe, the run
// trigger, the Prometheus exposition, and a websocket feed of run
// events. Run outcomes travel in-band: the trigger answers HTTP 200
// with the Result envelope for successes and failures alike, and
// reserves HTTP 400 for requests that are malformed on arrival.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relayhq/agents/events"
	"github.com/relayhq/agents/observability"
	"github.com/relayhq/agents/pipeline"
)

// Continuation headers. Both must be present to resume a suspended
// run; a request carrying only one of them is rejected.
const (
	HeaderSessionID = "x-relay-session-id"
	HeaderRequestID = "x-relay-request-id"
)

// Config configures the router of one agent service.
type Config struct {
	// AgentID names the agent, used in request logs. Required.
	AgentID string
	// Run starts a fresh run. Required.
	Run func(ctx context.Context) pipeline.Result
	// Continue resumes a suspended run from its session and input
	// request. Nil means the agent has no continuation flow.
	Continue func(ctx context.Context, sessionID, requestID string) pipeline.Result
	// Hub serves GET /agent/events when set.
	Hub *events.Hub
	// Metrics exposes GET /metrics when true.
	Metrics bool
}

// NewRouter builds the gin engine for one agent service.
func NewRouter(cfg Config) (*gin.Engine, error) {
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("httpapi: AgentID is required")
	}
	if cfg.Run == nil {
		return nil, fmt.Errorf("httpapi: Run is required")
	}

	logger := observability.Logger("httpapi").With(slog.String("agent", cfg.AgentID))

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/agent/run", func(c *gin.Context) {
		handleRun(c, cfg)
	})

	if cfg.Metrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	if cfg.Hub != nil {
		router.GET("/agent/events", func(c *gin.Context) {
			cfg.Hub.Handler(c.Writer, c.Request)
		})
	}

	return router, nil
}

// handleRun routes a trigger to the fresh-run or continuation path
// based on the headers.
func handleRun(c *gin.Context, cfg Config) {
	sessionID := c.GetHeader(HeaderSessionID)
	requestID := c.GetHeader(HeaderRequestID)

	switch {
	case sessionID != "" && requestID != "":
		if cfg.Continue == nil {
			c.JSON(http.StatusBadRequest, pipeline.Result{
				Success: false,
				Reason:  "this agent does not support continuation",
			})
			return
		}
		c.JSON(http.StatusOK, cfg.Continue(c.Request.Context(), sessionID, requestID))

	case sessionID == "" && requestID == "":
		c.JSON(http.StatusOK, cfg.Run(c.Request.Context()))

	case sessionID != "":
		c.JSON(http.StatusBadRequest, pipeline.Result{
			Success: false,
			Reason:  fmt.Sprintf("%s is required when %s is set", HeaderRequestID, HeaderSessionID),
		})

	default:
		c.JSON(http.StatusBadRequest, pipeline.Result{
			Success: false,
			Reason:  fmt.Sprintf("%s is required when %s is set", HeaderSessionID, HeaderRequestID),
		})
	}
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)))
	}
}

// Serve runs the engine on addr until ctx is cancelled, then drains
// in-flight requests for up to ten seconds.
func Serve(ctx context.Context, addr string, engine *gin.Engine) error {
	server := &http.Server{Addr: addr, Handler: engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
