package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/velling/presence-server/internal/auth"
	"github.com/velling/presence-server/internal/config"
	"github.com/velling/presence-server/internal/core"
	"github.com/velling/presence-server/internal/metrics"
)

// Deps bundles everything the transport layer needs from the composition
// root.
type Deps struct {
	Registry   *core.Registry
	Router     *core.ChannelRouter
	Dispatcher *core.Dispatcher
	Verifier   *auth.Verifier
	Metrics    *metrics.Metrics

	// PromGatherer backs the /metrics endpoint. May be nil in tests.
	PromGatherer prometheus.Gatherer
}

// NewServer builds the HTTP server: websocket endpoint, REST dispatch API,
// health and metrics.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(logger))

	r.GET("/healthz", healthHandler)
	if deps.PromGatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.PromGatherer, promhttp.HandlerOpts{})))
	}

	ws := NewWSHandler(deps, cfg, logger)
	r.GET("/ws", gin.WrapH(ws))

	h := NewAPIHandlers(deps.Dispatcher, deps.Registry, logger)
	api := r.Group("/api", AuthMiddleware(deps.Verifier, logger))
	api.POST("/notifications", h.NotifyUser)
	api.POST("/notifications/bulk", h.NotifyUsers)
	api.POST("/conversations/:id/messages", h.MessageConversation)
	api.POST("/broadcast", h.Broadcast)
	api.GET("/presence/:userId", h.Presence)
	api.GET("/stats", h.Stats)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
