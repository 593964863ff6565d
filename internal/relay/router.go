package relay

import (
	"context"
	"net/http"

	"github.com/dkeye/peercall/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter builds the relay engine. metrics may be nil.
func SetupRouter(ctx context.Context, cfg *config.Config, hub *Hub, metrics http.Handler) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("PeercallSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	log.Info().Str("module", "relay.http").Bool("metrics", metrics != nil).Msg("router setup")

	ctrl := &SignalWSController{
		Hub:        hub,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		QueueSize:  cfg.QueueSize,
	}

	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/parties", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"parties": hub.Registry().Parties()})
	})

	return r
}
