package http

import (
	"net/http"
	"os"

	"github.com/dkeye/voicecall/internal/app/relay"
	"github.com/dkeye/voicecall/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(cfg *config.Config, hub *relay.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if st, err := os.Stat(cfg.StaticPath); err == nil && st.IsDir() {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
		log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("serving static files")
	}

	ws := NewSignalHandler(hub, cfg.ReadLimit, cfg.PingPeriod)
	r.GET("/ws/signaling/:room/:client", ws.Handle)

	api := r.Group("/api")
	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"system": "voicecall relay", "status": "ok"})
	})
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.Rooms())
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
