package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Subjective/watch-together-sub000/internal/adapters/signal"
	"github.com/Subjective/watch-together-sub000/internal/app"
	"github.com/Subjective/watch-together-sub000/internal/config"
	"github.com/Subjective/watch-together-sub000/internal/core"
)

// ClientTokenMiddleware tags each browser with a stable token so logs can
// correlate sockets across reconnects.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, rooms *app.RoomManager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	ctrl := signal.NewController(rooms, cfg)
	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws endpoint hit")
		ctrl.HandleWS(ctx, c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, rooms.List())
	})

	// Room-info query: the identical snapshot carried by created/joined.
	api.GET("/rooms/:id", func(c *gin.Context) {
		state, err := rooms.GetOrCreate(c.Param("id")).Snapshot()
		if err != nil {
			if errors.Is(err, core.ErrRoomNotFound) {
				rooms.Release(c.Param("id"))
				c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
			return
		}
		c.JSON(http.StatusOK, state)
	})

	return r
}
