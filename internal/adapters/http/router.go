package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/bounce/internal/app"
	"github.com/dkeye/bounce/internal/app/accuracy"
	"github.com/dkeye/bounce/internal/core"
)

// AccuracySource reports the accuracy of every live offering session.
type AccuracySource interface {
	Accuracy() map[core.SessionID]accuracy.Summary
}

type Deps struct {
	Registry *app.Registry
	Accuracy AccuracySource
	// Signal serves websocket signaling on SignalPath when set.
	Signal     gin.HandlerFunc
	SignalPath string
	Debug      bool
}

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func SetupRouter(d Deps) *gin.Engine {
	if !d.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if d.Debug {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.GET("/sessions", func(c *gin.Context) {
		if d.Registry == nil {
			c.JSON(http.StatusOK, []app.SessionInfo{})
			return
		}
		c.JSON(http.StatusOK, d.Registry.Snapshot())
	})

	api.GET("/accuracy", func(c *gin.Context) {
		if d.Accuracy == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "accuracy is tracked by the offering peer only"})
			return
		}
		c.JSON(http.StatusOK, d.Accuracy.Accuracy())
	})

	api.GET("/accuracy/:sid", func(c *gin.Context) {
		if d.Accuracy == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "accuracy is tracked by the offering peer only"})
			return
		}
		sum, ok := d.Accuracy.Accuracy()[core.SessionID(c.Param("sid"))]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		c.JSON(http.StatusOK, sum)
	})

	if d.Signal != nil && d.SignalPath != "" {
		r.GET(d.SignalPath, d.Signal)
	}

	log.Info().Str("module", "adapters.http").Bool("signaling", d.Signal != nil).Msg("router setup")
	return r
}
