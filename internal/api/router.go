// Package api serves the HTTP side of the bot: the direct-link redirect and a
// health check.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/artur/peaktube/internal/database/models"
	"github.com/artur/peaktube/internal/links"
	"github.com/artur/peaktube/internal/logging"
)

var log = logging.For("api")

// LinkResolver looks up an unexpired link by token.
type LinkResolver interface {
	Resolve(ctx context.Context, token string) (*models.DirectLink, error)
}

// Pinger reports storage health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewRouter builds the gin engine.
func NewRouter(resolver LinkResolver, db Pinger, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	h := &linkHandler{resolver: resolver, db: db}
	router.GET("/d/:token", h.redirect)
	router.GET("/health", h.health)

	return router
}

func requestLogger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		log.WithFields(logrus.Fields{
			"client_ip": param.ClientIP,
			"method":    param.Method,
			"path":      param.Path,
			"status":    param.StatusCode,
			"latency":   param.Latency,
		}).Info("HTTP request")
		return ""
	})
}

type linkHandler struct {
	resolver LinkResolver
	db       Pinger
}

func (h *linkHandler) redirect(c *gin.Context) {
	link, err := h.resolver.Resolve(c.Request.Context(), c.Param("token"))
	switch {
	case errors.Is(err, links.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "link not found"})
		return
	case errors.Is(err, links.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": "link expired"})
		return
	case err != nil:
		log.WithError(err).Error("Failed to resolve link")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.Redirect(http.StatusFound, link.DirectURL)
}

func (h *linkHandler) health(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}
