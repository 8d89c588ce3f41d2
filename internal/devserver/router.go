package devserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(s.requestLogger())
	r.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		s.log.Errorw("panic in handler", "path", c.Request.URL.Path, "panic", rec)
		abort(c, http.StatusInternalServerError, "Internal server error")
	}))

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "status": "healthy"})
	})

	api := r.Group("/api")
	api.POST("/chat/message", s.chatMessage)
	api.GET("/chat/suggestions", s.suggestions)

	api.POST("/auth/signup", s.signup)
	api.POST("/auth/login", s.login)

	authed := api.Group("/")
	authed.Use(authRequired(s.secret))
	authed.GET("/auth/verify", s.verify)
	authed.POST("/history/message", s.saveMessage)
	authed.POST("/history/feedback", s.feedback)
	authed.GET("/history/sessions", s.sessions)
	authed.GET("/history/session/:session_id", s.session)
	authed.DELETE("/history/session/:session_id", s.deleteSession)
	authed.DELETE("/history/message/:message_id", s.deleteMessage)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugw("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"clientIP", c.ClientIP(),
		)
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
}
