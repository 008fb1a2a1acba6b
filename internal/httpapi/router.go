package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/support-chat/internal/common"
	"github.com/suPer8Hu/support-chat/internal/config"
	"github.com/suPer8Hu/support-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/support-chat/internal/httpapi/middleware"
)

// NewRouter wires the customer and admin chat routes. limiter may be nil.
func NewRouter(cfg config.Config, h *handlers.Handler, limiter middleware.Limiter) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	r.GET("/ping", h.Ping)

	sendLimit := middleware.SendRateLimit(limiter, cfg.SendRateLimit, cfg.SendRateWindow)

	// customer chat (customer JWT required)
	authGroup := r.Group("/chat")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret), middleware.CustomerRequired())
	authGroup.POST("/open", h.OpenChat)
	authGroup.GET("/mine", h.MyChats)
	authGroup.GET("/:conversation_id/messages", h.CustomerMessages)
	authGroup.POST("/:conversation_id/messages", sendLimit, h.CustomerSend)
	authGroup.PATCH("/:conversation_id/end", h.CustomerEnd)

	// admin chat
	adminGroup := r.Group("/admin/chat")
	adminGroup.Use(middleware.AuthRequired(cfg.JWTSecret), middleware.AdminRequired())
	adminGroup.GET("/conversations", h.AdminConversations)
	adminGroup.GET("/conversations/:conversation_id/messages", h.AdminMessages)
	adminGroup.POST("/conversations/:conversation_id/messages", sendLimit, h.AdminSend)
	adminGroup.PATCH("/conversations/:conversation_id/end", h.AdminEnd)

	return r
}
