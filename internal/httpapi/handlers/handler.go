package handlers

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/support-chat/internal/chat"
	"github.com/suPer8Hu/support-chat/internal/common"
	"github.com/suPer8Hu/support-chat/internal/config"
	"github.com/suPer8Hu/support-chat/internal/httpapi/middleware"
	"github.com/suPer8Hu/support-chat/internal/store/rabbitmq"
	"gorm.io/gorm"
)

// EventPublisher is satisfied by rabbitmq.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, ev rabbitmq.ChatEvent) error
}

type Handler struct {
	Cfg     config.Config
	ChatSvc *chat.Service
	// Events may be nil; lifecycle events are then dropped.
	Events EventPublisher
}

func NewHandler(db *gorm.DB, cfg config.Config, responder chat.Responder, events EventPublisher) *Handler {
	chatSvc := chat.NewService(chat.NewConversationStore(db), chat.NewMessageStore(db), responder)
	return &Handler{
		Cfg:     cfg,
		ChatSvc: chatSvc,
		Events:  events,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"message": "pong"})
}

// publish never fails the request; the chat state is already committed.
func (h *Handler) publish(c *gin.Context, ev rabbitmq.ChatEvent) {
	if h.Events == nil {
		return
	}
	if err := h.Events.Publish(c.Request.Context(), ev); err != nil {
		log.Printf("[httpapi] publish %s failed request_id=%s conversation=%s err=%v",
			ev.Type, c.GetString(middleware.RequestIDKey), ev.ConversationID, err)
	}
}

func callerFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok && id != 0
}
