package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/support-chat/internal/chat"
	"github.com/suPer8Hu/support-chat/internal/common"
	"github.com/suPer8Hu/support-chat/internal/store/rabbitmq"
)

type openChatReq struct {
	OrderID *string `json:"orderId" binding:"omitempty,max=64"`
}

type sendMessageReq struct {
	Text string `json:"text" binding:"required"`
}

type listMessagesQuery struct {
	Limit   int    `form:"limit" binding:"omitempty,min=0"`
	AfterID uint64 `form:"afterId"`
}

func (h *Handler) OpenChat(c *gin.Context) {
	uid, okk := callerFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req openChatReq
	// empty body means no order context
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	conv, created, err := h.ChatSvc.OpenForCustomer(c.Request.Context(), uid, req.OrderID)
	if err != nil {
		failChat(c, "OpenChat", err)
		return
	}
	if created {
		h.publish(c, rabbitmq.ChatEvent{
			Type:           rabbitmq.EventConversationOpened,
			ConversationID: conv.ConversationID,
			CustomerID:     conv.CustomerID,
			OrderContextID: conv.OrderContextID,
			At:             conv.CreatedAt,
		})
	}

	common.OK(c, gin.H{"conversation": conv})
}

func (h *Handler) MyChats(c *gin.Context) {
	uid, okk := callerFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	convs, err := h.ChatSvc.ListForCustomer(c.Request.Context(), uid)
	if err != nil {
		failChat(c, "MyChats", err)
		return
	}
	common.OK(c, gin.H{"conversations": nonNil(convs)})
}

func (h *Handler) CustomerMessages(c *gin.Context) {
	uid, okk := callerFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var q listMessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "invalid query")
		return
	}

	ctx := c.Request.Context()
	conversationID := c.Param("conversation_id")
	if _, err := h.ChatSvc.AuthorizeCustomer(ctx, uid, conversationID); err != nil {
		failChat(c, "CustomerMessages", err)
		return
	}

	msgs, err := h.ChatSvc.GetMessages(ctx, conversationID, q.Limit, q.AfterID)
	if err != nil {
		failChat(c, "CustomerMessages", err)
		return
	}
	h.ChatSvc.MarkRead(ctx, conversationID, chat.SideCustomer)

	common.OK(c, gin.H{"messages": nonNil(msgs)})
}

func (h *Handler) CustomerSend(c *gin.Context) {
	uid, okk := callerFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	msg, err := h.ChatSvc.CustomerSend(c.Request.Context(), uid, c.Param("conversation_id"), req.Text)
	if err != nil {
		failChat(c, "CustomerSend", err)
		return
	}
	common.OK(c, gin.H{"message": msg})
}

func (h *Handler) CustomerEnd(c *gin.Context) {
	uid, okk := callerFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	ctx := c.Request.Context()
	conversationID := c.Param("conversation_id")
	if _, err := h.ChatSvc.AuthorizeCustomer(ctx, uid, conversationID); err != nil {
		failChat(c, "CustomerEnd", err)
		return
	}

	conv, changed, err := h.ChatSvc.EndChat(ctx, conversationID, chat.SideCustomer)
	if err != nil {
		failChat(c, "CustomerEnd", err)
		return
	}
	if changed {
		h.publishEnded(c, conv)
	}
	common.OK(c, gin.H{"conversation": conv})
}

func (h *Handler) publishEnded(c *gin.Context, conv *chat.Conversation) {
	ev := rabbitmq.ChatEvent{
		Type:           rabbitmq.EventConversationEnded,
		ConversationID: conv.ConversationID,
		CustomerID:     conv.CustomerID,
		AgentID:        conv.AgentID,
		OrderContextID: conv.OrderContextID,
	}
	if conv.EndedBy != nil {
		ev.EndedBy = string(*conv.EndedBy)
	}
	if conv.EndedAt != nil {
		ev.At = *conv.EndedAt
	}
	h.publish(c, ev)
}

// nonNil keeps empty lists as [] instead of null in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
