package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/support-chat/internal/chat"
	"github.com/suPer8Hu/support-chat/internal/common"
	"github.com/suPer8Hu/support-chat/internal/store/rabbitmq"
)

type adminListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=OPEN ENDED open ended"`
	Limit  int    `form:"limit" binding:"omitempty,min=0"`
}

func (h *Handler) AdminConversations(c *gin.Context) {
	var q adminListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "invalid query")
		return
	}
	limit := q.Limit
	if limit <= 0 || limit > h.Cfg.AdminListLimit {
		limit = h.Cfg.AdminListLimit
	}

	convs, err := h.ChatSvc.ListForAdmin(c.Request.Context(), chat.Status(strings.ToUpper(q.Status)), limit)
	if err != nil {
		failChat(c, "AdminConversations", err)
		return
	}
	common.OK(c, gin.H{"conversations": nonNil(convs)})
}

func (h *Handler) AdminMessages(c *gin.Context) {
	var q listMessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "invalid query")
		return
	}

	ctx := c.Request.Context()
	conversationID := c.Param("conversation_id")
	msgs, err := h.ChatSvc.GetMessages(ctx, conversationID, q.Limit, q.AfterID)
	if err != nil {
		failChat(c, "AdminMessages", err)
		return
	}
	h.ChatSvc.MarkRead(ctx, conversationID, chat.SideAgent)

	common.OK(c, gin.H{"messages": nonNil(msgs)})
}

func (h *Handler) AdminSend(c *gin.Context) {
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

	ctx := c.Request.Context()
	conversationID := c.Param("conversation_id")
	msg, tookOver, err := h.ChatSvc.AdminSend(ctx, uid, conversationID, req.Text)
	if err != nil {
		failChat(c, "AdminSend", err)
		return
	}
	if tookOver {
		if conv, err := h.ChatSvc.GetConversation(ctx, conversationID); err == nil {
			agent := uid
			h.publish(c, rabbitmq.ChatEvent{
				Type:           rabbitmq.EventConversationAssigned,
				ConversationID: conversationID,
				CustomerID:     conv.CustomerID,
				AgentID:        &agent,
				OrderContextID: conv.OrderContextID,
				At:             time.Now(),
			})
		}
	}
	common.OK(c, gin.H{"message": msg})
}

func (h *Handler) AdminEnd(c *gin.Context) {
	conv, changed, err := h.ChatSvc.EndChat(c.Request.Context(), c.Param("conversation_id"), chat.SideAgent)
	if err != nil {
		failChat(c, "AdminEnd", err)
		return
	}
	if changed {
		h.publishEnded(c, conv)
	}
	common.OK(c, gin.H{"conversation": conv})
}
