package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/support-chat/internal/chat"
	"github.com/suPer8Hu/support-chat/internal/common"
	"github.com/suPer8Hu/support-chat/internal/httpapi/middleware"
)

// failChat maps chat errors onto HTTP statuses. Anything unknown is a 500
// with a generic message; the real error only goes to the log.
func failChat(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "conversation not found")
	case errors.Is(err, chat.ErrForbidden):
		common.Fail(c, http.StatusForbidden, 40302, "this conversation belongs to another customer")
	case errors.Is(err, chat.ErrConversationEnded):
		common.Fail(c, http.StatusConflict, 40901, "this conversation has ended")
	case errors.Is(err, chat.ErrValidation):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
	default:
		log.Printf("[httpapi] %s failed request_id=%s err=%v", op, c.GetString(middleware.RequestIDKey), err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
