package chat

import "errors"

var (
	ErrNotFound          = errors.New("conversation not found")
	ErrForbidden         = errors.New("not allowed to access this conversation")
	ErrConversationEnded = errors.New("conversation has ended")
	ErrValidation        = errors.New("invalid input")
)
