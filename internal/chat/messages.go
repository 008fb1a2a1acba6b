package chat

import (
	"context"

	"gorm.io/gorm"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

type MessageStore struct {
	db    *gorm.DB
	clock *clock
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db, clock: processClock}
}

// Append writes one message. created_at comes from the process clock so
// appends from this process never go backwards in time.
func (s *MessageStore) Append(ctx context.Context, conversationID string, role Role, senderID *uint64, text string) (*Message, error) {
	m := &Message{
		ConversationID: conversationID,
		SenderRole:     role,
		SenderID:       senderID,
		Text:           text,
		ReadByCustomer: role == RoleCustomer,
		ReadByAgent:    role == RoleAgent,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// AppendIfUnassigned writes an automated message only while the
// conversation still has no agent. The check and the insert are one
// statement, so an agent bound by another process in between wins.
// It returns nil, nil when the message was skipped. The returned
// message has no ID.
func (s *MessageStore) AppendIfUnassigned(ctx context.Context, conversationID string, role Role, text string) (*Message, error) {
	m := &Message{
		ConversationID: conversationID,
		SenderRole:     role,
		Text:           text,
		CreatedAt:      s.clock.Now(),
	}
	res := s.db.WithContext(ctx).Exec(
		"INSERT INTO support_messages (conversation_id, sender_role, sender_id, text, read_by_customer, read_by_agent, created_at) "+
			"SELECT ?, ?, NULL, ?, ?, ?, ? FROM support_conversations WHERE conversation_id = ? AND agent_id IS NULL",
		m.ConversationID, m.SenderRole, m.Text, false, false, m.CreatedAt, conversationID,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return m, nil
}

// ListByConversation returns messages in ascending (created_at, id) order.
// With afterID == 0 it returns the latest limit messages, otherwise up to
// limit messages newer than afterID.
func (s *MessageStore) ListByConversation(ctx context.Context, conversationID string, limit int, afterID uint64) ([]Message, error) {
	limit = ClampMessageLimit(limit)

	if afterID > 0 {
		var msgs []Message
		err := s.db.WithContext(ctx).
			Where("conversation_id = ? AND id > ?", conversationID, afterID).
			Order("created_at ASC").
			Order("id ASC").
			Limit(limit).
			Find(&msgs).Error
		return msgs, err
	}

	var desc []Message
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&desc).Error; err != nil {
		return nil, err
	}

	// reverse to ASC (oldest -> newest)
	msgs := make([]Message, 0, len(desc))
	for i := len(desc) - 1; i >= 0; i-- {
		msgs = append(msgs, desc[i])
	}
	return msgs, nil
}

// MarkRead flags every message of the conversation as read by side.
func (s *MessageStore) MarkRead(ctx context.Context, conversationID string, side Side) error {
	col := "read_by_customer"
	if side == SideAgent {
		col = "read_by_agent"
	}
	return s.db.WithContext(ctx).Model(&Message{}).
		Where("conversation_id = ? AND "+col+" = ?", conversationID, false).
		UpdateColumn(col, true).Error
}

func ClampMessageLimit(limit int) int {
	if limit <= 0 {
		return DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		return MaxMessageLimit
	}
	return limit
}
