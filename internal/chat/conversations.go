package chat

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/support-chat/internal/common"
	"gorm.io/gorm"
)

const (
	defaultConversationListLimit = 100
	maxConversationListLimit     = 500
	previewMaxRunes              = 200
)

type ConversationStore struct {
	db    *gorm.DB
	clock *clock
}

func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db, clock: processClock}
}

// FindOpen returns the most recently updated OPEN conversation of the
// customer, restricted to orderContextID when it is set. nil, nil if none.
func (s *ConversationStore) FindOpen(ctx context.Context, customerID uint64, orderContextID *string) (*Conversation, error) {
	q := s.db.WithContext(ctx).
		Where("customer_id = ? AND status = ?", customerID, StatusOpen)
	if orderContextID != nil {
		q = q.Where("order_context_id = ?", *orderContextID)
	}

	var c Conversation
	err := q.Order("updated_at DESC").Order("id DESC").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *ConversationStore) Create(ctx context.Context, customerID uint64, orderContextID *string) (*Conversation, error) {
	cid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	c := &Conversation{
		ConversationID: cid,
		CustomerID:     customerID,
		Status:         StatusOpen,
		OrderContextID: orderContextID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns nil, nil when the conversation does not exist.
func (s *ConversationStore) Get(ctx context.Context, conversationID string) (*Conversation, error) {
	var c Conversation
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *ConversationStore) ListForCustomer(ctx context.Context, customerID uint64, limit int) ([]Conversation, error) {
	var out []Conversation
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("updated_at DESC").
		Order("id DESC").
		Limit(clampConversationLimit(limit)).
		Find(&out).Error
	return out, err
}

// ListForAdmin lists every conversation, newest activity first. An empty
// status lists all of them.
func (s *ConversationStore) ListForAdmin(ctx context.Context, status Status, limit int) ([]Conversation, error) {
	q := s.db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []Conversation
	err := q.Order("updated_at DESC").
		Order("id DESC").
		Limit(clampConversationLimit(limit)).
		Find(&out).Error
	return out, err
}

// BindAgent sets agent_id only if it is still NULL. It reports whether
// this call did the binding.
func (s *ConversationStore) BindAgent(ctx context.Context, conversationID string, agentID uint64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Conversation{}).
		Where("conversation_id = ? AND agent_id IS NULL", conversationID).
		Updates(map[string]any{
			"agent_id":   agentID,
			"updated_at": s.clock.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// TouchLastMessage refreshes the preview and flags the conversation unread
// for the given side.
func (s *ConversationStore) TouchLastMessage(ctx context.Context, conversationID, text string, at time.Time, unreadFor Side) error {
	updates := map[string]any{
		"last_message_preview": truncateRunes(text, previewMaxRunes),
		"last_message_at":      at,
		"updated_at":           at,
	}
	switch unreadFor {
	case SideCustomer:
		updates["unread_by_customer"] = true
	case SideAgent:
		updates["unread_by_agent"] = true
	}
	return s.db.WithContext(ctx).Model(&Conversation{}).
		Where("conversation_id = ?", conversationID).
		Updates(updates).Error
}

// SetStatus moves the conversation forward. Only OPEN -> ENDED exists, so
// the update is conditional on the row still being OPEN; the bool reports
// whether a transition happened.
func (s *ConversationStore) SetStatus(ctx context.Context, conversationID string, status Status, endedBy Side, at time.Time) (bool, error) {
	if status != StatusEnded {
		return false, ErrValidation
	}
	res := s.db.WithContext(ctx).Model(&Conversation{}).
		Where("conversation_id = ? AND status = ?", conversationID, StatusOpen).
		Updates(map[string]any{
			"status":     StatusEnded,
			"ended_by":   endedBy,
			"ended_at":   at,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *ConversationStore) MarkRead(ctx context.Context, conversationID string, side Side) error {
	col := "unread_by_customer"
	if side == SideAgent {
		col = "unread_by_agent"
	}
	return s.db.WithContext(ctx).Model(&Conversation{}).
		Where("conversation_id = ?", conversationID).
		UpdateColumn(col, false).Error
}

func clampConversationLimit(limit int) int {
	if limit <= 0 {
		return defaultConversationListLimit
	}
	if limit > maxConversationListLimit {
		return maxConversationListLimit
	}
	return limit
}
