package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"
)

const (
	// MaxTextRunes caps a message body; longer input is truncated.
	MaxTextRunes        = 2000
	maxOrderContextLen  = 64
	welcomeText         = "Chat started. A support agent will reply here soon. Until then our automated assistant will try to help you."
	handoffText         = "A support agent has joined the conversation. Automated replies are now turned off."
	endedByCustomerText = "The customer ended this chat."
	endedByAgentText    = "The support agent ended this chat."
)

// Responder produces the automated reply sent while no agent is bound.
type Responder interface {
	Reply(input string) string
}

type Service struct {
	convs     *ConversationStore
	msgs      *MessageStore
	responder Responder
	locks     *keyLock
}

func NewService(convs *ConversationStore, msgs *MessageStore, responder Responder) *Service {
	return &Service{
		convs:     convs,
		msgs:      msgs,
		responder: responder,
		locks:     newKeyLock(),
	}
}

// OpenForCustomer resumes the customer's open conversation (for the same
// order, if one is given) or starts a new one seeded with a welcome note.
// The bool reports whether a new conversation was created.
func (s *Service) OpenForCustomer(ctx context.Context, customerID uint64, orderContextID *string) (*Conversation, bool, error) {
	orderContextID, err := normalizeOrderContext(orderContextID)
	if err != nil {
		return nil, false, err
	}

	unlock := s.locks.Lock(fmt.Sprintf("customer:%d", customerID))
	defer unlock()

	existing, err := s.convs.FindOpen(ctx, customerID, orderContextID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	conv, err := s.convs.Create(ctx, customerID, orderContextID)
	if err != nil {
		return nil, false, err
	}
	welcome, err := s.msgs.Append(ctx, conv.ConversationID, RoleSystem, nil, welcomeText)
	if err != nil {
		return nil, false, err
	}
	if err := s.convs.TouchLastMessage(ctx, conv.ConversationID, welcome.Text, welcome.CreatedAt, ""); err != nil {
		return nil, false, err
	}
	log.Printf("[chat] opened conversation=%s customer=%d", conv.ConversationID, customerID)
	conv, err = s.reload(ctx, conv.ConversationID)
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (s *Service) ListForCustomer(ctx context.Context, customerID uint64) ([]Conversation, error) {
	return s.convs.ListForCustomer(ctx, customerID, 0)
}

// ListForAdmin lists all conversations; status "" means any status.
func (s *Service) ListForAdmin(ctx context.Context, status Status, limit int) ([]Conversation, error) {
	if status != "" && status != StatusOpen && status != StatusEnded {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.convs.ListForAdmin(ctx, status, limit)
}

// GetConversation returns the conversation or ErrNotFound.
func (s *Service) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	return s.mustGet(ctx, conversationID)
}

// GetMessages returns the conversation's messages oldest first. It does no
// ownership check; callers guard access with AuthorizeCustomer.
func (s *Service) GetMessages(ctx context.Context, conversationID string, limit int, afterID uint64) ([]Message, error) {
	if _, err := s.mustGet(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.msgs.ListByConversation(ctx, conversationID, limit, afterID)
}

// AuthorizeCustomer checks that the conversation exists and belongs to the
// customer.
func (s *Service) AuthorizeCustomer(ctx context.Context, customerID uint64, conversationID string) (*Conversation, error) {
	conv, err := s.mustGet(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.CustomerID != customerID {
		return nil, ErrForbidden
	}
	return conv, nil
}

// CustomerSend appends the customer's message and, while no agent is
// bound, the automated reply. It returns the customer's own message.
func (s *Service) CustomerSend(ctx context.Context, customerID uint64, conversationID, text string) (*Message, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.mustGet(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.CustomerID != customerID {
		return nil, ErrForbidden
	}
	if conv.Ended() {
		return nil, ErrConversationEnded
	}
	body, err := sanitizeText(text)
	if err != nil {
		return nil, err
	}

	sender := customerID
	msg, err := s.msgs.Append(ctx, conversationID, RoleCustomer, &sender, body)
	if err != nil {
		return nil, err
	}
	if err := s.convs.TouchLastMessage(ctx, conversationID, msg.Text, msg.CreatedAt, SideAgent); err != nil {
		return nil, err
	}

	if conv.Assigned() {
		return msg, nil
	}

	// an agent bound by another instance since the read above silences the bot
	reply, err := s.msgs.AppendIfUnassigned(ctx, conversationID, RoleBot, s.responder.Reply(body))
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return msg, nil
	}
	if err := s.convs.TouchLastMessage(ctx, conversationID, reply.Text, reply.CreatedAt, SideCustomer); err != nil {
		return nil, err
	}
	return msg, nil
}

// AdminSend appends an agent message. The first agent to write to an
// unassigned conversation is bound to it and a hand-off notice is logged
// before their message; any later agent just appends. The bool reports
// whether this call bound the agent.
func (s *Service) AdminSend(ctx context.Context, agentID uint64, conversationID, text string) (*Message, bool, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.mustGet(ctx, conversationID)
	if err != nil {
		return nil, false, err
	}
	if conv.Ended() {
		return nil, false, ErrConversationEnded
	}
	body, err := sanitizeText(text)
	if err != nil {
		return nil, false, err
	}

	tookOver := false
	if !conv.Assigned() {
		tookOver, err = s.convs.BindAgent(ctx, conversationID, agentID)
		if err != nil {
			return nil, false, err
		}
		if tookOver {
			notice, err := s.msgs.Append(ctx, conversationID, RoleSystem, nil, handoffText)
			if err != nil {
				return nil, true, err
			}
			if err := s.convs.TouchLastMessage(ctx, conversationID, notice.Text, notice.CreatedAt, SideCustomer); err != nil {
				return nil, true, err
			}
			log.Printf("[chat] agent=%d took over conversation=%s", agentID, conversationID)
		}
	}

	sender := agentID
	msg, err := s.msgs.Append(ctx, conversationID, RoleAgent, &sender, body)
	if err != nil {
		return nil, tookOver, err
	}
	if err := s.convs.TouchLastMessage(ctx, conversationID, msg.Text, msg.CreatedAt, SideCustomer); err != nil {
		return nil, tookOver, err
	}
	return msg, tookOver, nil
}

// EndChat closes the conversation for good. Ending an already ended
// conversation changes nothing and returns it as is; the bool reports
// whether this call did the transition.
func (s *Service) EndChat(ctx context.Context, conversationID string, endedBy Side) (*Conversation, bool, error) {
	if !endedBy.Valid() {
		return nil, false, fmt.Errorf("%w: unknown side %q", ErrValidation, endedBy)
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.mustGet(ctx, conversationID)
	if err != nil {
		return nil, false, err
	}
	if conv.Ended() {
		return conv, false, nil
	}

	changed, err := s.convs.SetStatus(ctx, conversationID, StatusEnded, endedBy, s.convs.clock.Now())
	if err != nil {
		return nil, false, err
	}
	if !changed {
		// another process ended it first
		conv, err = s.reload(ctx, conversationID)
		return conv, false, err
	}

	text, other := endedByCustomerText, SideAgent
	if endedBy == SideAgent {
		text, other = endedByAgentText, SideCustomer
	}
	notice, err := s.msgs.Append(ctx, conversationID, RoleSystem, nil, text)
	if err != nil {
		return nil, true, err
	}
	if err := s.convs.TouchLastMessage(ctx, conversationID, notice.Text, notice.CreatedAt, other); err != nil {
		return nil, true, err
	}
	log.Printf("[chat] conversation=%s ended by %s", conversationID, endedBy)
	conv, err = s.reload(ctx, conversationID)
	return conv, true, err
}

// MarkRead clears read-state for side. Failures are only logged.
func (s *Service) MarkRead(ctx context.Context, conversationID string, side Side) {
	if !side.Valid() {
		return
	}
	if err := s.msgs.MarkRead(ctx, conversationID, side); err != nil {
		log.Printf("[chat] mark messages read failed conversation=%s side=%s err=%v", conversationID, side, err)
		return
	}
	if err := s.convs.MarkRead(ctx, conversationID, side); err != nil {
		log.Printf("[chat] mark conversation read failed conversation=%s side=%s err=%v", conversationID, side, err)
	}
}

func (s *Service) mustGet(ctx context.Context, conversationID string) (*Conversation, error) {
	conv, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}
	return conv, nil
}

func (s *Service) reload(ctx context.Context, conversationID string) (*Conversation, error) {
	return s.mustGet(ctx, conversationID)
}

func sanitizeText(text string) (string, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return "", fmt.Errorf("%w: message text is empty", ErrValidation)
	}
	return truncateRunes(t, MaxTextRunes), nil
}

func normalizeOrderContext(orderContextID *string) (*string, error) {
	if orderContextID == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*orderContextID)
	if v == "" {
		return nil, nil
	}
	if len(v) > maxOrderContextLen {
		return nil, fmt.Errorf("%w: order id too long", ErrValidation)
	}
	return &v, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
