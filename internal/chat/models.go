package chat

import "time"

type Status string

const (
	StatusOpen  Status = "OPEN"
	StatusEnded Status = "ENDED"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleBot      Role = "bot"
	RoleSystem   Role = "system"
)

// Side is one of the two human parties of a conversation.
type Side string

const (
	SideCustomer Side = "customer"
	SideAgent    Side = "agent"
)

func (s Side) Valid() bool { return s == SideCustomer || s == SideAgent }

type Conversation struct {
	ID                 uint64     `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID     string     `gorm:"type:varchar(26);uniqueIndex;not null" json:"conversationId"`
	CustomerID         uint64     `gorm:"not null;index:idx_support_conv_customer_status,priority:1" json:"customerId"`
	AgentID            *uint64    `gorm:"index" json:"agentId"`
	Status             Status     `gorm:"type:varchar(8);not null;index:idx_support_conv_customer_status,priority:2" json:"status"`
	OrderContextID     *string    `gorm:"type:varchar(64);index" json:"orderContextId"`
	LastMessagePreview string     `gorm:"type:varchar(200)" json:"lastMessagePreview"`
	LastMessageAt      *time.Time `json:"lastMessageAt"`
	UnreadByCustomer   bool       `gorm:"not null;default:false" json:"unreadByCustomer"`
	UnreadByAgent      bool       `gorm:"not null;default:false" json:"unreadByAgent"`
	EndedBy            *Side      `gorm:"type:varchar(16)" json:"endedBy,omitempty"`
	EndedAt            *time.Time `json:"endedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `gorm:"index" json:"updatedAt"`
}

func (Conversation) TableName() string { return "support_conversations" }

// Assigned reports whether a human agent has taken over.
func (c *Conversation) Assigned() bool { return c.AgentID != nil }

func (c *Conversation) Ended() bool { return c.Status == StatusEnded }

type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"type:varchar(26);not null;index:idx_support_msg_conv_created,priority:1" json:"conversationId"`
	SenderRole     Role      `gorm:"type:varchar(16);not null" json:"senderRole"`
	SenderID       *uint64   `json:"senderId"`
	Text           string    `gorm:"type:text;not null" json:"text"`
	ReadByCustomer bool      `gorm:"not null;default:false" json:"readByCustomer"`
	ReadByAgent    bool      `gorm:"not null;default:false" json:"readByAgent"`
	CreatedAt      time.Time `gorm:"index:idx_support_msg_conv_created,priority:2" json:"createdAt"`
}

func (Message) TableName() string { return "support_messages" }

// Models lists every table this package owns, for AutoMigrate.
func Models() []any {
	return []any{&Conversation{}, &Message{}}
}
