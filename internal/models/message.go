package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	MessageDirect    = "direct"
	MessageGroup     = "group"
	MessageBroadcast = "broadcast"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Attachment is the metadata the storage collaborator hands back after an
// upload; the core never sees the raw bytes.
type Attachment struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	URL          string `json:"url"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
}

type Message struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	TenantID       int64        `json:"tenant_id" db:"tenant_id"`
	SenderID       int64        `json:"sender_id" db:"sender_id"`
	ReceiverID     *int64       `json:"receiver_id,omitempty" db:"receiver_id"`
	ConversationID *uuid.UUID   `json:"conversation_id,omitempty" db:"conversation_id"`
	ParentID       *uuid.UUID   `json:"parent_id,omitempty" db:"parent_id"`
	Subject        string       `json:"subject" db:"subject"`
	Content        string       `json:"content" db:"content"`
	Type           string       `json:"type" db:"type"`         // direct, group, broadcast
	Priority       string       `json:"priority" db:"priority"` // low, medium, high, urgent
	Attachments    []Attachment `json:"attachments" db:"attachments"`
	IsRead         bool         `json:"is_read" db:"is_read"`
	ReadAt         *time.Time   `json:"read_at,omitempty" db:"read_at"`
	IsArchived     bool         `json:"is_archived" db:"is_archived"`
	ArchivedAt     *time.Time   `json:"archived_at,omitempty" db:"archived_at"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`

	Sender *Participant `json:"sender,omitempty"`
}

// Validate checks the fields required before a message is persisted.
func (m *Message) Validate() error {
	if m.Content == "" {
		return fmt.Errorf("content is required")
	}
	if m.ReceiverID == nil && m.ConversationID == nil {
		return fmt.Errorf("receiver or conversation is required")
	}
	switch m.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
	default:
		return fmt.Errorf("invalid priority %q", m.Priority)
	}
	return nil
}

type SendMessageRequest struct {
	ReceiverID     *int64       `json:"receiver_id,omitempty"`
	ConversationID *uuid.UUID   `json:"conversation_id,omitempty"`
	ParentID       *uuid.UUID   `json:"parent_id,omitempty"`
	Subject        string       `json:"subject"`
	Content        string       `json:"content" binding:"required,max=10000"`
	Type           string       `json:"type,omitempty"`
	Priority       string       `json:"priority,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// MessageFilter drives the folder-style listing. Folder selects whose
// mailbox view is queried; the rest narrow it down.
type MessageFilter struct {
	Folder         string     `form:"folder"` // inbox, sent, archived
	Search         string     `form:"search"`
	Priority       string     `form:"priority"`
	Unread         *bool      `form:"unread"`
	From           *time.Time `form:"from" time_format:"2006-01-02"`
	To             *time.Time `form:"to" time_format:"2006-01-02"`
	CounterpartID  *int64     `form:"counterpart_id"`
	ConversationID *uuid.UUID `form:"conversation_id"`
	SortBy         string     `form:"sort_by"`    // date, priority, subject
	SortOrder      string     `form:"sort_order"` // asc, desc
	Page           int        `form:"page"`
	Limit          int        `form:"limit"`
}

type MessagePage struct {
	Messages   []Message `json:"messages"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	TotalPages int       `json:"total_pages"`
}
