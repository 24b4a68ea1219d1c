package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"

	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Conversation struct {
	ID          uuid.UUID `json:"id" db:"id"`
	TenantID    int64     `json:"tenant_id" db:"tenant_id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	Type        string    `json:"type" db:"type"` // direct, group
	CreatedBy   int64     `json:"created_by" db:"created_by"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	Members []ConversationMember `json:"members,omitempty"`
}

type ConversationMember struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	ConversationID uuid.UUID  `json:"conversation_id" db:"conversation_id"`
	UserID         int64      `json:"user_id" db:"user_id"`
	Role           string     `json:"role" db:"role"` // member, admin
	IsActive       bool       `json:"is_active" db:"is_active"`
	IsMuted        bool       `json:"is_muted" db:"is_muted"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty" db:"last_read_at"`
	JoinedAt       time.Time  `json:"joined_at" db:"joined_at"`

	// Resolved display name, populated by the participant resolver.
	Name string `json:"name,omitempty"`
}

// ConversationTypeFor derives a conversation type from its active member
// count. More than two participants makes it a group.
func ConversationTypeFor(memberCount int) string {
	if memberCount > 2 {
		return ConversationGroup
	}
	return ConversationDirect
}

type CreateConversationRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description,omitempty"`
	Members     []int64 `json:"members" binding:"required,min=1"`
}

type UpdateConversationRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type AddMembersRequest struct {
	Members []int64 `json:"members" binding:"required,min=1"`
}
