package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sekolahub/backend/internal/database"
	"github.com/sekolahub/backend/internal/models"
)

type ConversationRepository struct {
	db *database.DB
}

func NewConversationRepository(db *database.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// CreateWithMembers persists a conversation and its initial membership
// rows in a single transaction. Member roles must already be assigned.
func (r *ConversationRepository) CreateWithMembers(conversation *models.Conversation, members []models.ConversationMember) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO conversations (id, tenant_id, name, description, type, created_by, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(
		query,
		conversation.ID,
		conversation.TenantID,
		conversation.Name,
		conversation.Description,
		conversation.Type,
		conversation.CreatedBy,
	).Scan(&conversation.CreatedAt, &conversation.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	memberQuery := `
		INSERT INTO conversation_members (id, conversation_id, user_id, role, is_active)
		VALUES ($1, $2, $3, $4, true)
	`
	for i := range members {
		if _, err := tx.Exec(memberQuery, members[i].ID, members[i].ConversationID, members[i].UserID, members[i].Role); err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves an active conversation scoped to a tenant
func (r *ConversationRepository) GetByID(id uuid.UUID, tenantID int64) (*models.Conversation, error) {
	query := `
		SELECT id, tenant_id, name, description, type, created_by, is_active, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND tenant_id = $2 AND is_active = true
	`

	conversation := &models.Conversation{}
	err := r.db.QueryRow(query, id, tenantID).Scan(
		&conversation.ID,
		&conversation.TenantID,
		&conversation.Name,
		&conversation.Description,
		&conversation.Type,
		&conversation.CreatedBy,
		&conversation.IsActive,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conversation, nil
}

// ListForUser retrieves active conversations where the user is an active
// member, newest-updated first
func (r *ConversationRepository) ListForUser(tenantID, userID int64) ([]models.Conversation, error) {
	query := `
		SELECT c.id, c.tenant_id, c.name, c.description, c.type, c.created_by, c.is_active, c.created_at, c.updated_at
		FROM conversations c
		INNER JOIN conversation_members cm ON c.id = cm.conversation_id
		WHERE c.tenant_id = $1 AND c.is_active = true
		AND cm.user_id = $2 AND cm.is_active = true
		ORDER BY c.updated_at DESC
	`

	rows, err := r.db.Query(query, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		var conv models.Conversation
		err := rows.Scan(
			&conv.ID,
			&conv.TenantID,
			&conv.Name,
			&conv.Description,
			&conv.Type,
			&conv.CreatedBy,
			&conv.IsActive,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}

	return conversations, nil
}

// GetMember retrieves a user's active membership row, or nil if the user
// is not an active member
func (r *ConversationRepository) GetMember(conversationID uuid.UUID, userID int64) (*models.ConversationMember, error) {
	query := `
		SELECT id, conversation_id, user_id, role, is_active, is_muted, last_read_at, joined_at
		FROM conversation_members
		WHERE conversation_id = $1 AND user_id = $2 AND is_active = true
	`

	member := &models.ConversationMember{}
	err := r.db.QueryRow(query, conversationID, userID).Scan(
		&member.ID,
		&member.ConversationID,
		&member.UserID,
		&member.Role,
		&member.IsActive,
		&member.IsMuted,
		&member.LastReadAt,
		&member.JoinedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}

// GetActiveMembers retrieves the active membership rows of a conversation
func (r *ConversationRepository) GetActiveMembers(conversationID uuid.UUID) ([]models.ConversationMember, error) {
	query := `
		SELECT id, conversation_id, user_id, role, is_active, is_muted, last_read_at, joined_at
		FROM conversation_members
		WHERE conversation_id = $1 AND is_active = true
		ORDER BY joined_at ASC
	`

	rows, err := r.db.Query(query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	members := []models.ConversationMember{}
	for rows.Next() {
		var m models.ConversationMember
		err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.UserID,
			&m.Role,
			&m.IsActive,
			&m.IsMuted,
			&m.LastReadAt,
			&m.JoinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, nil
}

// AddMember inserts a membership row, reactivating a previously removed
// one if it exists. Removal is a soft deactivation, so the unique
// constraint may hold an inactive row for this user.
func (r *ConversationRepository) AddMember(member *models.ConversationMember) error {
	query := `
		INSERT INTO conversation_members (id, conversation_id, user_id, role, is_active)
		VALUES ($1, $2, $3, $4, true)
		ON CONFLICT (conversation_id, user_id)
		DO UPDATE SET is_active = true, role = EXCLUDED.role
		RETURNING id, joined_at
	`

	err := r.db.QueryRow(
		query,
		member.ID,
		member.ConversationID,
		member.UserID,
		member.Role,
	).Scan(&member.ID, &member.JoinedAt)

	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	return nil
}

// DeactivateMember soft-removes a member, preserving history
func (r *ConversationRepository) DeactivateMember(conversationID uuid.UUID, userID int64) error {
	query := `
		UPDATE conversation_members
		SET is_active = false
		WHERE conversation_id = $1 AND user_id = $2 AND is_active = true
	`

	result, err := r.db.Exec(query, conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate member: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("member not found")
	}

	return nil
}

// SetType updates the conversation type
func (r *ConversationRepository) SetType(conversationID uuid.UUID, convType string) error {
	query := `UPDATE conversations SET type = $1, updated_at = NOW() WHERE id = $2`

	if _, err := r.db.Exec(query, convType, conversationID); err != nil {
		return fmt.Errorf("failed to set conversation type: %w", err)
	}

	return nil
}

// Update applies a partial name/description update
func (r *ConversationRepository) Update(conversation *models.Conversation) error {
	query := `
		UPDATE conversations
		SET name = $1, description = $2, updated_at = NOW()
		WHERE id = $3 AND tenant_id = $4
		RETURNING updated_at
	`

	err := r.db.QueryRow(query, conversation.Name, conversation.Description, conversation.ID, conversation.TenantID).Scan(&conversation.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}

	return nil
}

// Deactivate soft-deletes a conversation and all of its memberships in a
// single transaction
func (r *ConversationRepository) Deactivate(conversationID uuid.UUID, tenantID int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE conversations SET is_active = false, updated_at = NOW() WHERE id = $1 AND tenant_id = $2`,
		conversationID, tenantID,
	); err != nil {
		return fmt.Errorf("failed to deactivate conversation: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE conversation_members SET is_active = false WHERE conversation_id = $1`,
		conversationID,
	); err != nil {
		return fmt.Errorf("failed to deactivate members: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Touch bumps updated_at so the conversation sorts to the top of listings
func (r *ConversationRepository) Touch(conversationID uuid.UUID) error {
	if _, err := r.db.Exec(`UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}
