package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sekolahub/backend/internal/database"
	"github.com/sekolahub/backend/internal/models"
)

type MessageRepository struct {
	db *database.DB
}

func NewMessageRepository(db *database.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, tenant_id, sender_id, receiver_id, conversation_id, parent_id,
	subject, content, type, priority, attachments, is_read, read_at,
	is_archived, archived_at, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	msg := &models.Message{}
	var attachments []byte

	err := row.Scan(
		&msg.ID,
		&msg.TenantID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.ConversationID,
		&msg.ParentID,
		&msg.Subject,
		&msg.Content,
		&msg.Type,
		&msg.Priority,
		&attachments,
		&msg.IsRead,
		&msg.ReadAt,
		&msg.IsArchived,
		&msg.ArchivedAt,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments: %w", err)
		}
	}

	return msg, nil
}

// Create persists a message
func (r *MessageRepository) Create(message *models.Message) error {
	attachments, err := json.Marshal(message.Attachments)
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}
	if message.Attachments == nil {
		attachments = []byte("[]")
	}

	query := `
		INSERT INTO messages (id, tenant_id, sender_id, receiver_id, conversation_id, parent_id,
			subject, content, type, priority, attachments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(
		query,
		message.ID,
		message.TenantID,
		message.SenderID,
		message.ReceiverID,
		message.ConversationID,
		message.ParentID,
		message.Subject,
		message.Content,
		message.Type,
		message.Priority,
		attachments,
	).Scan(&message.CreatedAt, &message.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// GetForParty retrieves a message visible to the given user, who must be
// the sender or the receiver. Missing and invisible are indistinguishable
// here: both come back nil.
func (r *MessageRepository) GetForParty(id uuid.UUID, tenantID, userID int64) (*models.Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE id = $1 AND tenant_id = $2 AND (sender_id = $3 OR receiver_id = $3)
	`, messageColumns)

	msg, err := scanMessage(r.db.QueryRow(query, id, tenantID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// List returns a filtered, sorted page of the caller's messages plus the
// total row count before paging.
func (r *MessageRepository) List(tenantID, userID int64, filter models.MessageFilter) ([]models.Message, int, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}

	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch filter.Folder {
	case "sent":
		where = append(where, fmt.Sprintf("sender_id = %s", next(userID)))
	case "archived":
		p := next(userID)
		where = append(where, fmt.Sprintf("(sender_id = %s OR receiver_id = %s)", p, p))
		where = append(where, "is_archived = true")
	default: // inbox
		// Archived messages stay listed here; the archived folder is
		// the explicit filter, not an exclusion from the inbox.
		where = append(where, fmt.Sprintf("receiver_id = %s", next(userID)))
	}

	if filter.Search != "" {
		p := next("%" + filter.Search + "%")
		where = append(where, fmt.Sprintf("(subject ILIKE %s OR content ILIKE %s)", p, p))
	}
	if filter.Priority != "" {
		where = append(where, fmt.Sprintf("priority = %s", next(filter.Priority)))
	}
	if filter.Unread != nil {
		if *filter.Unread {
			where = append(where, "is_read = false")
		} else {
			where = append(where, "is_read = true")
		}
	}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("created_at >= %s", next(*filter.From)))
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("created_at <= %s", next(*filter.To)))
	}
	if filter.CounterpartID != nil {
		p := next(*filter.CounterpartID)
		where = append(where, fmt.Sprintf("(sender_id = %s OR receiver_id = %s)", p, p))
	}
	if filter.ConversationID != nil {
		where = append(where, fmt.Sprintf("conversation_id = %s", next(*filter.ConversationID)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM messages WHERE " + whereClause
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	orderBy := "created_at"
	switch filter.SortBy {
	case "priority":
		// urgent first when descending
		orderBy = `CASE priority WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END`
	case "subject":
		orderBy = "subject"
	}
	direction := "DESC"
	if filter.SortOrder == "asc" {
		direction = "ASC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf(
		"SELECT %s FROM messages WHERE %s ORDER BY %s %s LIMIT %s OFFSET %s",
		messageColumns, whereClause, orderBy, direction, next(limit), next(offset),
	)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}

	return messages, total, nil
}

// MarkRead flips an unread message to read with a timestamp. The query is
// scoped to the receiver, so a non-receiver caller simply matches nothing.
// A second call is a no-op and keeps the original read_at.
func (r *MessageRepository) MarkRead(id uuid.UUID, tenantID, receiverID int64) (bool, error) {
	query := `
		UPDATE messages
		SET is_read = true, read_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND receiver_id = $3 AND is_read = false
	`

	result, err := r.db.Exec(query, id, tenantID, receiverID)
	if err != nil {
		return false, fmt.Errorf("failed to mark message as read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// Archive sets the archived flag for a message either party owns
func (r *MessageRepository) Archive(id uuid.UUID, tenantID, userID int64) (bool, error) {
	query := `
		UPDATE messages
		SET is_archived = true, archived_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND (sender_id = $3 OR receiver_id = $3) AND is_archived = false
	`

	result, err := r.db.Exec(query, id, tenantID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to archive message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// Delete hard-deletes a message either party owns. Irreversible.
func (r *MessageRepository) Delete(id uuid.UUID, tenantID, userID int64) (bool, error) {
	query := `
		DELETE FROM messages
		WHERE id = $1 AND tenant_id = $2 AND (sender_id = $3 OR receiver_id = $3)
	`

	result, err := r.db.Exec(query, id, tenantID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// UnreadCount counts the user's unread received messages. Only reading
// clears the badge; archiving an unread message does not.
func (r *MessageRepository) UnreadCount(tenantID, userID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE tenant_id = $1 AND receiver_id = $2 AND is_read = false
	`

	var count int
	if err := r.db.QueryRow(query, tenantID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}

	return count, nil
}
