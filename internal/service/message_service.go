package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/sekolahub/backend/internal/domain"
	"github.com/sekolahub/backend/internal/models"
)

// MessageStore is the persistence surface for messages.
type MessageStore interface {
	Create(message *models.Message) error
	GetForParty(id uuid.UUID, tenantID, userID int64) (*models.Message, error)
	List(tenantID, userID int64, filter models.MessageFilter) ([]models.Message, int, error)
	MarkRead(id uuid.UUID, tenantID, receiverID int64) (bool, error)
	Archive(id uuid.UUID, tenantID, userID int64) (bool, error)
	Delete(id uuid.UUID, tenantID, userID int64) (bool, error)
	UnreadCount(tenantID, userID int64) (int, error)
}

// MemberLister is the slice of the conversation store the message service
// needs for conversation-scoped fan-out.
type MemberLister interface {
	GetActiveMembers(conversationID uuid.UUID) ([]models.ConversationMember, error)
	Touch(conversationID uuid.UUID) error
}

// Notifier publishes events toward live connections. Delivery is
// at-most-once and best-effort; a disconnected user simply misses it.
type Notifier interface {
	PublishNotification(n models.Notification) error
}

// UnreadCache fronts the unread-count query.
type UnreadCache interface {
	GetUnreadCount(tenantID, userID int64) (int, bool, error)
	SetUnreadCount(tenantID, userID int64, count int) error
	InvalidateUnreadCount(tenantID, userID int64) error
}

type MessageService struct {
	store    MessageStore
	members  MemberLister
	notifier Notifier
	cache    UnreadCache
}

// NewMessageService wires the message store. notifier and cache may be
// nil; the service then skips live events and always hits the database
// for counts.
func NewMessageService(store MessageStore, members MemberLister, notifier Notifier, cache UnreadCache) *MessageService {
	return &MessageService{store: store, members: members, notifier: notifier, cache: cache}
}

// Send validates and persists a message, then notifies the affected
// users. Attachment metadata arrives pre-resolved from the storage
// collaborator; the core never sees file bytes.
func (s *MessageService) Send(tenantID, senderID int64, req models.SendMessageRequest) (*models.Message, error) {
	msgType := req.Type
	if msgType == "" {
		if req.ConversationID != nil {
			msgType = models.MessageGroup
		} else {
			msgType = models.MessageDirect
		}
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	message := &models.Message{
		ID:             uuid.New(),
		TenantID:       tenantID,
		SenderID:       senderID,
		ReceiverID:     req.ReceiverID,
		ConversationID: req.ConversationID,
		ParentID:       req.ParentID,
		Subject:        req.Subject,
		Content:        req.Content,
		Type:           msgType,
		Priority:       priority,
		Attachments:    req.Attachments,
	}

	if err := message.Validate(); err != nil {
		return nil, domain.NewValidation("%s", err.Error())
	}

	// A reply's parent must be visible to the sender within the same
	// tenant; a cross-tenant parent id is treated as absent.
	if req.ParentID != nil {
		parent, err := s.store.GetForParty(*req.ParentID, tenantID, senderID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, domain.NewValidation("parent message not found")
		}
	}

	if err := s.store.Create(message); err != nil {
		return nil, err
	}

	s.fanOutNew(message)

	return message, nil
}

// FindAll returns a filtered, paginated folder view.
func (s *MessageService) FindAll(tenantID, userID int64, filter models.MessageFilter) (*models.MessagePage, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	messages, total, err := s.store.List(tenantID, userID, filter)
	if err != nil {
		return nil, err
	}

	totalPages := total / filter.Limit
	if total%filter.Limit != 0 {
		totalPages++
	}

	return &models.MessagePage{
		Messages:   messages,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

// View loads a message and, when the caller is the receiver of an unread
// message, marks it read as part of the operation. The read transition is
// part of this method's contract, not a hidden side effect of a getter.
// A caller who is neither party gets NotFound, never Forbidden, so
// message existence does not leak.
func (s *MessageService) View(id uuid.UUID, tenantID, userID int64) (*models.Message, error) {
	message, err := s.store.GetForParty(id, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, domain.NewNotFound("message")
	}

	if message.ReceiverID != nil && *message.ReceiverID == userID && !message.IsRead {
		updated, err := s.store.MarkRead(id, tenantID, userID)
		if err != nil {
			return nil, err
		}
		if updated {
			now := time.Now()
			message.IsRead = true
			message.ReadAt = &now
			s.notifyRead(message, userID, now)
		}
	}

	return message, nil
}

// MarkAsRead explicitly marks a message read; receiver only. The query is
// receiver-scoped, so anyone else gets NotFound. Idempotent: a second
// call succeeds without re-stamping read_at.
func (s *MessageService) MarkAsRead(id uuid.UUID, tenantID, userID int64) error {
	updated, err := s.store.MarkRead(id, tenantID, userID)
	if err != nil {
		return err
	}
	if updated {
		message, err := s.store.GetForParty(id, tenantID, userID)
		if err != nil {
			return err
		}
		if message != nil {
			readAt := time.Now()
			if message.ReadAt != nil {
				readAt = *message.ReadAt
			}
			s.notifyRead(message, userID, readAt)
		}
		return nil
	}

	// Nothing changed: either already read (fine) or not the receiver.
	message, err := s.store.GetForParty(id, tenantID, userID)
	if err != nil {
		return err
	}
	if message == nil || message.ReceiverID == nil || *message.ReceiverID != userID {
		return domain.NewNotFound("message")
	}

	return nil
}

// Archive flags a message archived; either party may do it, independent
// of read state. Archived messages remain queryable until deleted.
func (s *MessageService) Archive(id uuid.UUID, tenantID, userID int64) error {
	updated, err := s.store.Archive(id, tenantID, userID)
	if err != nil {
		return err
	}
	if !updated {
		message, err := s.store.GetForParty(id, tenantID, userID)
		if err != nil {
			return err
		}
		if message == nil {
			return domain.NewNotFound("message")
		}
		// already archived; no-op
		return nil
	}

	s.publishToUser(tenantID, userID, models.EventMessageArchived, map[string]any{"message_id": id})
	return nil
}

// Delete hard-deletes a message; either party may do it. Irreversible.
func (s *MessageService) Delete(id uuid.UUID, tenantID, userID int64) error {
	message, err := s.store.GetForParty(id, tenantID, userID)
	if err != nil {
		return err
	}
	if message == nil {
		return domain.NewNotFound("message")
	}

	deleted, err := s.store.Delete(id, tenantID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.NewNotFound("message")
	}

	payload := map[string]any{"message_id": id}
	s.publishToUser(tenantID, message.SenderID, models.EventMessageDeleted, payload)
	if message.ReceiverID != nil && *message.ReceiverID != message.SenderID {
		s.publishToUser(tenantID, *message.ReceiverID, models.EventMessageDeleted, payload)
		s.invalidateUnread(tenantID, *message.ReceiverID)
	}

	return nil
}

// UnreadCount returns the caller's unread inbox count, cache first.
func (s *MessageService) UnreadCount(tenantID, userID int64) (int, error) {
	if s.cache != nil {
		if count, ok, err := s.cache.GetUnreadCount(tenantID, userID); err == nil && ok {
			return count, nil
		}
	}

	count, err := s.store.UnreadCount(tenantID, userID)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		_ = s.cache.SetUnreadCount(tenantID, userID, count)
	}

	return count, nil
}

// PushUnreadCount publishes a fresh unread count to the user's topic.
// This is the reconnect resynchronization mechanism: live events are
// best-effort, the count refresh is authoritative.
func (s *MessageService) PushUnreadCount(tenantID, userID int64) error {
	count, err := s.store.UnreadCount(tenantID, userID)
	if err != nil {
		return err
	}

	if s.cache != nil {
		_ = s.cache.SetUnreadCount(tenantID, userID, count)
	}

	s.publishToUser(tenantID, userID, models.EventUnreadCount, map[string]any{"count": count})
	return nil
}

func (s *MessageService) fanOutNew(message *models.Message) {
	if message.ReceiverID != nil {
		s.publishToUser(message.TenantID, *message.ReceiverID, models.EventNewMessage, message)
		s.invalidateUnread(message.TenantID, *message.ReceiverID)
	}

	if message.ConversationID != nil && s.members != nil {
		_ = s.members.Touch(*message.ConversationID)

		members, err := s.members.GetActiveMembers(*message.ConversationID)
		if err != nil {
			return
		}
		for _, m := range members {
			if m.UserID == message.SenderID || m.IsMuted {
				continue
			}
			if message.ReceiverID != nil && *message.ReceiverID == m.UserID {
				continue
			}
			s.publishToUser(message.TenantID, m.UserID, models.EventNewMessage, message)
		}
	}
}

func (s *MessageService) notifyRead(message *models.Message, readerID int64, readAt time.Time) {
	s.publishToUser(message.TenantID, message.SenderID, models.EventMessageRead, map[string]any{
		"message_id": message.ID,
		"reader_id":  readerID,
		"read_at":    readAt,
	})
	s.invalidateUnread(message.TenantID, readerID)
}

func (s *MessageService) publishToUser(tenantID, userID int64, event string, payload any) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.PublishNotification(models.Notification{
		Scope:    models.ScopeUser,
		UserID:   userID,
		TenantID: tenantID,
		Event:    event,
		Payload:  payload,
	})
}

func (s *MessageService) invalidateUnread(tenantID, userID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateUnreadCount(tenantID, userID)
	}
}
