package service

import (
	"github.com/google/uuid"
	"github.com/sekolahub/backend/internal/domain"
	"github.com/sekolahub/backend/internal/models"
	"github.com/sekolahub/backend/internal/repository"
)

// ConversationStore is the persistence surface the service drives.
type ConversationStore interface {
	CreateWithMembers(conversation *models.Conversation, members []models.ConversationMember) error
	GetByID(id uuid.UUID, tenantID int64) (*models.Conversation, error)
	ListForUser(tenantID, userID int64) ([]models.Conversation, error)
	GetMember(conversationID uuid.UUID, userID int64) (*models.ConversationMember, error)
	GetActiveMembers(conversationID uuid.UUID) ([]models.ConversationMember, error)
	AddMember(member *models.ConversationMember) error
	DeactivateMember(conversationID uuid.UUID, userID int64) error
	SetType(conversationID uuid.UUID, convType string) error
	Update(conversation *models.Conversation) error
	Deactivate(conversationID uuid.UUID, tenantID int64) error
}

// ParticipantResolver maps opaque numeric ids to display identities.
type ParticipantResolver interface {
	Resolve(tenantID, participantID int64) (*models.Participant, error)
}

type ConversationService struct {
	store    ConversationStore
	resolver ParticipantResolver
}

func NewConversationService(store ConversationStore, resolver ParticipantResolver) *ConversationService {
	return &ConversationService{store: store, resolver: resolver}
}

// Create validates and persists a conversation with its initial members.
// The creator is force-included as admin; duplicate member ids collapse.
// The type derives from the final member count.
func (s *ConversationService) Create(tenantID, creatorID int64, req models.CreateConversationRequest) (*models.Conversation, error) {
	if req.Name == "" {
		return nil, domain.NewValidation("conversation name is required")
	}
	if len(req.Members) == 0 {
		return nil, domain.NewValidation("at least one member is required")
	}

	memberIDs := []int64{creatorID}
	seen := map[int64]struct{}{creatorID: {}}
	for _, id := range req.Members {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		memberIDs = append(memberIDs, id)
	}

	conversation := &models.Conversation{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Type:        models.ConversationTypeFor(len(memberIDs)),
		CreatedBy:   creatorID,
		IsActive:    true,
	}

	members := make([]models.ConversationMember, 0, len(memberIDs))
	for _, id := range memberIDs {
		role := models.RoleMember
		if id == creatorID {
			role = models.RoleAdmin
		}
		members = append(members, models.ConversationMember{
			ID:             uuid.New(),
			ConversationID: conversation.ID,
			UserID:         id,
			Role:           role,
			IsActive:       true,
		})
	}

	if err := s.store.CreateWithMembers(conversation, members); err != nil {
		return nil, err
	}

	return s.FindOne(conversation.ID, tenantID, creatorID)
}

// FindAll lists the caller's active conversations, newest-updated first,
// with member display names resolved.
func (s *ConversationService) FindAll(tenantID, userID int64) ([]models.Conversation, error) {
	conversations, err := s.store.ListForUser(tenantID, userID)
	if err != nil {
		return nil, err
	}

	// One memoizing resolver for the whole listing; users appearing in
	// several conversations are looked up once.
	resolver := repository.NewResolver(s.resolver, tenantID)
	for i := range conversations {
		members, err := s.hydratedMembers(conversations[i].ID, resolver)
		if err != nil {
			return nil, err
		}
		conversations[i].Members = members
	}

	return conversations, nil
}

// FindOne loads a conversation the caller is an active member of.
func (s *ConversationService) FindOne(id uuid.UUID, tenantID, userID int64) (*models.Conversation, error) {
	conversation, err := s.store.GetByID(id, tenantID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, domain.NewNotFound("conversation")
	}

	member, err := s.store.GetMember(id, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.NewForbidden("membership")
	}

	members, err := s.hydratedMembers(id, repository.NewResolver(s.resolver, tenantID))
	if err != nil {
		return nil, err
	}
	conversation.Members = members

	return conversation, nil
}

// AddMembers adds new members to a conversation; admin only. Members that
// are already active are silently filtered out. Crossing two active
// members upgrades a direct conversation to a group; it never downgrades.
func (s *ConversationService) AddMembers(id uuid.UUID, tenantID, callerID int64, newMemberIDs []int64) (*models.Conversation, error) {
	conversation, _, err := s.requireAdmin(id, tenantID, callerID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetActiveMembers(id)
	if err != nil {
		return nil, err
	}
	present := make(map[int64]struct{}, len(existing))
	for _, m := range existing {
		present[m.UserID] = struct{}{}
	}

	toAdd := []int64{}
	for _, uid := range newMemberIDs {
		if _, ok := present[uid]; ok {
			continue
		}
		present[uid] = struct{}{}
		toAdd = append(toAdd, uid)
	}
	if len(toAdd) == 0 {
		return nil, domain.NewValidation("no new members to add")
	}

	for _, uid := range toAdd {
		m := &models.ConversationMember{
			ID:             uuid.New(),
			ConversationID: id,
			UserID:         uid,
			Role:           models.RoleMember,
			IsActive:       true,
		}
		if err := s.store.AddMember(m); err != nil {
			return nil, err
		}
	}

	total := len(existing) + len(toAdd)
	if total > 2 && conversation.Type == models.ConversationDirect {
		if err := s.store.SetType(id, models.ConversationGroup); err != nil {
			return nil, err
		}
	}

	return s.FindOne(id, tenantID, callerID)
}

// RemoveMember deactivates a membership. A caller may always remove
// themselves; removing someone else requires the admin role.
func (s *ConversationService) RemoveMember(id uuid.UUID, tenantID, callerID, targetUserID int64) error {
	conversation, err := s.store.GetByID(id, tenantID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return domain.NewNotFound("conversation")
	}

	caller, err := s.store.GetMember(id, callerID)
	if err != nil {
		return err
	}
	if caller == nil {
		return domain.NewForbidden("membership")
	}

	if targetUserID != callerID && caller.Role != models.RoleAdmin {
		return domain.NewForbidden("admin")
	}

	return s.store.DeactivateMember(id, targetUserID)
}

// Update applies a partial name/description change; admin only.
func (s *ConversationService) Update(id uuid.UUID, tenantID, callerID int64, req models.UpdateConversationRequest) (*models.Conversation, error) {
	conversation, _, err := s.requireAdmin(id, tenantID, callerID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, domain.NewValidation("conversation name is required")
		}
		conversation.Name = *req.Name
	}
	if req.Description != nil {
		conversation.Description = req.Description
	}

	if err := s.store.Update(conversation); err != nil {
		return nil, err
	}

	return s.FindOne(id, tenantID, callerID)
}

// Delete soft-deactivates the conversation and every membership; admin
// only. History is preserved, nothing is physically removed.
func (s *ConversationService) Delete(id uuid.UUID, tenantID, callerID int64) error {
	if _, _, err := s.requireAdmin(id, tenantID, callerID); err != nil {
		return err
	}

	return s.store.Deactivate(id, tenantID)
}

func (s *ConversationService) requireAdmin(id uuid.UUID, tenantID, callerID int64) (*models.Conversation, *models.ConversationMember, error) {
	conversation, err := s.store.GetByID(id, tenantID)
	if err != nil {
		return nil, nil, err
	}
	if conversation == nil {
		return nil, nil, domain.NewNotFound("conversation")
	}

	member, err := s.store.GetMember(id, callerID)
	if err != nil {
		return nil, nil, err
	}
	if member == nil {
		return nil, nil, domain.NewForbidden("membership")
	}
	if member.Role != models.RoleAdmin {
		return nil, nil, domain.NewForbidden("admin")
	}

	return conversation, member, nil
}

func (s *ConversationService) hydratedMembers(conversationID uuid.UUID, resolver *repository.Resolver) ([]models.ConversationMember, error) {
	members, err := s.store.GetActiveMembers(conversationID)
	if err != nil {
		return nil, err
	}

	for i := range members {
		p, err := resolver.Resolve(members[i].UserID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			members[i].Name = p.Name
		}
	}

	return members, nil
}
