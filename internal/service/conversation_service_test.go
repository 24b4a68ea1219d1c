package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/sekolahub/backend/internal/domain"
	"github.com/sekolahub/backend/internal/models"
)

// fakeConvStore is an in-memory ConversationStore with the same
// soft-deactivation semantics as the SQL repository.
type fakeConvStore struct {
	conversations map[uuid.UUID]*models.Conversation
	members       map[uuid.UUID][]*models.ConversationMember
}

func newFakeConvStore() *fakeConvStore {
	return &fakeConvStore{
		conversations: make(map[uuid.UUID]*models.Conversation),
		members:       make(map[uuid.UUID][]*models.ConversationMember),
	}
}

func (f *fakeConvStore) CreateWithMembers(conversation *models.Conversation, members []models.ConversationMember) error {
	cp := *conversation
	f.conversations[conversation.ID] = &cp
	for _, m := range members {
		mm := m
		f.members[conversation.ID] = append(f.members[conversation.ID], &mm)
	}
	return nil
}

func (f *fakeConvStore) GetByID(id uuid.UUID, tenantID int64) (*models.Conversation, error) {
	c, ok := f.conversations[id]
	if !ok || !c.IsActive || c.TenantID != tenantID {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConvStore) ListForUser(tenantID, userID int64) ([]models.Conversation, error) {
	var out []models.Conversation
	for id, c := range f.conversations {
		if !c.IsActive || c.TenantID != tenantID {
			continue
		}
		for _, m := range f.members[id] {
			if m.UserID == userID && m.IsActive {
				out = append(out, *c)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeConvStore) GetMember(conversationID uuid.UUID, userID int64) (*models.ConversationMember, error) {
	for _, m := range f.members[conversationID] {
		if m.UserID == userID && m.IsActive {
			mm := *m
			return &mm, nil
		}
	}
	return nil, nil
}

func (f *fakeConvStore) GetActiveMembers(conversationID uuid.UUID) ([]models.ConversationMember, error) {
	var out []models.ConversationMember
	for _, m := range f.members[conversationID] {
		if m.IsActive {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeConvStore) AddMember(member *models.ConversationMember) error {
	for _, m := range f.members[member.ConversationID] {
		if m.UserID == member.UserID {
			m.IsActive = true
			m.Role = member.Role
			return nil
		}
	}
	mm := *member
	f.members[member.ConversationID] = append(f.members[member.ConversationID], &mm)
	return nil
}

func (f *fakeConvStore) DeactivateMember(conversationID uuid.UUID, userID int64) error {
	for _, m := range f.members[conversationID] {
		if m.UserID == userID {
			m.IsActive = false
		}
	}
	return nil
}

func (f *fakeConvStore) SetType(conversationID uuid.UUID, convType string) error {
	if c, ok := f.conversations[conversationID]; ok {
		c.Type = convType
	}
	return nil
}

func (f *fakeConvStore) Update(conversation *models.Conversation) error {
	if c, ok := f.conversations[conversation.ID]; ok {
		c.Name = conversation.Name
		c.Description = conversation.Description
	}
	return nil
}

func (f *fakeConvStore) Deactivate(conversationID uuid.UUID, tenantID int64) error {
	if c, ok := f.conversations[conversationID]; ok && c.TenantID == tenantID {
		c.IsActive = false
	}
	for _, m := range f.members[conversationID] {
		m.IsActive = false
	}
	return nil
}

// fakeResolver resolves every id as a staff user.
type fakeResolver struct{}

func (fakeResolver) Resolve(tenantID, participantID int64) (*models.Participant, error) {
	return &models.Participant{
		ID:   participantID,
		Kind: models.ParticipantUser,
		Name: fmt.Sprintf("User %d", participantID),
	}, nil
}

// countingResolver tallies Resolve calls behind the per-request memo.
type countingResolver struct {
	calls int
}

func (c *countingResolver) Resolve(tenantID, participantID int64) (*models.Participant, error) {
	c.calls++
	return &models.Participant{
		ID:   participantID,
		Kind: models.ParticipantUser,
		Name: fmt.Sprintf("User %d", participantID),
	}, nil
}

const testTenant = int64(7)

func newTestConversationService() (*ConversationService, *fakeConvStore) {
	store := newFakeConvStore()
	return NewConversationService(store, fakeResolver{}), store
}

func mustCreate(t *testing.T, svc *ConversationService, creator int64, members ...int64) *models.Conversation {
	t.Helper()
	conversation, err := svc.Create(testTenant, creator, models.CreateConversationRequest{
		Name:    "homework help",
		Members: members,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return conversation
}

func TestConversationService_CreateDerivesType(t *testing.T) {
	svc, _ := newTestConversationService()

	direct := mustCreate(t, svc, 1, 2)
	if direct.Type != models.ConversationDirect {
		t.Errorf("two members: type = %q, want %q", direct.Type, models.ConversationDirect)
	}

	group := mustCreate(t, svc, 1, 2, 3)
	if group.Type != models.ConversationGroup {
		t.Errorf("three members: type = %q, want %q", group.Type, models.ConversationGroup)
	}
}

func TestConversationService_CreateCollapsesDuplicates(t *testing.T) {
	svc, _ := newTestConversationService()

	// Creator repeated in the member list plus one duplicate: only two
	// distinct participants, so still a direct conversation.
	conversation := mustCreate(t, svc, 1, 1, 2, 2)
	if len(conversation.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(conversation.Members))
	}
	if conversation.Type != models.ConversationDirect {
		t.Errorf("type = %q, want %q", conversation.Type, models.ConversationDirect)
	}
}

func TestConversationService_CreatorIsAdmin(t *testing.T) {
	svc, store := newTestConversationService()

	conversation := mustCreate(t, svc, 1, 2)

	member, _ := store.GetMember(conversation.ID, 1)
	if member == nil || member.Role != models.RoleAdmin {
		t.Fatalf("creator should be admin, got %+v", member)
	}
	other, _ := store.GetMember(conversation.ID, 2)
	if other == nil || other.Role != models.RoleMember {
		t.Fatalf("invitee should be a plain member, got %+v", other)
	}
}

func TestConversationService_CreateValidation(t *testing.T) {
	svc, _ := newTestConversationService()

	_, err := svc.Create(testTenant, 1, models.CreateConversationRequest{Name: "", Members: []int64{2}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty name: got %v, want validation error", err)
	}

	_, err = svc.Create(testTenant, 1, models.CreateConversationRequest{Name: "x", Members: nil})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("no members: got %v, want validation error", err)
	}
}

func TestConversationService_AddMembersUpgradesType(t *testing.T) {
	svc, _ := newTestConversationService()

	conversation := mustCreate(t, svc, 1, 2)

	upgraded, err := svc.AddMembers(conversation.ID, testTenant, 1, []int64{3})
	if err != nil {
		t.Fatalf("AddMembers failed: %v", err)
	}
	if upgraded.Type != models.ConversationGroup {
		t.Errorf("after third member: type = %q, want %q", upgraded.Type, models.ConversationGroup)
	}

	// Dropping back to two active members must not downgrade the type.
	if err := svc.RemoveMember(conversation.ID, testTenant, 1, 3); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	after, err := svc.FindOne(conversation.ID, testTenant, 1)
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if after.Type != models.ConversationGroup {
		t.Errorf("after removal: type = %q, want %q (no downgrade)", after.Type, models.ConversationGroup)
	}
}

func TestConversationService_AddMembersPermissions(t *testing.T) {
	svc, _ := newTestConversationService()

	conversation := mustCreate(t, svc, 1, 2)

	if _, err := svc.AddMembers(conversation.ID, testTenant, 2, []int64{3}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("plain member adding: got %v, want forbidden", err)
	}
	if _, err := svc.AddMembers(conversation.ID, testTenant, 99, []int64{3}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("non-member adding: got %v, want forbidden", err)
	}
	if _, err := svc.AddMembers(conversation.ID, testTenant, 1, []int64{2}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("all duplicates: got %v, want validation error", err)
	}
	if _, err := svc.AddMembers(uuid.New(), testTenant, 1, []int64{3}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown conversation: got %v, want not found", err)
	}
}

func TestConversationService_RemoveMember(t *testing.T) {
	svc, _ := newTestConversationService()

	conversation := mustCreate(t, svc, 1, 2, 3)

	// Self-removal never needs the admin role.
	if err := svc.RemoveMember(conversation.ID, testTenant, 3, 3); err != nil {
		t.Fatalf("self removal failed: %v", err)
	}

	// A plain member cannot remove someone else.
	if err := svc.RemoveMember(conversation.ID, testTenant, 2, 1); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("member removing admin: got %v, want forbidden", err)
	}

	// The admin can.
	if err := svc.RemoveMember(conversation.ID, testTenant, 1, 2); err != nil {
		t.Fatalf("admin removal failed: %v", err)
	}

	// A removed member no longer sees the conversation.
	if _, err := svc.FindOne(conversation.ID, testTenant, 2); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("removed member FindOne: got %v, want forbidden", err)
	}
}

func TestConversationService_ReAddReactivates(t *testing.T) {
	svc, _ := newTestConversationService()

	conversation := mustCreate(t, svc, 1, 2, 3)

	if err := svc.RemoveMember(conversation.ID, testTenant, 1, 3); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if _, err := svc.AddMembers(conversation.ID, testTenant, 1, []int64{3}); err != nil {
		t.Fatalf("re-add failed: %v", err)
	}

	if _, err := svc.FindOne(conversation.ID, testTenant, 3); err != nil {
		t.Errorf("re-added member FindOne: %v", err)
	}
}

func TestConversationService_UpdatePermissionsAndValidation(t *testing.T) {
	svc, _ := newTestConversationService()

	conversation := mustCreate(t, svc, 1, 2)

	name := "renamed"
	if _, err := svc.Update(conversation.ID, testTenant, 2, models.UpdateConversationRequest{Name: &name}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("member update: got %v, want forbidden", err)
	}

	empty := ""
	if _, err := svc.Update(conversation.ID, testTenant, 1, models.UpdateConversationRequest{Name: &empty}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty name: got %v, want validation error", err)
	}

	updated, err := svc.Update(conversation.ID, testTenant, 1, models.UpdateConversationRequest{Name: &name})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Name != "renamed" {
		t.Errorf("name = %q, want %q", updated.Name, "renamed")
	}
}

func TestConversationService_Delete(t *testing.T) {
	svc, _ := newTestConversationService()

	conversation := mustCreate(t, svc, 1, 2)

	if err := svc.Delete(conversation.ID, testTenant, 2); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("member delete: got %v, want forbidden", err)
	}
	if err := svc.Delete(conversation.ID, testTenant, 1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.FindOne(conversation.ID, testTenant, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("deleted conversation FindOne: got %v, want not found", err)
	}
}

func TestConversationService_FindAllResolvesEachUserOnce(t *testing.T) {
	store := newFakeConvStore()
	resolver := &countingResolver{}
	svc := NewConversationService(store, resolver)

	mustCreate(t, svc, 1, 2, 3)
	mustCreate(t, svc, 1, 2, 3)

	resolver.calls = 0
	conversations, err := svc.FindAll(testTenant, 1)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(conversations) != 2 {
		t.Fatalf("conversations = %d, want 2", len(conversations))
	}
	for _, conv := range conversations {
		if len(conv.Members) != 3 {
			t.Fatalf("members = %d, want 3", len(conv.Members))
		}
		for _, m := range conv.Members {
			if m.Name == "" {
				t.Fatal("member name not hydrated")
			}
		}
	}

	// Six membership rows, three distinct users: each user is resolved
	// once across both conversations.
	if resolver.calls != 3 {
		t.Errorf("resolver calls = %d, want 3", resolver.calls)
	}
}

func TestConversationService_TenantIsolation(t *testing.T) {
	svc, _ := newTestConversationService()

	conversation := mustCreate(t, svc, 1, 2)

	if _, err := svc.FindOne(conversation.ID, testTenant+1, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cross-tenant FindOne: got %v, want not found", err)
	}
}
