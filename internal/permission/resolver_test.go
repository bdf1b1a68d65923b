package permission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// fakeStore implements Store from in-memory fixtures and counts calls so
// tests can assert the batch path's query discipline.
type fakeStore struct {
	owner       *uuid.UUID
	members     map[uuid.UUID]bool
	roles       []RoleEntry
	memberRoles map[uuid.UUID][]uuid.UUID
	channels    map[uuid.UUID]*uuid.UUID
	channelOv   map[uuid.UUID][]Override
	categoryOv  map[uuid.UUID][]Override
	chain       []SharedRef
	chainErr    error
	sharedOv    map[SharedRef][]Override
	failWith    error

	calls map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		members:     make(map[uuid.UUID]bool),
		memberRoles: make(map[uuid.UUID][]uuid.UUID),
		channels:    make(map[uuid.UUID]*uuid.UUID),
		channelOv:   make(map[uuid.UUID][]Override),
		categoryOv:  make(map[uuid.UUID][]Override),
		sharedOv:    make(map[SharedRef][]Override),
		calls:       make(map[string]int),
	}
}

func (s *fakeStore) count(name string) { s.calls[name]++ }

func (s *fakeStore) Owner(_ context.Context) (*uuid.UUID, error) {
	s.count("Owner")
	return s.owner, s.failWith
}

func (s *fakeStore) IsMember(_ context.Context, userID uuid.UUID) (bool, error) {
	s.count("IsMember")
	return s.members[userID], s.failWith
}

func (s *fakeStore) RolesForMember(_ context.Context, userID uuid.UUID) ([]RoleEntry, error) {
	s.count("RolesForMember")
	if s.failWith != nil {
		return nil, s.failWith
	}
	held := make(map[uuid.UUID]struct{})
	for _, id := range s.memberRoles[userID] {
		held[id] = struct{}{}
	}
	var out []RoleEntry
	for _, r := range s.roles {
		if r.IsDefault {
			out = append(out, r)
			continue
		}
		if _, ok := held[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) AllRoles(_ context.Context) ([]RoleEntry, error) {
	s.count("AllRoles")
	return s.roles, s.failWith
}

func (s *fakeStore) MemberRoleIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	s.count("MemberRoleIDs")
	return s.memberRoles[userID], s.failWith
}

func (s *fakeStore) ChannelCategories(_ context.Context, channelIDs []uuid.UUID) (map[uuid.UUID]*uuid.UUID, error) {
	s.count("ChannelCategories")
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := make(map[uuid.UUID]*uuid.UUID)
	for _, id := range channelIDs {
		if cat, ok := s.channels[id]; ok {
			out[id] = cat
		}
	}
	return out, nil
}

func (s *fakeStore) ChannelOverrides(_ context.Context, channelIDs []uuid.UUID) (map[uuid.UUID][]Override, error) {
	s.count("ChannelOverrides")
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := make(map[uuid.UUID][]Override)
	for _, id := range channelIDs {
		if ov, ok := s.channelOv[id]; ok {
			out[id] = ov
		}
	}
	return out, nil
}

func (s *fakeStore) CategoryOverrides(_ context.Context, categoryIDs []uuid.UUID) (map[uuid.UUID][]Override, error) {
	s.count("CategoryOverrides")
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := make(map[uuid.UUID][]Override)
	for _, id := range categoryIDs {
		if ov, ok := s.categoryOv[id]; ok {
			out[id] = ov
		}
	}
	return out, nil
}

func (s *fakeStore) SharedChain(_ context.Context, _ SharedItemType, _ uuid.UUID) ([]SharedRef, error) {
	s.count("SharedChain")
	if s.chainErr != nil {
		return nil, s.chainErr
	}
	return s.chain, s.failWith
}

func (s *fakeStore) SharedOverrides(_ context.Context, refs []SharedRef) (map[SharedRef][]Override, error) {
	s.count("SharedOverrides")
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := make(map[SharedRef][]Override)
	for _, ref := range refs {
		if ov, ok := s.sharedOv[ref]; ok {
			out[ref] = ov
		}
	}
	return out, nil
}

func newTestService(st Store) *Service {
	return NewService(st, NewCache(time.Minute), zerolog.Nop())
}

func TestResolveOwnerBypass(t *testing.T) {
	ownerID := uuid.New()
	channelID := uuid.New()

	st := newFakeStore()
	st.owner = &ownerID
	st.channels[channelID] = nil
	svc := newTestService(st)

	perm, err := svc.Resolve(context.Background(), ownerID, channelID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if perm != AllPermissions {
		t.Errorf("owner mask = %d, want AllPermissions (%d)", perm, AllPermissions)
	}
}

func TestResolveNonMemberGetsZero(t *testing.T) {
	channelID := uuid.New()

	st := newFakeStore()
	st.channels[channelID] = nil
	svc := newTestService(st)

	perm, err := svc.Resolve(context.Background(), uuid.New(), channelID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if perm != 0 {
		t.Errorf("non-member mask = %d, want 0", perm)
	}
}

func TestResolveRoleUnion(t *testing.T) {
	userID := uuid.New()
	channelID := uuid.New()
	everyone := uuid.New()
	role1 := uuid.New()
	role2 := uuid.New()

	st := newFakeStore()
	st.members[userID] = true
	st.channels[channelID] = nil
	st.roles = []RoleEntry{
		{ID: everyone, Permissions: ReadMessages, IsDefault: true},
		{ID: role1, Permissions: SendMessages},
		{ID: role2, Permissions: AddReactions},
	}
	st.memberRoles[userID] = []uuid.UUID{role1, role2}
	svc := newTestService(st)

	perm, err := svc.Resolve(context.Background(), userID, channelID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := ReadMessages | SendMessages | AddReactions
	if perm != want {
		t.Errorf("mask = %d, want %d", perm, want)
	}
}

func TestResolveAdministratorRole(t *testing.T) {
	userID := uuid.New()
	channelID := uuid.New()
	everyone := uuid.New()
	adminRole := uuid.New()

	st := newFakeStore()
	st.members[userID] = true
	st.channels[channelID] = nil
	st.roles = []RoleEntry{
		{ID: everyone, Permissions: ReadMessages, IsDefault: true},
		{ID: adminRole, Permissions: Administrator},
	}
	st.memberRoles[userID] = []uuid.UUID{adminRole}
	st.channelOv[channelID] = []Override{
		{TargetType: TargetRole, TargetID: everyone, Deny: AllPermissions},
	}
	svc := newTestService(st)

	perm, err := svc.Resolve(context.Background(), userID, channelID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if perm != AllPermissions {
		t.Errorf("administrator mask = %d, want AllPermissions", perm)
	}
}

func TestResolveCategoryDenyChannelAllow(t *testing.T) {
	userID := uuid.New()
	channelID := uuid.New()
	categoryID := uuid.New()
	everyone := uuid.New()
	roleID := uuid.New()

	st := newFakeStore()
	st.members[userID] = true
	st.channels[channelID] = &categoryID
	st.roles = []RoleEntry{
		{ID: everyone, Permissions: ReadMessages | SendMessages, IsDefault: true},
		{ID: roleID},
	}
	st.memberRoles[userID] = []uuid.UUID{roleID}
	st.categoryOv[categoryID] = []Override{
		{TargetType: TargetRole, TargetID: roleID, Deny: SendMessages},
	}
	st.channelOv[channelID] = []Override{
		{TargetType: TargetRole, TargetID: roleID, Allow: SendMessages},
	}
	svc := newTestService(st)

	perm, err := svc.Resolve(context.Background(), userID, channelID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !perm.Has(SendMessages) {
		t.Error("channel allow should restore a category deny")
	}
	if !perm.Has(ReadMessages) {
		t.Error("unrelated base bit should survive")
	}
}

func TestResolveMemberOverrideBeatsRoleOverride(t *testing.T) {
	userID := uuid.New()
	channelID := uuid.New()
	everyone := uuid.New()
	roleID := uuid.New()

	st := newFakeStore()
	st.members[userID] = true
	st.channels[channelID] = nil
	st.roles = []RoleEntry{
		{ID: everyone, Permissions: ReadMessages, IsDefault: true},
		{ID: roleID},
	}
	st.memberRoles[userID] = []uuid.UUID{roleID}
	st.channelOv[channelID] = []Override{
		{TargetType: TargetRole, TargetID: roleID, Deny: SendMessages},
		{TargetType: TargetMember, TargetID: userID, Allow: SendMessages},
	}
	svc := newTestService(st)

	perm, err := svc.Resolve(context.Background(), userID, channelID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !perm.Has(SendMessages) {
		t.Error("member override should beat the role override in the same scope")
	}
}

func TestResolveEveryoneOverrideAppliesFirst(t *testing.T) {
	userID := uuid.New()
	channelID := uuid.New()
	everyone := uuid.New()
	roleID := uuid.New()

	st := newFakeStore()
	st.members[userID] = true
	st.channels[channelID] = nil
	st.roles = []RoleEntry{
		{ID: everyone, Permissions: ReadMessages | SendMessages, IsDefault: true},
		{ID: roleID},
	}
	st.memberRoles[userID] = []uuid.UUID{roleID}
	st.channelOv[channelID] = []Override{
		{TargetType: TargetRole, TargetID: everyone, Deny: SendMessages},
		{TargetType: TargetRole, TargetID: roleID, Allow: SendMessages},
	}
	svc := newTestService(st)

	perm, err := svc.Resolve(context.Background(), userID, channelID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !perm.Has(SendMessages) {
		t.Error("a held role's allow should restore the everyone deny")
	}
}

func TestResolveUnknownChannel(t *testing.T) {
	userID := uuid.New()

	st := newFakeStore()
	st.members[userID] = true
	st.roles = []RoleEntry{{ID: uuid.New(), Permissions: ReadMessages, IsDefault: true}}
	svc := newTestService(st)

	_, err := svc.Resolve(context.Background(), userID, uuid.New())
	if !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("Resolve() error = %v, want ErrUnknownChannel", err)
	}
}

func TestResolveCacheHitSkipsStore(t *testing.T) {
	userID := uuid.New()
	channelID := uuid.New()

	st := newFakeStore()
	svc := newTestService(st)
	svc.cache.Set(userID, channelID, ReadMessages)

	perm, err := svc.Resolve(context.Background(), userID, channelID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if perm != ReadMessages {
		t.Errorf("mask = %d, want ReadMessages", perm)
	}
	if st.calls["Owner"] != 0 {
		t.Error("cache hit should not touch the store")
	}
}

func TestResolveServerSkipsChannelReads(t *testing.T) {
	userID := uuid.New()
	everyone := uuid.New()

	st := newFakeStore()
	st.members[userID] = true
	st.roles = []RoleEntry{{ID: everyone, Permissions: ReadMessages | CreateInvites, IsDefault: true}}
	svc := newTestService(st)

	perm, err := svc.ResolveServer(context.Background(), userID)
	if err != nil {
		t.Fatalf("ResolveServer() error = %v", err)
	}
	if perm != ReadMessages|CreateInvites {
		t.Errorf("mask = %d, want %d", perm, ReadMessages|CreateInvites)
	}
	if st.calls["ChannelCategories"] != 0 || st.calls["ChannelOverrides"] != 0 {
		t.Error("server-level resolve should not read channel data")
	}
}

func TestBuildBatchContextQueryDiscipline(t *testing.T) {
	userID := uuid.New()
	everyone := uuid.New()
	roleID := uuid.New()
	categoryID := uuid.New()
	ch1 := uuid.New()
	ch2 := uuid.New()
	ch3 := uuid.New()

	st := newFakeStore()
	st.members[userID] = true
	st.roles = []RoleEntry{
		{ID: everyone, Permissions: ReadMessages | SendMessages, IsDefault: true},
		{ID: roleID, Permissions: ManageMessages},
	}
	st.memberRoles[userID] = []uuid.UUID{roleID}
	st.channels[ch1] = &categoryID
	st.channels[ch2] = &categoryID
	st.channels[ch3] = nil
	st.categoryOv[categoryID] = []Override{
		{TargetType: TargetRole, TargetID: everyone, Deny: SendMessages},
	}
	st.channelOv[ch2] = []Override{
		{TargetType: TargetMember, TargetID: userID, Allow: SendMessages},
	}
	svc := newTestService(st)

	contexts, err := svc.BuildBatchContext(context.Background(), userID, []uuid.UUID{ch1, ch2, ch3})
	if err != nil {
		t.Fatalf("BuildBatchContext() error = %v", err)
	}
	if len(contexts) != 3 {
		t.Fatalf("len(contexts) = %d, want 3", len(contexts))
	}

	// One call per store read regardless of the channel count.
	for _, name := range []string{"Owner", "IsMember", "AllRoles", "MemberRoleIDs", "ChannelOverrides", "ChannelCategories", "CategoryOverrides"} {
		if st.calls[name] != 1 {
			t.Errorf("calls[%s] = %d, want 1", name, st.calls[name])
		}
	}

	if mask := Compute(contexts[ch1]); mask.Has(SendMessages) {
		t.Error("ch1 should lose SendMessages to the category everyone deny")
	}
	if mask := Compute(contexts[ch2]); !mask.Has(SendMessages) {
		t.Error("ch2 member override should restore SendMessages")
	}
	if mask := Compute(contexts[ch3]); !mask.Has(SendMessages) {
		t.Error("ch3 has no overrides and should keep SendMessages")
	}
}

func TestBuildBatchContextMatchesSingle(t *testing.T) {
	userID := uuid.New()
	everyone := uuid.New()
	roleID := uuid.New()
	categoryID := uuid.New()
	channelID := uuid.New()

	st := newFakeStore()
	st.members[userID] = true
	st.roles = []RoleEntry{
		{ID: everyone, Permissions: ReadMessages | SendMessages | AttachFiles, IsDefault: true},
		{ID: roleID, Permissions: AddReactions},
	}
	st.memberRoles[userID] = []uuid.UUID{roleID}
	st.channels[channelID] = &categoryID
	st.categoryOv[categoryID] = []Override{
		{TargetType: TargetRole, TargetID: roleID, Deny: AttachFiles},
	}
	st.channelOv[channelID] = []Override{
		{TargetType: TargetRole, TargetID: everyone, Deny: SendMessages},
	}
	svc := newTestService(st)

	single, err := svc.BuildContext(context.Background(), userID, &channelID)
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	batch, err := svc.BuildBatchContext(context.Background(), userID, []uuid.UUID{channelID})
	if err != nil {
		t.Fatalf("BuildBatchContext() error = %v", err)
	}

	if got, want := Compute(batch[channelID]), Compute(single); got != want {
		t.Errorf("batch mask = %d, single mask = %d, want equal", got, want)
	}
}

func TestBuildBatchContextSkipsMissingChannels(t *testing.T) {
	userID := uuid.New()
	known := uuid.New()

	st := newFakeStore()
	st.members[userID] = true
	st.roles = []RoleEntry{{ID: uuid.New(), Permissions: ReadMessages, IsDefault: true}}
	st.channels[known] = nil
	svc := newTestService(st)

	contexts, err := svc.BuildBatchContext(context.Background(), userID, []uuid.UUID{known, uuid.New()})
	if err != nil {
		t.Fatalf("BuildBatchContext() error = %v", err)
	}
	if len(contexts) != 1 {
		t.Errorf("len(contexts) = %d, want 1 (unknown channel skipped)", len(contexts))
	}
	if _, ok := contexts[known]; !ok {
		t.Error("known channel missing from batch result")
	}
}

func TestResolveSharedItemChainOrder(t *testing.T) {
	userID := uuid.New()
	everyone := uuid.New()
	rootID := uuid.New()
	folderID := uuid.New()
	fileID := uuid.New()

	root := SharedRef{Type: SharedFolder, ID: rootID}
	folder := SharedRef{Type: SharedFolder, ID: folderID}
	file := SharedRef{Type: SharedFile, ID: fileID}

	st := newFakeStore()
	st.members[userID] = true
	st.roles = []RoleEntry{{ID: everyone, Permissions: BrowseFiles, IsDefault: true}}
	st.chain = []SharedRef{root, folder, file}
	st.sharedOv[root] = []Override{
		{TargetType: TargetRole, TargetID: everyone, Deny: BrowseFiles},
	}
	st.sharedOv[file] = []Override{
		{TargetType: TargetMember, TargetID: userID, Allow: BrowseFiles},
	}
	svc := newTestService(st)

	perm, err := svc.ResolveSharedItem(context.Background(), userID, SharedFile, fileID)
	if err != nil {
		t.Fatalf("ResolveSharedItem() error = %v", err)
	}
	if !perm.Has(BrowseFiles) {
		t.Error("file-level allow should restore the root-level deny")
	}
}

func TestResolveSharedItemNonMember(t *testing.T) {
	st := newFakeStore()
	st.chain = []SharedRef{{Type: SharedFolder, ID: uuid.New()}}
	svc := newTestService(st)

	perm, err := svc.ResolveSharedItem(context.Background(), uuid.New(), SharedFolder, uuid.New())
	if err != nil {
		t.Fatalf("ResolveSharedItem() error = %v", err)
	}
	if perm != 0 {
		t.Errorf("non-member shared mask = %d, want 0", perm)
	}
}

func TestResolveSharedItemUnknown(t *testing.T) {
	userID := uuid.New()

	st := newFakeStore()
	st.members[userID] = true
	st.roles = []RoleEntry{{ID: uuid.New(), Permissions: BrowseFiles, IsDefault: true}}
	st.chainErr = ErrUnknownItem
	svc := newTestService(st)

	_, err := svc.ResolveSharedItem(context.Background(), userID, SharedFile, uuid.New())
	if !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("ResolveSharedItem() error = %v, want ErrUnknownItem", err)
	}
}

func TestResolveStoreErrorPropagates(t *testing.T) {
	st := newFakeStore()
	st.failWith = errors.New("db connection lost")
	svc := newTestService(st)

	if _, err := svc.Resolve(context.Background(), uuid.New(), uuid.New()); err == nil {
		t.Fatal("Resolve() should propagate store errors")
	}
}
