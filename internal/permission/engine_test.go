package permission

import (
	"testing"

	"github.com/google/uuid"
)

func TestComputeNonMemberGetsNothing(t *testing.T) {
	t.Parallel()

	got := Compute(Context{Base: AllPermissions, Layers: []Layer{{Allow: SendMessages}}})
	if got != 0 {
		t.Errorf("Compute() = %d, want 0 for non-member", got)
	}
}

func TestComputeOwnerGetsEverything(t *testing.T) {
	t.Parallel()

	got := Compute(Context{
		IsMember: true,
		IsOwner:  true,
		Layers:   []Layer{{Deny: AllPermissions}},
	})
	if got != AllPermissions {
		t.Errorf("Compute() = %d, want AllPermissions (%d)", got, AllPermissions)
	}
}

func TestComputeAdministratorSkipsLayers(t *testing.T) {
	t.Parallel()

	got := Compute(Context{
		IsMember: true,
		Base:     Administrator,
		Layers:   []Layer{{Deny: AllPermissions}},
	})
	if got != AllPermissions {
		t.Errorf("Compute() = %d, want AllPermissions", got)
	}
}

func TestComputeAllowWinsOverDenyInSameLayer(t *testing.T) {
	t.Parallel()

	got := Compute(Context{
		IsMember: true,
		Base:     ReadMessages,
		Layers:   []Layer{{Allow: SendMessages, Deny: SendMessages}},
	})
	if !got.Has(SendMessages) {
		t.Error("allow should win over deny within one layer")
	}
	if !got.Has(ReadMessages) {
		t.Error("untouched base bit should survive")
	}
}

func TestComputeLaterLayerWins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		layers []Layer
		want   bool
	}{
		{
			name:   "allow then deny removes",
			layers: []Layer{{Allow: SendMessages}, {Deny: SendMessages}},
			want:   false,
		},
		{
			name:   "deny then allow restores",
			layers: []Layer{{Deny: SendMessages}, {Allow: SendMessages}},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Compute(Context{IsMember: true, Layers: tt.layers})
			if got.Has(SendMessages) != tt.want {
				t.Errorf("Has(SendMessages) = %v, want %v", got.Has(SendMessages), tt.want)
			}
		})
	}
}

func TestCollapseScopeLayerOrder(t *testing.T) {
	t.Parallel()

	everyoneID := uuid.New()
	roleID := uuid.New()
	userID := uuid.New()
	held := map[uuid.UUID]struct{}{roleID: {}}

	overrides := []Override{
		{TargetType: TargetMember, TargetID: userID, Allow: ManageMessages},
		{TargetType: TargetRole, TargetID: everyoneID, Deny: SendMessages},
		{TargetType: TargetRole, TargetID: roleID, Allow: SendMessages},
	}

	layers := collapseScope(overrides, everyoneID, held, userID)
	if len(layers) != 3 {
		t.Fatalf("len(layers) = %d, want 3", len(layers))
	}

	if layers[0].Deny != SendMessages {
		t.Errorf("layer 0 (everyone) deny = %d, want SendMessages", layers[0].Deny)
	}
	if layers[1].Allow != SendMessages {
		t.Errorf("layer 1 (roles) allow = %d, want SendMessages", layers[1].Allow)
	}
	if layers[2].Allow != ManageMessages {
		t.Errorf("layer 2 (member) allow = %d, want ManageMessages", layers[2].Allow)
	}
}

func TestCollapseScopeUnionsHeldRoles(t *testing.T) {
	t.Parallel()

	everyoneID := uuid.New()
	role1 := uuid.New()
	role2 := uuid.New()
	userID := uuid.New()
	held := map[uuid.UUID]struct{}{role1: {}, role2: {}}

	overrides := []Override{
		{TargetType: TargetRole, TargetID: role1, Allow: SendMessages, Deny: AttachFiles},
		{TargetType: TargetRole, TargetID: role2, Allow: AddReactions, Deny: SendMessages},
	}

	layers := collapseScope(overrides, everyoneID, held, userID)
	if len(layers) != 1 {
		t.Fatalf("len(layers) = %d, want 1", len(layers))
	}

	wantAllow := SendMessages | AddReactions
	wantDeny := AttachFiles | SendMessages
	if layers[0].Allow != wantAllow {
		t.Errorf("allow = %d, want %d", layers[0].Allow, wantAllow)
	}
	if layers[0].Deny != wantDeny {
		t.Errorf("deny = %d, want %d", layers[0].Deny, wantDeny)
	}

	// The union lands in a single layer, so an allow from one role beats a
	// deny from another.
	got := Compute(Context{IsMember: true, Layers: layers})
	if !got.Has(SendMessages) {
		t.Error("SendMessages should survive the role union")
	}
}

func TestCollapseScopeIgnoresForeignTargets(t *testing.T) {
	t.Parallel()

	everyoneID := uuid.New()
	userID := uuid.New()

	overrides := []Override{
		{TargetType: TargetRole, TargetID: uuid.New(), Allow: AllPermissions},
		{TargetType: TargetMember, TargetID: uuid.New(), Allow: AllPermissions},
	}

	layers := collapseScope(overrides, everyoneID, map[uuid.UUID]struct{}{}, userID)
	if len(layers) != 0 {
		t.Errorf("len(layers) = %d, want 0 for overrides targeting nobody relevant", len(layers))
	}
}

func TestPermissionBitHelpers(t *testing.T) {
	t.Parallel()

	p := ReadMessages | SendMessages
	if !p.Has(ReadMessages) {
		t.Error("Has(ReadMessages) = false, want true")
	}
	if p.Has(ManageRoles) {
		t.Error("Has(ManageRoles) = true, want false")
	}
	if got := p.Add(ManageRoles); !got.Has(ManageRoles) {
		t.Error("Add(ManageRoles) did not set the bit")
	}
	if got := p.Remove(SendMessages); got.Has(SendMessages) {
		t.Error("Remove(SendMessages) did not clear the bit")
	}
	if !AllPermissions.Has(ManageFiles) {
		t.Error("AllPermissions should contain every defined bit")
	}
}
