package permission

import "github.com/google/uuid"

// TargetType identifies whether an override row targets a role or a single
// member.
type TargetType string

const (
	TargetRole   TargetType = "role"
	TargetMember TargetType = "member"
)

// Override is one allow/deny row scoped to a category, channel, or shared
// item.
type Override struct {
	TargetType TargetType
	TargetID   uuid.UUID
	Allow      Permission
	Deny       Permission
}

// Layer is one collapsed override step. Compute applies deny before allow, so
// an allow in a layer wins over a deny in the same layer.
type Layer struct {
	Allow Permission
	Deny  Permission
}

// Context is everything Compute needs to produce an effective mask. Building
// one requires I/O; Compute itself is pure.
type Context struct {
	IsMember bool
	IsOwner  bool
	Base     Permission
	Layers   []Layer
}

// Compute folds a context into an effective permission mask. Non-members get
// nothing. Owners and administrators get every bit and skip the override
// layers entirely. Otherwise each layer is applied to the running mask as
// (mask &^ deny) | allow, in layer order.
func Compute(ctx Context) Permission {
	if !ctx.IsMember {
		return 0
	}
	if ctx.IsOwner {
		return AllPermissions
	}
	base := ctx.Base
	if base.Has(Administrator) {
		return AllPermissions
	}
	for _, l := range ctx.Layers {
		base = base.Remove(l.Deny).Add(l.Allow)
	}
	return base
}

// collapseScope reduces the override rows of a single scope into ordered
// layers: the default role's override first, then the union of the member's
// other role overrides, then the member-specific override. Denies and allows
// are OR'd separately within the role union, so one role's allow survives
// another role's deny at that step.
func collapseScope(overrides []Override, everyoneRoleID uuid.UUID, heldRoles map[uuid.UUID]struct{}, userID uuid.UUID) []Layer {
	var everyone, roles, member Layer
	var hasEveryone, hasRoles, hasMember bool

	for _, o := range overrides {
		switch o.TargetType {
		case TargetRole:
			if o.TargetID == everyoneRoleID {
				everyone.Allow |= o.Allow
				everyone.Deny |= o.Deny
				hasEveryone = true
				continue
			}
			if _, held := heldRoles[o.TargetID]; held {
				roles.Allow |= o.Allow
				roles.Deny |= o.Deny
				hasRoles = true
			}
		case TargetMember:
			if o.TargetID == userID {
				member.Allow |= o.Allow
				member.Deny |= o.Deny
				hasMember = true
			}
		}
	}

	layers := make([]Layer, 0, 3)
	if hasEveryone {
		layers = append(layers, everyone)
	}
	if hasRoles {
		layers = append(layers, roles)
	}
	if hasMember {
		layers = append(layers, member)
	}
	return layers
}
