package permission

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service computes effective permissions, caching per user+channel results.
type Service struct {
	store Store
	cache *Cache
	log   zerolog.Logger
}

// NewService creates a permission service.
func NewService(store Store, cache *Cache, logger zerolog.Logger) *Service {
	return &Service{store: store, cache: cache, log: logger}
}

// serverMaskKey is the channel-ID component used to cache server-level masks.
// Channel IDs are UUIDv7, so the nil UUID cannot collide with a real channel.
var serverMaskKey = uuid.Nil

// BuildContext assembles everything Compute needs for one user, optionally
// scoped to a channel. Owners and administrators short-circuit before any
// override reads.
func (s *Service) BuildContext(ctx context.Context, userID uuid.UUID, channelID *uuid.UUID) (Context, error) {
	owner, err := s.store.Owner(ctx)
	if err != nil {
		return Context{}, err
	}
	if owner != nil && *owner == userID {
		return Context{IsMember: true, IsOwner: true}, nil
	}

	isMember, err := s.store.IsMember(ctx, userID)
	if err != nil {
		return Context{}, err
	}
	if !isMember {
		return Context{}, nil
	}

	entries, err := s.store.RolesForMember(ctx, userID)
	if err != nil {
		return Context{}, err
	}

	var base Permission
	var everyoneID uuid.UUID
	held := make(map[uuid.UUID]struct{}, len(entries))
	for _, e := range entries {
		base = base.Add(e.Permissions)
		if e.IsDefault {
			everyoneID = e.ID
			continue
		}
		held[e.ID] = struct{}{}
	}

	out := Context{IsMember: true, Base: base}
	if base.Has(Administrator) || channelID == nil {
		return out, nil
	}

	cats, err := s.store.ChannelCategories(ctx, []uuid.UUID{*channelID})
	if err != nil {
		return Context{}, err
	}
	categoryID, ok := cats[*channelID]
	if !ok {
		return Context{}, fmt.Errorf("channel %s: %w", *channelID, ErrUnknownChannel)
	}

	if categoryID != nil {
		catOverrides, err := s.store.CategoryOverrides(ctx, []uuid.UUID{*categoryID})
		if err != nil {
			return Context{}, err
		}
		out.Layers = append(out.Layers, collapseScope(catOverrides[*categoryID], everyoneID, held, userID)...)
	}

	chanOverrides, err := s.store.ChannelOverrides(ctx, []uuid.UUID{*channelID})
	if err != nil {
		return Context{}, err
	}
	out.Layers = append(out.Layers, collapseScope(chanOverrides[*channelID], everyoneID, held, userID)...)

	return out, nil
}

// BuildBatchContext assembles contexts for many channels in four database
// round trips: owner, member row, then the role/override/category reads
// issued concurrently, then category overrides for the categories that
// surfaced. Channels that do not exist are absent from the result.
func (s *Service) BuildBatchContext(ctx context.Context, userID uuid.UUID, channelIDs []uuid.UUID) (map[uuid.UUID]Context, error) {
	result := make(map[uuid.UUID]Context, len(channelIDs))
	if len(channelIDs) == 0 {
		return result, nil
	}

	owner, err := s.store.Owner(ctx)
	if err != nil {
		return nil, err
	}
	isMember, err := s.store.IsMember(ctx, userID)
	if err != nil {
		return nil, err
	}

	isOwner := owner != nil && *owner == userID
	if isOwner || !isMember {
		cats, err := s.store.ChannelCategories(ctx, channelIDs)
		if err != nil {
			return nil, err
		}
		for id := range cats {
			result[id] = Context{IsMember: isMember || isOwner, IsOwner: isOwner}
		}
		return result, nil
	}

	var (
		wg       sync.WaitGroup
		allRoles []RoleEntry
		heldIDs  []uuid.UUID
		chanOv   map[uuid.UUID][]Override
		chanCats map[uuid.UUID]*uuid.UUID
		errs     [4]error
	)
	wg.Add(4)
	go func() { defer wg.Done(); allRoles, errs[0] = s.store.AllRoles(ctx) }()
	go func() { defer wg.Done(); heldIDs, errs[1] = s.store.MemberRoleIDs(ctx, userID) }()
	go func() { defer wg.Done(); chanOv, errs[2] = s.store.ChannelOverrides(ctx, channelIDs) }()
	go func() { defer wg.Done(); chanCats, errs[3] = s.store.ChannelCategories(ctx, channelIDs) }()
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	held := make(map[uuid.UUID]struct{}, len(heldIDs))
	for _, id := range heldIDs {
		held[id] = struct{}{}
	}

	var base Permission
	var everyoneID uuid.UUID
	for _, r := range allRoles {
		if r.IsDefault {
			everyoneID = r.ID
			base = base.Add(r.Permissions)
			continue
		}
		if _, ok := held[r.ID]; ok {
			base = base.Add(r.Permissions)
		}
	}

	if base.Has(Administrator) {
		for id := range chanCats {
			result[id] = Context{IsMember: true, Base: base}
		}
		return result, nil
	}

	categorySet := make(map[uuid.UUID]struct{})
	for _, catID := range chanCats {
		if catID != nil {
			categorySet[*catID] = struct{}{}
		}
	}
	categoryIDs := make([]uuid.UUID, 0, len(categorySet))
	for id := range categorySet {
		categoryIDs = append(categoryIDs, id)
	}
	catOv, err := s.store.CategoryOverrides(ctx, categoryIDs)
	if err != nil {
		return nil, err
	}

	for id, catID := range chanCats {
		c := Context{IsMember: true, Base: base}
		if catID != nil {
			c.Layers = append(c.Layers, collapseScope(catOv[*catID], everyoneID, held, userID)...)
		}
		c.Layers = append(c.Layers, collapseScope(chanOv[id], everyoneID, held, userID)...)
		result[id] = c
	}
	return result, nil
}

// Resolve returns the effective mask for a user in a channel, consulting the
// cache first.
func (s *Service) Resolve(ctx context.Context, userID, channelID uuid.UUID) (Permission, error) {
	if perm, ok := s.cache.Get(userID, channelID); ok {
		return perm, nil
	}

	pctx, err := s.BuildContext(ctx, userID, &channelID)
	if err != nil {
		return 0, err
	}
	perm := Compute(pctx)
	s.cache.Set(userID, channelID, perm)
	return perm, nil
}

// ResolveServer returns the effective server-level mask for a user. Only the
// owner bypass and role union apply; no channel or category overrides.
func (s *Service) ResolveServer(ctx context.Context, userID uuid.UUID) (Permission, error) {
	if perm, ok := s.cache.Get(userID, serverMaskKey); ok {
		return perm, nil
	}

	pctx, err := s.BuildContext(ctx, userID, nil)
	if err != nil {
		return 0, err
	}
	perm := Compute(pctx)
	s.cache.Set(userID, serverMaskKey, perm)
	return perm, nil
}

// HasChannelPermission checks one bit for a user in a channel.
func (s *Service) HasChannelPermission(ctx context.Context, userID, channelID uuid.UUID, perm Permission) (bool, error) {
	effective, err := s.Resolve(ctx, userID, channelID)
	if err != nil {
		return false, err
	}
	return effective.Has(perm), nil
}

// HasServerPermission checks one bit for a user at the server level.
func (s *Service) HasServerPermission(ctx context.Context, userID uuid.UUID, perm Permission) (bool, error) {
	effective, err := s.ResolveServer(ctx, userID)
	if err != nil {
		return false, err
	}
	return effective.Has(perm), nil
}

// ChannelMasks computes effective masks for many channels at once and feeds
// the cache. The ready payload and membership-wide checks use this.
func (s *Service) ChannelMasks(ctx context.Context, userID uuid.UUID, channelIDs []uuid.UUID) (map[uuid.UUID]Permission, error) {
	contexts, err := s.BuildBatchContext(ctx, userID, channelIDs)
	if err != nil {
		return nil, err
	}
	masks := make(map[uuid.UUID]Permission, len(contexts))
	for id, c := range contexts {
		mask := Compute(c)
		masks[id] = mask
		s.cache.Set(userID, id, mask)
	}
	return masks, nil
}

// ResolveSharedItem returns the effective mask for a shared folder or file,
// applying overrides along the ancestor chain from the root-most folder down
// to the item.
func (s *Service) ResolveSharedItem(ctx context.Context, userID uuid.UUID, itemType SharedItemType, itemID uuid.UUID) (Permission, error) {
	owner, err := s.store.Owner(ctx)
	if err != nil {
		return 0, err
	}
	if owner != nil && *owner == userID {
		return AllPermissions, nil
	}

	isMember, err := s.store.IsMember(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !isMember {
		return 0, nil
	}

	entries, err := s.store.RolesForMember(ctx, userID)
	if err != nil {
		return 0, err
	}

	var base Permission
	var everyoneID uuid.UUID
	held := make(map[uuid.UUID]struct{}, len(entries))
	for _, e := range entries {
		base = base.Add(e.Permissions)
		if e.IsDefault {
			everyoneID = e.ID
			continue
		}
		held[e.ID] = struct{}{}
	}
	if base.Has(Administrator) {
		return AllPermissions, nil
	}

	chain, err := s.store.SharedChain(ctx, itemType, itemID)
	if err != nil {
		return 0, err
	}
	overrides, err := s.store.SharedOverrides(ctx, chain)
	if err != nil {
		return 0, err
	}

	pctx := Context{IsMember: true, Base: base}
	for _, ref := range chain {
		pctx.Layers = append(pctx.Layers, collapseScope(overrides[ref], everyoneID, held, userID)...)
	}
	return Compute(pctx), nil
}
