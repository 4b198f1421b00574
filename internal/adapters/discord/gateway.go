package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"fangate/internal/platform"
	logx "fangate/pkg/logx"
)

const membersPageSize = 1000

func (a *Adapter) ResolveRole(ctx context.Context, guildID, roleID string) (platform.Role, error) {
	if r, err := a.session.State.Role(guildID, roleID); err == nil && r != nil {
		return platform.Role{ID: r.ID, Name: r.Name}, nil
	}
	roles, err := a.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Role{}, fmt.Errorf("%w: %s", platform.ErrRoleNotFound, roleID)
	}
	for _, r := range roles {
		if r.ID == roleID {
			return platform.Role{ID: r.ID, Name: r.Name}, nil
		}
	}
	return platform.Role{}, fmt.Errorf("%w: %s", platform.ErrRoleNotFound, roleID)
}

func (a *Adapter) ResolveChannelGuild(ctx context.Context, channelID string) (string, error) {
	if ch, err := a.session.State.Channel(channelID); err == nil && ch.GuildID != "" {
		return ch.GuildID, nil
	}
	ch, err := a.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil || ch.GuildID == "" {
		return "", fmt.Errorf("%w: channel %s", platform.ErrGuildUnresolvable, channelID)
	}
	return ch.GuildID, nil
}

func (a *Adapter) GetMember(ctx context.Context, guildID, userID string) (platform.Member, error) {
	m, err := a.member(ctx, guildID, userID)
	if err != nil {
		return platform.Member{}, err
	}
	return a.toPlatformMember(ctx, guildID, m), nil
}

func (a *Adapter) member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if m, err := a.session.State.Member(guildID, userID); err == nil && m != nil {
		return m, nil
	}
	a.membersMu.RLock()
	cached := a.members[guildID][userID]
	a.membersMu.RUnlock()
	if cached != nil {
		return cached, nil
	}
	m, err := a.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %s in guild %s", platform.ErrMemberNotFound, userID, guildID)
	}
	return m, nil
}

func (a *Adapter) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := a.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add role %s to %s: %w", roleID, userID, err)
	}
	return nil
}

func (a *Adapter) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := a.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("remove role %s from %s: %w", roleID, userID, err)
	}
	return nil
}

// FetchAllMembers pages the full member list into the adapter cache. Mass DM
// runs call this first so RoleMembers sees members the gateway never sent.
func (a *Adapter) FetchAllMembers(ctx context.Context, guildID string) error {
	after := ""
	total := 0
	for {
		page, err := a.session.GuildMembers(guildID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("fetch members of guild %s: %w", guildID, err)
		}
		if len(page) == 0 {
			break
		}
		a.membersMu.Lock()
		cache := a.members[guildID]
		if cache == nil {
			cache = map[string]*discordgo.Member{}
			a.members[guildID] = cache
		}
		for _, m := range page {
			if m != nil && m.User != nil {
				cache[m.User.ID] = m
			}
		}
		a.membersMu.Unlock()
		total += len(page)
		after = page[len(page)-1].User.ID
		if len(page) < membersPageSize {
			break
		}
	}
	a.log.Debug("guild members fetched", logx.String("guild", guildID), logx.Int("count", total))
	return nil
}

func (a *Adapter) RoleMembers(ctx context.Context, guildID, roleID string) ([]platform.Member, error) {
	a.membersMu.RLock()
	empty := len(a.members[guildID]) == 0
	a.membersMu.RUnlock()
	if empty {
		if err := a.FetchAllMembers(ctx, guildID); err != nil {
			return nil, err
		}
	}

	adminRoles := a.adminRoleSet(ctx, guildID)

	a.membersMu.RLock()
	defer a.membersMu.RUnlock()
	var out []platform.Member
	for _, m := range a.members[guildID] {
		if !hasRole(m, roleID) {
			continue
		}
		out = append(out, mapMember(m, adminRoles))
	}
	return out, nil
}

func (a *Adapter) toPlatformMember(ctx context.Context, guildID string, m *discordgo.Member) platform.Member {
	return mapMember(m, a.adminRoleSet(ctx, guildID))
}

// adminRoleSet returns the IDs of roles carrying the Administrator
// permission. Best-effort: on lookup failure the set is empty and the Admin
// flag simply stays false.
func (a *Adapter) adminRoleSet(ctx context.Context, guildID string) map[string]struct{} {
	var roles []*discordgo.Role
	if g, err := a.session.State.Guild(guildID); err == nil && len(g.Roles) > 0 {
		roles = g.Roles
	} else {
		fetched, err := a.session.GuildRoles(guildID, discordgo.WithContext(ctx))
		if err != nil {
			a.log.Debug("guild roles lookup failed", logx.String("guild", guildID), logx.Err(err))
			return nil
		}
		roles = fetched
	}
	set := map[string]struct{}{}
	for _, r := range roles {
		if r.Permissions&discordgo.PermissionAdministrator != 0 {
			set[r.ID] = struct{}{}
		}
	}
	return set
}

func mapMember(m *discordgo.Member, adminRoles map[string]struct{}) platform.Member {
	pm := platform.Member{
		RoleIDs: append([]string(nil), m.Roles...),
	}
	if m.User != nil {
		pm.UserID = m.User.ID
		pm.UserTag = m.User.String()
		pm.Bot = m.User.Bot
	}
	for _, rid := range m.Roles {
		if _, ok := adminRoles[rid]; ok {
			pm.Admin = true
			break
		}
	}
	return pm
}

func hasRole(m *discordgo.Member, roleID string) bool {
	for _, rid := range m.Roles {
		if rid == roleID {
			return true
		}
	}
	return false
}
