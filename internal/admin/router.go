// Package admin routes prefix-delimited administrator commands: blacklist
// management, mass DM fan-out, gift receipt resets, channel config CRUD and
// help. Unauthorized callers are silently ignored so the command surface is
// not revealed by probing.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fangate/internal/attach"
	"fangate/internal/fanout"
	"fangate/internal/platform"
	"fangate/internal/promo"
	"fangate/internal/store"
	logx "fangate/pkg/logx"
)

// Broadcaster is the fan-out port.
type Broadcaster interface {
	Broadcast(ctx context.Context, guildID, roleID string, p platform.Payload) (fanout.Report, error)
}

type Router struct {
	st    store.Store
	gw    platform.Gateway
	msg   platform.Messenger
	bc    Broadcaster
	cache *attach.Cache
	log   logx.Logger
}

func New(st store.Store, gw platform.Gateway, msg platform.Messenger, bc Broadcaster, cache *attach.Cache, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{st: st, gw: gw, msg: msg, bc: bc, cache: cache, log: log}
}

// Handle processes m if it is a prefix command. Returns true when the message
// was consumed (including the silent unauthorized case), false when it is not
// a command at all.
func (r *Router) Handle(ctx context.Context, m *platform.Message) bool {
	state := r.st.State()
	if !strings.HasPrefix(m.Content, state.Prefix) {
		return false
	}

	args := tokenize(strings.TrimPrefix(m.Content, state.Prefix))
	if len(args) == 0 {
		return false
	}
	cmd := strings.ToLower(args[0])
	args = args[1:]

	if !r.authorized(ctx, m, state) {
		// Deliberate no-op: no reply, so non-admins cannot enumerate commands.
		r.log.Debug("command ignored (unauthorized)", logx.String("user", m.AuthorID), logx.String("cmd", cmd))
		return true
	}

	switch cmd {
	case "blacklist":
		r.cmdBlacklist(ctx, m, args)
	case "dmall":
		r.cmdDMAll(ctx, m, args)
	case "resetdm":
		r.cmdResetDM(ctx, m, args)
	case "config":
		r.cmdConfig(ctx, m, args)
	case "help":
		r.cmdHelp(ctx, m)
	default:
		// Unknown commands under the prefix are ignored, like the
		// unauthorized case.
	}
	return true
}

func (r *Router) authorized(ctx context.Context, m *platform.Message, state store.State) bool {
	if state.OwnerID != "" && m.AuthorID == state.OwnerID {
		return true
	}
	if m.GuildID == "" {
		return false
	}
	member, err := r.gw.GetMember(ctx, m.GuildID, m.AuthorID)
	if err != nil {
		return false
	}
	if member.Admin {
		return true
	}
	for _, rid := range state.AdminRoles {
		if member.HasRole(rid) {
			return true
		}
	}
	return false
}

func (r *Router) reply(ctx context.Context, m *platform.Message, text string) {
	if err := r.msg.ReplyMessage(ctx, m, text); err != nil {
		r.log.Warn("command reply failed", logx.String("channel", m.ChannelID), logx.Err(err))
	}
}

func (r *Router) replyEmbed(ctx context.Context, m *platform.Message, e *platform.Embed) {
	if err := r.msg.SendChannel(ctx, m.ChannelID, platform.Payload{Embed: e}); err != nil {
		r.log.Warn("command reply failed", logx.String("channel", m.ChannelID), logx.Err(err))
	}
}

// ---- blacklist ----

func (r *Router) cmdBlacklist(ctx context.Context, m *platform.Message, args []string) {
	if len(args) == 0 {
		r.reply(ctx, m, "Usage: `blacklist <add|remove|list> <user|role> <id>`")
		return
	}
	action := strings.ToLower(args[0])

	if action == "list" {
		bl := r.st.Blacklist()
		r.replyEmbed(ctx, m, &platform.Embed{
			Title: "⛔ DM-all blacklist",
			Fields: []platform.EmbedField{
				{Name: "Users", Value: mentionList(bl.Users, "<@%s>")},
				{Name: "Roles", Value: mentionList(bl.Roles, "<@&%s>")},
			},
		})
		return
	}

	if len(args) < 3 {
		r.reply(ctx, m, "Usage: `blacklist <add|remove> <user|role> <id>`")
		return
	}
	kind, label, mention := blacklistKind(args[1])
	if kind == "" {
		r.reply(ctx, m, "Invalid type. Use `user` or `role`.")
		return
	}
	id := stripMention(args[2])

	switch action {
	case "add":
		if r.st.BlacklistAdd(kind, id) {
			r.reply(ctx, m, fmt.Sprintf("✅ %s %s added to the blacklist.", label, fmt.Sprintf(mention, id)))
		} else {
			r.reply(ctx, m, fmt.Sprintf("That %s is already blacklisted.", strings.ToLower(label)))
		}
	case "remove":
		if r.st.BlacklistRemove(kind, id) {
			r.reply(ctx, m, fmt.Sprintf("\U0001F5D1 %s %s removed from the blacklist.", label, fmt.Sprintf(mention, id)))
		} else {
			r.reply(ctx, m, fmt.Sprintf("That %s is not blacklisted.", strings.ToLower(label)))
		}
	default:
		r.reply(ctx, m, "Usage: `blacklist <add|remove|list> <user|role> <id>`")
	}
}

func blacklistKind(s string) (kind store.BlacklistKind, label, mention string) {
	switch strings.ToLower(s) {
	case "user":
		return store.BlacklistUser, "User", "<@%s>"
	case "role":
		return store.BlacklistRole, "Role", "<@&%s>"
	}
	return "", "", ""
}

func mentionList(ids []string, format string) string {
	if len(ids) == 0 {
		return "None"
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf(format, id)
	}
	return strings.Join(out, ", ")
}

// ---- dmall ----

func (r *Router) cmdDMAll(ctx context.Context, m *platform.Message, args []string) {
	if len(args) == 0 || (len(args) < 2 && len(m.Attachments) == 0) {
		r.reply(ctx, m, "Usage: `dmall <roleId> [--btn <channelId>] <message>`")
		return
	}
	roleID := stripMention(args[0])
	text := strings.Join(args[1:], " ")

	payload := platform.Payload{}
	text, btnChannel, withButton := splitButtonFlag(text)
	payload.Content = text
	for _, a := range m.Attachments {
		payload.Files = append(payload.Files, platform.FileRef{Name: a.Filename, URL: a.URL})
	}
	if withButton {
		if cfg, ok := r.buttonConfig(btnChannel); ok {
			payload.Button = promo.ToggleButton(cfg)
		}
	}

	role, err := r.gw.ResolveRole(ctx, m.GuildID, roleID)
	if err != nil {
		r.reply(ctx, m, "Role not found.")
		return
	}

	announce := fmt.Sprintf("\U0001F504 Starting mass DM for role **%s**...", role.Name)
	if members, err := r.gw.RoleMembers(ctx, m.GuildID, roleID); err == nil {
		announce = fmt.Sprintf("\U0001F504 Starting mass DM for role **%s** (%d members)...", role.Name, len(members))
	}
	r.reply(ctx, m, announce)

	rep, err := r.bc.Broadcast(ctx, m.GuildID, roleID, payload)
	if err != nil {
		if errors.Is(err, fanout.ErrEmptyPayload) {
			r.reply(ctx, m, "Nothing to send: provide a message or an attachment.")
			return
		}
		r.reply(ctx, m, "Mass DM failed: "+err.Error())
		return
	}
	r.reply(ctx, m, fmt.Sprintf(
		"✅ Mass DM finished for **%s**.\nSent: %d\nFailed: %d\nExcluded: %d",
		role.Name, rep.Success, rep.Failed, rep.Excluded,
	))
}

// buttonConfig picks the config whose toggle button rides along with a
// `dmall --btn` run: the named channel when configured, else the first
// config as a fallback.
func (r *Router) buttonConfig(channelID string) (store.ChannelConfig, bool) {
	if channelID != "" {
		if cfg, ok := r.st.Config(channelID); ok {
			return cfg, true
		}
	}
	configs := r.st.Configs()
	if len(configs) > 0 {
		return configs[0], true
	}
	return store.ChannelConfig{}, false
}

// ---- resetdm ----

func (r *Router) cmdResetDM(ctx context.Context, m *platform.Message, args []string) {
	targetID := m.AuthorID
	if len(args) > 0 {
		targetID = stripMention(args[0])
	}

	n, err := r.st.DeleteUserReceipts(targetID)
	if err != nil {
		r.log.Warn("receipt reset flush failed", logx.String("user", targetID), logx.Err(err))
	}
	if n > 0 {
		r.reply(ctx, m, fmt.Sprintf("✅ Gift history reset for <@%s> (%d entries removed).", targetID, n))
	} else {
		r.reply(ctx, m, fmt.Sprintf("No gift history found for <@%s>.", targetID))
	}
}

// ---- config ----

func (r *Router) cmdConfig(ctx context.Context, m *platform.Message, args []string) {
	if len(args) == 0 {
		r.reply(ctx, m, "Usage: `config <add|del|set|list>`")
		return
	}
	action := strings.ToLower(args[0])
	args = args[1:]

	switch action {
	case "list":
		r.configList(ctx, m)
	case "add":
		r.configAdd(ctx, m, args)
	case "del":
		r.configDelete(ctx, m, args)
	case "set":
		r.configSet(ctx, m, args)
	default:
		r.reply(ctx, m, "Usage: `config <add|del|set|list>`")
	}
}

func (r *Router) configList(ctx context.Context, m *platform.Message) {
	configs := r.st.Configs()
	if len(configs) == 0 {
		r.reply(ctx, m, "No active configurations.")
		return
	}
	e := &platform.Embed{Title: "Active configurations", Color: 0x00FF00}
	for i, c := range configs {
		dmText := c.DMContent
		if dmText == "" {
			dmText = "No text"
		} else if len(dmText) > 50 {
			dmText = dmText[:50] + "..."
		}
		gift := "❌ No image"
		if c.DMAttachment != "" {
			gift = "\U0001F4F8 Image configured"
		}
		enabled := "❌"
		if c.DMEnabled {
			enabled = "✅"
		}
		e.Fields = append(e.Fields, platform.EmbedField{
			Name: fmt.Sprintf("Config #%d | Channel: <#%s>", i+1, c.ChannelID),
			Value: fmt.Sprintf("**Role:** <@&%s>\n**DM enabled:** %s\n**DM message:** %s\n**DM gift:** %s",
				c.RoleID, enabled, dmText, gift),
		})
	}
	r.replyEmbed(ctx, m, e)
}

func (r *Router) configAdd(ctx context.Context, m *platform.Message, args []string) {
	if len(args) < 2 {
		r.reply(ctx, m, "Usage: `config add <channel_id> <role_id>` (attach an image for the gift DM)")
		return
	}
	channelID := stripMention(args[0])
	roleID := stripMention(args[1])

	cfg := store.DefaultChannelConfig(channelID, m.GuildID, roleID)

	if len(m.Attachments) > 0 {
		path, err := r.cacheAttachment(ctx, channelID, m.Attachments[0])
		if err != nil {
			r.log.Warn("gift attachment caching failed", logx.String("channel", channelID), logx.Err(err))
			r.reply(ctx, m, "Could not save the DM image. Try again later.")
			return
		}
		cfg.DMAttachment = path
	}

	if err := r.st.AddConfig(cfg); err != nil {
		if errors.Is(err, store.ErrConfigExists) {
			r.reply(ctx, m, "This channel is already configured. Use `config set` to change it.")
			return
		}
		r.reply(ctx, m, "Could not add the configuration: "+err.Error())
		return
	}

	note := ""
	if cfg.DMAttachment != "" {
		note = " (DM image saved \U0001F4F8)"
	}
	r.reply(ctx, m, fmt.Sprintf("✅ Configuration added for <#%s> with role <@&%s>.%s", channelID, roleID, note))
}

func (r *Router) configDelete(ctx context.Context, m *platform.Message, args []string) {
	if len(args) < 1 {
		r.reply(ctx, m, "Usage: `config del <channel_id>`")
		return
	}
	channelID := stripMention(args[0])
	if err := r.st.DeleteConfig(channelID); err != nil {
		r.reply(ctx, m, "No configuration found for that channel.")
		return
	}
	r.reply(ctx, m, fmt.Sprintf("\U0001F5D1 Configuration removed for <#%s>.", channelID))
}

func (r *Router) configSet(ctx context.Context, m *platform.Message, args []string) {
	if len(args) < 2 {
		r.reply(ctx, m, "Usage: `config set <channel> <msg|title|dm|btn|enabled|img|dm_img> <value>`")
		return
	}
	channelID := stripMention(args[0])
	key := strings.ToLower(args[1])
	value := strings.Join(args[2:], " ")

	cfg, ok := r.st.Config(channelID)
	if !ok {
		r.reply(ctx, m, "No configuration found for that channel.")
		return
	}

	switch key {
	case "msg":
		cfg.PromoMessage = value
	case "title":
		cfg.PromoTitle = value
	case "dm":
		cfg.DMContent = value
	case "btn":
		cfg.ButtonLabel = value
	case "enabled":
		cfg.DMEnabled = value == "true" || value == "1" || value == "on"
	case "img":
		if len(m.Attachments) > 0 {
			value = m.Attachments[0].URL
		}
		if value == "" {
			r.reply(ctx, m, "Provide a URL or attach an image/video.")
			return
		}
		cfg.PromoAttachment = value
	case "dm_img":
		if len(m.Attachments) > 0 {
			path, err := r.cacheAttachment(ctx, channelID, m.Attachments[0])
			if err != nil {
				r.log.Warn("gift attachment caching failed", logx.String("channel", channelID), logx.Err(err))
				r.reply(ctx, m, "Could not save the DM image. Try again later.")
				return
			}
			value = path
		}
		if value == "" {
			r.reply(ctx, m, "Provide a URL or attach an image/video for the DM.")
			return
		}
		cfg.DMAttachment = value
	default:
		r.reply(ctx, m, "Invalid key. Use: msg, title, dm, btn, enabled, img, dm_img")
		return
	}

	if err := r.st.SetConfig(cfg); err != nil {
		r.reply(ctx, m, "No configuration found for that channel.")
		return
	}
	r.reply(ctx, m, fmt.Sprintf("✅ Configuration updated for <#%s> (%s).", channelID, key))
}

func (r *Router) cacheAttachment(ctx context.Context, channelID string, a platform.Attachment) (string, error) {
	name := a.Filename
	if name == "" {
		name = "dm_attachment"
	}
	filename := fmt.Sprintf("%s_dm_%d_%s", channelID, time.Now().UnixMilli(), name)
	return r.cache.DownloadToLocal(ctx, a.URL, filename)
}

// ---- help ----

func (r *Router) cmdHelp(ctx context.Context, m *platform.Message) {
	r.replyEmbed(ctx, m, &platform.Embed{
		Title:       "\U0001F6E0 Admin commands",
		Color:       0x0099FF,
		Description: "Commands for configuring the distribution bot.",
		Fields: []platform.EmbedField{
			{Name: "\U0001F4E2 Auto promotion", Value: "The bot reacts automatically to messages in configured channels."},
			{Name: "\U0001F4E8 Mass DM", Value: "`dmall <RoleID> <message>`\nDMs every member holding the role.\nOption: `--btn [channel]` attaches the toggle button.\nBlacklisted members/roles are skipped."},
			{Name: "⚙ Config management", Value: "`config list` : show active configs\n`config add <#Channel> <@Role>` : watch a channel (attach an image for the gift DM)\n`config del <#Channel>` : stop watching"},
			{Name: "✏ Edit a config", Value: "`config set <#Channel> <option> <value>`\nOptions: `msg`, `title`, `dm`, `btn`, `enabled`, `img`, `dm_img`"},
			{Name: "⛔ Blacklist", Value: "`blacklist list` : show the blacklist\n`blacklist add <user|role> <id>` : block\n`blacklist remove <user|role> <id>` : unblock"},
			{Name: "\U0001F504 Reset DM", Value: "`resetdm [@User]`\nClears the gift history for you or the given user (the gift will be sent again)."},
		},
		Footer: "Distribution bot - admin only",
	})
}
