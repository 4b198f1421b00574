// Package platform defines the chat-platform boundary: inbound update types
// and the gateway/messenger interfaces the core components consume. The
// concrete Discord implementation lives in internal/adapters/discord.
package platform

import "context"

type UpdateKind string

const (
	UpdateMessage     UpdateKind = "message"
	UpdateInteraction UpdateKind = "interaction"
)

type Update struct {
	Kind        UpdateKind
	Message     *Message
	Interaction *Interaction
}

type Message struct {
	ID          string
	GuildID     string
	ChannelID   string
	AuthorID    string
	AuthorTag   string
	AuthorBot   bool
	Content     string
	Attachments []Attachment
}

// Interaction is a button click on a message component.
type Interaction struct {
	ID        string // token used to acknowledge the interaction
	GuildID   string // empty when the click arrives from a DM
	ChannelID string
	UserID    string
	UserTag   string
	CustomID  string
}

type Attachment struct {
	URL      string
	Filename string
}

type Role struct {
	ID   string
	Name string
}

type Member struct {
	UserID  string
	UserTag string
	Bot     bool
	Admin   bool // effective Administrator permission in the guild
	RoleIDs []string
}

func (m Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Button is the toggle control attached to promo messages and DMs.
type Button struct {
	CustomID string
	Label    string
}

// Payload is an outbound message body. At least one of Content, Embed or
// Files must be set for fan-out sends.
type Payload struct {
	Content string
	Embed   *Embed
	Files   []FileRef
	Button  *Button
}

func (p Payload) Empty() bool {
	return p.Content == "" && p.Embed == nil && len(p.Files) == 0
}

type Embed struct {
	Title       string
	Description string
	ImageURL    string
	Color       int
	Fields      []EmbedField
	Footer      string
}

type EmbedField struct {
	Name  string
	Value string
}

// FileRef points at an attachment to upload: either a local cached path or a
// remote URL passed through as-is.
type FileRef struct {
	Name string
	Path string // local path; empty if URL is used
	URL  string
}

// Gateway is the membership side of the platform: role lookup and mutation,
// member resolution, and channel-to-guild resolution.
type Gateway interface {
	// ResolveRole returns the role, or ErrRoleNotFound.
	ResolveRole(ctx context.Context, guildID, roleID string) (Role, error)
	// ResolveChannelGuild maps a channel to its parent guild, or
	// ErrGuildUnresolvable.
	ResolveChannelGuild(ctx context.Context, channelID string) (string, error)
	// GetMember returns the guild member, or ErrMemberNotFound.
	GetMember(ctx context.Context, guildID, userID string) (Member, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	// FetchAllMembers warms the member list for the guild. Best-effort: a
	// partial failure is reported but callers proceed with what is cached.
	FetchAllMembers(ctx context.Context, guildID string) error
	// RoleMembers returns a snapshot of the current holders of the role.
	RoleMembers(ctx context.Context, guildID, roleID string) ([]Member, error)
}

// Messenger is the delivery side of the platform.
type Messenger interface {
	SendPrivate(ctx context.Context, userID string, p Payload) error
	SendChannel(ctx context.Context, channelID string, p Payload) error
	// Reply acknowledges an interaction with a short ephemeral message.
	Reply(ctx context.Context, it *Interaction, text string) error
	// ReplyMessage answers an inbound message in its channel.
	ReplyMessage(ctx context.Context, m *Message, text string) error
}

// Adapter is the event side: a running platform session feeding updates.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
