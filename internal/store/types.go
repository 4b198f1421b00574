package store

import (
	"fmt"
	"strings"
)

// ChannelConfig is the per-channel distribution config. JSON field names
// match the on-disk document, which predates this implementation.
type ChannelConfig struct {
	ChannelID       string `json:"channelId"`
	GuildID         string `json:"guildId,omitempty"`
	RoleID          string `json:"roleId"`
	ButtonLabel     string `json:"buttonLabel"`
	PromoTitle      string `json:"promoTitle"`
	PromoMessage    string `json:"promoMessage"`
	PromoAttachment string `json:"promoAttachment,omitempty"`
	DMContent       string `json:"dmContent"`
	DMAttachment    string `json:"dmAttachment,omitempty"`
	DMEnabled       bool   `json:"dmEnabled"`
}

// DefaultChannelConfig returns a new config with the stock promo texts used
// by `config add`.
func DefaultChannelConfig(channelID, guildID, roleID string) ChannelConfig {
	return ChannelConfig{
		ChannelID:    channelID,
		GuildID:      guildID,
		RoleID:       roleID,
		ButtonLabel:  "Become a fan",
		PromoTitle:   "\U0001F525 Exclusive content",
		PromoMessage: "Click the button below to get access!",
		DMContent:    "Thanks for your support!",
		DMEnabled:    true,
	}
}

type Blacklist struct {
	Users []string `json:"users"`
	Roles []string `json:"roles"`
}

// State is the admin-owned config document.
type State struct {
	Prefix     string          `json:"prefix"`
	OwnerID    string          `json:"ownerId"`
	AdminRoles []string        `json:"adminRoles"`
	Blacklist  Blacklist       `json:"blacklist"`
	Configs    []ChannelConfig `json:"configs"`
}

func (s State) clone() State {
	cp := s
	cp.AdminRoles = append([]string(nil), s.AdminRoles...)
	cp.Blacklist.Users = append([]string(nil), s.Blacklist.Users...)
	cp.Blacklist.Roles = append([]string(nil), s.Blacklist.Roles...)
	cp.Configs = append([]ChannelConfig(nil), s.Configs...)
	return cp
}

type BlacklistKind string

const (
	BlacklistUser BlacklistKind = "user"
	BlacklistRole BlacklistKind = "role"
)

// ReceiptKey identifies a delivered gift. The string form
// "<userID>_<channelID>" is used only at the document boundary.
type ReceiptKey struct {
	UserID    string
	ChannelID string
}

func (k ReceiptKey) String() string {
	return k.UserID + "_" + k.ChannelID
}

// parseReceiptKey splits the document form. Discord snowflakes never contain
// underscores, so the first separator is unambiguous.
func parseReceiptKey(s string) (ReceiptKey, error) {
	i := strings.IndexByte(s, '_')
	if i <= 0 || i == len(s)-1 {
		return ReceiptKey{}, fmt.Errorf("malformed receipt key %q", s)
	}
	return ReceiptKey{UserID: s[:i], ChannelID: s[i+1:]}, nil
}
