// Package promo posts the public trigger message into a monitored channel:
// an embed with the configured title, body and optional image, plus the role
// toggle button. Stateless; one qualifying inbound message yields one publish.
package promo

import (
	"context"

	"fangate/internal/platform"
	"fangate/internal/store"
	logx "fangate/pkg/logx"
)

// ToggleCustomIDPrefix is shared with the interaction router: button custom
// IDs are "toggle_role_<channelID>". The format is part of the persisted
// message surface and must stay stable across restarts.
const ToggleCustomIDPrefix = "toggle_role_"

const embedColorRed = 0xFF0000

type Publisher struct {
	msg platform.Messenger
	log logx.Logger
}

func New(msg platform.Messenger, log logx.Logger) *Publisher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Publisher{msg: msg, log: log}
}

// Publish sends the promo embed for cfg into its channel. Failures (missing
// send permission and the like) are logged and swallowed so channel
// monitoring continues.
func (p *Publisher) Publish(ctx context.Context, cfg store.ChannelConfig) {
	payload := platform.Payload{
		Embed: &platform.Embed{
			Title:       cfg.PromoTitle,
			Description: cfg.PromoMessage,
			ImageURL:    cfg.PromoAttachment,
			Color:       embedColorRed,
		},
		Button: ToggleButton(cfg),
	}

	if err := p.msg.SendChannel(ctx, cfg.ChannelID, payload); err != nil {
		p.log.Warn("promo publish failed", logx.String("channel", cfg.ChannelID), logx.Err(err))
		return
	}
	p.log.Debug("promo published", logx.String("channel", cfg.ChannelID))
}

// ToggleButton builds the toggle control for a channel config. Also used by
// the fan-out path when a broadcast carries the button.
func ToggleButton(cfg store.ChannelConfig) *platform.Button {
	label := cfg.ButtonLabel
	if label == "" {
		label = "Get access"
	}
	return &platform.Button{
		CustomID: ToggleCustomIDPrefix + cfg.ChannelID,
		Label:    label,
	}
}
