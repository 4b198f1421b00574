// Package toggle implements the role toggle state machine: one button click
// either revokes the configured role or grants it, delivering the one-time
// gift DM on first grant. Gift delivery is deduplicated by a durable receipt
// keyed by (user, channel); the receipt survives revokes so a user who drops
// and re-takes the role is not gifted twice.
package toggle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fangate/internal/platform"
	"fangate/internal/store"
	logx "fangate/pkg/logx"
)

// ErrMutationFailed wraps role add/remove failures (typically missing bot
// permission). The operation is safely retryable: no persisted state changed.
var ErrMutationFailed = errors.New("role mutation failed")

type Action string

const (
	ActionGranted Action = "granted"
	ActionRevoked Action = "revoked"
)

type Delivery string

const (
	DeliveryNone       Delivery = ""          // revoke path or DMs disabled
	DeliveryDelivered  Delivery = "delivered" // gift sent, receipt persisted
	DeliverySuppressed Delivery = "suppressed-duplicate"
	DeliveryFailed     Delivery = "delivery-failed" // soft: DMs closed etc.
)

// Outcome describes one completed toggle.
type Outcome struct {
	Action   Action
	Delivery Delivery
	RoleName string
}

// Receipts is the slice of the store the controller needs.
type Receipts interface {
	Config(channelID string) (store.ChannelConfig, bool)
	HasReceipt(k store.ReceiptKey) bool
	PutReceipt(k store.ReceiptKey) error
}

type Controller struct {
	gw    platform.Gateway
	msg   platform.Messenger
	st    Receipts
	log   logx.Logger
	locks keyLock
}

func New(gw platform.Gateway, msg platform.Messenger, st Receipts, log logx.Logger) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Controller{gw: gw, msg: msg, st: st, log: log}
}

// Handle runs one toggle interaction for userID on the channel's configured
// role.
//
// Structural failures (unknown channel, missing role, unresolvable guild)
// abort before any side effect. A gift delivery failure is non-fatal and
// surfaces in Outcome.Delivery; a role mutation failure returns
// ErrMutationFailed and never rolls back an already persisted receipt.
func (c *Controller) Handle(ctx context.Context, userID, channelID string) (Outcome, error) {
	cfg, ok := c.st.Config(channelID)
	if !ok {
		return Outcome{}, store.ErrConfigNotFound
	}

	guildID := cfg.GuildID
	if guildID == "" {
		// Interactions arriving from DMs carry no guild; resolve through the
		// configured channel.
		g, err := c.gw.ResolveChannelGuild(ctx, channelID)
		if err != nil {
			return Outcome{}, fmt.Errorf("channel %s: %w", channelID, platform.ErrGuildUnresolvable)
		}
		guildID = g
	}

	role, err := c.gw.ResolveRole(ctx, guildID, cfg.RoleID)
	if err != nil {
		return Outcome{}, fmt.Errorf("role %s: %w", cfg.RoleID, err)
	}

	member, err := c.gw.GetMember(ctx, guildID, userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("member %s: %w", userID, err)
	}

	key := store.ReceiptKey{UserID: userID, ChannelID: channelID}
	mu := c.locks.lock(key.String())
	defer mu.Unlock()

	if member.HasRole(cfg.RoleID) {
		if err := c.gw.RemoveRole(ctx, guildID, userID, cfg.RoleID); err != nil {
			c.log.Warn("role remove failed", logx.String("user", userID), logx.String("role", cfg.RoleID), logx.Err(err))
			return Outcome{RoleName: role.Name}, fmt.Errorf("%w: %v", ErrMutationFailed, err)
		}
		c.log.Info("role revoked", logx.String("user", userID), logx.String("channel", channelID), logx.String("role", role.Name))
		return Outcome{Action: ActionRevoked, RoleName: role.Name}, nil
	}

	delivery := DeliveryNone
	if cfg.DMEnabled {
		delivery = c.deliverGift(ctx, key, cfg, role)
	}

	// The role grant proceeds regardless of the delivery outcome, and a
	// written receipt stays put even if the grant fails: not re-sending
	// gifts wins over strict atomicity.
	if err := c.gw.AddRole(ctx, guildID, userID, cfg.RoleID); err != nil {
		c.log.Warn("role add failed", logx.String("user", userID), logx.String("role", cfg.RoleID), logx.Err(err))
		return Outcome{Delivery: delivery, RoleName: role.Name}, fmt.Errorf("%w: %v", ErrMutationFailed, err)
	}

	c.log.Info("role granted",
		logx.String("user", userID),
		logx.String("channel", channelID),
		logx.String("role", role.Name),
		logx.String("gift", string(delivery)),
	)
	return Outcome{Action: ActionGranted, Delivery: delivery, RoleName: role.Name}, nil
}

// deliverGift sends the one-time DM and records the receipt only after a
// successful send, so a recipient with closed DMs can still receive the gift
// on a later toggle.
func (c *Controller) deliverGift(ctx context.Context, key store.ReceiptKey, cfg store.ChannelConfig, role platform.Role) Delivery {
	if c.st.HasReceipt(key) {
		return DeliverySuppressed
	}

	if err := c.msg.SendPrivate(ctx, key.UserID, giftPayload(cfg, role)); err != nil {
		c.log.Warn("gift delivery failed", logx.String("user", key.UserID), logx.String("channel", key.ChannelID), logx.Err(err))
		return DeliveryFailed
	}

	if err := c.st.PutReceipt(key); err != nil {
		// The receipt is held in memory; only the flush failed.
		c.log.Warn("gift receipt not durable", logx.String("key", key.String()), logx.Err(err))
	}
	return DeliveryDelivered
}

func giftPayload(cfg store.ChannelConfig, role platform.Role) platform.Payload {
	p := platform.Payload{
		Content: fmt.Sprintf("Here is your exclusive content for **%s**:\n%s", role.Name, cfg.DMContent),
	}
	if cfg.DMAttachment != "" {
		p.Files = append(p.Files, fileRef(cfg.DMAttachment))
	}
	return p
}

// fileRef classifies a configured attachment as a local cached path or a
// remote URL.
func fileRef(v string) platform.FileRef {
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return platform.FileRef{URL: v}
	}
	return platform.FileRef{Path: v}
}
