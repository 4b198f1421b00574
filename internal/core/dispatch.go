package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fangate/internal/platform"
	"fangate/internal/promo"
	"fangate/internal/store"
	"fangate/internal/toggle"
	logx "fangate/pkg/logx"
)

func (a *App) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-a.updates:
			switch u.Kind {
			case platform.UpdateMessage:
				if u.Message != nil {
					a.handleMessage(ctx, u.Message)
				}
			case platform.UpdateInteraction:
				if u.Interaction != nil {
					a.handleInteraction(ctx, u.Interaction)
				}
			}
		}
	}
}

func (a *App) handleMessage(ctx context.Context, m *platform.Message) {
	if m.AuthorBot {
		return
	}
	if a.admin.Handle(ctx, m) {
		return
	}
	// Any human message in a monitored channel re-posts the promo so the
	// button stays near the bottom of the channel.
	if cfg, ok := a.st.Config(m.ChannelID); ok {
		a.promo.Publish(ctx, cfg)
	}
}

func (a *App) handleInteraction(ctx context.Context, it *platform.Interaction) {
	if !strings.HasPrefix(it.CustomID, promo.ToggleCustomIDPrefix) {
		return
	}
	channelID := strings.TrimPrefix(it.CustomID, promo.ToggleCustomIDPrefix)

	outcome, err := a.toggle.Handle(ctx, it.UserID, channelID)
	text := renderToggleReply(outcome, err)
	if replyErr := a.adapter.Reply(ctx, it, text); replyErr != nil {
		a.log.Warn("interaction reply failed",
			logx.String("user", it.UserID),
			logx.String("channel", channelID),
			logx.Err(replyErr),
		)
	}
}

// renderToggleReply maps a toggle outcome to the ephemeral text the clicking
// user sees.
func renderToggleReply(o toggle.Outcome, err error) string {
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConfigNotFound):
			return "This button is no longer active."
		case errors.Is(err, toggle.ErrMutationFailed):
			return "I couldn't update your role. Please try again later."
		default:
			return "Something went wrong. Please try again later."
		}
	}

	switch o.Action {
	case toggle.ActionRevoked:
		return fmt.Sprintf("❌ The **%s** role has been removed.", o.RoleName)
	case toggle.ActionGranted:
		switch o.Delivery {
		case toggle.DeliveryDelivered:
			return fmt.Sprintf("✅ You now have the **%s** role! Check your DMs \U0001F381", o.RoleName)
		case toggle.DeliveryFailed:
			return fmt.Sprintf("✅ You now have the **%s** role! I couldn't DM you though; check your privacy settings.", o.RoleName)
		default:
			// Suppressed duplicate or DMs disabled: grant only.
			return fmt.Sprintf("✅ You now have the **%s** role!", o.RoleName)
		}
	}
	return "Something went wrong. Please try again later."
}
