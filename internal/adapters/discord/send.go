package discord

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"

	"github.com/bwmarrin/discordgo"

	"fangate/internal/platform"
)

func (a *Adapter) SendPrivate(ctx context.Context, userID string, p platform.Payload) error {
	ch, err := a.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open DM with %s: %w", userID, err)
	}
	return a.send(ctx, ch.ID, p)
}

func (a *Adapter) SendChannel(ctx context.Context, channelID string, p platform.Payload) error {
	return a.send(ctx, channelID, p)
}

func (a *Adapter) send(ctx context.Context, channelID string, p platform.Payload) error {
	msg, closers, err := a.buildMessage(ctx, p)
	defer closeAll(closers)
	if err != nil {
		return err
	}
	if _, err := a.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send to %s: %w", channelID, err)
	}
	return nil
}

// Reply acknowledges a button click with an ephemeral message. Each
// interaction can be answered once; a second Reply for the same ID fails.
func (a *Adapter) Reply(ctx context.Context, it *platform.Interaction, text string) error {
	raw, ok := a.takePending(it.ID)
	if !ok || raw == nil {
		return fmt.Errorf("interaction %s is unknown or already answered", it.ID)
	}
	err := a.session.InteractionRespond(raw, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: text,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("acknowledge interaction %s: %w", it.ID, err)
	}
	return nil
}

func (a *Adapter) ReplyMessage(ctx context.Context, m *platform.Message, text string) error {
	_, err := a.session.ChannelMessageSendReply(m.ChannelID, text, &discordgo.MessageReference{
		MessageID: m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("reply in %s: %w", m.ChannelID, err)
	}
	return nil
}

func (a *Adapter) buildMessage(ctx context.Context, p platform.Payload) (*discordgo.MessageSend, []io.Closer, error) {
	msg := &discordgo.MessageSend{Content: p.Content}
	var closers []io.Closer

	if p.Embed != nil {
		msg.Embeds = []*discordgo.MessageEmbed{mapEmbed(p.Embed)}
	}

	for _, f := range p.Files {
		file, closer, err := a.openFileRef(ctx, f)
		if err != nil {
			closeAll(closers)
			return nil, nil, err
		}
		msg.Files = append(msg.Files, file)
		closers = append(closers, closer)
	}

	if p.Button != nil {
		msg.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    p.Button.Label,
						Style:    discordgo.PrimaryButton,
						CustomID: p.Button.CustomID,
					},
				},
			},
		}
	}
	return msg, closers, nil
}

// openFileRef turns a FileRef into an upload: local cached files are read
// from disk, remote ones are streamed through the adapter's HTTP client.
func (a *Adapter) openFileRef(ctx context.Context, f platform.FileRef) (*discordgo.File, io.Closer, error) {
	if f.Path != "" {
		fh, err := os.Open(f.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open attachment %s: %w", f.Path, err)
		}
		return &discordgo.File{Name: fileName(f, f.Path), Reader: fh}, fh, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch attachment %s: %w", f.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, nil, fmt.Errorf("fetch attachment %s: status %d", f.URL, resp.StatusCode)
	}
	return &discordgo.File{Name: fileName(f, f.URL), Reader: resp.Body}, resp.Body, nil
}

func fileName(f platform.FileRef, fallback string) string {
	if f.Name != "" {
		return f.Name
	}
	return sanitizeBase(fallback)
}

func mapEmbed(e *platform.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.ImageURL != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	return out
}

// sanitizeBase extracts a usable filename from a path or URL.
func sanitizeBase(s string) string {
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		s = u.Path
	}
	base := path.Base(s)
	if base == "" || base == "." || base == "/" {
		return "attachment"
	}
	return base
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if c != nil {
			_ = c.Close()
		}
	}
}
