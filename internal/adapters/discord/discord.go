// Package discord implements the platform boundary on top of discordgo. One
// Adapter owns the gateway session, translates inbound events into
// platform.Update values and serves the Gateway/Messenger interfaces.
package discord

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"fangate/internal/platform"
	logx "fangate/pkg/logx"
)

// interactionTTL bounds how long an unanswered button click stays resolvable.
// Discord invalidates interaction tokens after 15 minutes anyway.
const interactionTTL = 10 * time.Minute

type Adapter struct {
	session *discordgo.Session
	log     logx.Logger

	out     chan<- platform.Update
	dropped atomic.Int64

	// pending maps interaction IDs to the raw interaction, so Reply() can
	// acknowledge a click routed through the platform-neutral types.
	pendingMu sync.Mutex
	pending   map[string]pendingInteraction

	// members caches guild member snapshots per guild, filled by
	// FetchAllMembers and the gateway member-chunk events.
	membersMu sync.RWMutex
	members   map[string]map[string]*discordgo.Member

	http *http.Client

	startOnce sync.Once
	stopOnce  sync.Once
}

type pendingInteraction struct {
	raw     *discordgo.Interaction
	savedAt time.Time
}

func New(token string, log logx.Logger) (*Adapter, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: session init: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	s.StateEnabled = true

	return &Adapter{
		session: s,
		log:     log,
		pending: map[string]pendingInteraction{},
		members: map[string]map[string]*discordgo.Member{},
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Start opens the gateway session and begins forwarding updates to out.
// Non-blocking; events arrive on discordgo's handler goroutines. A full out
// channel drops the event and bumps a counter rather than stalling the
// gateway read loop.
func (a *Adapter) Start(ctx context.Context, out chan<- platform.Update) error {
	var err error
	a.startOnce.Do(func() {
		a.out = out
		a.session.AddHandler(a.onReady)
		a.session.AddHandler(a.onMessageCreate)
		a.session.AddHandler(a.onInteractionCreate)
		a.session.AddHandler(a.onMembersChunk)
		err = a.session.Open()
		if err != nil {
			err = fmt.Errorf("discord: gateway open: %w", err)
			return
		}
		go a.expirePending(ctx)
	})
	return err
}

func (a *Adapter) Stop(context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		err = a.session.Close()
	})
	return err
}

// Dropped reports how many inbound events were discarded because the update
// queue was full.
func (a *Adapter) Dropped() int64 { return a.dropped.Load() }

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	a.log.Info("discord gateway ready",
		logx.String("user", r.User.Username),
		logx.Int("guilds", len(r.Guilds)),
	)
}

func (a *Adapter) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	msg := &platform.Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		AuthorTag: m.Author.String(),
		AuthorBot: m.Author.Bot,
		Content:   m.Content,
	}
	for _, att := range m.Attachments {
		if att == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, platform.Attachment{
			URL:      att.URL,
			Filename: att.Filename,
		})
	}
	a.forward(platform.Update{Kind: platform.UpdateMessage, Message: msg})
}

func (a *Adapter) onInteractionCreate(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Type != discordgo.InteractionMessageComponent {
		return
	}
	data := ic.MessageComponentData()

	var userID, userTag string
	switch {
	case ic.Member != nil && ic.Member.User != nil:
		userID = ic.Member.User.ID
		userTag = ic.Member.User.String()
	case ic.User != nil:
		userID = ic.User.ID
		userTag = ic.User.String()
	default:
		return
	}

	a.pendingMu.Lock()
	a.pending[ic.ID] = pendingInteraction{raw: ic.Interaction, savedAt: time.Now()}
	a.pendingMu.Unlock()

	a.forward(platform.Update{
		Kind: platform.UpdateInteraction,
		Interaction: &platform.Interaction{
			ID:        ic.ID,
			GuildID:   ic.GuildID,
			ChannelID: ic.ChannelID,
			UserID:    userID,
			UserTag:   userTag,
			CustomID:  data.CustomID,
		},
	})
}

func (a *Adapter) onMembersChunk(_ *discordgo.Session, c *discordgo.GuildMembersChunk) {
	a.membersMu.Lock()
	defer a.membersMu.Unlock()
	cache := a.members[c.GuildID]
	if cache == nil {
		cache = map[string]*discordgo.Member{}
		a.members[c.GuildID] = cache
	}
	for _, m := range c.Members {
		if m != nil && m.User != nil {
			cache[m.User.ID] = m
		}
	}
}

func (a *Adapter) forward(u platform.Update) {
	select {
	case a.out <- u:
	default:
		n := a.dropped.Add(1)
		a.log.Warn("update queue full; event dropped", logx.Int64("dropped_total", n))
	}
}

func (a *Adapter) takePending(id string) (*discordgo.Interaction, bool) {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()
	p, ok := a.pending[id]
	if ok {
		delete(a.pending, id)
	}
	return p.raw, ok
}

func (a *Adapter) expirePending(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cutoff := time.Now().Add(-interactionTTL)
			a.pendingMu.Lock()
			for id, p := range a.pending {
				if p.savedAt.Before(cutoff) {
					delete(a.pending, id)
				}
			}
			a.pendingMu.Unlock()
		}
	}
}
