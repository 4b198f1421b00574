package toggle

import (
	"context"
	"errors"
	"testing"

	"fangate/internal/platform"
	"fangate/internal/store"
	logx "fangate/pkg/logx"
)

type fakeGateway struct {
	roles   map[string]platform.Role
	members map[string]*platform.Member
	guilds  map[string]string // channelID -> guildID

	addErr    error
	removeErr error
	addCalls  int
}

func (g *fakeGateway) ResolveRole(_ context.Context, _, roleID string) (platform.Role, error) {
	r, ok := g.roles[roleID]
	if !ok {
		return platform.Role{}, platform.ErrRoleNotFound
	}
	return r, nil
}

func (g *fakeGateway) ResolveChannelGuild(_ context.Context, channelID string) (string, error) {
	gid, ok := g.guilds[channelID]
	if !ok {
		return "", platform.ErrGuildUnresolvable
	}
	return gid, nil
}

func (g *fakeGateway) GetMember(_ context.Context, _, userID string) (platform.Member, error) {
	m, ok := g.members[userID]
	if !ok {
		return platform.Member{}, platform.ErrMemberNotFound
	}
	return *m, nil
}

func (g *fakeGateway) AddRole(_ context.Context, _, userID, roleID string) error {
	g.addCalls++
	if g.addErr != nil {
		return g.addErr
	}
	m := g.members[userID]
	m.RoleIDs = append(m.RoleIDs, roleID)
	return nil
}

func (g *fakeGateway) RemoveRole(_ context.Context, _, userID, roleID string) error {
	if g.removeErr != nil {
		return g.removeErr
	}
	m := g.members[userID]
	for i, id := range m.RoleIDs {
		if id == roleID {
			m.RoleIDs = append(m.RoleIDs[:i], m.RoleIDs[i+1:]...)
			break
		}
	}
	return nil
}

func (g *fakeGateway) FetchAllMembers(context.Context, string) error { return nil }

func (g *fakeGateway) RoleMembers(context.Context, string, string) ([]platform.Member, error) {
	return nil, nil
}

type fakeMessenger struct {
	privateErr error
	private    []string // userIDs that received a DM
}

func (m *fakeMessenger) SendPrivate(_ context.Context, userID string, _ platform.Payload) error {
	if m.privateErr != nil {
		return m.privateErr
	}
	m.private = append(m.private, userID)
	return nil
}

func (m *fakeMessenger) SendChannel(context.Context, string, platform.Payload) error { return nil }
func (m *fakeMessenger) Reply(context.Context, *platform.Interaction, string) error  { return nil }
func (m *fakeMessenger) ReplyMessage(context.Context, *platform.Message, string) error {
	return nil
}

func newFixture(dmEnabled bool) (*Controller, *fakeGateway, *fakeMessenger, store.Store) {
	gw := &fakeGateway{
		roles:   map[string]platform.Role{"R1": {ID: "R1", Name: "Fan"}},
		members: map[string]*platform.Member{"U1": {UserID: "U1"}},
		guilds:  map[string]string{"C1": "G1"},
	}
	msg := &fakeMessenger{}
	cfg := store.DefaultChannelConfig("C1", "G1", "R1")
	cfg.DMEnabled = dmEnabled
	st := store.NewMemory(store.State{Configs: []store.ChannelConfig{cfg}})
	return New(gw, msg, st, logx.Nop()), gw, msg, st
}

func TestToggleGrantDeliversGiftOnce(t *testing.T) {
	t.Parallel()
	c, _, msg, st := newFixture(true)
	ctx := context.Background()

	// First click: grant + gift.
	out, err := c.Handle(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if out.Action != ActionGranted || out.Delivery != DeliveryDelivered {
		t.Fatalf("outcome = %+v", out)
	}
	if !st.HasReceipt(store.ReceiptKey{UserID: "U1", ChannelID: "C1"}) {
		t.Fatal("receipt not recorded after delivery")
	}

	// Second click: revoke; receipt untouched.
	out, err = c.Handle(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if out.Action != ActionRevoked {
		t.Fatalf("outcome = %+v, want revoked", out)
	}
	if !st.HasReceipt(store.ReceiptKey{UserID: "U1", ChannelID: "C1"}) {
		t.Fatal("receipt must survive a revoke")
	}

	// Third click: grant again, gift suppressed.
	out, err = c.Handle(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if out.Action != ActionGranted || out.Delivery != DeliverySuppressed {
		t.Fatalf("outcome = %+v, want granted/suppressed", out)
	}
	if got := len(msg.private); got != 1 {
		t.Fatalf("gift sent %d times, want exactly 1", got)
	}
}

func TestToggleGiftFailureIsSoft(t *testing.T) {
	t.Parallel()
	c, _, msg, st := newFixture(true)
	msg.privateErr = errors.New("cannot send messages to this user")

	out, err := c.Handle(context.Background(), "U1", "C1")
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if out.Action != ActionGranted || out.Delivery != DeliveryFailed {
		t.Fatalf("outcome = %+v, want granted/delivery-failed", out)
	}
	// No receipt: the gift is still owed and retried on a later grant.
	if st.HasReceipt(store.ReceiptKey{UserID: "U1", ChannelID: "C1"}) {
		t.Fatal("failed delivery must not record a receipt")
	}
}

func TestToggleAddFailureKeepsReceipt(t *testing.T) {
	t.Parallel()
	c, gw, _, st := newFixture(true)
	gw.addErr = errors.New("missing permissions")

	out, err := c.Handle(context.Background(), "U1", "C1")
	if !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("Handle = %v, want ErrMutationFailed", err)
	}
	if out.Delivery != DeliveryDelivered {
		t.Fatalf("delivery = %q, want delivered", out.Delivery)
	}
	// Accepted trade-off: the delivered gift's receipt is not rolled back.
	if !st.HasReceipt(store.ReceiptKey{UserID: "U1", ChannelID: "C1"}) {
		t.Fatal("receipt should persist across a failed role grant")
	}
}

func TestToggleRemoveFailureIsRetryable(t *testing.T) {
	t.Parallel()
	c, gw, _, _ := newFixture(true)
	gw.members["U1"].RoleIDs = []string{"R1"}
	gw.removeErr = errors.New("missing permissions")

	if _, err := c.Handle(context.Background(), "U1", "C1"); !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("Handle = %v, want ErrMutationFailed", err)
	}

	// Retry after the permission problem is fixed.
	gw.removeErr = nil
	out, err := c.Handle(context.Background(), "U1", "C1")
	if err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if out.Action != ActionRevoked {
		t.Fatalf("outcome = %+v, want revoked", out)
	}
}

func TestToggleDMDisabledSkipsGift(t *testing.T) {
	t.Parallel()
	c, _, msg, st := newFixture(false)

	out, err := c.Handle(context.Background(), "U1", "C1")
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if out.Action != ActionGranted || out.Delivery != DeliveryNone {
		t.Fatalf("outcome = %+v, want granted with no delivery", out)
	}
	if len(msg.private) != 0 {
		t.Fatal("no DM expected when dmEnabled is false")
	}
	if st.HasReceipt(store.ReceiptKey{UserID: "U1", ChannelID: "C1"}) {
		t.Fatal("no receipt expected when dmEnabled is false")
	}
}

func TestToggleStructuralErrors(t *testing.T) {
	t.Parallel()
	c, gw, _, _ := newFixture(true)
	ctx := context.Background()

	if _, err := c.Handle(ctx, "U1", "unknown-channel"); !errors.Is(err, store.ErrConfigNotFound) {
		t.Fatalf("unknown channel = %v, want ErrConfigNotFound", err)
	}

	delete(gw.roles, "R1")
	if _, err := c.Handle(ctx, "U1", "C1"); !errors.Is(err, platform.ErrRoleNotFound) {
		t.Fatalf("deleted role = %v, want ErrRoleNotFound", err)
	}
	if gw.addCalls != 0 {
		t.Fatal("structural failures must abort before any mutation")
	}
}

func TestToggleResolvesGuildFromChannel(t *testing.T) {
	t.Parallel()
	c, gw, _, st := newFixture(true)
	// Config without a guild hint: controller falls back to channel lookup.
	cfg, _ := st.Config("C1")
	cfg.GuildID = ""
	if err := st.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig error: %v", err)
	}

	if _, err := c.Handle(context.Background(), "U1", "C1"); err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	delete(gw.guilds, "C1")
	st2 := store.NewMemory(store.State{Configs: []store.ChannelConfig{cfg}})
	c2 := New(gw, &fakeMessenger{}, st2, logx.Nop())
	if _, err := c2.Handle(context.Background(), "U1", "C1"); !errors.Is(err, platform.ErrGuildUnresolvable) {
		t.Fatalf("Handle = %v, want ErrGuildUnresolvable", err)
	}
}

func TestFileRefClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		wantURL bool
	}{
		{"https://cdn.example/gift.png", true},
		{"http://x", true},
		{"http://a.io", true},
		{"./data/C1_dm_1_gift.png", false},
		{"/var/lib/bot/gift.png", false},
		{"httpfile.png", false},
	}
	for _, tt := range tests {
		ref := fileRef(tt.in)
		if gotURL := ref.URL != ""; gotURL != tt.wantURL {
			t.Fatalf("fileRef(%q) = %+v, want URL=%v", tt.in, ref, tt.wantURL)
		}
	}
}
