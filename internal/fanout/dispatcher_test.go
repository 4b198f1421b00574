package fanout

import (
	"context"
	"errors"
	"testing"

	"fangate/internal/platform"
	"fangate/internal/store"
	logx "fangate/pkg/logx"
)

type nopPacer struct{}

func (nopPacer) Wait(context.Context) error { return nil }

type fakeGateway struct {
	role       platform.Role
	roleErr    error
	members    []platform.Member
	fetchErr   error
	fetchCalls int
}

func (g *fakeGateway) ResolveRole(context.Context, string, string) (platform.Role, error) {
	if g.roleErr != nil {
		return platform.Role{}, g.roleErr
	}
	return g.role, nil
}

func (g *fakeGateway) ResolveChannelGuild(context.Context, string) (string, error) {
	return "G1", nil
}

func (g *fakeGateway) GetMember(context.Context, string, string) (platform.Member, error) {
	return platform.Member{}, platform.ErrMemberNotFound
}

func (g *fakeGateway) AddRole(context.Context, string, string, string) error    { return nil }
func (g *fakeGateway) RemoveRole(context.Context, string, string, string) error { return nil }

func (g *fakeGateway) FetchAllMembers(context.Context, string) error {
	g.fetchCalls++
	return g.fetchErr
}

func (g *fakeGateway) RoleMembers(context.Context, string, string) ([]platform.Member, error) {
	return g.members, nil
}

type fakeMessenger struct {
	failFor map[string]bool
	sent    []string
}

func (m *fakeMessenger) SendPrivate(_ context.Context, userID string, _ platform.Payload) error {
	if m.failFor[userID] {
		return errors.New("dms closed")
	}
	m.sent = append(m.sent, userID)
	return nil
}

func (m *fakeMessenger) SendChannel(context.Context, string, platform.Payload) error { return nil }
func (m *fakeMessenger) Reply(context.Context, *platform.Interaction, string) error  { return nil }
func (m *fakeMessenger) ReplyMessage(context.Context, *platform.Message, string) error {
	return nil
}

func member(id string, roles ...string) platform.Member {
	return platform.Member{UserID: id, RoleIDs: roles}
}

func TestBroadcastCountsAndExclusions(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{
		role: platform.Role{ID: "R1", Name: "Fan"},
		members: []platform.Member{
			member("U1", "R1"),
			member("U2", "R1"),
			{UserID: "B1", Bot: true, RoleIDs: []string{"R1"}},
			member("U3", "R1"),          // user-blacklisted
			member("U4", "R1", "RBAD"),  // role-blacklisted
			member("U5", "R1"),          // delivery fails
		},
	}
	msg := &fakeMessenger{failFor: map[string]bool{"U5": true}}
	st := store.NewMemory(store.State{Blacklist: store.Blacklist{
		Users: []string{"U3"},
		Roles: []string{"RBAD"},
	}})

	d := New(gw, msg, st, nopPacer{}, logx.Nop())
	rep, err := d.Broadcast(context.Background(), "G1", "R1", platform.Payload{Content: "hi"})
	if err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}

	if rep.Holders != 6 {
		t.Fatalf("Holders = %d, want 6", rep.Holders)
	}
	if rep.Success != 2 || rep.Failed != 1 || rep.Excluded != 2 {
		t.Fatalf("report = %+v, want 2/1/2", rep)
	}
	// Invariant: success+failed+excluded == holders minus bots.
	if rep.Success+rep.Failed+rep.Excluded != rep.Holders-1 {
		t.Fatalf("count invariant broken: %+v", rep)
	}
	for _, blocked := range []string{"U3", "U4", "B1"} {
		for _, got := range msg.sent {
			if got == blocked {
				t.Fatalf("send attempted to filtered recipient %s", blocked)
			}
		}
	}
}

func TestBroadcastNoEarlyAbort(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{
		role: platform.Role{ID: "R1"},
		members: []platform.Member{
			member("U1", "R1"), member("U2", "R1"), member("U3", "R1"),
		},
	}
	// First recipient fails; the rest must still be attempted.
	msg := &fakeMessenger{failFor: map[string]bool{"U1": true}}
	d := New(gw, msg, store.NewMemory(store.State{}), nopPacer{}, logx.Nop())

	rep, err := d.Broadcast(context.Background(), "G1", "R1", platform.Payload{Content: "hi"})
	if err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}
	if rep.Success != 2 || rep.Failed != 1 {
		t.Fatalf("report = %+v, want success=2 failed=1", rep)
	}
}

func TestBroadcastStructuralErrors(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{role: platform.Role{ID: "R1"}, members: []platform.Member{member("U1", "R1")}}
	msg := &fakeMessenger{}
	d := New(gw, msg, store.NewMemory(store.State{}), nopPacer{}, logx.Nop())
	ctx := context.Background()

	if _, err := d.Broadcast(ctx, "G1", "R1", platform.Payload{}); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("empty payload = %v, want ErrEmptyPayload", err)
	}

	gw.roleErr = platform.ErrRoleNotFound
	if _, err := d.Broadcast(ctx, "G1", "R1", platform.Payload{Content: "hi"}); !errors.Is(err, platform.ErrRoleNotFound) {
		t.Fatalf("missing role = %v, want ErrRoleNotFound", err)
	}
	if len(msg.sent) != 0 {
		t.Fatal("structural failures must abort before any send")
	}
}

func TestBroadcastMemberFetchFailureIsSoft(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{
		role:     platform.Role{ID: "R1"},
		members:  []platform.Member{member("U1", "R1")},
		fetchErr: errors.New("chunking timed out"),
	}
	msg := &fakeMessenger{}
	d := New(gw, msg, store.NewMemory(store.State{}), nopPacer{}, logx.Nop())

	rep, err := d.Broadcast(context.Background(), "G1", "R1", platform.Payload{Content: "hi"})
	if err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}
	if gw.fetchCalls != 1 || rep.Success != 1 {
		t.Fatalf("fetch=%d report=%+v; fetch failure must not abort", gw.fetchCalls, rep)
	}
}

func TestBroadcastStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{
		role:    platform.Role{ID: "R1"},
		members: []platform.Member{member("U1", "R1"), member("U2", "R1")},
	}
	msg := &fakeMessenger{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(gw, msg, store.NewMemory(store.State{}), NewPacer(0), logx.Nop())
	if _, err := d.Broadcast(ctx, "G1", "R1", platform.Payload{Content: "hi"}); err == nil {
		t.Fatal("expected context error")
	}
}
