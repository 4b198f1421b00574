package core

import (
	"errors"
	"strings"
	"testing"

	"fangate/internal/store"
	"fangate/internal/toggle"
)

func TestRenderToggleReply(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		o    toggle.Outcome
		err  error
		want string
	}{
		{
			name: "granted with gift",
			o:    toggle.Outcome{Action: toggle.ActionGranted, Delivery: toggle.DeliveryDelivered, RoleName: "Fans"},
			want: "Check your DMs",
		},
		{
			name: "granted duplicate gift suppressed",
			o:    toggle.Outcome{Action: toggle.ActionGranted, Delivery: toggle.DeliverySuppressed, RoleName: "Fans"},
			want: "You now have the **Fans** role!",
		},
		{
			name: "granted but DM closed",
			o:    toggle.Outcome{Action: toggle.ActionGranted, Delivery: toggle.DeliveryFailed, RoleName: "Fans"},
			want: "privacy settings",
		},
		{
			name: "revoked",
			o:    toggle.Outcome{Action: toggle.ActionRevoked, RoleName: "Fans"},
			want: "has been removed",
		},
		{
			name: "stale button",
			err:  store.ErrConfigNotFound,
			want: "no longer active",
		},
		{
			name: "mutation failed",
			err:  toggle.ErrMutationFailed,
			want: "try again later",
		},
		{
			name: "unknown error",
			err:  errors.New("boom"),
			want: "Something went wrong",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := renderToggleReply(tt.o, tt.err)
			if !strings.Contains(got, tt.want) {
				t.Fatalf("renderToggleReply() = %q, want substring %q", got, tt.want)
			}
		})
	}
}
