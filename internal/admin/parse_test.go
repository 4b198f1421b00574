package admin

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"config list", []string{"config", "list"}},
		{`config set <#1> msg "hello there"`, []string{"config", "set", "<#1>", "msg", "hello there"}},
		{`dmall 42 it's\ fine`, []string{"dmall", "42", "its fine"}},
		{"a\tb\nc", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		if got := tokenize(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStripMention(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"123", "123"},
		{"<@123>", "123"},
		{"<@!123>", "123"},
		{"<@&456>", "456"},
		{"<#789>", "789"},
		{"  <#789> ", "789"},
	}
	for _, tt := range tests {
		if got := stripMention(tt.in); got != tt.want {
			t.Fatalf("stripMention(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitButtonFlag(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in          string
		wantRest    string
		wantChannel string
		wantOK      bool
	}{
		{"new drop is live", "new drop is live", "", false},
		{"new drop --btn", "new drop", "", true},
		{"new drop --btn <#55> extra", "new drop", "55", true},
		{"--btn 55", "", "55", true},
	}
	for _, tt := range tests {
		rest, ch, ok := splitButtonFlag(tt.in)
		if rest != tt.wantRest || ch != tt.wantChannel || ok != tt.wantOK {
			t.Fatalf("splitButtonFlag(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, rest, ch, ok, tt.wantRest, tt.wantChannel, tt.wantOK)
		}
	}
}
