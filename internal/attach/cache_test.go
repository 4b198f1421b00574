package attach

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	logx "fangate/pkg/logx"
)

func TestDownloadToLocal(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("image-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(t.TempDir(), logx.Nop())
	ctx := context.Background()

	path, err := c.DownloadToLocal(ctx, srv.URL+"/ok", "C1_dm_gift.png")
	if err != nil {
		t.Fatalf("DownloadToLocal error: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if string(b) != "image-bytes" {
		t.Fatalf("cached content = %q", b)
	}

	// Non-200 responses must not leave files behind.
	if _, err := c.DownloadToLocal(ctx, srv.URL+"/missing", "gone.png"); err == nil {
		t.Fatal("expected error for 404 download")
	}
	entries, _ := os.ReadDir(c.Dir())
	if len(entries) != 1 {
		t.Fatalf("cache dir has %d entries, want only the successful download", len(entries))
	}
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"gift.png", "gift.png"},
		{"../../etc/passwd", "passwd"},
		{"a b?.png", "a_b_.png"},
		{"", "attachment"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Fatalf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanOrphans(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.png")
	drop := filepath.Join(dir, "drop.png")
	for _, p := range []string{keep, drop} {
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
	}

	c := New(dir, logx.Nop())
	removed, err := c.CleanOrphans(map[string]struct{}{keep: {}})
	if err != nil {
		t.Fatalf("CleanOrphans error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatal("referenced file must survive cleanup")
	}
	if _, err := os.Stat(drop); !os.IsNotExist(err) {
		t.Fatal("orphan should be gone")
	}
}
