package store

import (
	"errors"
	"path/filepath"
	"testing"

	logx "fangate/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Config{
		StatePath:    filepath.Join(dir, "config.json"),
		ReceiptsPath: filepath.Join(dir, "data.json"),
		Driver:       "file",
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddConfigRejectsDuplicateChannel(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if err := s.AddConfig(DefaultChannelConfig("C1", "G1", "R1")); err != nil {
		t.Fatalf("AddConfig error: %v", err)
	}
	err := s.AddConfig(DefaultChannelConfig("C1", "G1", "R2"))
	if !errors.Is(err, ErrConfigExists) {
		t.Fatalf("AddConfig duplicate = %v, want ErrConfigExists", err)
	}
	// The rejected add must not have mutated the store.
	cfgs := s.Configs()
	if len(cfgs) != 1 || cfgs[0].RoleID != "R1" {
		t.Fatalf("unexpected configs after rejected add: %+v", cfgs)
	}
}

func TestSetConfigUnknownChannel(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	if err := s.SetConfig(DefaultChannelConfig("C9", "G1", "R1")); !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("SetConfig = %v, want ErrConfigNotFound", err)
	}
}

func TestDeleteUserReceiptsScoping(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	keys := []ReceiptKey{
		{UserID: "U1", ChannelID: "C1"},
		{UserID: "U1", ChannelID: "C2"},
		{UserID: "U2", ChannelID: "C1"},
	}
	for _, k := range keys {
		if err := s.PutReceipt(k); err != nil {
			t.Fatalf("PutReceipt(%v) error: %v", k, err)
		}
	}

	n, err := s.DeleteUserReceipts("U1")
	if err != nil {
		t.Fatalf("DeleteUserReceipts error: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d, want 2", n)
	}
	if s.HasReceipt(ReceiptKey{UserID: "U1", ChannelID: "C1"}) {
		t.Fatal("U1_C1 receipt should be gone")
	}
	if !s.HasReceipt(ReceiptKey{UserID: "U2", ChannelID: "C1"}) {
		t.Fatal("U2_C1 receipt must survive another user's reset")
	}
}

func TestFilePersistenceRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := Config{
		StatePath:    filepath.Join(dir, "config.json"),
		ReceiptsPath: filepath.Join(dir, "data.json"),
	}

	s, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := s.AddConfig(DefaultChannelConfig("C1", "G1", "R1")); err != nil {
		t.Fatalf("AddConfig error: %v", err)
	}
	if !s.BlacklistAdd(BlacklistUser, "U9") {
		t.Fatal("BlacklistAdd should report change")
	}
	if err := s.PutReceipt(ReceiptKey{UserID: "U1", ChannelID: "C1"}); err != nil {
		t.Fatalf("PutReceipt error: %v", err)
	}
	_ = s.Close()

	// Reopen: everything must come back.
	s2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s2.Close()

	if _, ok := s2.Config("C1"); !ok {
		t.Fatal("config C1 not persisted")
	}
	bl := s2.Blacklist()
	if len(bl.Users) != 1 || bl.Users[0] != "U9" {
		t.Fatalf("blacklist not persisted: %+v", bl)
	}
	if !s2.HasReceipt(ReceiptKey{UserID: "U1", ChannelID: "C1"}) {
		t.Fatal("receipt not persisted")
	}
}

func TestBlacklistAddIsIdempotent(t *testing.T) {
	t.Parallel()
	s := NewMemory(State{})

	if !s.BlacklistAdd(BlacklistRole, "R1") {
		t.Fatal("first add should change the set")
	}
	if s.BlacklistAdd(BlacklistRole, "R1") {
		t.Fatal("second add should be a no-op")
	}
	if !s.BlacklistRemove(BlacklistRole, "R1") {
		t.Fatal("remove should change the set")
	}
	if s.BlacklistRemove(BlacklistRole, "R1") {
		t.Fatal("second remove should be a no-op")
	}
}

func TestReceiptKeyFormat(t *testing.T) {
	t.Parallel()
	k := ReceiptKey{UserID: "123", ChannelID: "456"}
	if got := k.String(); got != "123_456" {
		t.Fatalf("String() = %q, want 123_456", got)
	}

	parsed, err := parseReceiptKey("123_456")
	if err != nil {
		t.Fatalf("parseReceiptKey error: %v", err)
	}
	if parsed != k {
		t.Fatalf("parsed = %+v, want %+v", parsed, k)
	}

	for _, bad := range []string{"", "_", "123_", "_456", "123"} {
		if _, err := parseReceiptKey(bad); err == nil {
			t.Fatalf("parseReceiptKey(%q) should fail", bad)
		}
	}
}

func TestCorruptStateFileFailsOpen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	statePath := filepath.Join(dir, "config.json")
	if err := writeFileAtomic(statePath, []byte("{not json")); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	_, err := Open(Config{
		StatePath:    statePath,
		ReceiptsPath: filepath.Join(dir, "data.json"),
	}, logx.Nop())
	if err == nil {
		t.Fatal("Open should fail on a corrupt state document")
	}
}

func TestReceiptCount(t *testing.T) {
	t.Parallel()
	st := NewMemory(State{})
	if st.ReceiptCount() != 0 {
		t.Fatalf("fresh store count = %d", st.ReceiptCount())
	}
	_ = st.PutReceipt(ReceiptKey{UserID: "U1", ChannelID: "C1"})
	_ = st.PutReceipt(ReceiptKey{UserID: "U1", ChannelID: "C2"})
	_ = st.PutReceipt(ReceiptKey{UserID: "U1", ChannelID: "C2"})
	if st.ReceiptCount() != 2 {
		t.Fatalf("count = %d, want 2 (duplicate put must not double-count)", st.ReceiptCount())
	}
	if _, err := st.DeleteUserReceipts("U1"); err != nil {
		t.Fatalf("DeleteUserReceipts: %v", err)
	}
	if st.ReceiptCount() != 0 {
		t.Fatalf("count after reset = %d", st.ReceiptCount())
	}
}
