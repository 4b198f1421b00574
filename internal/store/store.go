// Package store is the durable home for the admin-owned state document
// (prefix, owner, admin roles, blacklist, channel configs) and the gift
// delivery receipts. All mutations flush synchronously; a flush failure at
// runtime is logged and the in-memory state is kept (stale-risk accepted),
// while an unreadable store at startup is fatal.
package store

import (
	"fmt"
	"strings"
	"sync"

	logx "fangate/pkg/logx"
)

// Store is the persistence API consumed by the toggle controller, fan-out
// dispatcher, promo publisher and admin router.
type Store interface {
	State() State

	Config(channelID string) (ChannelConfig, bool)
	Configs() []ChannelConfig
	AddConfig(c ChannelConfig) error
	SetConfig(c ChannelConfig) error
	DeleteConfig(channelID string) error

	Blacklist() Blacklist
	BlacklistAdd(kind BlacklistKind, id string) bool
	BlacklistRemove(kind BlacklistKind, id string) bool

	HasReceipt(k ReceiptKey) bool
	PutReceipt(k ReceiptKey) error
	DeleteUserReceipts(userID string) (int, error)
	ReceiptCount() int

	Close() error
}

// Config selects the backing persistence.
//
// Driver values for the receipts side:
//   - "file": flat JSON document (the format of record)
//   - "sqlite": SQLite database file
//
// The state document is always a JSON file; its format is shared with the
// admin tooling that predates this implementation.
type Config struct {
	StatePath    string
	ReceiptsPath string
	Driver       string
}

// Open loads the configured store. Corrupt files fail here; there is no
// partial recovery.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.StatePath) == "" {
		return nil, fmt.Errorf("store: state path is required")
	}

	var (
		rcpt receiptBackend
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		rcpt, err = openFileReceipts(cfg.ReceiptsPath)
	case "sqlite", "sqlite3":
		rcpt, err = openSQLiteReceipts(cfg.ReceiptsPath)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	state, err := loadStateFile(cfg.StatePath)
	if err != nil {
		_ = rcpt.close()
		return nil, err
	}
	receipts, err := rcpt.load()
	if err != nil {
		_ = rcpt.close()
		return nil, err
	}

	return &coreStore{
		log:       log,
		state:     state,
		receipts:  receipts,
		statePath: cfg.StatePath,
		rcpt:      rcpt,
	}, nil
}

// receiptBackend persists receipt mutations. The in-memory map stays the
// source of truth for reads.
type receiptBackend interface {
	load() (map[ReceiptKey]struct{}, error)
	put(k ReceiptKey, all map[ReceiptKey]struct{}) error
	deleteUser(userID string, all map[ReceiptKey]struct{}) error
	close() error
}

type coreStore struct {
	log logx.Logger

	mu       sync.RWMutex
	state    State
	receipts map[ReceiptKey]struct{}

	// statePath empty and rcpt nil means memory-only (tests).
	statePath string
	rcpt      receiptBackend
}

func (s *coreStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rcpt == nil {
		return nil
	}
	rcpt := s.rcpt
	s.rcpt = nil
	return rcpt.close()
}

func (s *coreStore) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// ---- channel configs ----

func (s *coreStore) Config(channelID string) (ChannelConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.state.Configs {
		if c.ChannelID == channelID {
			return c, true
		}
	}
	return ChannelConfig{}, false
}

func (s *coreStore) Configs() []ChannelConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ChannelConfig(nil), s.state.Configs...)
}

func (s *coreStore) AddConfig(c ChannelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.state.Configs {
		if ex.ChannelID == c.ChannelID {
			return ErrConfigExists
		}
	}
	s.state.Configs = append(s.state.Configs, c)
	s.flushStateLocked()
	return nil
}

func (s *coreStore) SetConfig(c ChannelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ex := range s.state.Configs {
		if ex.ChannelID == c.ChannelID {
			s.state.Configs[i] = c
			s.flushStateLocked()
			return nil
		}
	}
	return ErrConfigNotFound
}

func (s *coreStore) DeleteConfig(channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ex := range s.state.Configs {
		if ex.ChannelID == channelID {
			s.state.Configs = append(s.state.Configs[:i], s.state.Configs[i+1:]...)
			s.flushStateLocked()
			return nil
		}
	}
	return ErrConfigNotFound
}

// ---- blacklist ----

func (s *coreStore) Blacklist() Blacklist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Blacklist{
		Users: append([]string(nil), s.state.Blacklist.Users...),
		Roles: append([]string(nil), s.state.Blacklist.Roles...),
	}
}

func (s *coreStore) BlacklistAdd(kind BlacklistKind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.blacklistLocked(kind)
	for _, ex := range *list {
		if ex == id {
			return false
		}
	}
	*list = append(*list, id)
	s.flushStateLocked()
	return true
}

func (s *coreStore) BlacklistRemove(kind BlacklistKind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.blacklistLocked(kind)
	for i, ex := range *list {
		if ex == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			s.flushStateLocked()
			return true
		}
	}
	return false
}

func (s *coreStore) blacklistLocked(kind BlacklistKind) *[]string {
	if kind == BlacklistRole {
		return &s.state.Blacklist.Roles
	}
	return &s.state.Blacklist.Users
}

// ---- receipts ----

func (s *coreStore) HasReceipt(k ReceiptKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.receipts[k]
	return ok
}

// PutReceipt records the delivery and flushes. A flush failure is returned so
// the caller can surface a warning, but the in-memory receipt is kept either
// way: favoring "never re-send a gift" over durability.
func (s *coreStore) PutReceipt(k ReceiptKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[k] = struct{}{}
	if s.rcpt == nil {
		return nil
	}
	if err := s.rcpt.put(k, s.receipts); err != nil {
		s.log.Warn("receipt flush failed; keeping in-memory state", logx.String("key", k.String()), logx.Err(err))
		return fmt.Errorf("flush receipts: %w", err)
	}
	return nil
}

func (s *coreStore) DeleteUserReceipts(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.receipts {
		if k.UserID == userID {
			delete(s.receipts, k)
			n++
		}
	}
	if n == 0 || s.rcpt == nil {
		return n, nil
	}
	if err := s.rcpt.deleteUser(userID, s.receipts); err != nil {
		s.log.Warn("receipt flush failed; keeping in-memory state", logx.String("user", userID), logx.Err(err))
		return n, fmt.Errorf("flush receipts: %w", err)
	}
	return n, nil
}

// ReceiptCount reports the number of stored receipts. Logged at startup and
// useful when diagnosing resetdm complaints.
func (s *coreStore) ReceiptCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.receipts)
}

func (s *coreStore) flushStateLocked() {
	if s.statePath == "" {
		return
	}
	if err := writeStateFile(s.statePath, s.state); err != nil {
		s.log.Warn("state flush failed; keeping in-memory state", logx.String("path", s.statePath), logx.Err(err))
	}
}

