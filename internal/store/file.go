package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// State and receipts are whole-file JSON documents, replaced atomically
// (write temp, rename). There is no transactional consistency between the
// two files; a crash between flushes can leave them out of step.

func loadStateFile(path string) (State, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// First run: start with an empty document and a stock prefix.
		return State{Prefix: "!"}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, fmt.Errorf("parse state %s: %w", path, err)
	}
	if strings.TrimSpace(st.Prefix) == "" {
		st.Prefix = "!"
	}
	return st, nil
}

func writeStateFile(path string, st State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, b)
}

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ---- receipts file backend ----

type fileReceipts struct {
	path string
}

func openFileReceipts(path string) (receiptBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: receipts path is required for file driver")
	}
	return &fileReceipts{path: path}, nil
}

func (f *fileReceipts) load() (map[ReceiptKey]struct{}, error) {
	out := map[ReceiptKey]struct{}{}
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read receipts: %w", err)
	}
	var m map[string]bool
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse receipts %s: %w", f.path, err)
	}
	for raw, v := range m {
		if !v {
			continue
		}
		k, err := parseReceiptKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parse receipts %s: %w", f.path, err)
		}
		out[k] = struct{}{}
	}
	return out, nil
}

func (f *fileReceipts) flush(all map[ReceiptKey]struct{}) error {
	m := make(map[string]bool, len(all))
	for k := range all {
		m[k.String()] = true
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path, b)
}

func (f *fileReceipts) put(_ ReceiptKey, all map[ReceiptKey]struct{}) error {
	return f.flush(all)
}

func (f *fileReceipts) deleteUser(_ string, all map[ReceiptKey]struct{}) error {
	return f.flush(all)
}

func (f *fileReceipts) close() error { return nil }
