package store

import logx "fangate/pkg/logx"

// NewMemory returns a store with no persistence. Used in tests and as the
// fallback when a deployment explicitly disables durable storage.
func NewMemory(initial State) Store {
	if initial.Prefix == "" {
		initial.Prefix = "!"
	}
	return &coreStore{
		log:      logx.Nop(),
		state:    initial.clone(),
		receipts: map[ReceiptKey]struct{}{},
	}
}
