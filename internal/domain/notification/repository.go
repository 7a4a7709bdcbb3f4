package notification

import (
	"context"
)

// LedgerRepository stores reminder ledger entries.
type LedgerRepository interface {
	// TryInsert writes entry unless its key already exists. inserted is false
	// when the key was present; that case is not an error.
	TryInsert(ctx context.Context, entry *LedgerEntry) (inserted bool, err error)
}

// SubscriberRepository reads reminder preferences.
type SubscriberRepository interface {
	ListEnabled(ctx context.Context) ([]Subscriber, error)
}
