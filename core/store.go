package core

import "context"

// Store is the persistence the engine runs on. Transaction hands fn a Store bound
// to one database transaction; fn must use it for every call it makes.
type Store interface {
	UserStore
	LedgerStore
	SubStore
	ItemStore
	WalletStore
	PayInStore
	NotificationStore

	Transaction(ctx context.Context, fn func(tx Store) error) error
}
