// Package wallet resolves a user's receive wallets and asks them for invoices.
package wallet

import (
	"context"
	"time"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Receiver issues invoices on behalf of a wallet of one protocol.
type Receiver interface {
	CreateInvoice(ctx context.Context, wallet *core.Wallet, msats decimal.Decimal, description string, expiry time.Duration) (string, error)
}

var ErrNoReceiver = errors.New("no receiver for wallet protocol")

type Directory struct {
	wallets   core.WalletStore
	receivers map[core.WalletProtocol]Receiver
}

var _ core.WalletDirectory = (*Directory)(nil)

func NewDirectory(wallets core.WalletStore) *Directory {
	return &Directory{
		wallets:   wallets,
		receivers: map[core.WalletProtocol]Receiver{},
	}
}

// Register installs the receiver for protocols. Later registrations win.
func (d *Directory) Register(r Receiver, protocols ...core.WalletProtocol) *Directory {
	for _, p := range protocols {
		d.receivers[p] = r
	}
	return d
}

// ListEnabledWallets returns the user's enabled wallets that have a receiver, by priority.
func (d *Directory) ListEnabledWallets(ctx context.Context, userId uuid.UUID) ([]*core.Wallet, error) {
	wallets, err := d.wallets.ListWalletsByUser(ctx, userId, true)
	if err != nil {
		return nil, errors.Wrapf(err, "list wallets of %s", userId)
	}
	return core.RankWallets(d.supported(wallets)), nil
}

// ListLeastFailedWallets ranks the user's wallets by how often they failed
// within the genesis chain.
func (d *Directory) ListLeastFailedWallets(ctx context.Context, genesisId, userId uuid.UUID) ([]*core.Wallet, error) {
	wallets, err := d.wallets.ListWalletsByUser(ctx, userId, true)
	if err != nil {
		return nil, errors.Wrapf(err, "list wallets of %s", userId)
	}
	failures, err := d.wallets.CountWalletFailures(ctx, genesisId)
	if err != nil {
		return nil, errors.Wrapf(err, "count wallet failures in %s", genesisId)
	}

	wallets = d.supported(wallets)
	for _, w := range wallets {
		w.Failures = failures[w.Id]
	}
	return core.RankWallets(wallets), nil
}

func (d *Directory) CreateInvoice(ctx context.Context, w *core.Wallet, msats decimal.Decimal, description string, expiry time.Duration) (string, error) {
	r, ok := d.receivers[w.Protocol]
	if !ok {
		return "", errors.Wrap(ErrNoReceiver, w.Protocol.String())
	}
	bolt11, err := r.CreateInvoice(ctx, w, msats, description, expiry)
	if err != nil {
		return "", errors.Wrapf(err, "wallet %s", w.Id)
	}
	return bolt11, nil
}

func (d *Directory) supported(wallets []*core.Wallet) []*core.Wallet {
	out := wallets[:0]
	for _, w := range wallets {
		if _, ok := d.receivers[w.Protocol]; ok {
			out = append(out, w)
		}
	}
	return out
}
