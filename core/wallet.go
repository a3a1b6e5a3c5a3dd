package core

import (
	"context"
	"sort"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	WalletStore interface {
		CreateWallet(ctx context.Context, wallet *Wallet) error
		ListWalletsByUser(ctx context.Context, userId uuid.UUID, enabledOnly bool) ([]*Wallet, error)
		// CountWalletFailures counts failed payouts per wallet across a genesis chain.
		CountWalletFailures(ctx context.Context, genesisId uuid.UUID) (map[uuid.UUID]int64, error)
	}

	// WalletDirectory is the payout side of a user's configured receive wallets.
	WalletDirectory interface {
		ListEnabledWallets(ctx context.Context, userId uuid.UUID) ([]*Wallet, error)
		ListLeastFailedWallets(ctx context.Context, genesisId, userId uuid.UUID) ([]*Wallet, error)
		// CreateInvoice asks the wallet for an invoice paying msats to its owner.
		CreateInvoice(ctx context.Context, wallet *Wallet, msats decimal.Decimal, description string, expiry time.Duration) (string, error)
	}

	Wallet struct {
		Id       uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
		UserId   uuid.UUID      `gorm:"type:char(36);index" json:"userId"`
		Protocol WalletProtocol `gorm:"type:varchar(16);not null" json:"protocol"`
		Address  string         `json:"address"`
		Priority int64          `gorm:"not null;default:0" json:"priority"`
		Enabled  bool           `gorm:"not null" json:"enabled"`

		// Failures is filled by the directory for the genesis chain being routed.
		Failures int64 `gorm:"-" json:"failures"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}

	WalletProtocol string
)

const (
	WalletProtocolNWC   WalletProtocol = "NWC"
	WalletProtocolLNURL WalletProtocol = "LNURLP"
	WalletProtocolLND   WalletProtocol = "LND_GRPC"
	WalletProtocolCLN   WalletProtocol = "CLN_REST"
)

func (p WalletProtocol) String() string { return string(p) }

func (Wallet) TableName() string { return "wallets" }

func NewWallet(clk clock.Clock, userId uuid.UUID, protocol WalletProtocol, address string, priority int64) *Wallet {
	return &Wallet{
		Id:        uuid.Must(uuid.NewV4()),
		UserId:    userId,
		Protocol:  protocol,
		Address:   address,
		Priority:  priority,
		Enabled:   true,
		CreatedAt: clk.Now().Unix(),
		UpdatedAt: clk.Now().Unix(),
	}
}

// RankWallets orders wallets by ascending failures in the genesis chain, then
// ascending priority. Ties fall back to the id so the order is stable.
func RankWallets(wallets []*Wallet) []*Wallet {
	ranked := make([]*Wallet, len(wallets))
	copy(ranked, wallets)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Failures != b.Failures {
			return a.Failures < b.Failures
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Id.String() < b.Id.String()
	})
	return ranked
}
