package store

import (
	"context"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
)

func (s *Store) CreateWallet(ctx context.Context, wallet *core.Wallet) error {
	return s.db.WithContext(ctx).Create(wallet).Error
}

func (s *Store) ListWalletsByUser(ctx context.Context, userId uuid.UUID, enabledOnly bool) ([]*core.Wallet, error) {
	var wallets []*core.Wallet
	query := s.db.WithContext(ctx).Where("user_id = ?", userId)
	if enabledOnly {
		query = query.Where("enabled = ?", true)
	}
	err := query.Order("priority ASC").Find(&wallets).Error
	return wallets, err
}

type walletFailures struct {
	WalletId uuid.UUID
	Failures int64
}

func (s *Store) CountWalletFailures(ctx context.Context, genesisId uuid.UUID) (map[uuid.UUID]int64, error) {
	var rows []walletFailures
	err := s.db.WithContext(ctx).Table("pay_out_bolt11s").
		Select("pay_out_bolt11s.wallet_id AS wallet_id, COUNT(*) AS failures").
		Joins("JOIN pay_ins ON pay_ins.id = pay_out_bolt11s.pay_in_id").
		Where("(pay_ins.id = ? OR pay_ins.genesis_id = ?) AND pay_out_bolt11s.status = ? AND pay_out_bolt11s.failure_reason <> '' AND pay_out_bolt11s.wallet_id IS NOT NULL",
			genesisId, genesisId, core.PayOutStatusFailed).
		Group("pay_out_bolt11s.wallet_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	failures := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		failures[row.WalletId] = row.Failures
	}
	return failures, nil
}
