package store

import (
	"context"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func (s *Store) CreateUser(ctx context.Context, user *core.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *Store) GetUserById(ctx context.Context, id uuid.UUID) (*core.User, error) {
	var user core.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, notFound(err, core.ErrUserNotFound)
	}
	return &user, nil
}

func (s *Store) UpdateUserSettings(ctx context.Context, user *core.User) error {
	return s.db.WithContext(ctx).Model(user).
		Select("name", "user_flags", "send_credits_below_sats", "receive_credits_below_sats",
			"auto_withdraw_threshold_sats", "auto_withdraw_max_fee_percent", "updated_at").
		Updates(user).Error
}

func (s *Store) SetUserFlag(ctx context.Context, id uuid.UUID, flag core.UserFlags, on bool) (bool, error) {
	var was bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user core.User
		if err := forUpdate(tx).Where("id = ?", id).Take(&user).Error; err != nil {
			return notFound(err, core.ErrUserNotFound)
		}

		was = user.GetFlag(flag)
		if was == on {
			return nil
		}
		if on {
			user.SetFlag(flag)
		} else {
			user.UnsetFlag(flag)
		}
		return tx.Model(&core.User{}).Where("id = ?", id).Update("user_flags", user.UserFlags).Error
	})
	if err != nil {
		return false, errors.Wrapf(err, "set flag %d on %s", flag, id)
	}
	return was, nil
}

// DebitCustodial spends min(balance, msats). The user row stays locked until the
// caller's transaction ends.
func (s *Store) DebitCustodial(ctx context.Context, userId uuid.UUID, asset core.CustodialTokenType, msats decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	spent, before := decimal.Zero, decimal.Zero
	if !msats.IsPositive() {
		return spent, before, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user core.User
		if err := forUpdate(tx).Where("id = ?", userId).Take(&user).Error; err != nil {
			return notFound(err, core.ErrUserNotFound)
		}

		before = user.Balance(asset)
		spent = decimal.Min(before, msats)
		if !spent.IsPositive() {
			spent = decimal.Zero
			return nil
		}
		return tx.Model(&core.User{}).Where("id = ?", userId).
			Update(core.BalanceColumn(asset), before.Sub(spent)).Error
	})
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrapf(err, "debit %s from %s", asset, userId)
	}
	return spent, before, nil
}

func (s *Store) CreditCustodial(ctx context.Context, userId uuid.UUID, asset core.CustodialTokenType, msats decimal.Decimal) error {
	if msats.IsNegative() {
		return core.Invariantf("credit of %s is negative", msats)
	}
	if msats.IsZero() {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user core.User
		if err := forUpdate(tx).Where("id = ?", userId).Take(&user).Error; err != nil {
			return notFound(err, core.ErrUserNotFound)
		}
		return tx.Model(&core.User{}).Where("id = ?", userId).
			Update(core.BalanceColumn(asset), user.Balance(asset).Add(msats)).Error
	})
	return errors.Wrapf(err, "credit %s to %s", asset, userId)
}
