package store

import (
	"context"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var payInPreloads = []string{
	"PayInCustodialTokens",
	"PayOutCustodialTokens",
	"PayOutBolt11",
	"PayInBolt11",
	"PessimisticEnv",
	"ItemPayIn",
	"SubPayIns",
	"Beneficiaries",
	"Beneficiaries.PayOutCustodialTokens",
	"Beneficiaries.PayOutBolt11",
	"Beneficiaries.ItemPayIn",
	"Beneficiaries.SubPayIns",
}

func (s *Store) CreatePayIn(ctx context.Context, payIn *core.PayIn) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createPayIn(tx, payIn)
	})
}

// createPayIn writes the PayIn row and then each child table by name.
func createPayIn(tx *gorm.DB, payIn *core.PayIn) error {
	if payIn.Id.IsNil() {
		payIn.Id = uuid.Must(uuid.NewV4())
	}
	if err := tx.Omit(clause.Associations).Create(payIn).Error; err != nil {
		return errors.Wrap(err, "create pay in")
	}

	for _, token := range payIn.PayInCustodialTokens {
		if token.Id.IsNil() {
			token.Id = uuid.Must(uuid.NewV4())
		}
		token.PayInId = payIn.Id
	}
	if len(payIn.PayInCustodialTokens) > 0 {
		if err := tx.Create(&payIn.PayInCustodialTokens).Error; err != nil {
			return errors.Wrap(err, "create pay in custodial tokens")
		}
	}

	if err := createPayOutCustodialTokens(tx, payIn.Id, payIn.CreatedAt, payIn.PayOutCustodialTokens); err != nil {
		return err
	}

	if payIn.PayOutBolt11 != nil {
		if payIn.PayOutBolt11.Id.IsNil() {
			payIn.PayOutBolt11.Id = uuid.Must(uuid.NewV4())
		}
		payIn.PayOutBolt11.PayInId = payIn.Id
		if err := tx.Create(payIn.PayOutBolt11).Error; err != nil {
			return errors.Wrap(err, "create pay out bolt11")
		}
	}

	if payIn.PayInBolt11 != nil {
		payIn.PayInBolt11.PayInId = payIn.Id
		if err := tx.Create(payIn.PayInBolt11).Error; err != nil {
			return errors.Wrap(err, "create pay in bolt11")
		}
	}

	if payIn.PessimisticEnv != nil {
		payIn.PessimisticEnv.PayInId = payIn.Id
		if err := tx.Create(payIn.PessimisticEnv).Error; err != nil {
			return errors.Wrap(err, "create pessimistic env")
		}
	}

	if payIn.ItemPayIn != nil {
		payIn.ItemPayIn.PayInId = payIn.Id
		if err := tx.Create(payIn.ItemPayIn).Error; err != nil {
			return errors.Wrap(err, "create item pay in")
		}
	}

	for _, link := range payIn.SubPayIns {
		if link.Id.IsNil() {
			link.Id = uuid.Must(uuid.NewV4())
		}
		link.PayInId = payIn.Id
	}
	if len(payIn.SubPayIns) > 0 {
		if err := tx.Create(&payIn.SubPayIns).Error; err != nil {
			return errors.Wrap(err, "create sub pay ins")
		}
	}

	for _, beneficiary := range payIn.Beneficiaries {
		benefactorId := payIn.Id
		beneficiary.BenefactorId = &benefactorId
		if err := createPayIn(tx, beneficiary); err != nil {
			return errors.Wrap(err, "create beneficiary")
		}
	}
	return nil
}

func createPayOutCustodialTokens(tx *gorm.DB, payInId uuid.UUID, createdAt int64, tokens []*core.PayOutCustodialToken) error {
	if len(tokens) == 0 {
		return nil
	}
	for _, token := range tokens {
		if token.Id.IsNil() {
			token.Id = uuid.Must(uuid.NewV4())
		}
		token.PayInId = payInId
		if token.CreatedAt == 0 {
			token.CreatedAt = createdAt
		}
	}
	return errors.Wrap(tx.Create(&tokens).Error, "create pay out custodial tokens")
}

func (s *Store) GetPayIn(ctx context.Context, id uuid.UUID) (*core.PayIn, error) {
	query := s.db.WithContext(ctx)
	for _, preload := range payInPreloads {
		query = query.Preload(preload)
	}

	var payIn core.PayIn
	if err := query.Where("id = ?", id).Take(&payIn).Error; err != nil {
		return nil, notFound(err, core.ErrPayInNotFound)
	}
	return &payIn, nil
}

func (s *Store) GetPayInByInvoiceHash(ctx context.Context, hash string) (*core.PayIn, error) {
	var invoice core.PayInBolt11
	if err := s.db.WithContext(ctx).Where("hash = ?", hash).Take(&invoice).Error; err != nil {
		return nil, notFound(err, core.ErrPayInNotFound)
	}
	return s.GetPayIn(ctx, invoice.PayInId)
}

func (s *Store) GetLatestPayInInChain(ctx context.Context, genesisId uuid.UUID) (*core.PayIn, error) {
	var payIn core.PayIn
	err := s.db.WithContext(ctx).
		Where("id = ? OR genesis_id = ?", genesisId, genesisId).
		Order("attempt DESC").
		Take(&payIn).Error
	if err != nil {
		return nil, notFound(err, core.ErrPayInNotFound)
	}
	return &payIn, nil
}

func (s *Store) TransitionPayInState(ctx context.Context, id uuid.UUID, from []core.PayInState, to core.PayInState, reason core.PayInFailureReason, changedAt int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&core.PayIn{}).
		Where("id = ? AND pay_in_state IN ?", id, from).
		Updates(map[string]any{
			"pay_in_state":            to,
			"pay_in_failure_reason":   reason,
			"pay_in_state_changed_at": changedAt,
			"updated_at":              changedAt,
		})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "transition pay in %s to %s", id, to)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) TransitionBeneficiaries(ctx context.Context, benefactorId uuid.UUID, to core.PayInState, reason core.PayInFailureReason, changedAt int64) error {
	return s.db.WithContext(ctx).Model(&core.PayIn{}).
		Where("benefactor_id = ? AND pay_in_state <> ?", benefactorId, to).
		Updates(map[string]any{
			"pay_in_state":            to,
			"pay_in_failure_reason":   reason,
			"pay_in_state_changed_at": changedAt,
			"updated_at":              changedAt,
		}).Error
}

func (s *Store) CreatePayOutCustodialTokens(ctx context.Context, tokens []*core.PayOutCustodialToken) error {
	if len(tokens) == 0 {
		return nil
	}
	for _, token := range tokens {
		if token.Id.IsNil() {
			token.Id = uuid.Must(uuid.NewV4())
		}
	}
	return s.db.WithContext(ctx).Create(&tokens).Error
}

func (s *Store) UpdatePayOutBolt11(ctx context.Context, payOut *core.PayOutBolt11) error {
	return s.db.WithContext(ctx).Model(payOut).
		Select("status", "failure_reason", "preimage", "updated_at").
		Updates(payOut).Error
}

func (s *Store) SavePayInBolt11(ctx context.Context, invoice *core.PayInBolt11) error {
	return s.db.WithContext(ctx).Save(invoice).Error
}

func (s *Store) UpdatePessimisticEnv(ctx context.Context, env *core.PessimisticEnv) error {
	return s.db.WithContext(ctx).Model(env).
		Select("performed", "result", "updated_at").
		Updates(env).Error
}

func (s *Store) CreateItemPayIn(ctx context.Context, link *core.ItemPayIn) error {
	return s.db.WithContext(ctx).Create(link).Error
}

func (s *Store) CountPendingPayIns(ctx context.Context, userId uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&core.PayIn{}).
		Where("user_id = ? AND benefactor_id IS NULL AND pay_in_state IN ?", userId, core.PendingPayInStates).
		Count(&count).Error
	return count, err
}

// CountPendingDirectPayIns counts pending PayIns that route part of the payment to a payee wallet.
func (s *Store) CountPendingDirectPayIns(ctx context.Context, userId uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&core.PayIn{}).
		Joins("JOIN pay_out_bolt11s ON pay_out_bolt11s.pay_in_id = pay_ins.id").
		Where("pay_ins.user_id = ? AND pay_ins.benefactor_id IS NULL AND pay_ins.pay_in_state IN ? AND pay_ins.pay_in_type NOT IN ?",
			userId, core.PendingPayInStates, []core.PayInType{core.PayInTypeWithdrawal, core.PayInTypeAutoWithdrawal}).
		Count(&count).Error
	return count, err
}

func (s *Store) ListStalePayIns(ctx context.Context, changedBefore int64, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&core.PayIn{}).
		Where("benefactor_id IS NULL AND pay_in_state IN ? AND pay_in_state_changed_at < ?",
			core.PendingPayInStates, changedBefore).
		Order("pay_in_state_changed_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
