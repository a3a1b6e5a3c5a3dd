package store

import (
	"context"
	"strings"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func (s *Store) CreateItem(ctx context.Context, item *core.Item) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetItemById(ctx context.Context, id uuid.UUID) (*core.Item, error) {
	var item core.Item
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&item).Error; err != nil {
		return nil, notFound(err, core.ErrItemNotFound)
	}
	return &item, nil
}

func (s *Store) UpdateItemContent(ctx context.Context, id uuid.UUID, title, text string, updatedAt int64) error {
	return s.db.WithContext(ctx).Model(&core.Item{}).Where("id = ?", id).
		Updates(map[string]any{"title": title, "text": text, "updated_at": updatedAt}).Error
}

func (s *Store) SetItemStatus(ctx context.Context, id uuid.UUID, status core.ItemStatus, updatedAt int64) error {
	updates := map[string]any{"status": status, "updated_at": updatedAt}
	if status == core.ItemStatusActive {
		updates["invoice_paid_at"] = updatedAt
	}
	return s.db.WithContext(ctx).Model(&core.Item{}).Where("id = ?", id).Updates(updates).Error
}

// CountRecentItems counts posts and comments the user made in the sub since the
// given time, failed ones excluded.
func (s *Store) CountRecentItems(ctx context.Context, userId uuid.UUID, subName string, since int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&core.Item{}).
		Where("user_id = ? AND sub_name = ? AND created_at >= ? AND status <> ?",
			userId, subName, since, core.ItemStatusFailed).
		Count(&count).Error
	return count, err
}

func (s *Store) IncrementItemMsats(ctx context.Context, id uuid.UUID, msats decimal.Decimal) error {
	return s.increment(ctx, &core.Item{}, id, "msats", msats)
}

func (s *Store) IncrementItemDownMsats(ctx context.Context, id uuid.UUID, msats decimal.Decimal) error {
	return s.increment(ctx, &core.Item{}, id, "down_msats", msats)
}

func (s *Store) IncrementItemBoost(ctx context.Context, id uuid.UUID, sats int64) error {
	return s.increment(ctx, &core.Item{}, id, "boost", sats)
}

func (s *Store) IncrementItemComments(ctx context.Context, id uuid.UUID, delta int64) error {
	return s.increment(ctx, &core.Item{}, id, "n_comments", delta)
}

func (s *Store) AddItemBountyPaidTo(ctx context.Context, id, commentId uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item core.Item
		if err := forUpdate(tx).Where("id = ?", id).Take(&item).Error; err != nil {
			return notFound(err, core.ErrItemNotFound)
		}
		if item.BountyPaidToComment(commentId) {
			return nil
		}
		paid := []string{commentId.String()}
		if item.BountyPaidTo != "" {
			paid = append(strings.Split(item.BountyPaidTo, ","), paid...)
		}
		return tx.Model(&core.Item{}).Where("id = ?", id).Update("bounty_paid_to", strings.Join(paid, ",")).Error
	})
}

func (s *Store) increment(ctx context.Context, model any, id uuid.UUID, column string, delta any) error {
	return s.db.WithContext(ctx).Model(model).Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
}

func (s *Store) CreateItemForwards(ctx context.Context, forwards []*core.ItemForward) error {
	if len(forwards) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&forwards).Error
}

func (s *Store) ListItemForwards(ctx context.Context, itemId uuid.UUID) ([]*core.ItemForward, error) {
	var forwards []*core.ItemForward
	err := s.db.WithContext(ctx).Where("item_id = ?", itemId).Order("pct DESC").Find(&forwards).Error
	return forwards, err
}

func (s *Store) CreatePollOptions(ctx context.Context, options []*core.PollOption) error {
	if len(options) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&options).Error
}

func (s *Store) GetPollOption(ctx context.Context, id uuid.UUID) (*core.PollOption, error) {
	var option core.PollOption
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&option).Error; err != nil {
		return nil, notFound(err, core.ErrPollNotFound)
	}
	return &option, nil
}

func (s *Store) IncrementPollOption(ctx context.Context, id uuid.UUID) error {
	return s.increment(ctx, &core.PollOption{}, id, "count", 1)
}

func (s *Store) CreatePollVote(ctx context.Context, vote *core.PollVote) error {
	return s.db.WithContext(ctx).Create(vote).Error
}

func (s *Store) FindActivePollVote(ctx context.Context, itemId, userId uuid.UUID) (*core.PollVote, error) {
	var vote core.PollVote
	err := s.db.WithContext(ctx).
		Joins("JOIN pay_ins ON pay_ins.id = poll_votes.pay_in_id").
		Where("poll_votes.item_id = ? AND poll_votes.user_id = ? AND pay_ins.pay_in_state <> ?",
			itemId, userId, core.PayInStateFailed).
		Take(&vote).Error
	if err != nil {
		return nil, notFound(err, core.ErrPollNotFound)
	}
	return &vote, nil
}

func (s *Store) GetPollVoteByPayIn(ctx context.Context, payInId uuid.UUID) (*core.PollVote, error) {
	var vote core.PollVote
	if err := s.db.WithContext(ctx).Where("pay_in_id = ?", payInId).Take(&vote).Error; err != nil {
		return nil, notFound(err, core.ErrPollNotFound)
	}
	return &vote, nil
}

func (s *Store) MovePollVote(ctx context.Context, oldPayInId, newPayInId uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&core.PollVote{}).Where("pay_in_id = ?", oldPayInId).
		Update("pay_in_id", newPayInId).Error
}

func (s *Store) CreateUpload(ctx context.Context, upload *core.Upload) error {
	return s.db.WithContext(ctx).Create(upload).Error
}

func (s *Store) ListUploads(ctx context.Context, ids []uuid.UUID) ([]*core.Upload, error) {
	var uploads []*core.Upload
	if len(ids) == 0 {
		return uploads, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&uploads).Error
	return uploads, err
}

func (s *Store) AttachUploads(ctx context.Context, ids []uuid.UUID, payInId uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&core.Upload{}).Where("id IN ?", ids).
		Update("pay_in_id", payInId).Error
}

func (s *Store) MoveUploads(ctx context.Context, oldPayInId, newPayInId uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&core.Upload{}).Where("pay_in_id = ?", oldPayInId).
		Update("pay_in_id", newPayInId).Error
}

func (s *Store) MarkUploadsPaid(ctx context.Context, payInId uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&core.Upload{}).Where("pay_in_id = ?", payInId).
		Update("paid", true).Error
}
