package store

import (
	"context"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
	"gorm.io/gorm/clause"
)

func (s *Store) CreateNotification(ctx context.Context, notification *core.Notification) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(notification)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListNotifications(ctx context.Context, userId uuid.UUID, limit int) ([]*core.Notification, error) {
	var notifications []*core.Notification
	err := s.db.WithContext(ctx).Where("user_id = ?", userId).
		Order("created_at DESC").Limit(limit).Find(&notifications).Error
	return notifications, err
}
