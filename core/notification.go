package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type (
	// Notifier is best effort. Callers log its errors and move on.
	Notifier interface {
		NotifyZapped(ctx context.Context, payIn *PayIn, userId, itemId uuid.UUID, msats decimal.Decimal) error
		NotifyBountyPaid(ctx context.Context, payIn *PayIn, userId, itemId uuid.UUID, msats decimal.Decimal) error
		NotifyReply(ctx context.Context, payIn *PayIn, userId, itemId uuid.UUID) error
		NotifyProxyPayment(ctx context.Context, payIn *PayIn, userId uuid.UUID, msats decimal.Decimal) error
		NotifyWithdrawal(ctx context.Context, payIn *PayIn) error
	}

	NotificationStore interface {
		// CreateNotification reports false when a notification with the same dedupe key exists.
		CreateNotification(ctx context.Context, notification *Notification) (bool, error)
		ListNotifications(ctx context.Context, userId uuid.UUID, limit int) ([]*Notification, error)
	}

	Notification struct {
		Id        uuid.UUID         `gorm:"type:char(36);primaryKey" json:"id"`
		UserId    uuid.UUID         `gorm:"type:char(36);index" json:"userId"`
		Kind      NotificationKind  `gorm:"type:varchar(32);not null" json:"kind"`
		DedupeKey uuid.UUID         `gorm:"type:char(36);uniqueIndex" json:"dedupeKey"`
		PayInId   uuid.UUID         `gorm:"type:char(36);index" json:"payInId"`
		Data      datatypes.JSONMap `json:"data"`
		CreatedAt int64             `json:"createdAt"`
	}

	NotificationKind string
)

const (
	NotificationKindZap          NotificationKind = "ZAP"
	NotificationKindBounty       NotificationKind = "BOUNTY"
	NotificationKindReply        NotificationKind = "REPLY"
	NotificationKindProxyPayment NotificationKind = "PROXY_PAYMENT"
	NotificationKindWithdrawal   NotificationKind = "WITHDRAWAL"
)

func (Notification) TableName() string { return "notifications" }

func NewNotification(clk clock.Clock, userId uuid.UUID, kind NotificationKind, payInId, dedupeKey uuid.UUID, data map[string]any) *Notification {
	return &Notification{
		Id:        uuid.Must(uuid.NewV4()),
		UserId:    userId,
		Kind:      kind,
		DedupeKey: dedupeKey,
		PayInId:   payInId,
		Data:      datatypes.JSONMap(data),
		CreatedAt: clk.Now().Unix(),
	}
}
