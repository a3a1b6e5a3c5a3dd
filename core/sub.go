package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
)

type (
	SubStore interface {
		CreateSub(ctx context.Context, sub *Sub) error
		GetSubByName(ctx context.Context, name string) (*Sub, error)
		ListSubsByNames(ctx context.Context, names []string) ([]*Sub, error)
	}

	// Sub is a territory. Its founder earns everything the rewards percentage does not take.
	Sub struct {
		Name          string    `gorm:"type:varchar(32);primaryKey" json:"name"`
		UserId        uuid.UUID `gorm:"type:char(36);index" json:"userId"`
		BaseCostSats  int64     `gorm:"not null" json:"baseCostSats"`
		ReplyCostSats int64     `gorm:"not null" json:"replyCostSats"`
		RewardsPct    int64     `gorm:"not null" json:"rewardsPct"`
		Status        SubStatus `gorm:"type:varchar(16);not null" json:"status"`
		Description   string    `json:"description"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}

	SubStatus string
)

const (
	SubStatusActive   SubStatus = "ACTIVE"
	SubStatusGrace    SubStatus = "GRACE"
	SubStatusStopped  SubStatus = "STOPPED"
	SubStatusArchived SubStatus = "ARCHIVED"
)

func (Sub) TableName() string { return "subs" }

func NewSub(clk clock.Clock, name string, founder uuid.UUID, baseCostSats, rewardsPct int64) *Sub {
	return &Sub{
		Name:          name,
		UserId:        founder,
		BaseCostSats:  baseCostSats,
		ReplyCostSats: 1,
		RewardsPct:    rewardsPct,
		Status:        SubStatusActive,
		CreatedAt:     clk.Now().Unix(),
		UpdatedAt:     clk.Now().Unix(),
	}
}

func (s *Sub) Update(clk clock.Clock, baseCostSats, replyCostSats, rewardsPct int64, description string) {
	s.BaseCostSats = baseCostSats
	s.ReplyCostSats = replyCostSats
	s.RewardsPct = rewardsPct
	s.Description = description
	s.UpdatedAt = clk.Now().Unix()
}

// Postable reports whether new paid actions may target the territory.
func (s *Sub) Postable() bool {
	return s.Status == SubStatusActive || s.Status == SubStatusGrace
}
