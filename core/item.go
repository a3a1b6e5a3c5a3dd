package core

import (
	"context"
	"strings"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	ItemStore interface {
		CreateItem(ctx context.Context, item *Item) error
		GetItemById(ctx context.Context, id uuid.UUID) (*Item, error)
		UpdateItemContent(ctx context.Context, id uuid.UUID, title, text string, updatedAt int64) error
		SetItemStatus(ctx context.Context, id uuid.UUID, status ItemStatus, updatedAt int64) error
		CountRecentItems(ctx context.Context, userId uuid.UUID, subName string, since int64) (int64, error)
		IncrementItemMsats(ctx context.Context, id uuid.UUID, msats decimal.Decimal) error
		IncrementItemDownMsats(ctx context.Context, id uuid.UUID, msats decimal.Decimal) error
		IncrementItemBoost(ctx context.Context, id uuid.UUID, sats int64) error
		IncrementItemComments(ctx context.Context, id uuid.UUID, delta int64) error
		AddItemBountyPaidTo(ctx context.Context, id, commentId uuid.UUID) error

		CreateItemForwards(ctx context.Context, forwards []*ItemForward) error
		ListItemForwards(ctx context.Context, itemId uuid.UUID) ([]*ItemForward, error)

		CreatePollOptions(ctx context.Context, options []*PollOption) error
		GetPollOption(ctx context.Context, id uuid.UUID) (*PollOption, error)
		IncrementPollOption(ctx context.Context, id uuid.UUID) error
		CreatePollVote(ctx context.Context, vote *PollVote) error
		// FindActivePollVote ignores votes whose PayIn failed.
		FindActivePollVote(ctx context.Context, itemId, userId uuid.UUID) (*PollVote, error)
		GetPollVoteByPayIn(ctx context.Context, payInId uuid.UUID) (*PollVote, error)
		MovePollVote(ctx context.Context, oldPayInId, newPayInId uuid.UUID) error

		CreateUpload(ctx context.Context, upload *Upload) error
		ListUploads(ctx context.Context, ids []uuid.UUID) ([]*Upload, error)
		AttachUploads(ctx context.Context, ids []uuid.UUID, payInId uuid.UUID) error
		MoveUploads(ctx context.Context, oldPayInId, newPayInId uuid.UUID) error
		MarkUploadsPaid(ctx context.Context, payInId uuid.UUID) error
	}

	Item struct {
		Id        uuid.UUID       `gorm:"type:char(36);primaryKey" json:"id"`
		UserId    uuid.UUID       `gorm:"type:char(36);index" json:"userId"`
		SubName   string          `gorm:"type:varchar(32);index" json:"subName"`
		ParentId  *uuid.UUID      `gorm:"type:char(36);index" json:"parentId,omitempty"`
		RootId    *uuid.UUID      `gorm:"type:char(36);index" json:"rootId,omitempty"`
		Title     string          `json:"title"`
		Text      string          `json:"text"`
		Status    ItemStatus      `gorm:"type:varchar(16);not null" json:"status"`
		Msats     decimal.Decimal `gorm:"type:DECIMAL(38,0);not null;default:0" json:"msats"`
		DownMsats decimal.Decimal `gorm:"type:DECIMAL(38,0);not null;default:0" json:"downMsats"`
		Boost     int64           `gorm:"not null;default:0" json:"boost"`
		Bounty    int64           `gorm:"not null;default:0" json:"bounty"`
		PollCost  int64           `gorm:"not null;default:0" json:"pollCost"`
		NComments int64           `gorm:"not null;default:0" json:"ncomments"`

		// BountyPaidTo is a comma separated list of comment ids.
		BountyPaidTo  string `json:"bountyPaidTo"`
		InvoicePaidAt int64  `json:"invoicePaidAt"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}

	ItemStatus string

	ItemForward struct {
		Id     uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
		ItemId uuid.UUID `gorm:"type:char(36);index" json:"itemId"`
		UserId uuid.UUID `gorm:"type:char(36)" json:"userId"`
		Pct    int64     `gorm:"not null" json:"pct"`
	}

	PollOption struct {
		Id     uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
		ItemId uuid.UUID `gorm:"type:char(36);index" json:"itemId"`
		Option string    `json:"option"`
		Count  int64     `gorm:"not null;default:0" json:"count"`
	}

	PollVote struct {
		Id           uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
		PollOptionId uuid.UUID `gorm:"type:char(36);index" json:"pollOptionId"`
		ItemId       uuid.UUID `gorm:"type:char(36);index" json:"itemId"`
		UserId       uuid.UUID `gorm:"type:char(36);index" json:"userId"`
		PayInId      uuid.UUID `gorm:"type:char(36);uniqueIndex" json:"payInId"`
		CreatedAt    int64     `json:"createdAt"`
	}

	Upload struct {
		Id        uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
		UserId    uuid.UUID  `gorm:"type:char(36);index" json:"userId"`
		Size      int64      `gorm:"not null" json:"size"`
		Paid      bool       `gorm:"not null;default:false" json:"paid"`
		PayInId   *uuid.UUID `gorm:"type:char(36);index" json:"payInId,omitempty"`
		CreatedAt int64      `json:"createdAt"`
	}
)

const (
	ItemStatusPending ItemStatus = "PENDING"
	ItemStatusActive  ItemStatus = "ACTIVE"
	ItemStatusFailed  ItemStatus = "FAILED"
)

func (Item) TableName() string        { return "items" }
func (ItemForward) TableName() string { return "item_forwards" }
func (PollOption) TableName() string  { return "poll_options" }
func (PollVote) TableName() string    { return "poll_votes" }
func (Upload) TableName() string      { return "uploads" }

func NewItem(clk clock.Clock, userId uuid.UUID, subName string, parent *Item) *Item {
	item := &Item{
		Id:        uuid.Must(uuid.NewV4()),
		UserId:    userId,
		SubName:   subName,
		Status:    ItemStatusPending,
		Msats:     decimal.Zero,
		DownMsats: decimal.Zero,
		CreatedAt: clk.Now().Unix(),
		UpdatedAt: clk.Now().Unix(),
	}
	if parent != nil {
		parentId := parent.Id
		rootId := parent.Id
		if parent.RootId != nil {
			rootId = *parent.RootId
		}
		item.ParentId = &parentId
		item.RootId = &rootId
		item.SubName = parent.SubName
	}
	return item
}

func (i *Item) IsComment() bool {
	return i.ParentId != nil
}

func (i *Item) BountyPaidToComment(commentId uuid.UUID) bool {
	if i.BountyPaidTo == "" {
		return false
	}
	for _, id := range strings.Split(i.BountyPaidTo, ",") {
		if id == commentId.String() {
			return true
		}
	}
	return false
}

func NewUpload(clk clock.Clock, userId uuid.UUID, size int64) *Upload {
	return &Upload{
		Id:        uuid.Must(uuid.NewV4()),
		UserId:    userId,
		Size:      size,
		CreatedAt: clk.Now().Unix(),
	}
}

// MediaFeeMsats charges feeSatsPerUnit for every started MiB of the upload.
func (u *Upload) MediaFeeMsats(feeSatsPerUnit int64) decimal.Decimal {
	units := (u.Size + MEDIA_FEE_BYTES_PER_UNIT - 1) / MEDIA_FEE_BYTES_PER_UNIT
	if units < 1 {
		units = 1
	}
	return SatsToMsats(units * feeSatsPerUnit)
}
