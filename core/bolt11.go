package core

import (
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	// PayOutBolt11 is a P2P payout to a payee wallet, or the destination of a withdrawal.
	PayOutBolt11 struct {
		Id            uuid.UUID           `gorm:"type:char(36);primaryKey" json:"id"`
		PayInId       uuid.UUID           `gorm:"type:char(36);uniqueIndex" json:"payInId"`
		UserId        uuid.UUID           `gorm:"type:char(36);index" json:"userId"`
		WalletId      *uuid.UUID          `gorm:"type:char(36);index" json:"walletId,omitempty"`
		PayOutType    PayOutType          `gorm:"type:varchar(32);not null" json:"payOutType"`
		Msats         decimal.Decimal     `gorm:"type:DECIMAL(38,0);not null" json:"msats"`
		Bolt11        string              `gorm:"type:text" json:"bolt11"`
		Hash          string              `gorm:"type:varchar(64);index" json:"hash"`
		Status        PayOutStatus        `gorm:"type:varchar(16);not null" json:"status"`
		FailureReason PayOutFailureReason `gorm:"type:varchar(64)" json:"failureReason,omitempty"`
		Preimage      string              `gorm:"type:varchar(64)" json:"-"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}

	// PayInBolt11 is the invoice the payer pays for the uncovered remainder.
	PayInBolt11 struct {
		Id            uuid.UUID       `gorm:"type:char(36);primaryKey" json:"id"`
		PayInId       uuid.UUID       `gorm:"type:char(36);uniqueIndex" json:"payInId"`
		Hash          string          `gorm:"type:varchar(64);uniqueIndex" json:"hash"`
		Bolt11        string          `gorm:"type:text" json:"bolt11"`
		Preimage      string          `gorm:"type:varchar(64)" json:"-"`
		Msats         decimal.Decimal `gorm:"type:DECIMAL(38,0);not null" json:"msats"`
		MsatsReceived decimal.Decimal `gorm:"type:DECIMAL(38,0);not null;default:0" json:"msatsReceived"`
		Hold          bool            `gorm:"not null;default:false" json:"hold"`
		ExpiresAt     int64           `json:"expiresAt"`
		HeldAt        int64           `json:"heldAt,omitempty"`
		ConfirmedAt   int64           `json:"confirmedAt,omitempty"`
		CancelledAt   int64           `json:"cancelledAt,omitempty"`
		CreatedAt     int64           `json:"createdAt"`
	}
)

func (PayOutBolt11) TableName() string { return "pay_out_bolt11s" }
func (PayInBolt11) TableName() string  { return "pay_in_bolt11s" }

// NewPayOutBolt11 builds a prospect payout. Nothing moves until the PayIn settles.
func NewPayOutBolt11(clk clock.Clock, userId uuid.UUID, walletId *uuid.UUID, payOutType PayOutType, msats decimal.Decimal, bolt11, hash string) *PayOutBolt11 {
	return &PayOutBolt11{
		Id:         uuid.Must(uuid.NewV4()),
		UserId:     userId,
		WalletId:   walletId,
		PayOutType: payOutType,
		Msats:      msats,
		Bolt11:     bolt11,
		Hash:       hash,
		Status:     PayOutStatusPending,
		CreatedAt:  clk.Now().Unix(),
		UpdatedAt:  clk.Now().Unix(),
	}
}

func NewPayInBolt11(clk clock.Clock, payInId uuid.UUID, invoice *Invoice) *PayInBolt11 {
	return &PayInBolt11{
		Id:            uuid.Must(uuid.NewV4()),
		PayInId:       payInId,
		Hash:          invoice.Hash,
		Bolt11:        invoice.Bolt11,
		Preimage:      invoice.Preimage,
		Msats:         invoice.Msats,
		MsatsReceived: decimal.Zero,
		Hold:          invoice.Hold,
		ExpiresAt:     invoice.ExpiresAt,
		CreatedAt:     clk.Now().Unix(),
	}
}

func (b *PayOutBolt11) UpdateStatus(clk clock.Clock, status PayOutStatus, reason PayOutFailureReason) {
	b.Status = status
	b.FailureReason = reason
	b.UpdatedAt = clk.Now().Unix()
}

func (b *PayInBolt11) Expired(now int64) bool {
	return b.ExpiresAt > 0 && now >= b.ExpiresAt
}
