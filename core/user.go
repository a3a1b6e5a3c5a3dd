package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	UserStore interface {
		CreateUser(ctx context.Context, user *User) error
		GetUserById(ctx context.Context, id uuid.UUID) (*User, error)
		UpdateUserSettings(ctx context.Context, user *User) error
		// SetUserFlag sets or clears flag under a row lock and reports whether it
		// was set before.
		SetUserFlag(ctx context.Context, id uuid.UUID, flag UserFlags, on bool) (was bool, err error)
	}

	// LedgerStore mutates custodial balances. Both calls lock the user row for the
	// duration of the surrounding transaction.
	LedgerStore interface {
		// DebitCustodial spends up to msats from the balance and returns what was
		// actually spent together with the balance before the debit.
		DebitCustodial(ctx context.Context, userId uuid.UUID, asset CustodialTokenType, msats decimal.Decimal) (spent, before decimal.Decimal, err error)
		CreditCustodial(ctx context.Context, userId uuid.UUID, asset CustodialTokenType, msats decimal.Decimal) error
	}

	User struct {
		Id        uuid.UUID       `gorm:"type:char(36);primaryKey" json:"id"`
		Name      string          `gorm:"type:varchar(64);uniqueIndex" json:"name"`
		Msats     decimal.Decimal `gorm:"type:DECIMAL(38,0);not null;default:0" json:"msats"`
		Mcredits  decimal.Decimal `gorm:"type:DECIMAL(38,0);not null;default:0" json:"mcredits"`
		UserFlags UserFlags       `gorm:"not null;default:0" json:"userFlags"`

		SendCreditsBelowSats      int64 `gorm:"not null;default:0" json:"sendCreditsBelowSats"`
		ReceiveCreditsBelowSats   int64 `gorm:"not null;default:0" json:"receiveCreditsBelowSats"`
		AutoWithdrawThresholdSats int64 `gorm:"not null;default:0" json:"autoWithdrawThresholdSats"`
		AutoWithdrawMaxFeePercent int64 `gorm:"not null" json:"autoWithdrawMaxFeePercent"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}
)

func (User) TableName() string { return "users" }

type UserFlags uint8

const (
	DisabledFlag     UserFlags = 1 << 0
	NoteZapsFlag     UserFlags = 1 << 2
	NoteBountiesFlag UserFlags = 1 << 3
	// AutoWithdrawingFlag is held while an AUTO_WITHDRAWAL is pending.
	AutoWithdrawingFlag UserFlags = 1 << 4
)

func (u *User) SetFlag(flag UserFlags) {
	u.UserFlags |= flag
}

func (u *User) UnsetFlag(flag UserFlags) {
	u.UserFlags &= ^flag
}

func (u *User) GetFlag(flag UserFlags) bool {
	return u.UserFlags&flag != 0
}

func NewUser(clk clock.Clock, name string) *User {
	return &User{
		Id:                        uuid.Must(uuid.NewV4()),
		Name:                      name,
		Msats:                     decimal.Zero,
		Mcredits:                  decimal.Zero,
		UserFlags:                 NoteZapsFlag | NoteBountiesFlag,
		AutoWithdrawMaxFeePercent: 1,
		CreatedAt:                 clk.Now().Unix(),
		UpdatedAt:                 clk.Now().Unix(),
	}
}

func IsAnon(user *User) bool {
	return user == nil || user.Id == AnonUserId
}

// PayerId returns the id stamped on a PayIn for the given payer.
func PayerId(user *User) uuid.UUID {
	if IsAnon(user) {
		return AnonUserId
	}
	return user.Id
}

func (u *User) Balance(asset CustodialTokenType) decimal.Decimal {
	switch asset {
	case CustodialTokenTypeCredits:
		return u.Mcredits
	case CustodialTokenTypeSats:
		return u.Msats
	default:
		return decimal.Zero
	}
}

// BalanceColumn is the users column holding the given custodial balance.
func BalanceColumn(asset CustodialTokenType) string {
	if asset == CustodialTokenTypeCredits {
		return "mcredits"
	}
	return "msats"
}
