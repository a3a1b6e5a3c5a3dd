package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	PayInStore interface {
		// CreatePayIn writes the PayIn and every child row it carries, beneficiaries included.
		CreatePayIn(ctx context.Context, payIn *PayIn) error
		GetPayIn(ctx context.Context, id uuid.UUID) (*PayIn, error)
		GetPayInByInvoiceHash(ctx context.Context, hash string) (*PayIn, error)
		GetLatestPayInInChain(ctx context.Context, genesisId uuid.UUID) (*PayIn, error)
		// TransitionPayInState is a compare-and-set. It reports false when the PayIn
		// was no longer in one of the from states.
		TransitionPayInState(ctx context.Context, id uuid.UUID, from []PayInState, to PayInState, reason PayInFailureReason, changedAt int64) (bool, error)
		TransitionBeneficiaries(ctx context.Context, benefactorId uuid.UUID, to PayInState, reason PayInFailureReason, changedAt int64) error
		CreatePayOutCustodialTokens(ctx context.Context, tokens []*PayOutCustodialToken) error
		UpdatePayOutBolt11(ctx context.Context, payOut *PayOutBolt11) error
		SavePayInBolt11(ctx context.Context, invoice *PayInBolt11) error
		UpdatePessimisticEnv(ctx context.Context, env *PessimisticEnv) error
		CreateItemPayIn(ctx context.Context, link *ItemPayIn) error
		CountPendingPayIns(ctx context.Context, userId uuid.UUID) (int64, error)
		CountPendingDirectPayIns(ctx context.Context, userId uuid.UUID) (int64, error)
		ListStalePayIns(ctx context.Context, changedBefore int64, limit int) ([]uuid.UUID, error)
	}

	PayIn struct {
		Id                  uuid.UUID          `gorm:"type:char(36);primaryKey" json:"id"`
		GenesisId           *uuid.UUID         `gorm:"type:char(36);uniqueIndex:idx_pay_in_chain,priority:1" json:"genesisId,omitempty"`
		Attempt             int64              `gorm:"not null;default:0;uniqueIndex:idx_pay_in_chain,priority:2" json:"attempt"`
		BenefactorId        *uuid.UUID         `gorm:"type:char(36);index" json:"benefactorId,omitempty"`
		PayInType           PayInType          `gorm:"type:varchar(32);not null" json:"payInType"`
		Mcost               decimal.Decimal    `gorm:"type:DECIMAL(38,0);not null" json:"mcost"`
		UserId              uuid.UUID          `gorm:"type:char(36);index" json:"userId"`
		PayInState          PayInState         `gorm:"type:varchar(32);not null;index" json:"payInState"`
		PayInFailureReason  PayInFailureReason `gorm:"type:varchar(64)" json:"payInFailureReason,omitempty"`
		PayInStateChangedAt int64              `gorm:"index" json:"payInStateChangedAt"`

		PayInCustodialTokens  []*PayInCustodialToken  `gorm:"foreignKey:PayInId" json:"payInCustodialTokens,omitempty"`
		PayOutCustodialTokens []*PayOutCustodialToken `gorm:"foreignKey:PayInId" json:"payOutCustodialTokens,omitempty"`
		PayOutBolt11          *PayOutBolt11           `gorm:"foreignKey:PayInId" json:"payOutBolt11,omitempty"`
		PayInBolt11           *PayInBolt11            `gorm:"foreignKey:PayInId" json:"payInBolt11,omitempty"`
		PessimisticEnv        *PessimisticEnv         `gorm:"foreignKey:PayInId" json:"-"`
		ItemPayIn             *ItemPayIn              `gorm:"foreignKey:PayInId" json:"itemPayIn,omitempty"`
		SubPayIns             []*SubPayIn             `gorm:"foreignKey:PayInId" json:"subPayIns,omitempty"`
		Beneficiaries         []*PayIn                `gorm:"foreignKey:BenefactorId" json:"beneficiaries,omitempty"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}

	// PayInCustodialToken is a debit taken from the payer when the PayIn was created.
	PayInCustodialToken struct {
		Id             uuid.UUID          `gorm:"type:char(36);primaryKey" json:"id"`
		PayInId        uuid.UUID          `gorm:"type:char(36);index" json:"payInId"`
		PayInAssetType CustodialTokenType `gorm:"type:varchar(16);not null" json:"payInAssetType"`
		Mtokens        decimal.Decimal    `gorm:"type:DECIMAL(38,0);not null" json:"mtokens"`
		MtokensBefore  decimal.Decimal    `gorm:"type:DECIMAL(38,0);not null" json:"mtokensBefore"`
		CreatedAt      int64              `json:"createdAt"`
	}

	// PayOutCustodialToken is a credit issued to a payee. Pool and routing fee rows have no user.
	PayOutCustodialToken struct {
		Id                 uuid.UUID          `gorm:"type:char(36);primaryKey" json:"id"`
		PayInId            uuid.UUID          `gorm:"type:char(36);index" json:"payInId"`
		PayOutType         PayOutType         `gorm:"type:varchar(32);not null" json:"payOutType"`
		UserId             *uuid.UUID         `gorm:"type:char(36);index" json:"userId,omitempty"`
		SubName            *string            `gorm:"type:varchar(32)" json:"subName,omitempty"`
		Mtokens            decimal.Decimal    `gorm:"type:DECIMAL(38,0);not null" json:"mtokens"`
		CustodialTokenType CustodialTokenType `gorm:"type:varchar(16);not null" json:"custodialTokenType"`
		CreatedAt          int64              `json:"createdAt"`
	}

	ItemPayIn struct {
		PayInId uuid.UUID `gorm:"type:char(36);primaryKey" json:"payInId"`
		ItemId  uuid.UUID `gorm:"type:char(36);index" json:"itemId"`

		// Msats is the amount the action applies to the item, fees excluded.
		Msats decimal.Decimal `gorm:"type:DECIMAL(38,0);not null;default:0" json:"msats"`
	}

	SubPayIn struct {
		Id         uuid.UUID        `gorm:"type:char(36);primaryKey" json:"id"`
		PayInId    uuid.UUID        `gorm:"type:char(36);index" json:"payInId"`
		SubName    string           `gorm:"type:varchar(32);index" json:"subName"`
		Mcost      *decimal.Decimal `gorm:"type:DECIMAL(38,0)" json:"mcost,omitempty"`
		RewardsPct *int64           `json:"rewardsPct,omitempty"`
	}
)

func (PayIn) TableName() string                { return "pay_ins" }
func (PayInCustodialToken) TableName() string  { return "pay_in_custodial_tokens" }
func (PayOutCustodialToken) TableName() string { return "pay_out_custodial_tokens" }
func (ItemPayIn) TableName() string            { return "item_pay_ins" }
func (SubPayIn) TableName() string             { return "sub_pay_ins" }

type PayInOptFunc func(payIn *PayIn)

func WithSubs(names ...string) PayInOptFunc {
	return func(payIn *PayIn) {
		for _, name := range names {
			payIn.SubPayIns = append(payIn.SubPayIns, &SubPayIn{SubName: name})
		}
	}
}

func WithItem(itemId uuid.UUID, msats decimal.Decimal) PayInOptFunc {
	return func(payIn *PayIn) {
		payIn.ItemPayIn = &ItemPayIn{ItemId: itemId, Msats: msats}
	}
}

func WithPayOutBolt11(payOut *PayOutBolt11) PayInOptFunc {
	return func(payIn *PayIn) {
		payIn.PayOutBolt11 = payOut
	}
}

func WithPayOutCustodialTokens(tokens ...*PayOutCustodialToken) PayInOptFunc {
	return func(payIn *PayIn) {
		payIn.PayOutCustodialTokens = append(payIn.PayOutCustodialTokens, tokens...)
	}
}

func WithBeneficiaries(beneficiaries ...*PayIn) PayInOptFunc {
	return func(payIn *PayIn) {
		payIn.Beneficiaries = append(payIn.Beneficiaries, beneficiaries...)
	}
}

// NewPayIn builds a prospect. Ids of child rows are assigned when it is persisted.
func NewPayIn(clk clock.Clock, payInType PayInType, mcost decimal.Decimal, userId uuid.UUID, opts ...PayInOptFunc) *PayIn {
	now := clk.Now().Unix()
	payIn := &PayIn{
		Id:                  uuid.Must(uuid.NewV4()),
		PayInType:           payInType,
		Mcost:               mcost,
		UserId:              userId,
		PayInStateChangedAt: now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for _, opt := range opts {
		opt(payIn)
	}
	return payIn
}

func NewPayInCustodialToken(clk clock.Clock, payInId uuid.UUID, asset CustodialTokenType, mtokens, before decimal.Decimal) *PayInCustodialToken {
	return &PayInCustodialToken{
		Id:             uuid.Must(uuid.NewV4()),
		PayInId:        payInId,
		PayInAssetType: asset,
		Mtokens:        mtokens,
		MtokensBefore:  before,
		CreatedAt:      clk.Now().Unix(),
	}
}

// NewPayOutCustodialToken builds an unpersisted credit. userId may be nil for pool rows.
func NewPayOutCustodialToken(payOutType PayOutType, userId *uuid.UUID, mtokens decimal.Decimal, tokenType CustodialTokenType) *PayOutCustodialToken {
	return &PayOutCustodialToken{
		PayOutType:         payOutType,
		UserId:             userId,
		Mtokens:            mtokens,
		CustodialTokenType: tokenType,
	}
}

func (t *PayOutCustodialToken) Clone() *PayOutCustodialToken {
	c := *t
	if t.UserId != nil {
		id := *t.UserId
		c.UserId = &id
	}
	if t.SubName != nil {
		name := *t.SubName
		c.SubName = &name
	}
	return &c
}

func (p *PayIn) IsAnon() bool {
	return p.UserId == AnonUserId
}

func (p *PayIn) IsBeneficiary() bool {
	return p.BenefactorId != nil
}

// GenesisOrSelf is the id every retry of this PayIn points at.
func (p *PayIn) GenesisOrSelf() uuid.UUID {
	if p.GenesisId != nil {
		return *p.GenesisId
	}
	return p.Id
}

// IsP2P reports whether part of the cost is paid straight to a payee's wallet.
func (p *PayIn) IsP2P() bool {
	return p.PayOutBolt11 != nil && !p.PayInType.IsWithdrawal()
}

func (p *PayIn) P2PCost() decimal.Decimal {
	if !p.IsP2P() {
		return decimal.Zero
	}
	return p.PayOutBolt11.Msats
}

// TotalCost is what the payer owes for the PayIn and its beneficiaries.
func (p *PayIn) TotalCost() decimal.Decimal {
	total := p.Mcost
	for _, b := range p.Beneficiaries {
		total = total.Add(b.Mcost)
	}
	return total
}

func (p *PayIn) CustodialCost() decimal.Decimal {
	return p.TotalCost().Sub(p.P2PCost())
}

func (p *PayIn) CustodialPaid() decimal.Decimal {
	paid := decimal.Zero
	for _, t := range p.PayInCustodialTokens {
		paid = paid.Add(t.Mtokens)
	}
	return paid
}

// MCostRemaining is the amount still to be collected by invoice.
func (p *PayIn) MCostRemaining() decimal.Decimal {
	return p.CustodialCost().Sub(p.CustodialPaid()).Add(p.P2PCost())
}

func (p *PayIn) RoutingFee() decimal.Decimal {
	fee := decimal.Zero
	for _, t := range p.PayOutCustodialTokens {
		if t.PayOutType == PayOutTypeRoutingFee {
			fee = fee.Add(t.Mtokens)
		}
	}
	return fee
}

// PayOutTotal is everything paid out for this PayIn alone.
func (p *PayIn) PayOutTotal() decimal.Decimal {
	total := decimal.Zero
	for _, t := range p.PayOutCustodialTokens {
		total = total.Add(t.Mtokens)
	}
	if p.PayOutBolt11 != nil {
		total = total.Add(p.PayOutBolt11.Msats)
	}
	return total
}

func (p *PayIn) SubNames() []string {
	names := make([]string, 0, len(p.SubPayIns))
	for _, s := range p.SubPayIns {
		names = append(names, s.SubName)
	}
	return names
}

// IsPessimistic reports whether domain effects wait for the invoice to be paid.
func (p *PayIn) IsPessimistic(methods []PaymentMethod) bool {
	return p.PessimisticEnv != nil && p.deferrable(methods)
}

// NeedsPessimisticEnv reports whether the action arguments must be kept for replay.
func (p *PayIn) NeedsPessimisticEnv(methods []PaymentMethod) bool {
	return p.deferrable(methods)
}

func (p *PayIn) deferrable(methods []PaymentMethod) bool {
	if p.PayInState == PayInStatePaid || p.PayInType.IsWithdrawal() {
		return false
	}
	return p.IsAnon() || !HasPaymentMethod(methods, PaymentMethodOptimistic)
}

func (p *PayIn) Transition(state PayInState, reason PayInFailureReason, at int64) {
	p.PayInState = state
	p.PayInFailureReason = reason
	p.PayInStateChangedAt = at
	p.UpdatedAt = at
}
