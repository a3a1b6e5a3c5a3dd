package payin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DomeLiquid/payin/core"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var withdrawalMethods = []core.PaymentMethod{core.PaymentMethodRewardSats}

type WithdrawalArgs struct {
	Bolt11     string `json:"bolt11"`
	MaxFeeSats int64  `json:"maxFeeSats,omitempty"`
}

type withdrawal struct{ moduleBase }

func (withdrawal) Type() core.PayInType { return core.PayInTypeWithdrawal }

func (withdrawal) PaymentMethods() []core.PaymentMethod { return withdrawalMethods }

// Initial reserves the invoice amount plus the most the payment may spend on fees.
// Whatever fee is left unspent is refunded when the payment settles.
func (withdrawal) Initial(ctx context.Context, e *Engine, raw json.RawMessage, payer *core.User) (*core.PayIn, error) {
	var args WithdrawalArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.MaxFeeSats < 0 {
		return nil, core.ErrInvalidAmount
	}
	decoded, err := e.invoices.InspectInvoice(ctx, args.Bolt11)
	if err != nil {
		return nil, errors.Wrap(core.ErrInvalidInvoice, err.Error())
	}
	if !decoded.Msats.IsPositive() {
		return nil, errors.Wrap(core.ErrInvalidInvoice, "invoice has no amount")
	}
	if decoded.ExpiresAt > 0 && decoded.ExpiresAt <= e.clk.Now().Unix() {
		return nil, errors.Wrap(core.ErrInvalidInvoice, "invoice expired")
	}

	maxFeeSats := args.MaxFeeSats
	if maxFeeSats == 0 {
		maxFeeSats = e.opts.WithdrawalMaxFeeSats
	}
	payOut := core.NewPayOutBolt11(e.clk, payer.Id, nil, core.PayOutTypeWithdrawal, decoded.Msats, args.Bolt11, decoded.Hash)
	mcost := decoded.Msats.Add(core.SatsToMsats(maxFeeSats))
	return core.NewPayIn(e.clk, core.PayInTypeWithdrawal, mcost, payer.Id, core.WithPayOutBolt11(payOut)), nil
}

func (withdrawal) OnPaidSideEffects(ctx context.Context, e *Engine, payIn *core.PayIn) error {
	e.notify(ctx, payIn, func(n core.Notifier) error {
		return n.NotifyWithdrawal(ctx, payIn)
	})
	return nil
}

func (withdrawal) Describe(ctx context.Context, e *Engine, payIn *core.PayIn) (string, error) {
	return describeWithdrawal("withdrawal", payIn), nil
}

type autoWithdrawal struct{ moduleBase }

func (autoWithdrawal) Type() core.PayInType { return core.PayInTypeAutoWithdrawal }

func (autoWithdrawal) PaymentMethods() []core.PaymentMethod { return withdrawalMethods }

// Initial withdraws the SATS balance to the payer's own wallets, keeping back the
// largest fee their max fee percentage allows.
func (autoWithdrawal) Initial(ctx context.Context, e *Engine, raw json.RawMessage, payer *core.User) (*core.PayIn, error) {
	user, err := e.store.GetUserById(ctx, payer.Id)
	if err != nil {
		return nil, err
	}
	if user.GetFlag(core.AutoWithdrawingFlag) {
		return nil, core.ErrAutoWithdrawPending
	}
	if user.AutoWithdrawThresholdSats <= 0 || user.Msats.LessThan(core.SatsToMsats(user.AutoWithdrawThresholdSats)) {
		return nil, core.ErrAutoWithdrawBelowThreshold
	}

	feePct := user.AutoWithdrawMaxFeePercent
	msats := core.FloorToSats(core.MulDiv(user.Msats, core.PCT, decimal.NewFromInt(100+feePct)))
	if !msats.IsPositive() {
		return nil, core.ErrAutoWithdrawBelowThreshold
	}

	payOut, err := e.router.Payout(ctx, PayoutRequest{
		UserId:      user.Id,
		Msats:       msats,
		Description: payOutDescription(core.PayInTypeAutoWithdrawal),
		PayOutType:  core.PayOutTypeWithdrawal,
	})
	if err != nil {
		return nil, err
	}
	maxFee := core.Percent(payOut.Msats, feePct)
	return core.NewPayIn(e.clk, core.PayInTypeAutoWithdrawal, payOut.Msats.Add(maxFee), user.Id, core.WithPayOutBolt11(payOut)), nil
}

// OnBegin claims the payer's auto-withdrawing flag in the creating transaction.
// OnPaid and OnFail release it.
func (autoWithdrawal) OnBegin(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn, _ json.RawMessage) (core.EnvResult, error) {
	was, err := tx.SetUserFlag(ctx, payIn.UserId, core.AutoWithdrawingFlag, true)
	if err != nil {
		return core.EnvResult{}, err
	}
	if was {
		return core.EnvResult{}, core.ErrAutoWithdrawPending
	}
	return core.EnvResult{}, nil
}

func (autoWithdrawal) OnPaid(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn) error {
	_, err := tx.SetUserFlag(ctx, payIn.UserId, core.AutoWithdrawingFlag, false)
	return err
}

func (autoWithdrawal) OnFail(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn) error {
	_, err := tx.SetUserFlag(ctx, payIn.UserId, core.AutoWithdrawingFlag, false)
	return err
}

func (autoWithdrawal) OnPaidSideEffects(ctx context.Context, e *Engine, payIn *core.PayIn) error {
	e.notify(ctx, payIn, func(n core.Notifier) error {
		return n.NotifyWithdrawal(ctx, payIn)
	})
	return nil
}

func (autoWithdrawal) Describe(ctx context.Context, e *Engine, payIn *core.PayIn) (string, error) {
	return describeWithdrawal("auto withdrawal", payIn), nil
}

func describeWithdrawal(kind string, payIn *core.PayIn) string {
	if payIn.PayOutBolt11 == nil {
		return kind
	}
	return fmt.Sprintf("%s of %d sats", kind, core.MsatsToSats(payIn.PayOutBolt11.Msats))
}
