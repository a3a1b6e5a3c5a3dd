package payin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
)

type ProxyPaymentArgs struct {
	ReceiverId  uuid.UUID `json:"receiverId"`
	Sats        int64     `json:"sats"`
	Description string    `json:"description,omitempty"`
}

type proxyPayment struct{ moduleBase }

func (proxyPayment) Type() core.PayInType { return core.PayInTypeProxyPayment }

func (proxyPayment) PaymentMethods() []core.PaymentMethod {
	return []core.PaymentMethod{core.PaymentMethodP2P, core.PaymentMethodPessimistic}
}

func (proxyPayment) AnonAllowed() bool { return true }

// Initial routes a payment to the receiver's own wallet, charging the routing fee on top.
func (proxyPayment) Initial(ctx context.Context, e *Engine, raw json.RawMessage, payer *core.User) (*core.PayIn, error) {
	var args ProxyPaymentArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Sats <= 0 {
		return nil, core.ErrInvalidAmount
	}
	receiver, err := e.store.GetUserById(ctx, args.ReceiverId)
	if err != nil {
		return nil, err
	}

	description := args.Description
	if description == "" {
		description = payOutDescription(core.PayInTypeProxyPayment)
	}
	msats := core.SatsToMsats(args.Sats)
	payOut, err := e.router.Payout(ctx, PayoutRequest{
		UserId:      receiver.Id,
		Msats:       msats,
		Description: description,
		PayOutType:  core.PayOutTypeProxyPayment,
		CanWrap:     true,
	})
	if err != nil {
		return nil, err
	}

	opts := []core.PayInOptFunc{core.WithPayOutBolt11(payOut)}
	fee := core.Percent(payOut.Msats, e.opts.ProxyRoutingFeePct)
	if fee.IsPositive() {
		opts = append(opts, core.WithPayOutCustodialTokens(
			core.NewPayOutCustodialToken(core.PayOutTypeRoutingFee, nil, fee, core.CustodialTokenTypeSats),
		))
	}
	return core.NewPayIn(e.clk, core.PayInTypeProxyPayment, msats.Add(fee), core.PayerId(payer), opts...), nil
}

func (proxyPayment) OnPaidSideEffects(ctx context.Context, e *Engine, payIn *core.PayIn) error {
	payOut := payIn.PayOutBolt11
	if payOut == nil {
		return nil
	}
	e.notify(ctx, payIn, func(n core.Notifier) error {
		return n.NotifyProxyPayment(ctx, payIn, payOut.UserId, payOut.Msats)
	})
	return nil
}

func (proxyPayment) Describe(ctx context.Context, e *Engine, payIn *core.PayIn) (string, error) {
	if payIn.PayOutBolt11 == nil {
		return "proxy payment", nil
	}
	return fmt.Sprintf("proxy payment of %d sats to %s", core.MsatsToSats(payIn.PayOutBolt11.Msats), payIn.PayOutBolt11.UserId), nil
}
