package payin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
)

type BountyPaymentArgs struct {
	CommentId uuid.UUID `json:"commentId"`
}

type bountyPayment struct{ moduleBase }

func (bountyPayment) Type() core.PayInType { return core.PayInTypeBountyPayment }

func (bountyPayment) PaymentMethods() []core.PaymentMethod {
	return []core.PaymentMethod{core.PaymentMethodP2P}
}

// Initial pays the bounty of a root item to the author of one of its comments,
// straight to their wallet.
func (bountyPayment) Initial(ctx context.Context, e *Engine, raw json.RawMessage, payer *core.User) (*core.PayIn, error) {
	var args BountyPaymentArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	comment, err := e.store.GetItemById(ctx, args.CommentId)
	if err != nil {
		return nil, err
	}
	if comment.RootId == nil {
		return nil, core.ErrNoBounty
	}
	root, err := e.store.GetItemById(ctx, *comment.RootId)
	if err != nil {
		return nil, err
	}
	switch {
	case root.Bounty <= 0:
		return nil, core.ErrNoBounty
	case root.UserId != payer.Id:
		return nil, core.ErrNotBountyOwner
	case root.BountyPaidToComment(comment.Id):
		return nil, core.ErrBountyAlreadyPaid
	}

	msats := core.SatsToMsats(root.Bounty)
	payOut, err := e.router.Payout(ctx, PayoutRequest{
		UserId:      comment.UserId,
		Msats:       msats,
		Description: payOutDescription(core.PayInTypeBountyPayment),
		PayOutType:  core.PayOutTypeBountyPayment,
		CanWrap:     true,
	})
	if err != nil {
		return nil, err
	}

	fee := core.Percent(payOut.Msats, e.opts.BountyRoutingFeePct)
	opts := []core.PayInOptFunc{
		core.WithItem(comment.Id, msats),
		core.WithPayOutBolt11(payOut),
	}
	if fee.IsPositive() {
		opts = append(opts, core.WithPayOutCustodialTokens(
			core.NewPayOutCustodialToken(core.PayOutTypeRoutingFee, nil, fee, core.CustodialTokenTypeSats),
		))
	}
	return core.NewPayIn(e.clk, core.PayInTypeBountyPayment, msats.Add(fee), payer.Id, opts...), nil
}

func (bountyPayment) OnPaid(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn) error {
	if payIn.ItemPayIn == nil {
		return core.Invariantf("bounty payment %s has no comment", payIn.Id)
	}
	comment, err := tx.GetItemById(ctx, payIn.ItemPayIn.ItemId)
	if err != nil {
		return err
	}
	if comment.RootId == nil {
		return core.ErrNoBounty
	}
	if err := tx.AddItemBountyPaidTo(ctx, *comment.RootId, comment.Id); err != nil {
		return err
	}
	return tx.IncrementItemMsats(ctx, comment.Id, payIn.ItemPayIn.Msats)
}

func (bountyPayment) OnPaidSideEffects(ctx context.Context, e *Engine, payIn *core.PayIn) error {
	payOut := payIn.PayOutBolt11
	if payOut == nil || payIn.ItemPayIn == nil {
		return nil
	}
	e.notify(ctx, payIn, func(n core.Notifier) error {
		return n.NotifyBountyPaid(ctx, payIn, payOut.UserId, payIn.ItemPayIn.ItemId, payOut.Msats)
	})
	return nil
}

func (bountyPayment) Describe(ctx context.Context, e *Engine, payIn *core.PayIn) (string, error) {
	msats := payIn.Mcost
	if payIn.ItemPayIn != nil {
		msats = payIn.ItemPayIn.Msats
	}
	return fmt.Sprintf("bounty of %d sats%s", core.MsatsToSats(msats), onItem(payIn)), nil
}
