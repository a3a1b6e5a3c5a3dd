package payin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type zap struct{ moduleBase }

func (zap) Type() core.PayInType { return core.PayInTypeZap }

func (zap) PaymentMethods() []core.PaymentMethod {
	return append([]core.PaymentMethod{core.PaymentMethodP2P}, optimisticMethods...)
}

func (zap) AnonAllowed() bool { return true }

func (zap) Initial(ctx context.Context, e *Engine, raw json.RawMessage, payer *core.User) (*core.PayIn, error) {
	args, item, err := decodeItemAmount(ctx, e, raw)
	if err != nil {
		return nil, err
	}
	payerId := core.PayerId(payer)
	if item.UserId == payerId {
		return nil, core.ErrSelfZap
	}

	msats := core.SatsToMsats(args.Sats)
	split, err := e.ZapPayOuts(ctx, payer, item, msats)
	if err != nil {
		return nil, err
	}

	opts := []core.PayInOptFunc{
		core.WithItem(item.Id, msats),
		core.WithPayOutCustodialTokens(split.Tokens...),
	}
	if split.PayOut != nil {
		opts = append(opts, core.WithPayOutBolt11(split.PayOut))
	}
	return core.NewPayIn(e.clk, core.PayInTypeZap, msats.Add(split.RoutingFee), payerId, opts...), nil
}

func (zap) OnPaid(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn) error {
	if payIn.ItemPayIn == nil {
		return core.Invariantf("zap %s has no item", payIn.Id)
	}
	return tx.IncrementItemMsats(ctx, payIn.ItemPayIn.ItemId, payIn.ItemPayIn.Msats)
}

func (zap) OnPaidSideEffects(ctx context.Context, e *Engine, payIn *core.PayIn) error {
	if payIn.ItemPayIn == nil {
		return nil
	}
	itemId := payIn.ItemPayIn.ItemId

	zapped := map[uuid.UUID]decimal.Decimal{}
	for _, t := range payIn.PayOutCustodialTokens {
		if t.PayOutType == core.PayOutTypeZap && t.UserId != nil {
			zapped[*t.UserId] = zapped[*t.UserId].Add(t.Mtokens)
		}
	}
	if payOut := payIn.PayOutBolt11; payOut != nil {
		zapped[payOut.UserId] = zapped[payOut.UserId].Add(payOut.Msats)
	}

	for userId, msats := range zapped {
		userId, msats := userId, msats
		e.notify(ctx, payIn, func(n core.Notifier) error {
			return n.NotifyZapped(ctx, payIn, userId, itemId, msats)
		})
	}
	return nil
}

func (zap) Describe(ctx context.Context, e *Engine, payIn *core.PayIn) (string, error) {
	msats := payIn.Mcost
	if payIn.ItemPayIn != nil {
		msats = payIn.ItemPayIn.Msats
	}
	return fmt.Sprintf("zap of %d sats%s", core.MsatsToSats(msats), onItem(payIn)), nil
}

// ZapSplit is how a zap reaches the item's author and forwarders: at most one
// P2P payout, custodial credits for every other share, and the routing fee the
// P2P payout costs on top of the zap.
type ZapSplit struct {
	PayOut     *core.PayOutBolt11
	Tokens     []*core.PayOutCustodialToken
	RoutingFee decimal.Decimal
}

type zapCandidate struct {
	userId uuid.UUID
	pct    int64
	share  decimal.Decimal
	author bool
}

// ZapPayOuts splits msats between the item's forwarders and its author. The largest
// share whose payee accepts it gets one P2P attempt; everyone else is credited.
func (e *Engine) ZapPayOuts(ctx context.Context, payer *core.User, item *core.Item, msats decimal.Decimal) (*ZapSplit, error) {
	candidates, err := e.zapCandidates(ctx, item, msats)
	if err != nil {
		return nil, err
	}

	split := &ZapSplit{RoutingFee: decimal.Zero}
	p2p := !core.IsAnon(payer) && !(core.MsatsToSats(msats) < payer.SendCreditsBelowSats)
	for _, c := range candidates {
		if !c.share.IsPositive() {
			continue
		}
		if p2p {
			payOut, attempted, err := e.tryZapPayOut(ctx, c)
			if err != nil {
				return nil, err
			}
			p2p = !attempted
			if payOut != nil {
				split.PayOut = payOut
				split.RoutingFee = core.MulDiv(payOut.Msats, decimal.NewFromInt(e.opts.ZapRoutingFeePct), decimal.NewFromInt(c.pct))
				continue
			}
		}
		userId := c.userId
		split.Tokens = append(split.Tokens, core.NewPayOutCustodialToken(core.PayOutTypeZap, &userId, c.share, core.CustodialTokenTypeCredits))
	}

	if split.RoutingFee.IsPositive() {
		fee := core.NewPayOutCustodialToken(core.PayOutTypeRoutingFee, nil, split.RoutingFee, core.CustodialTokenTypeSats)
		split.Tokens = append(split.Tokens, fee)
	}
	return split, nil
}

// zapCandidates lists forwarders and the author's residual share, largest first.
// The author's share absorbs the rounding of the forwarded shares.
func (e *Engine) zapCandidates(ctx context.Context, item *core.Item, msats decimal.Decimal) ([]zapCandidate, error) {
	forwards, err := e.store.ListItemForwards(ctx, item.Id)
	if err != nil {
		return nil, err
	}

	candidates := make([]zapCandidate, 0, len(forwards)+1)
	authorPct, authorShare := int64(100), msats
	for _, f := range forwards {
		share := core.Percent(msats, f.Pct)
		candidates = append(candidates, zapCandidate{userId: f.UserId, pct: f.Pct, share: share})
		authorPct -= f.Pct
		authorShare = authorShare.Sub(share)
	}
	if authorPct > 0 {
		candidates = append(candidates, zapCandidate{userId: item.UserId, pct: authorPct, share: authorShare, author: true})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].pct != candidates[j].pct {
			return candidates[i].pct > candidates[j].pct
		}
		return !candidates[i].author && candidates[j].author
	})
	return candidates, nil
}

// tryZapPayOut reports whether the router was asked at all. A candidate who prefers
// credits is not attempted; one without a usable wallet is attempted and credited.
func (e *Engine) tryZapPayOut(ctx context.Context, c zapCandidate) (*core.PayOutBolt11, bool, error) {
	user, err := e.store.GetUserById(ctx, c.userId)
	if err != nil {
		return nil, false, err
	}
	if core.MsatsToSats(c.share) < user.ReceiveCreditsBelowSats {
		return nil, false, nil
	}

	payOut, err := e.router.Payout(ctx, PayoutRequest{
		UserId:      c.userId,
		Msats:       c.share,
		Description: payOutDescription(core.PayInTypeZap),
		PayOutType:  core.PayOutTypeZap,
		CanWrap:     true,
	})
	if core.IsNoReceiveWallet(err) {
		e.log.Debug().Err(err).Str("userId", c.userId.String()).Msg("zap falls back to credits")
		return nil, true, nil
	}
	if err != nil {
		return nil, true, err
	}
	return payOut, true, nil
}
