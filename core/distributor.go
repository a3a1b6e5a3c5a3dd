package core

import (
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// SubShare is one territory taking part in a PayIn's revenue.
type SubShare struct {
	Name       string
	UserId     uuid.UUID
	RewardsPct int64
	// OverridePct replaces RewardsPct for this PayIn only.
	OverridePct *int64
	// Mcost is the part of the cost attributed to this territory. The split is
	// proportional only when every sub carries one.
	Mcost *decimal.Decimal
}

func (s SubShare) rewardsPct() int64 {
	if s.OverridePct != nil {
		return *s.OverridePct
	}
	return s.RewardsPct
}

// NewSubShares pairs the territories with the per-PayIn overrides recorded on its sub links.
func NewSubShares(subs []*Sub, links []*SubPayIn) []SubShare {
	byName := make(map[string]*Sub, len(subs))
	for _, sub := range subs {
		byName[sub.Name] = sub
	}
	shares := make([]SubShare, 0, len(links))
	for _, link := range links {
		sub, ok := byName[link.SubName]
		if !ok {
			continue
		}
		shares = append(shares, SubShare{
			Name:        sub.Name,
			UserId:      sub.UserId,
			RewardsPct:  sub.RewardsPct,
			OverridePct: link.RewardsPct,
			Mcost:       link.Mcost,
		})
	}
	return shares
}

// RedistributePayOutCustodialTokens computes the final custodial payouts of a PayIn.
// The given tokens are copied, never modified; rows it adds have a nil id.
//
// What the P2P payout and the non routing fee tokens do not take is split across
// the territories, each keeping its share minus the rewards percentage. Whatever
// is left after the routing fee goes to the rewards pool.
func RedistributePayOutCustodialTokens(mcost decimal.Decimal, subs []SubShare, tokens []*PayOutCustodialToken, payOutBolt11 *PayOutBolt11) ([]*PayOutCustodialToken, error) {
	out := make([]*PayOutCustodialToken, 0, len(tokens)+len(subs)+1)

	remaining := mcost
	if payOutBolt11 != nil {
		remaining = remaining.Sub(payOutBolt11.Msats)
	}
	routingFee := decimal.Zero
	for _, t := range tokens {
		out = append(out, t.Clone())
		if t.PayOutType == PayOutTypeRoutingFee {
			routingFee = routingFee.Add(t.Mtokens)
			continue
		}
		remaining = remaining.Sub(t.Mtokens)
	}
	if remaining.IsNegative() {
		return nil, Invariantf("remaining %s is negative for mcost %s", remaining, mcost)
	}

	revenue := decimal.Zero
	for i, share := range splitRemaining(remaining, subs) {
		sub := subs[i]
		amount := MulDiv(share, decimal.NewFromInt(100-sub.rewardsPct()), PCT)
		userId := sub.UserId
		name := sub.Name
		out = append(out, &PayOutCustodialToken{
			PayOutType:         PayOutTypeTerritoryRevenue,
			UserId:             &userId,
			SubName:            &name,
			Mtokens:            amount,
			CustodialTokenType: CustodialTokenTypeSats,
		})
		revenue = revenue.Add(amount)
	}

	if remaining.IsZero() {
		return out, nil
	}

	residual := remaining.Sub(revenue).Sub(routingFee)
	if residual.IsNegative() {
		return nil, Invariantf("rewards residual %s is negative for mcost %s", residual, mcost)
	}
	if residual.IsPositive() {
		out = append(out, NewPayOutCustodialToken(PayOutTypeRewardsPool, nil, residual, CustodialTokenTypeSats))
	}
	return out, nil
}

func splitRemaining(remaining decimal.Decimal, subs []SubShare) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(subs))
	if len(subs) == 0 {
		return shares
	}

	total := decimal.Zero
	proportional := true
	for _, sub := range subs {
		if sub.Mcost == nil {
			proportional = false
			break
		}
		total = total.Add(*sub.Mcost)
	}

	if proportional && total.IsPositive() {
		for i, sub := range subs {
			shares[i] = MulDiv(remaining, *sub.Mcost, total)
		}
		return shares
	}

	even := MulDiv(remaining, ONE, decimal.NewFromInt(int64(len(subs))))
	for i := range subs {
		shares[i] = even
	}
	return shares
}

// SumPayOuts totals custodial payouts plus the P2P payout.
func SumPayOuts(tokens []*PayOutCustodialToken, payOutBolt11 *PayOutBolt11) decimal.Decimal {
	total := decimal.Zero
	for _, t := range tokens {
		total = total.Add(t.Mtokens)
	}
	if payOutBolt11 != nil {
		total = total.Add(payOutBolt11.Msats)
	}
	return total
}
