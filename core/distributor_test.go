package core

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func int64Ptr(i int64) *int64 {
	return &i
}

func msats(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func sumByType(tokens []*PayOutCustodialToken, payOutType PayOutType) decimal.Decimal {
	total := decimal.Zero
	for _, t := range tokens {
		if t.PayOutType == payOutType {
			total = total.Add(t.Mtokens)
		}
	}
	return total
}

func TestRedistributeSingleSub(t *testing.T) {
	founder := uuid.Must(uuid.NewV4())
	subs := []SubShare{{Name: "bitcoin", UserId: founder, RewardsPct: 10}}

	tokens, err := RedistributePayOutCustodialTokens(msats(100_000), subs, nil, nil)
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	assert.Equal(t, PayOutTypeTerritoryRevenue, tokens[0].PayOutType)
	assert.True(t, tokens[0].Mtokens.Equal(msats(90_000)), "expected 90000, got %s", tokens[0].Mtokens)
	assert.Equal(t, founder, *tokens[0].UserId)
	assert.Equal(t, "bitcoin", *tokens[0].SubName)
	assert.Equal(t, CustodialTokenTypeSats, tokens[0].CustodialTokenType)

	assert.Equal(t, PayOutTypeRewardsPool, tokens[1].PayOutType)
	assert.True(t, tokens[1].Mtokens.Equal(msats(10_000)), "expected 10000, got %s", tokens[1].Mtokens)
	assert.Nil(t, tokens[1].UserId)
}

func TestRedistributeSplits(t *testing.T) {
	a := uuid.Must(uuid.NewV4())
	b := uuid.Must(uuid.NewV4())
	c := uuid.Must(uuid.NewV4())

	tests := []struct {
		name      string
		mcost     decimal.Decimal
		subs      []SubShare
		territory []decimal.Decimal
		pool      decimal.Decimal
	}{
		{
			name:  "proportional",
			mcost: msats(1_000),
			subs: []SubShare{
				{Name: "a", UserId: a, RewardsPct: 10, Mcost: decimalPtr(msats(100))},
				{Name: "b", UserId: b, RewardsPct: 20, Mcost: decimalPtr(msats(300))},
			},
			// 250 * 90% and 750 * 80%
			territory: []decimal.Decimal{msats(225), msats(600)},
			pool:      msats(175),
		},
		{
			name:  "even when a sub has no cost",
			mcost: msats(1_000),
			subs: []SubShare{
				{Name: "a", UserId: a, RewardsPct: 0, Mcost: decimalPtr(msats(100))},
				{Name: "b", UserId: b, RewardsPct: 0},
				{Name: "c", UserId: c, RewardsPct: 0},
			},
			// the 1 msat rounding remainder lands in the pool
			territory: []decimal.Decimal{msats(333), msats(333), msats(333)},
			pool:      msats(1),
		},
		{
			name:  "even when costs sum to zero",
			mcost: msats(10),
			subs: []SubShare{
				{Name: "a", UserId: a, RewardsPct: 50, Mcost: decimalPtr(decimal.Zero)},
				{Name: "b", UserId: b, RewardsPct: 50, Mcost: decimalPtr(decimal.Zero)},
			},
			territory: []decimal.Decimal{msats(2), msats(2)},
			pool:      msats(6),
		},
		{
			name:  "override pct",
			mcost: msats(1_000),
			subs: []SubShare{
				{Name: "a", UserId: a, RewardsPct: 30, OverridePct: int64Ptr(100)},
			},
			territory: []decimal.Decimal{decimal.Zero},
			pool:      msats(1_000),
		},
		{
			name:  "truncates toward zero",
			mcost: msats(999),
			subs: []SubShare{
				{Name: "a", UserId: a, RewardsPct: 30},
			},
			territory: []decimal.Decimal{msats(699)},
			pool:      msats(300),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := RedistributePayOutCustodialTokens(tt.mcost, tt.subs, nil, nil)
			require.NoError(t, err)

			var territory []decimal.Decimal
			for _, tok := range tokens {
				if tok.PayOutType == PayOutTypeTerritoryRevenue {
					territory = append(territory, tok.Mtokens)
				}
			}
			require.Len(t, territory, len(tt.territory))
			for i := range territory {
				assert.True(t, territory[i].Equal(tt.territory[i]), "sub %d: expected %s, got %s", i, tt.territory[i], territory[i])
			}
			pool := sumByType(tokens, PayOutTypeRewardsPool)
			assert.True(t, pool.Equal(tt.pool), "expected pool %s, got %s", tt.pool, pool)
			assert.True(t, SumPayOuts(tokens, nil).Equal(tt.mcost), "payouts must sum to mcost")
		})
	}
}

func TestRedistributeZeroCost(t *testing.T) {
	subs := []SubShare{{Name: "meta", UserId: uuid.Must(uuid.NewV4()), RewardsPct: 30}}

	tokens, err := RedistributePayOutCustodialTokens(decimal.Zero, subs, nil, nil)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, PayOutTypeTerritoryRevenue, tokens[0].PayOutType)
	assert.True(t, tokens[0].Mtokens.IsZero())
}

func TestRedistributeP2PWithRoutingFee(t *testing.T) {
	author := uuid.Must(uuid.NewV4())
	forwardee := uuid.Must(uuid.NewV4())
	payOut := &PayOutBolt11{UserId: author, Msats: msats(695)}
	existing := []*PayOutCustodialToken{
		NewPayOutCustodialToken(PayOutTypeZap, &forwardee, msats(300), CustodialTokenTypeCredits),
		NewPayOutCustodialToken(PayOutTypeRoutingFee, nil, msats(29), CustodialTokenTypeSats),
	}

	tokens, err := RedistributePayOutCustodialTokens(msats(1_029), nil, existing, payOut)
	require.NoError(t, err)
	require.Len(t, tokens, 3)

	assert.True(t, sumByType(tokens, PayOutTypeZap).Equal(msats(300)))
	assert.True(t, sumByType(tokens, PayOutTypeRoutingFee).Equal(msats(29)))
	assert.True(t, sumByType(tokens, PayOutTypeRewardsPool).Equal(msats(5)))
	assert.True(t, SumPayOuts(tokens, payOut).Equal(msats(1_029)))
}

func TestRedistributeInvariants(t *testing.T) {
	tests := []struct {
		name   string
		mcost  decimal.Decimal
		tokens []*PayOutCustodialToken
		payOut *PayOutBolt11
	}{
		{
			name:   "payout exceeds cost",
			mcost:  msats(100),
			payOut: &PayOutBolt11{Msats: msats(101)},
		},
		{
			name:  "tokens exceed cost",
			mcost: msats(100),
			tokens: []*PayOutCustodialToken{
				NewPayOutCustodialToken(PayOutTypeZap, nil, msats(150), CustodialTokenTypeCredits),
			},
		},
		{
			name:  "routing fee exceeds remainder",
			mcost: msats(100),
			tokens: []*PayOutCustodialToken{
				NewPayOutCustodialToken(PayOutTypeRoutingFee, nil, msats(10), CustodialTokenTypeSats),
			},
			payOut: &PayOutBolt11{Msats: msats(95)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RedistributePayOutCustodialTokens(tt.mcost, nil, tt.tokens, tt.payOut)
			assert.Error(t, err)
			assert.True(t, IsInvariant(err))
		})
	}
}

func TestRedistributeIsPure(t *testing.T) {
	founder := uuid.Must(uuid.NewV4())
	subs := []SubShare{{Name: "a", UserId: founder, RewardsPct: 25}}
	existing := []*PayOutCustodialToken{
		NewPayOutCustodialToken(PayOutTypeRoutingFee, nil, msats(7), CustodialTokenTypeSats),
	}

	first, err := RedistributePayOutCustodialTokens(msats(4_321), subs, existing, nil)
	require.NoError(t, err)
	second, err := RedistributePayOutCustodialTokens(msats(4_321), subs, existing, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, existing, 1)
	assert.True(t, existing[0].Mtokens.Equal(msats(7)))

	first[0].Mtokens = msats(0)
	assert.True(t, existing[0].Mtokens.Equal(msats(7)), "input tokens must not be shared with the output")
}

func TestNewSubShares(t *testing.T) {
	founder := uuid.Must(uuid.NewV4())
	subs := []*Sub{{Name: "a", UserId: founder, RewardsPct: 30}}
	links := []*SubPayIn{
		{SubName: "a", RewardsPct: int64Ptr(50), Mcost: decimalPtr(msats(10))},
		{SubName: "missing"},
	}

	shares := NewSubShares(subs, links)
	require.Len(t, shares, 1)
	assert.Equal(t, int64(50), shares[0].rewardsPct())
	assert.Equal(t, founder, shares[0].UserId)
	assert.True(t, shares[0].Mcost.Equal(msats(10)))
}
