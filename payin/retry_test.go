package payin

import (
	"testing"

	"github.com/DomeLiquid/payin/core"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failedZap submits a 100 sat zap to an author with two wallets and lets the
// forward to the preferred one fail.
func failedZap(t *testing.T, h *harness) (author, payer *core.User, failed *core.PayIn) {
	t.Helper()
	founder := h.user("founder", 0, 0)
	h.sub("bitcoin", founder, 10, 10)
	author = h.user("author", 0, 0)
	item := h.item(author, "bitcoin", nil)
	h.wallet(author, core.WalletProtocolNWC, "a@nwc", 0)
	h.wallet(author, core.WalletProtocolLNURL, "b@lnurl", 1)
	h.node.FailPaymentsTo("a@nwc", core.PayOutFailureReasonForwardingFailed)
	payer = h.user("bob", 0, 0)

	payIn, err := h.submit(core.PayInTypeZap, ItemAmountArgs{ItemId: item.Id, Sats: 100}, payer)
	require.NoError(t, err)
	assertMsats(t, 103_000, payIn.Mcost)
	require.NoError(t, h.node.Hold(payIn.PayInBolt11.Hash, payIn.PayInBolt11.Msats))

	failed, err = h.engine.OnInvoiceHeld(h.ctx, payIn.PayInBolt11.Hash)
	require.NoError(t, err)
	require.Equal(t, core.PayInStateFailed, failed.PayInState)
	return author, payer, failed
}

func TestRetryReroutesToLeastFailedWallet(t *testing.T) {
	h := newHarness(t)
	_, payer, failed := failedZap(t, h)
	firstWallet := *failed.PayOutBolt11.WalletId

	fresh, err := h.engine.Retry(h.ctx, failed.Id, payer)
	require.NoError(t, err)
	require.NotNil(t, fresh.GenesisId)
	assert.Equal(t, failed.Id, *fresh.GenesisId)
	assert.EqualValues(t, 1, fresh.Attempt)
	assert.Equal(t, core.PayInStatePending, fresh.PayInState)
	require.NotNil(t, fresh.PayOutBolt11)
	assert.NotEqual(t, firstWallet, *fresh.PayOutBolt11.WalletId)
	assertMsats(t, 103_000, fresh.Mcost)
	assertMsats(t, 3_000, payOutSum(fresh, core.PayOutTypeRoutingFee))

	require.NoError(t, h.node.Hold(fresh.PayInBolt11.Hash, fresh.PayInBolt11.Msats))
	paid, err := h.engine.OnInvoiceHeld(h.ctx, fresh.PayInBolt11.Hash)
	require.NoError(t, err)
	assert.Equal(t, core.PayInStatePaid, paid.PayInState)
}

func TestRetryFallsBackToCredits(t *testing.T) {
	h := newHarness(t)
	author, payer, failed := failedZap(t, h)
	h.node.FailWallet("a@nwc", errors.New("offline"))
	h.node.FailWallet("b@lnurl", errors.New("offline"))

	fresh, err := h.engine.Retry(h.ctx, failed.Id, payer)
	require.NoError(t, err)
	assert.Nil(t, fresh.PayOutBolt11)
	assertMsats(t, 103_000, fresh.Mcost)
	assert.True(t, payOutSum(fresh, core.PayOutTypeRoutingFee).IsZero())
	assertMsats(t, 3_000, payOutSum(fresh, core.PayOutTypeRewardsPool))
	require.NotNil(t, fresh.PayInBolt11)
	assert.False(t, fresh.PayInBolt11.Hold)

	require.NoError(t, h.node.Pay(fresh.PayInBolt11.Hash, fresh.PayInBolt11.Msats))
	paid, err := h.engine.OnInvoicePaid(h.ctx, fresh.PayInBolt11.Hash, fresh.PayInBolt11.Msats)
	require.NoError(t, err)
	assert.Equal(t, core.PayInStatePaid, paid.PayInState)
	assertMsats(t, 100_000, h.reload(author).Mcredits)
}

func TestRetryRefusesOversizedReplacement(t *testing.T) {
	h := newHarness(t)
	author, payer, failed := failedZap(t, h)
	h.node.FailWallet("a@nwc", errors.New("offline"))
	h.node.TruncateWallet("b@lnurl", msats(-5_000))

	fresh, err := h.engine.Retry(h.ctx, failed.Id, payer)
	require.NoError(t, err)
	assert.Nil(t, fresh.PayOutBolt11, "a wallet invoicing more than asked is skipped")
	assertMsats(t, 103_000, fresh.Mcost)

	require.NoError(t, h.node.Pay(fresh.PayInBolt11.Hash, fresh.PayInBolt11.Msats))
	_, err = h.engine.OnInvoicePaid(h.ctx, fresh.PayInBolt11.Hash, fresh.PayInBolt11.Msats)
	require.NoError(t, err)
	assertMsats(t, 100_000, h.reload(author).Mcredits)
}

func TestRetryP2POnlyNeverFallsBackToCredits(t *testing.T) {
	tests := []struct {
		name   string
		submit func(t *testing.T, h *harness, payer, payee *core.User) *core.PayIn
	}{
		{
			name: "bounty payment",
			submit: func(t *testing.T, h *harness, payer, payee *core.User) *core.PayIn {
				root := core.NewItem(h.clk, payer.Id, "bitcoin", nil)
				root.Status = core.ItemStatusActive
				root.Bounty = 100
				require.NoError(t, h.store.CreateItem(h.ctx, root))
				comment := h.item(payee, "bitcoin", root)

				payIn, err := h.submit(core.PayInTypeBountyPayment, BountyPaymentArgs{CommentId: comment.Id}, payer)
				require.NoError(t, err)
				return payIn
			},
		},
		{
			name: "proxy payment",
			submit: func(t *testing.T, h *harness, payer, payee *core.User) *core.PayIn {
				payIn, err := h.submit(core.PayInTypeProxyPayment, ProxyPaymentArgs{ReceiverId: payee.Id, Sats: 100}, payer)
				require.NoError(t, err)
				return payIn
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			founder := h.user("founder", 0, 0)
			h.sub("bitcoin", founder, 10, 10)
			payer := h.user("owner", 0, 1_000_000)
			payee := h.user("payee", 0, 0)
			h.wallet(payee, core.WalletProtocolNWC, "payee@nwc", 0)
			h.node.FailPaymentsTo("payee@nwc", core.PayOutFailureReasonForwardingFailed)

			payIn := tt.submit(t, h, payer, payee)
			require.NoError(t, h.node.Hold(payIn.PayInBolt11.Hash, payIn.PayInBolt11.Msats))
			failed, err := h.engine.OnInvoiceHeld(h.ctx, payIn.PayInBolt11.Hash)
			require.NoError(t, err)
			require.Equal(t, core.PayInStateFailed, failed.PayInState)

			h.node.FailWallet("payee@nwc", errors.New("offline"))
			fresh, err := h.engine.Retry(h.ctx, failed.Id, payer)
			assert.True(t, core.IsNoReceiveWallet(err), "got %v", err)
			assert.Nil(t, fresh)

			latest, err := h.store.GetLatestPayInInChain(h.ctx, failed.Id)
			require.NoError(t, err)
			assert.Equal(t, failed.Id, latest.Id, "no attempt was created")
			assert.True(t, h.reload(payee).Mcredits.IsZero())
			assertMsats(t, 1_000_000, h.reload(payer).Mcredits)
		})
	}
}

func TestRetryRejects(t *testing.T) {
	h := newHarness(t)
	author, payer, failed := failedZap(t, h)

	_, err := h.engine.Retry(h.ctx, failed.Id, nil)
	assert.ErrorIs(t, err, core.ErrAnonNotAllowed)

	_, err = h.engine.Retry(h.ctx, failed.Id, author)
	assert.ErrorIs(t, err, core.ErrNotPayInOwner)

	fresh, err := h.engine.Retry(h.ctx, failed.Id, payer)
	require.NoError(t, err)

	_, err = h.engine.Retry(h.ctx, failed.Id, payer)
	assert.ErrorIs(t, err, core.ErrNotRetryable, "already retried")

	_, err = h.engine.Retry(h.ctx, fresh.Id, payer)
	assert.ErrorIs(t, err, core.ErrNotRetryable, "still pending")
}
