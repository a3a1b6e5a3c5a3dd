package payin

import (
	"testing"

	"github.com/DomeLiquid/payin/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZapForwardsThroughWrappedInvoice(t *testing.T) {
	h := newHarness(t)
	founder := h.user("founder", 0, 0)
	h.sub("bitcoin", founder, 10, 10)
	author := h.user("author", 0, 0)
	forwarder := h.user("forwarder", 0, 0)
	item := h.item(author, "bitcoin", nil)
	require.NoError(t, h.store.CreateItemForwards(h.ctx, []*core.ItemForward{
		{Id: newId(), ItemId: item.Id, UserId: forwarder.Id, Pct: 30},
	}))
	h.wallet(author, core.WalletProtocolNWC, "author@nwc", 0)
	h.node.TruncateWallet("author@nwc", msats(5_000))
	bob := h.user("bob", 0, 0)

	payIn, err := h.submit(core.PayInTypeZap, ItemAmountArgs{ItemId: item.Id, Sats: 1000}, bob)
	require.NoError(t, err)
	assert.Equal(t, core.PayInStatePending, payIn.PayInState)
	assertMsats(t, 1_029_785, payIn.Mcost)

	require.NotNil(t, payIn.PayOutBolt11)
	assert.Equal(t, author.Id, payIn.PayOutBolt11.UserId)
	assertMsats(t, 695_000, payIn.PayOutBolt11.Msats)
	assertMsats(t, 300_000, payOutSum(payIn, core.PayOutTypeZap))
	assertMsats(t, 29_785, payOutSum(payIn, core.PayOutTypeRoutingFee))

	require.NotNil(t, payIn.PayInBolt11)
	assert.True(t, payIn.PayInBolt11.Hold)
	assert.Equal(t, payIn.PayOutBolt11.Hash, payIn.PayInBolt11.Hash)
	assertMsats(t, 1_029_785, payIn.PayInBolt11.Msats)

	require.NoError(t, h.node.Hold(payIn.PayInBolt11.Hash, payIn.PayInBolt11.Msats))
	paid, err := h.engine.OnInvoiceHeld(h.ctx, payIn.PayInBolt11.Hash)
	require.NoError(t, err)
	assert.Equal(t, core.PayInStatePaid, paid.PayInState)
	assert.Equal(t, core.PayOutStatusConfirmed, paid.PayOutBolt11.Status)
	assert.NotEmpty(t, paid.PayOutBolt11.Preimage)
	assertMsats(t, 5_000, payOutSum(paid, core.PayOutTypeRewardsPool))
	assert.Equal(t, core.InvoiceStatePaid, h.node.InvoiceState(payIn.PayInBolt11.Hash))

	assertMsats(t, 300_000, h.reload(forwarder).Mcredits)
	assert.True(t, h.reload(author).Msats.IsZero(), "author is paid over lightning")

	got, err := h.store.GetItemById(h.ctx, item.Id)
	require.NoError(t, err)
	assertMsats(t, 1_000_000, got.Msats)

	for _, u := range []*core.User{author, forwarder} {
		notes, err := h.store.ListNotifications(h.ctx, u.Id, 10)
		require.NoError(t, err)
		require.Len(t, notes, 1, u.Name)
		assert.Equal(t, core.NotificationKindZap, notes[0].Kind)
	}

	again, err := h.engine.OnInvoiceHeld(h.ctx, payIn.PayInBolt11.Hash)
	require.NoError(t, err)
	assert.Equal(t, core.PayInStatePaid, again.PayInState)
	assertMsats(t, 300_000, h.reload(forwarder).Mcredits, "settled once")
}

func TestZapForwardingFailure(t *testing.T) {
	h := newHarness(t)
	founder := h.user("founder", 0, 0)
	h.sub("bitcoin", founder, 10, 10)
	author := h.user("author", 0, 0)
	item := h.item(author, "bitcoin", nil)
	h.wallet(author, core.WalletProtocolNWC, "author@nwc", 0)
	h.node.FailPaymentsTo("author@nwc", core.PayOutFailureReasonCltvDeltaTooLow)
	bob := h.user("bob", 0, 0)

	payIn, err := h.submit(core.PayInTypeZap, ItemAmountArgs{ItemId: item.Id, Sats: 100}, bob)
	require.NoError(t, err)
	require.NoError(t, h.node.Hold(payIn.PayInBolt11.Hash, payIn.PayInBolt11.Msats))

	failed, err := h.engine.OnInvoiceHeld(h.ctx, payIn.PayInBolt11.Hash)
	require.NoError(t, err)
	assert.Equal(t, core.PayInStateFailed, failed.PayInState)
	assert.Equal(t, core.PayInFailureReasonInvoiceForwardingFailed, failed.PayInFailureReason)
	assert.Equal(t, core.PayOutStatusFailed, failed.PayOutBolt11.Status)
	assert.Equal(t, core.PayOutFailureReasonCltvDeltaTooLow, failed.PayOutBolt11.FailureReason)
	assert.Equal(t, core.InvoiceStateCanceled, h.node.InvoiceState(payIn.PayInBolt11.Hash))
}

// stalledZap holds a 100 sat zap whose forward to the author never completes.
func stalledZap(t *testing.T, h *harness) (item *core.Item, payer *core.User, held *core.PayIn) {
	t.Helper()
	founder := h.user("founder", 0, 0)
	h.sub("bitcoin", founder, 10, 10)
	author := h.user("author", 0, 0)
	item = h.item(author, "bitcoin", nil)
	h.wallet(author, core.WalletProtocolNWC, "author@nwc", 0)
	payer = h.user("bob", 0, 0)

	payIn, err := h.submit(core.PayInTypeZap, ItemAmountArgs{ItemId: item.Id, Sats: 100}, payer)
	require.NoError(t, err)
	h.node.StallPayment(payIn.PayOutBolt11.Hash)
	require.NoError(t, h.node.Hold(payIn.PayInBolt11.Hash, payIn.PayInBolt11.Msats))

	held, err = h.engine.OnInvoiceHeld(h.ctx, payIn.PayInBolt11.Hash)
	require.NoError(t, err)
	require.Equal(t, core.PayInStatePendingHeld, held.PayInState)

	_, err = h.engine.Cancel(h.ctx, held.Id, payer)
	require.ErrorIs(t, err, core.ErrNotCancelable)
	return item, payer, held
}

func TestZapFailureSignalWaitsForForward(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T, h *harness, held *core.PayIn) *core.PayIn
	}{
		{
			name: "forward completes before the signal",
			run: func(t *testing.T, h *harness, held *core.PayIn) *core.PayIn {
				hash := held.PayInBolt11.Hash
				require.NoError(t, h.node.CompletePayment(held.PayOutBolt11.Hash))
				require.NoError(t, h.node.Expire(hash))

				paid, err := h.engine.OnInvoiceFailed(h.ctx, hash, core.InvoiceStateExpired)
				require.NoError(t, err)
				return paid
			},
		},
		{
			name: "forward still in flight",
			run: func(t *testing.T, h *harness, held *core.PayIn) *core.PayIn {
				hash := held.PayInBolt11.Hash
				require.NoError(t, h.node.Expire(hash))

				pending, err := h.engine.OnInvoiceFailed(h.ctx, hash, core.InvoiceStateExpired)
				require.NoError(t, err)
				assert.Equal(t, core.PayInStatePendingHeld, pending.PayInState)
				assert.Equal(t, core.PayOutStatusPending, h.payIn(held.Id).PayOutBolt11.Status)

				require.NoError(t, h.node.CompletePayment(held.PayOutBolt11.Hash))
				paid, err := h.engine.Attempt(h.ctx, held.Id)
				require.NoError(t, err)
				return paid
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			item, payer, held := stalledZap(t, h)

			paid := tt.run(t, h, held)
			assert.Equal(t, core.PayInStatePaid, paid.PayInState)
			assert.Equal(t, core.PayOutStatusConfirmed, paid.PayOutBolt11.Status)
			assert.NotEmpty(t, paid.PayOutBolt11.Preimage)

			_, err := h.engine.Retry(h.ctx, held.Id, payer)
			assert.ErrorIs(t, err, core.ErrNotRetryable)

			got, err := h.store.GetItemById(h.ctx, item.Id)
			require.NoError(t, err)
			assertMsats(t, 100_000, got.Msats)
		})
	}
}

func TestInvoicePaidRequiresNodeConfirmation(t *testing.T) {
	t.Run("wrapped zap", func(t *testing.T) {
		h := newHarness(t)
		founder := h.user("founder", 0, 0)
		h.sub("bitcoin", founder, 10, 10)
		author := h.user("author", 0, 0)
		item := h.item(author, "bitcoin", nil)
		h.wallet(author, core.WalletProtocolNWC, "author@nwc", 0)
		bob := h.user("bob", 0, 0)

		payIn, err := h.submit(core.PayInTypeZap, ItemAmountArgs{ItemId: item.Id, Sats: 100}, bob)
		require.NoError(t, err)
		hash := payIn.PayInBolt11.Hash

		_, err = h.engine.OnInvoicePaid(h.ctx, hash, payIn.PayInBolt11.Msats)
		assert.ErrorIs(t, err, core.ErrInvoiceNotPaid)
		got := h.payIn(payIn.Id)
		assert.Equal(t, core.PayInStatePending, got.PayInState)
		assert.Equal(t, core.PayOutStatusPending, got.PayOutBolt11.Status)

		require.NoError(t, h.node.Hold(hash, payIn.PayInBolt11.Msats))
		paid, err := h.engine.OnInvoicePaid(h.ctx, hash, payIn.PayInBolt11.Msats)
		require.NoError(t, err)
		assert.Equal(t, core.PayInStatePaid, paid.PayInState)
		assert.NotEmpty(t, paid.PayOutBolt11.Preimage)

		payment, err := h.node.LookupPayment(h.ctx, paid.PayOutBolt11.Hash)
		require.NoError(t, err)
		assert.Equal(t, core.PaymentStateSucceeded, payment.State)
	})

	t.Run("boost", func(t *testing.T) {
		h := newHarness(t)
		founder := h.user("founder", 0, 0)
		h.sub("bitcoin", founder, 10, 0)
		author := h.user("author", 0, 0)
		item := h.item(author, "bitcoin", nil)
		bob := h.user("bob", 0, 0)

		payIn, err := h.submit(core.PayInTypeBoost, ItemAmountArgs{ItemId: item.Id, Sats: 100}, bob)
		require.NoError(t, err)
		require.NotNil(t, payIn.PayInBolt11)
		hash := payIn.PayInBolt11.Hash

		_, err = h.engine.OnInvoicePaid(h.ctx, hash, payIn.PayInBolt11.Msats)
		assert.ErrorIs(t, err, core.ErrInvoiceNotPaid)
		assert.NotEqual(t, core.PayInStatePaid, h.payIn(payIn.Id).PayInState)

		require.NoError(t, h.node.Pay(hash, payIn.PayInBolt11.Msats))
		paid, err := h.engine.OnInvoicePaid(h.ctx, hash, payIn.PayInBolt11.Msats)
		require.NoError(t, err)
		assert.Equal(t, core.PayInStatePaid, paid.PayInState)
	})
}

func TestZapFallsBackToCredits(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness, author, payer *core.User)
	}{
		{
			name: "author has no wallet",
			setup: func(h *harness, author, payer *core.User) {
			},
		},
		{
			name: "author prefers credits",
			setup: func(h *harness, author, payer *core.User) {
				h.wallet(author, core.WalletProtocolNWC, "author@nwc", 0)
				require.NoError(h.t, h.store.DB().Model(author).Update("receive_credits_below_sats", 1000).Error)
			},
		},
		{
			name: "payer sends credits",
			setup: func(h *harness, author, payer *core.User) {
				h.wallet(author, core.WalletProtocolNWC, "author@nwc", 0)
				require.NoError(h.t, h.store.DB().Model(payer).Update("send_credits_below_sats", 1000).Error)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			founder := h.user("founder", 0, 0)
			h.sub("bitcoin", founder, 10, 10)
			author := h.user("author", 0, 0)
			item := h.item(author, "bitcoin", nil)
			bob := h.user("bob", 0, 100_000)
			tt.setup(h, author, bob)
			bob = h.reload(bob)

			payIn, err := h.submit(core.PayInTypeZap, ItemAmountArgs{ItemId: item.Id, Sats: 100}, bob)
			require.NoError(t, err)
			assert.Equal(t, core.PayInStatePaid, payIn.PayInState)
			assert.Nil(t, payIn.PayOutBolt11)
			assertMsats(t, 100_000, payIn.Mcost, "no routing fee without a payout")
			assertMsats(t, 100_000, h.reload(author).Mcredits)
		})
	}
}

func TestZapRejectsSelfZap(t *testing.T) {
	h := newHarness(t)
	founder := h.user("founder", 0, 0)
	h.sub("bitcoin", founder, 10, 10)
	author := h.user("author", 0, 100_000)
	item := h.item(author, "bitcoin", nil)

	_, err := h.submit(core.PayInTypeZap, ItemAmountArgs{ItemId: item.Id, Sats: 10}, author)
	assert.ErrorIs(t, err, core.ErrSelfZap)
}
