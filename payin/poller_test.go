package payin

import (
	"context"
	"testing"
	"time"

	"github.com/DomeLiquid/payin/core"
	"github.com/DomeLiquid/payin/jobs"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGrace = 30 * time.Second

func pendingBoost(t *testing.T, h *harness) *core.PayIn {
	t.Helper()
	founder := h.user("founder", 0, 0)
	h.sub("bitcoin", founder, 10, 10)
	author := h.user("author", 0, 0)
	item := h.item(author, "bitcoin", nil)
	bob := h.user("bob", 0, 0)

	payIn, err := h.submit(core.PayInTypeBoost, ItemAmountArgs{ItemId: item.Id, Sats: 10}, bob)
	require.NoError(t, err)
	require.Equal(t, core.PayInStatePending, payIn.PayInState)
	return payIn
}

func TestSweepSettlesMissedWebhook(t *testing.T) {
	h := newHarness(t)
	payIn := pendingBoost(t, h)
	require.NoError(t, h.node.Pay(payIn.PayInBolt11.Hash, payIn.PayInBolt11.Msats))
	poller := NewPoller(h.engine, nil, PollerConfig{Grace: testGrace})

	n, err := poller.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh payins are left to the webhook")

	h.clk.Add(testGrace + time.Second)
	n, err = poller.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, core.PayInStatePaid, h.payIn(payIn.Id).PayInState)

	n, err = poller.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepFailsExpiredInvoice(t *testing.T) {
	h := newHarness(t)
	payIn := pendingBoost(t, h)
	poller := NewPoller(h.engine, nil, PollerConfig{Grace: testGrace})

	h.clk.Add(core.DEFAULT_INVOICE_EXPIRY + testGrace)
	_, err := poller.Sweep(h.ctx)
	require.NoError(t, err)

	got := h.payIn(payIn.Id)
	assert.Equal(t, core.PayInStateFailed, got.PayInState)
	assert.Equal(t, core.PayInFailureReasonInvoiceExpired, got.PayInFailureReason)
}

func TestSweepRunsAutoWithdrawals(t *testing.T) {
	h := newHarness(t)
	mr := miniredis.RunT(t)
	rds := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rds.Close() })
	scheduler := jobs.NewRedisScheduler(rds, jobs.DefaultPrefix)
	h.engine = h.newEngine(scheduler)

	founder := h.user("founder", 0, 0)
	require.NoError(t, h.store.DB().Model(founder).Update("auto_withdraw_threshold_sats", 50).Error)
	h.wallet(founder, core.WalletProtocolNWC, "founder@nwc", 0)
	h.sub("bitcoin", founder, 10, 0)
	author := h.user("author", 0, 0)
	item := h.item(author, "bitcoin", nil)
	bob := h.user("bob", 0, 100_000)

	payIn, err := h.submit(core.PayInTypeBoost, ItemAmountArgs{ItemId: item.Id, Sats: 100}, bob)
	require.NoError(t, err)
	require.Equal(t, core.PayInStatePaid, payIn.PayInState)
	assertMsats(t, 100_000, h.reload(founder).Msats)

	queued, err := scheduler.Pending(h.ctx, core.JobAutoWithdraw)
	require.NoError(t, err)
	assert.EqualValues(t, 1, queued)

	poller := NewPoller(h.engine, scheduler, PollerConfig{Grace: testGrace})
	_, err = poller.Sweep(h.ctx)
	require.NoError(t, err)

	queued, err = scheduler.Pending(h.ctx, core.JobAutoWithdraw)
	require.NoError(t, err)
	assert.Zero(t, queued)

	// 99,000 msats withdrawn with a 990 msat fee reserve, refunded in full.
	assertMsats(t, 1_000, h.reload(founder).Msats)
	notes, err := h.store.ListNotifications(h.ctx, founder.Id, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, core.NotificationKindWithdrawal, notes[0].Kind)
}

func TestPollerRunStopsWithContext(t *testing.T) {
	h := newHarness(t)
	poller := NewPoller(h.engine, nil, PollerConfig{Interval: 5 * time.Millisecond, Grace: testGrace})

	ctx, cancel := context.WithTimeout(h.ctx, 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, poller.Run(ctx), context.DeadlineExceeded)
}
