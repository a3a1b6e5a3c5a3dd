package lnsim

import (
	"context"
	"testing"
	"time"

	"github.com/DomeLiquid/payin/core"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoldAndSettle(t *testing.T) {
	ctx := context.Background()
	n := New(clock.NewMock())

	inv, err := n.CreateInvoice(ctx, core.CreateInvoiceRequest{Msats: decimal.NewFromInt(1000), Expiry: time.Hour, Hold: true})
	require.NoError(t, err)
	require.Error(t, n.Pay(inv.Hash, inv.Msats), "hold invoices are held, not paid")
	require.NoError(t, n.Hold(inv.Hash, inv.Msats))

	status, err := n.LookupInvoice(ctx, inv.Hash)
	require.NoError(t, err)
	assert.Equal(t, core.InvoiceStateHeld, status.State)
	assert.True(t, status.MsatsReceived.Equal(inv.Msats))

	require.NoError(t, n.SettleInvoice(ctx, inv.Preimage))
	require.NoError(t, n.SettleInvoice(ctx, inv.Preimage))
	assert.Equal(t, core.InvoiceStatePaid, n.InvoiceState(inv.Hash))
	assert.Error(t, n.CancelInvoice(ctx, inv.Hash))
}

func TestLookupExpires(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	n := New(clk)

	inv, err := n.CreateInvoice(ctx, core.CreateInvoiceRequest{Msats: decimal.NewFromInt(1000), Expiry: time.Minute})
	require.NoError(t, err)
	clk.Add(2 * time.Minute)

	status, err := n.LookupInvoice(ctx, inv.Hash)
	require.NoError(t, err)
	assert.Equal(t, core.InvoiceStateExpired, status.State)

	_, err = n.LookupInvoice(ctx, "missing")
	assert.True(t, errors.Is(err, core.ErrInvoiceNotFound))
}

func TestWrapAndForward(t *testing.T) {
	ctx := context.Background()
	n := New(clock.NewMock())
	wallet := core.NewWallet(clock.NewMock(), uuid.Must(uuid.NewV4()), core.WalletProtocolNWC, "nwc://bob", 0)

	payee, err := n.Receiver().CreateInvoice(ctx, wallet, decimal.NewFromInt(700_000), "zap", time.Hour)
	require.NoError(t, err)
	decoded, err := n.InspectInvoice(ctx, payee)
	require.NoError(t, err)
	assert.Equal(t, "zap", decoded.Description)

	_, err = n.WrapInvoice(ctx, core.WrapInvoiceRequest{Bolt11: payee, Msats: decimal.NewFromInt(600_000), Expiry: time.Hour})
	var receiverErr *core.ReceiverError
	require.True(t, errors.As(err, &receiverErr))

	wrapped, err := n.WrapInvoice(ctx, core.WrapInvoiceRequest{Bolt11: payee, Msats: decimal.NewFromInt(721_000), Expiry: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, decoded.Hash, wrapped.Hash)
	assert.Empty(t, wrapped.Preimage)
	require.NoError(t, n.Hold(wrapped.Hash, wrapped.Msats))

	n.SetRoutingFee(decimal.NewFromInt(3000))
	payment, err := n.PayInvoice(ctx, core.PayInvoiceRequest{Bolt11: payee, MaxFeeMsats: decimal.NewFromInt(21_000)})
	require.NoError(t, err)
	require.Equal(t, core.PaymentStateSucceeded, payment.State)
	assert.True(t, payment.FeeMsats.Equal(decimal.NewFromInt(3000)))

	again, err := n.LookupPayment(ctx, decoded.Hash)
	require.NoError(t, err)
	assert.Equal(t, payment.Preimage, again.Preimage)

	require.NoError(t, n.SettleInvoice(ctx, payment.Preimage))
	assert.Equal(t, core.InvoiceStatePaid, n.InvoiceState(wrapped.Hash))
}

func TestPaymentFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		setup  func(n *Node, hash string)
		maxFee int64
		want   core.PaymentState
	}{
		{name: "succeeds", setup: func(*Node, string) {}, maxFee: 10, want: core.PaymentStateSucceeded},
		{name: "fee too high", setup: func(n *Node, _ string) { n.SetRoutingFee(decimal.NewFromInt(11)) }, maxFee: 10, want: core.PaymentStateFailed},
		{name: "wallet fails", setup: func(n *Node, _ string) {
			n.FailPaymentsTo("lnurl://carol", core.PayOutFailureReasonForwardingFailed)
		}, maxFee: 10, want: core.PaymentStateFailed},
		{name: "in flight", setup: func(n *Node, hash string) { n.StallPayment(hash) }, maxFee: 10, want: core.PaymentStateInFlight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New(clock.NewMock())
			bolt11 := n.ExternalInvoice("lnurl://carol", decimal.NewFromInt(5000), "", time.Hour)
			decoded, err := n.InspectInvoice(ctx, bolt11)
			require.NoError(t, err)
			tt.setup(n, decoded.Hash)

			payment, err := n.PayInvoice(ctx, core.PayInvoiceRequest{Bolt11: bolt11, MaxFeeMsats: decimal.NewFromInt(tt.maxFee)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, payment.State)
		})
	}
}

func TestReceiverControls(t *testing.T) {
	ctx := context.Background()
	n := New(clock.NewMock())
	wallet := core.NewWallet(clock.NewMock(), uuid.Must(uuid.NewV4()), core.WalletProtocolLNURL, "lnurl://dave", 0)

	n.TruncateWallet(wallet.Address, decimal.NewFromInt(5000))
	bolt11, err := n.Receiver().CreateInvoice(ctx, wallet, decimal.NewFromInt(700_000), "", time.Hour)
	require.NoError(t, err)
	decoded, err := n.InspectInvoice(ctx, bolt11)
	require.NoError(t, err)
	assert.True(t, decoded.Msats.Equal(decimal.NewFromInt(695_000)))

	n.FailWallet(wallet.Address, errors.New("offline"))
	_, err = n.Receiver().CreateInvoice(ctx, wallet, decimal.NewFromInt(1000), "", time.Hour)
	assert.EqualError(t, err, "offline")
}
