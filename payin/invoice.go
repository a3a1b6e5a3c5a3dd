package payin

import (
	"context"

	"github.com/DomeLiquid/payin/core"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func (e *Engine) description(ctx context.Context, module Module, payIn *core.PayIn) string {
	text, err := module.Describe(ctx, e, payIn)
	if err != nil || text == "" {
		return payIn.PayInType.String()
	}
	return text
}

// createInvoice issues the invoice for the uncovered remainder. Pessimistic
// PayIns get a hold invoice so the action can still be refused once paid.
func (e *Engine) createInvoice(ctx context.Context, module Module, payIn *core.PayIn) (*core.PayIn, error) {
	hold := payIn.IsPessimistic(module.PaymentMethods())
	expiry := e.opts.InvoiceExpiry
	if hold {
		expiry = e.opts.HoldExpiry
	}

	invoice, err := e.invoices.CreateInvoice(ctx, core.CreateInvoiceRequest{
		Msats:       payIn.MCostRemaining(),
		Description: e.description(ctx, module, payIn),
		Expiry:      expiry,
		Hold:        hold,
	})
	if err != nil {
		core.WithPayIn(e.log.Error(), payIn).Err(err).Msg("create invoice")
		return e.failPayIn(ctx, module, payIn, []core.PayInState{core.PayInStatePendingInvoiceCreation}, core.PayInFailureReasonInvoiceCreationFailed, "")
	}

	return e.attachInvoice(ctx, payIn, invoice, core.PayInStatePendingInvoiceCreation)
}

// wrapInvoice issues a hold invoice that forwards to the payee's invoice once held.
func (e *Engine) wrapInvoice(ctx context.Context, module Module, payIn *core.PayIn) (*core.PayIn, error) {
	payOut := payIn.PayOutBolt11
	if payOut == nil {
		return nil, core.Invariantf("payin %s wraps without a payout", payIn.Id)
	}

	invoice, err := e.invoices.WrapInvoice(ctx, core.WrapInvoiceRequest{
		Bolt11:      payOut.Bolt11,
		Msats:       payIn.MCostRemaining(),
		Description: e.description(ctx, module, payIn),
		Expiry:      e.opts.HoldExpiry,
	})
	if err != nil {
		reason := core.PayOutFailureReasonWrappingUnknown
		var receiverErr *core.ReceiverError
		if errors.As(err, &receiverErr) {
			reason = receiverErr.Reason
		}
		core.WithPayIn(e.log.Warn(), payIn).Err(err).Str("reason", reason.String()).Msg("wrap invoice")
		return e.failPayIn(ctx, module, payIn, []core.PayInState{core.PayInStatePendingInvoiceWrap}, reason.PayInReason(), reason)
	}

	return e.attachInvoice(ctx, payIn, invoice, core.PayInStatePendingInvoiceWrap)
}

func (e *Engine) attachInvoice(ctx context.Context, payIn *core.PayIn, invoice *core.Invoice, from core.PayInState) (*core.PayIn, error) {
	err := e.store.Transaction(ctx, func(tx core.Store) error {
		ok, err := tx.TransitionPayInState(ctx, payIn.Id, []core.PayInState{from}, core.PayInStatePending, core.PayInFailureReasonNone, e.clk.Now().Unix())
		if err != nil {
			return err
		}
		if !ok {
			return errStaleState
		}
		payIn.PayInBolt11 = core.NewPayInBolt11(e.clk, payIn.Id, invoice)
		return tx.SavePayInBolt11(ctx, payIn.PayInBolt11)
	})
	switch {
	case errors.Is(err, errStaleState):
		if cancelErr := e.invoices.CancelInvoice(ctx, invoice.Hash); cancelErr != nil {
			core.WithPayIn(e.log.Warn(), payIn).Err(cancelErr).Msg("cancel orphaned invoice")
		}
	case err != nil:
		return nil, err
	default:
		payIn.Transition(core.PayInStatePending, core.PayInFailureReasonNone, e.clk.Now().Unix())
		e.observe(ctx, payIn)
	}
	return e.store.GetPayIn(ctx, payIn.Id)
}

// payWithdrawal sends the withdrawal payment, spending at most the reserved fee.
func (e *Engine) payWithdrawal(ctx context.Context, module Module, payIn *core.PayIn) (*core.PayIn, error) {
	payOut := payIn.PayOutBolt11
	if payOut == nil {
		return nil, core.Invariantf("withdrawal %s has no payout", payIn.Id)
	}

	payment, err := e.invoices.PayInvoice(ctx, core.PayInvoiceRequest{
		Bolt11:      payOut.Bolt11,
		MaxFeeMsats: payIn.Mcost.Sub(payOut.Msats),
	})
	if err != nil {
		core.WithPayIn(e.log.Warn(), payIn).Err(err).Msg("pay withdrawal")
		return e.failPayIn(ctx, module, payIn, []core.PayInState{core.PayInStatePendingWithdrawal}, core.PayInFailureReasonWithdrawalFailed, core.PayOutFailureReasonForwardingFailed)
	}
	return e.onWithdrawalPayment(ctx, module, payIn, payment)
}

func (e *Engine) onWithdrawalPayment(ctx context.Context, module Module, payIn *core.PayIn, payment *core.Payment) (*core.PayIn, error) {
	switch payment.State {
	case core.PaymentStateSucceeded:
		payOut := payIn.PayOutBolt11
		maxFee := payIn.Mcost.Sub(payOut.Msats)
		if payment.FeeMsats.GreaterThan(maxFee) {
			return nil, core.Invariantf("withdrawal %s paid fee %s above max %s", payIn.Id, payment.FeeMsats, maxFee)
		}

		if payment.FeeMsats.IsPositive() {
			fee := core.NewPayOutCustodialToken(core.PayOutTypeRoutingFee, nil, payment.FeeMsats, core.CustodialTokenTypeSats)
			payIn.PayOutCustodialTokens = append(payIn.PayOutCustodialTokens, fee)
		}
		if refund := maxFee.Sub(payment.FeeMsats); refund.IsPositive() {
			userId := payIn.UserId
			token := core.NewPayOutCustodialToken(core.PayOutTypeRoutingFeeRefund, &userId, refund, core.CustodialTokenTypeSats)
			payIn.PayOutCustodialTokens = append(payIn.PayOutCustodialTokens, token)
		}
		payOut.Preimage = payment.Preimage

		err := e.settleInTx(ctx, module, payIn, []core.PayInState{core.PayInStatePendingWithdrawal}, nil)
		if err != nil && !errors.Is(err, errStaleState) {
			return nil, err
		}
	case core.PaymentStateFailed:
		reason := payment.FailureReason
		if reason == "" {
			reason = core.PayOutFailureReasonForwardingFailed
		}
		return e.failPayIn(ctx, module, payIn, []core.PayInState{core.PayInStatePendingWithdrawal}, core.PayInFailureReasonWithdrawalFailed, reason)
	}
	return e.store.GetPayIn(ctx, payIn.Id)
}

// OnInvoiceHeld handles a hold invoice the payer has locked funds into.
// Pessimistic PayIns perform their action and settle; wrapped PayIns forward to
// the payee first and settle with the preimage they learn.
func (e *Engine) OnInvoiceHeld(ctx context.Context, hash string) (*core.PayIn, error) {
	payIn, err := e.store.GetPayInByInvoiceHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	module, err := ModuleFor(payIn.PayInType)
	if err != nil {
		return nil, err
	}

	switch payIn.PayInState {
	case core.PayInStatePending:
		now := e.clk.Now().Unix()
		err := e.store.Transaction(ctx, func(tx core.Store) error {
			ok, err := tx.TransitionPayInState(ctx, payIn.Id, []core.PayInState{core.PayInStatePending}, core.PayInStatePendingHeld, core.PayInFailureReasonNone, now)
			if err != nil {
				return err
			}
			if !ok {
				return errStaleState
			}
			payIn.PayInBolt11.HeldAt = now
			return tx.SavePayInBolt11(ctx, payIn.PayInBolt11)
		})
		if errors.Is(err, errStaleState) {
			return e.store.GetPayIn(ctx, payIn.Id)
		}
		if err != nil {
			return nil, err
		}
		payIn.Transition(core.PayInStatePendingHeld, core.PayInFailureReasonNone, now)
		e.observe(ctx, payIn)
	case core.PayInStatePendingHeld:
	default:
		return payIn, nil
	}

	if payIn.IsP2P() {
		return e.forward(ctx, module, payIn)
	}
	return e.settleHeld(ctx, module, payIn)
}

func (e *Engine) settleHeld(ctx context.Context, module Module, payIn *core.PayIn) (*core.PayIn, error) {
	var settling bool
	err := e.settleInTx(ctx, module, payIn, []core.PayInState{core.PayInStatePendingHeld}, func(tx core.Store) error {
		settling = true
		return e.invoices.SettleInvoice(ctx, payIn.PayInBolt11.Preimage)
	})
	switch {
	case err == nil, errors.Is(err, errStaleState):
		return e.store.GetPayIn(ctx, payIn.Id)
	case core.IsInvariant(err):
		return nil, err
	}

	core.WithPayIn(e.log.Error(), payIn).Err(err).Msg("settle held invoice")
	reason := core.PayInFailureReasonExecutionFailed
	if settling {
		reason = core.PayInFailureReasonHeldInvoiceUnexpectedError
	}
	current, loadErr := e.store.GetPayIn(ctx, payIn.Id)
	if loadErr != nil {
		return nil, loadErr
	}
	e.cancelInvoice(ctx, current)
	return e.failPayIn(ctx, module, current, []core.PayInState{core.PayInStatePendingHeld}, reason, "")
}

// forward pays the payee's invoice out of the held funds.
func (e *Engine) forward(ctx context.Context, module Module, payIn *core.PayIn) (*core.PayIn, error) {
	payOut := payIn.PayOutBolt11

	payment, err := e.forwardedPayment(ctx, payIn)
	if err != nil {
		return nil, err
	}
	if payment.State == core.PaymentStateNotFound {
		payment, err = e.invoices.PayInvoice(ctx, core.PayInvoiceRequest{
			Bolt11:      payOut.Bolt11,
			MaxFeeMsats: payIn.RoutingFee(),
		})
		if err != nil {
			core.WithPayIn(e.log.Warn(), payIn).Err(err).Msg("forward payment")
			payment = &core.Payment{Hash: payOut.Hash, State: core.PaymentStateFailed, FeeMsats: decimal.Zero}
		}
	}

	switch payment.State {
	case core.PaymentStateSucceeded:
		return e.settleForwarded(ctx, module, payIn, payment)
	case core.PaymentStateFailed:
		reason := payment.FailureReason
		if reason == "" {
			reason = core.PayOutFailureReasonForwardingFailed
		}
		e.cancelInvoice(ctx, payIn)
		return e.failPayIn(ctx, module, payIn, []core.PayInState{core.PayInStatePendingHeld}, core.PayInFailureReasonInvoiceForwardingFailed, reason)
	}
	return e.store.GetPayIn(ctx, payIn.Id)
}

// forwardedPayment reports the payment to the payee of a P2P PayIn. A payment
// the node never saw comes back as NOT_FOUND.
func (e *Engine) forwardedPayment(ctx context.Context, payIn *core.PayIn) (*core.Payment, error) {
	hash := payIn.PayOutBolt11.Hash
	payment, err := e.invoices.LookupPayment(ctx, hash)
	if errors.Is(err, core.ErrPaymentNotFound) || (err == nil && payment == nil) {
		return &core.Payment{Hash: hash, State: core.PaymentStateNotFound, FeeMsats: decimal.Zero}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "lookup payment %s", hash)
	}
	return payment, nil
}

// settleForwarded closes the books of a PayIn whose payee has been paid. The
// payee holds the preimage, so the PayIn is PAID even when the incoming htlc
// can no longer be settled.
func (e *Engine) settleForwarded(ctx context.Context, module Module, payIn *core.PayIn, payment *core.Payment) (*core.PayIn, error) {
	held := []core.PayInState{core.PayInStatePendingHeld}
	payIn.PayOutBolt11.Preimage = payment.Preimage

	var settleErr error
	err := e.settleInTx(ctx, module, payIn, held, func(tx core.Store) error {
		settleErr = e.invoices.SettleInvoice(ctx, payment.Preimage)
		return settleErr
	})
	switch {
	case err == nil, errors.Is(err, errStaleState):
		return e.store.GetPayIn(ctx, payIn.Id)
	case settleErr == nil:
		core.WithPayIn(e.log.Error(), payIn).Err(err).Msg("settle forwarded payin")
		return nil, err
	}

	core.WithPayIn(e.log.Error(), payIn).Err(settleErr).Msg("incoming invoice not settled after forward")
	current, err := e.store.GetPayIn(ctx, payIn.Id)
	if err != nil {
		return nil, err
	}
	current.PayOutBolt11.Preimage = payment.Preimage
	if err := e.settleInTx(ctx, module, current, held, nil); err != nil && !errors.Is(err, errStaleState) {
		return nil, err
	}
	return e.store.GetPayIn(ctx, payIn.Id)
}

// OnInvoicePaid settles the PayIn of a paid invoice once the node confirms it.
// A held invoice is handed to OnInvoiceHeld, and a P2P PayIn always goes through
// the forward so the payee is paid before the books close. A second signal for
// the same invoice is a no-op.
func (e *Engine) OnInvoicePaid(ctx context.Context, hash string, msats decimal.Decimal) (*core.PayIn, error) {
	payIn, err := e.store.GetPayInByInvoiceHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if payIn.PayInState == core.PayInStatePaid {
		return payIn, nil
	}
	module, err := ModuleFor(payIn.PayInType)
	if err != nil {
		return nil, err
	}

	status, err := e.invoices.LookupInvoice(ctx, hash)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup invoice %s", hash)
	}
	switch status.State {
	case core.InvoiceStatePaid:
	case core.InvoiceStateHeld:
		return e.OnInvoiceHeld(ctx, hash)
	default:
		return nil, errors.Wrapf(core.ErrInvoiceNotPaid, "invoice %s is %s", hash, status.State)
	}
	if payIn.IsP2P() {
		return e.OnInvoiceHeld(ctx, hash)
	}

	switch {
	case status.MsatsReceived.IsPositive():
		payIn.PayInBolt11.MsatsReceived = status.MsatsReceived
	case msats.IsPositive():
		payIn.PayInBolt11.MsatsReceived = msats
	}
	from := []core.PayInState{core.PayInStatePending, core.PayInStatePendingHeld}
	if err := e.settleInTx(ctx, module, payIn, from, nil); err != nil && !errors.Is(err, errStaleState) {
		return nil, err
	}
	return e.store.GetPayIn(ctx, payIn.Id)
}

// OnInvoiceFailed fails the PayIn of an expired or canceled invoice. The returned
// error tells the caller which one happened. A held P2P PayIn whose forward
// succeeded is settled instead, and one whose forward is in flight stays pending.
func (e *Engine) OnInvoiceFailed(ctx context.Context, hash string, state core.InvoiceState) (*core.PayIn, error) {
	payIn, err := e.store.GetPayInByInvoiceHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if payIn.PayInState.IsTerminal() {
		return payIn, nil
	}
	module, err := ModuleFor(payIn.PayInType)
	if err != nil {
		return nil, err
	}

	if payIn.IsP2P() && payIn.PayInState == core.PayInStatePendingHeld {
		payment, err := e.forwardedPayment(ctx, payIn)
		if err != nil {
			return nil, err
		}
		switch payment.State {
		case core.PaymentStateSucceeded:
			return e.settleForwarded(ctx, module, payIn, payment)
		case core.PaymentStateInFlight:
			core.WithPayIn(e.log.Warn(), payIn).Str("invoiceState", state.String()).Msg("forward in flight, payin left pending")
			return payIn, nil
		}
	}

	reason, cause := core.PayInFailureReasonInvoiceCanceled, core.ErrInvoiceCanceled
	if state == core.InvoiceStateExpired {
		reason, cause = core.PayInFailureReasonInvoiceExpired, core.ErrInvoiceExpired
	}

	from := []core.PayInState{core.PayInStatePending, core.PayInStatePendingHeld}
	failed, err := e.failPayIn(ctx, module, payIn, from, reason, "")
	if err != nil {
		return nil, err
	}
	if failed.PayInState != core.PayInStateFailed {
		return failed, nil
	}
	return failed, cause
}
