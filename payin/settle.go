package payin

import (
	"context"
	"encoding/json"

	"github.com/DomeLiquid/payin/core"
	"github.com/pkg/errors"
)

// settle moves the PayIn to PAID and books its payouts. It must run inside tx and
// returns errStaleState when the PayIn was not in one of the from states.
func (e *Engine) settle(ctx context.Context, tx core.Store, module Module, payIn *core.PayIn, from []core.PayInState) error {
	now := e.clk.Now().Unix()
	ok, err := tx.TransitionPayInState(ctx, payIn.Id, from, core.PayInStatePaid, core.PayInFailureReasonNone, now)
	if err != nil {
		return err
	}
	if !ok {
		return errStaleState
	}
	payIn.Transition(core.PayInStatePaid, core.PayInFailureReasonNone, now)

	if invoice := payIn.PayInBolt11; invoice != nil {
		if invoice.MsatsReceived.IsZero() {
			invoice.MsatsReceived = invoice.Msats
		}
		invoice.ConfirmedAt = now
		if err := tx.SavePayInBolt11(ctx, invoice); err != nil {
			return err
		}
	}

	collected := payIn.CustodialPaid()
	if payIn.PayInBolt11 != nil {
		collected = collected.Add(payIn.PayInBolt11.MsatsReceived)
	}
	if collected.LessThan(payIn.TotalCost()) {
		return core.Invariantf("payin %s collected %s of %s", payIn.Id, collected, payIn.TotalCost())
	}

	return e.finalize(ctx, tx, module, payIn)
}

// finalize runs everything a PAID PayIn owes: the deferred action, the payouts
// of the PayIn and each beneficiary, and the modules' OnPaid hooks.
func (e *Engine) finalize(ctx context.Context, tx core.Store, module Module, payIn *core.PayIn) error {
	if env := payIn.PessimisticEnv; env != nil && !env.Performed {
		result, err := module.OnBegin(ctx, e, tx, payIn, json.RawMessage(env.Args))
		if err != nil {
			return errors.Wrap(err, "perform deferred action")
		}
		env.Perform(e.clk, result)
		if err := tx.UpdatePessimisticEnv(ctx, env); err != nil {
			return err
		}
	}

	for _, p := range family(payIn) {
		if err := e.distribute(ctx, tx, p); err != nil {
			return errors.Wrapf(err, "distribute %s", p.Id)
		}
	}

	now := e.clk.Now().Unix()
	if err := tx.TransitionBeneficiaries(ctx, payIn.Id, core.PayInStatePaid, core.PayInFailureReasonNone, now); err != nil {
		return err
	}
	if err := module.OnPaid(ctx, e, tx, payIn); err != nil {
		return errors.Wrapf(err, "%s on paid", payIn.PayInType)
	}
	for _, b := range payIn.Beneficiaries {
		b.Transition(core.PayInStatePaid, core.PayInFailureReasonNone, now)
		if err := mustModule(b.PayInType).OnPaid(ctx, e, tx, b); err != nil {
			return errors.Wrapf(err, "%s on paid", b.PayInType)
		}
	}

	if payOut := payIn.PayOutBolt11; payOut != nil {
		payOut.UpdateStatus(e.clk, core.PayOutStatusConfirmed, "")
		if err := tx.UpdatePayOutBolt11(ctx, payOut); err != nil {
			return err
		}
	}
	return nil
}

// distribute completes the custodial payouts of one PayIn, persists the new rows
// and credits every payee.
func (e *Engine) distribute(ctx context.Context, tx core.Store, payIn *core.PayIn) error {
	subs, err := tx.ListSubsByNames(ctx, payIn.SubNames())
	if err != nil {
		return err
	}

	tokens, err := core.RedistributePayOutCustodialTokens(payIn.Mcost, core.NewSubShares(subs, payIn.SubPayIns), payIn.PayOutCustodialTokens, payIn.PayOutBolt11)
	if err != nil {
		return err
	}
	if total := core.SumPayOuts(tokens, payIn.PayOutBolt11); !total.Equal(payIn.Mcost) {
		return core.Invariantf("payin %s pays out %s of %s", payIn.Id, total, payIn.Mcost)
	}

	now := e.clk.Now().Unix()
	fresh := make([]*core.PayOutCustodialToken, 0, len(tokens))
	for _, t := range tokens {
		if !t.Id.IsNil() {
			continue
		}
		t.PayInId = payIn.Id
		t.CreatedAt = now
		fresh = append(fresh, t)
	}
	if err := tx.CreatePayOutCustodialTokens(ctx, fresh); err != nil {
		return err
	}

	for _, t := range tokens {
		if t.UserId == nil || !t.PayOutType.Credited() || !t.Mtokens.IsPositive() {
			continue
		}
		if err := tx.CreditCustodial(ctx, *t.UserId, t.CustodialTokenType, t.Mtokens); err != nil {
			return err
		}
	}

	payIn.PayOutCustodialTokens = tokens
	return nil
}

// fail moves the PayIn to FAILED and refunds its custodial debits. It must run
// inside tx and returns errStaleState when the PayIn was not in one of the from states.
func (e *Engine) fail(ctx context.Context, tx core.Store, module Module, payIn *core.PayIn, from []core.PayInState, reason core.PayInFailureReason, payOutReason core.PayOutFailureReason) error {
	now := e.clk.Now().Unix()
	ok, err := tx.TransitionPayInState(ctx, payIn.Id, from, core.PayInStateFailed, reason, now)
	if err != nil {
		return err
	}
	if !ok {
		return errStaleState
	}
	payIn.Transition(core.PayInStateFailed, reason, now)

	for _, t := range payIn.PayInCustodialTokens {
		if err := tx.CreditCustodial(ctx, payIn.UserId, t.PayInAssetType, t.Mtokens); err != nil {
			return errors.Wrap(err, "refund")
		}
	}
	if err := tx.TransitionBeneficiaries(ctx, payIn.Id, core.PayInStateFailed, reason, now); err != nil {
		return err
	}

	if payOut := payIn.PayOutBolt11; payOut != nil && payOut.Status == core.PayOutStatusPending {
		payOut.UpdateStatus(e.clk, core.PayOutStatusFailed, payOutReason)
		if err := tx.UpdatePayOutBolt11(ctx, payOut); err != nil {
			return err
		}
	}
	if invoice := payIn.PayInBolt11; invoice != nil && invoice.CancelledAt == 0 {
		invoice.CancelledAt = now
		if err := tx.SavePayInBolt11(ctx, invoice); err != nil {
			return err
		}
	}

	if err := module.OnFail(ctx, e, tx, payIn); err != nil {
		return errors.Wrapf(err, "%s on fail", payIn.PayInType)
	}
	for _, b := range payIn.Beneficiaries {
		b.Transition(core.PayInStateFailed, reason, now)
		if err := mustModule(b.PayInType).OnFail(ctx, e, tx, b); err != nil {
			return errors.Wrapf(err, "%s on fail", b.PayInType)
		}
	}
	return nil
}

// failPayIn fails the PayIn in its own transaction and returns the stored result.
func (e *Engine) failPayIn(ctx context.Context, module Module, payIn *core.PayIn, from []core.PayInState, reason core.PayInFailureReason, payOutReason core.PayOutFailureReason) (*core.PayIn, error) {
	err := e.store.Transaction(ctx, func(tx core.Store) error {
		return e.fail(ctx, tx, module, payIn, from, reason, payOutReason)
	})
	switch {
	case errors.Is(err, errStaleState):
	case err != nil:
		return nil, err
	default:
		e.observe(ctx, payIn)
		core.WithPayIn(e.log.Info(), payIn).Str("reason", reason.String()).Msg("payin failed")
	}
	return e.store.GetPayIn(ctx, payIn.Id)
}

// settleInTx settles the PayIn in its own transaction. extra runs inside the same
// transaction after the books are closed.
func (e *Engine) settleInTx(ctx context.Context, module Module, payIn *core.PayIn, from []core.PayInState, extra func(tx core.Store) error) error {
	err := e.store.Transaction(ctx, func(tx core.Store) error {
		if err := e.settle(ctx, tx, module, payIn, from); err != nil {
			return err
		}
		if extra != nil {
			return extra(tx)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.observe(ctx, payIn)
	core.WithPayIn(e.log.Info(), payIn).Msg("payin paid")
	e.sideEffects(ctx, module, payIn)
	return nil
}
