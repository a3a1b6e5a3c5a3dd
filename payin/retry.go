package payin

import (
	"context"
	"encoding/json"

	"github.com/DomeLiquid/payin/core"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// Retry replaces the latest failed attempt of a genesis chain with a new PayIn.
// A failed P2P payout is routed again through the payee's least failed wallets,
// or falls back to custodial credit when the PayIn type allows it.
func (e *Engine) Retry(ctx context.Context, id uuid.UUID, payer *core.User) (*core.PayIn, error) {
	if core.IsAnon(payer) {
		return nil, core.ErrAnonNotAllowed
	}
	if payer.GetFlag(core.DisabledFlag) {
		return nil, core.ErrUserDisabled
	}
	old, err := e.store.GetPayIn(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.UserId != payer.Id {
		return nil, core.ErrNotPayInOwner
	}
	if old.PayInState != core.PayInStateFailed || old.IsBeneficiary() {
		return nil, errors.Wrapf(core.ErrNotRetryable, "payin %s is %s", old.Id, old.PayInState)
	}
	latest, err := e.store.GetLatestPayInInChain(ctx, old.GenesisOrSelf())
	if err != nil {
		return nil, err
	}
	if latest.Id != old.Id {
		return nil, errors.Wrapf(core.ErrNotRetryable, "payin %s was already retried by %s", old.Id, latest.Id)
	}

	module, err := ModuleFor(old.PayInType)
	if err != nil {
		return nil, err
	}
	fresh, err := e.cloneForRetry(ctx, old)
	if err != nil {
		return nil, err
	}
	if err := e.assertLimits(ctx, fresh); err != nil {
		return nil, err
	}

	var args json.RawMessage
	if old.PessimisticEnv != nil {
		args = json.RawMessage(old.PessimisticEnv.Args)
	}
	err = e.store.Transaction(ctx, func(tx core.Store) error {
		return e.begin(ctx, tx, module, fresh, args, old)
	})
	if err != nil {
		return nil, err
	}
	e.observe(ctx, fresh)
	core.WithPayIn(e.log.Info(), fresh).
		Str("genesisId", fresh.GenesisOrSelf().String()).
		Int64("attempt", fresh.Attempt).
		Msg("payin retried")

	return e.afterCommit(ctx, module, fresh)
}

func (e *Engine) cloneForRetry(ctx context.Context, old *core.PayIn) (*core.PayIn, error) {
	fresh := clonePayIn(e.clk, old)
	for _, b := range old.Beneficiaries {
		fresh.Beneficiaries = append(fresh.Beneficiaries, clonePayIn(e.clk, b))
	}

	payOut := old.PayOutBolt11
	switch {
	case payOut == nil:
	case old.PayInType == core.PayInTypeWithdrawal:
		fresh.PayOutBolt11 = core.NewPayOutBolt11(e.clk, payOut.UserId, nil, payOut.PayOutType, payOut.Msats, payOut.Bolt11, payOut.Hash)
	default:
		if err := e.replacePayOut(ctx, old, fresh); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// clonePayIn copies the payee intent of a PayIn into the next attempt of its chain.
func clonePayIn(clk clock.Clock, old *core.PayIn) *core.PayIn {
	genesisId := old.GenesisOrSelf()
	fresh := core.NewPayIn(clk, old.PayInType, old.Mcost, old.UserId)
	fresh.GenesisId = &genesisId
	fresh.Attempt = old.Attempt + 1

	for _, s := range old.SubPayIns {
		fresh.SubPayIns = append(fresh.SubPayIns, &core.SubPayIn{
			SubName:    s.SubName,
			Mcost:      s.Mcost,
			RewardsPct: s.RewardsPct,
		})
	}
	if link := old.ItemPayIn; link != nil {
		fresh.ItemPayIn = &core.ItemPayIn{ItemId: link.ItemId, Msats: link.Msats}
	}
	for _, t := range old.PayOutCustodialTokens {
		c := t.Clone()
		c.Id = uuid.Nil
		c.PayInId = uuid.Nil
		c.CreatedAt = 0
		fresh.PayOutCustodialTokens = append(fresh.PayOutCustodialTokens, c)
	}
	return fresh
}

func (e *Engine) replacePayOut(ctx context.Context, old, fresh *core.PayIn) error {
	payOut := old.PayOutBolt11
	replacement, err := e.router.ReplacePayOut(ctx, payOut, fresh.GenesisOrSelf(), payOutDescription(old.PayInType))
	switch {
	case err == nil:
		fresh.PayOutBolt11 = replacement
		if diff := payOut.Msats.Sub(replacement.Msats); diff.IsPositive() {
			pool := core.NewPayOutCustodialToken(core.PayOutTypeRewardsPool, nil, diff, core.CustodialTokenTypeSats)
			fresh.PayOutCustodialTokens = append(fresh.PayOutCustodialTokens, pool)
		}
		return nil
	case core.IsNoReceiveWallet(err) && !old.PayInType.IsP2POnly():
		e.log.Info().Err(err).
			Str("payInId", old.Id.String()).
			Str("userId", payOut.UserId.String()).
			Msg("payout falls back to custodial credit")
		fallbackToCustodial(fresh, payOut)
		return nil
	default:
		return err
	}
}

// fallbackToCustodial credits the payee with what the failed payout would have
// paid. Nothing is routed, so the routing fee goes to the rewards pool.
func fallbackToCustodial(fresh *core.PayIn, payOut *core.PayOutBolt11) {
	userId := payOut.UserId
	credit := core.NewPayOutCustodialToken(payOut.PayOutType, &userId, payOut.Msats, core.CustodialTokenTypeCredits)
	fresh.PayOutCustodialTokens = append(fresh.PayOutCustodialTokens, credit)
	fresh.PayOutBolt11 = nil

	for _, t := range fresh.PayOutCustodialTokens {
		if t.PayOutType == core.PayOutTypeRoutingFee {
			t.PayOutType = core.PayOutTypeRewardsPool
		}
	}
}

// retryHooks relinks the domain rows of the failed attempt to the new one. An
// action that never ran because it was waiting for payment runs now unless the
// new attempt is still waiting too.
func (e *Engine) retryHooks(ctx context.Context, tx core.Store, module Module, old, fresh *core.PayIn, args json.RawMessage) error {
	if err := module.OnRetry(ctx, e, tx, old, fresh); err != nil {
		return errors.Wrapf(err, "%s on retry", old.PayInType)
	}
	for i, b := range fresh.Beneficiaries {
		if i >= len(old.Beneficiaries) {
			break
		}
		if err := mustModule(b.PayInType).OnRetry(ctx, e, tx, old.Beneficiaries[i], b); err != nil {
			return errors.Wrapf(err, "%s on retry", b.PayInType)
		}
	}

	if env := old.PessimisticEnv; env != nil && !env.Performed && !fresh.IsPessimistic(module.PaymentMethods()) {
		if _, err := module.OnBegin(ctx, e, tx, fresh, args); err != nil {
			return err
		}
	}
	return nil
}
