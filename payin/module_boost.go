package payin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
)

// ItemAmountArgs are the arguments of every action that puts sats on an item.
type ItemAmountArgs struct {
	ItemId uuid.UUID `json:"itemId"`
	Sats   int64     `json:"sats"`
}

func decodeItemAmount(ctx context.Context, e *Engine, raw json.RawMessage) (ItemAmountArgs, *core.Item, error) {
	var args ItemAmountArgs
	if err := decodeArgs(raw, &args); err != nil {
		return args, nil, err
	}
	if args.Sats <= 0 {
		return args, nil, core.ErrInvalidAmount
	}
	item, err := e.store.GetItemById(ctx, args.ItemId)
	if err != nil {
		return args, nil, err
	}
	if item.Status != core.ItemStatusActive {
		return args, nil, core.ErrItemNotActive
	}
	return args, item, nil
}

type boost struct{ moduleBase }

func (boost) Type() core.PayInType { return core.PayInTypeBoost }

func (boost) PaymentMethods() []core.PaymentMethod { return optimisticMethods }

func (boost) Initial(ctx context.Context, e *Engine, raw json.RawMessage, payer *core.User) (*core.PayIn, error) {
	args, item, err := decodeItemAmount(ctx, e, raw)
	if err != nil {
		return nil, err
	}
	msats := core.SatsToMsats(args.Sats)
	return core.NewPayIn(e.clk, core.PayInTypeBoost, msats, payer.Id,
		core.WithSubs(item.SubName),
		core.WithItem(item.Id, msats),
	), nil
}

func (boost) OnPaid(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn) error {
	if payIn.ItemPayIn == nil {
		return core.Invariantf("boost %s has no item", payIn.Id)
	}
	return tx.IncrementItemBoost(ctx, payIn.ItemPayIn.ItemId, core.MsatsToSats(payIn.Mcost))
}

func (boost) OnPaidSideEffects(ctx context.Context, e *Engine, payIn *core.PayIn) error {
	if payIn.ItemPayIn == nil {
		return nil
	}
	e.schedule(ctx, payIn, core.NewItemJob(core.JobExpireBoost, payIn.ItemPayIn.ItemId, e.clk.Now().Add(core.BOOST_EXPIRY)))
	return nil
}

func (boost) Describe(ctx context.Context, e *Engine, payIn *core.PayIn) (string, error) {
	return fmt.Sprintf("boost of %d sats%s", core.MsatsToSats(payIn.Mcost), onItem(payIn)), nil
}

type downZap struct{ moduleBase }

func (downZap) Type() core.PayInType { return core.PayInTypeDownZap }

func (downZap) PaymentMethods() []core.PaymentMethod { return optimisticMethods }

func (downZap) Initial(ctx context.Context, e *Engine, raw json.RawMessage, payer *core.User) (*core.PayIn, error) {
	args, item, err := decodeItemAmount(ctx, e, raw)
	if err != nil {
		return nil, err
	}
	msats := core.SatsToMsats(args.Sats)
	return core.NewPayIn(e.clk, core.PayInTypeDownZap, msats, payer.Id,
		core.WithSubs(item.SubName),
		core.WithItem(item.Id, msats),
	), nil
}

func (downZap) OnPaid(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn) error {
	if payIn.ItemPayIn == nil {
		return core.Invariantf("down zap %s has no item", payIn.Id)
	}
	return tx.IncrementItemDownMsats(ctx, payIn.ItemPayIn.ItemId, payIn.ItemPayIn.Msats)
}

func (downZap) Describe(ctx context.Context, e *Engine, payIn *core.PayIn) (string, error) {
	return fmt.Sprintf("down zap of %d sats%s", core.MsatsToSats(payIn.Mcost), onItem(payIn)), nil
}

func onItem(payIn *core.PayIn) string {
	if payIn.ItemPayIn == nil {
		return ""
	}
	return " on item " + payIn.ItemPayIn.ItemId.String()
}
