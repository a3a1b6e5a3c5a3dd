package payin

import (
	"context"
	"encoding/json"

	"github.com/DomeLiquid/payin/core"
	"github.com/pkg/errors"
)

// Module is the behaviour of one PayIn type.
//
// Initial prices the action and builds the PayIn prospect with its payee intent.
// OnBegin performs the domain effect; it runs inside the creating transaction for
// optimistic PayIns and inside the settling transaction for pessimistic ones.
// OnPaid runs once, in the settling transaction. OnPaidSideEffects runs after
// commit and may run more than once.
type Module interface {
	Type() core.PayInType
	PaymentMethods() []core.PaymentMethod
	AnonAllowed() bool

	Initial(ctx context.Context, e *Engine, args json.RawMessage, payer *core.User) (*core.PayIn, error)
	OnBegin(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn, args json.RawMessage) (core.EnvResult, error)
	OnPaid(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn) error
	OnPaidSideEffects(ctx context.Context, e *Engine, payIn *core.PayIn) error
	OnFail(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn) error
	OnRetry(ctx context.Context, e *Engine, tx core.Store, old, fresh *core.PayIn) error
	Describe(ctx context.Context, e *Engine, payIn *core.PayIn) (string, error)
}

var (
	optimisticMethods = []core.PaymentMethod{
		core.PaymentMethodFeeCredit,
		core.PaymentMethodRewardSats,
		core.PaymentMethodOptimistic,
		core.PaymentMethodPessimistic,
	}
	pessimisticMethods = []core.PaymentMethod{
		core.PaymentMethodFeeCredit,
		core.PaymentMethodRewardSats,
		core.PaymentMethodPessimistic,
	}
)

// ModuleFor resolves the module of a PayIn type.
func ModuleFor(payInType core.PayInType) (Module, error) {
	switch payInType {
	case core.PayInTypeItemCreate:
		return itemCreate{}, nil
	case core.PayInTypeItemUpdate:
		return itemUpdate{}, nil
	case core.PayInTypeBoost:
		return boost{}, nil
	case core.PayInTypeZap:
		return zap{}, nil
	case core.PayInTypeDownZap:
		return downZap{}, nil
	case core.PayInTypeBountyPayment:
		return bountyPayment{}, nil
	case core.PayInTypePollVote:
		return pollVote{}, nil
	case core.PayInTypeMediaUpload:
		return mediaUpload{}, nil
	case core.PayInTypeWithdrawal:
		return withdrawal{}, nil
	case core.PayInTypeAutoWithdrawal:
		return autoWithdrawal{}, nil
	case core.PayInTypeProxyPayment:
		return proxyPayment{}, nil
	default:
		return nil, errors.Wrapf(core.ErrUnknownPayInType, "%q", payInType)
	}
}

func mustModule(payInType core.PayInType) Module {
	m, err := ModuleFor(payInType)
	if err != nil {
		panic(err)
	}
	return m
}

// moduleBase supplies the hooks most modules leave empty.
type moduleBase struct{}

func (moduleBase) AnonAllowed() bool { return false }

func (moduleBase) OnBegin(context.Context, *Engine, core.Store, *core.PayIn, json.RawMessage) (core.EnvResult, error) {
	return core.EnvResult{}, nil
}

func (moduleBase) OnPaid(context.Context, *Engine, core.Store, *core.PayIn) error { return nil }

func (moduleBase) OnPaidSideEffects(context.Context, *Engine, *core.PayIn) error { return nil }

func (moduleBase) OnFail(context.Context, *Engine, core.Store, *core.PayIn) error { return nil }

func (moduleBase) OnRetry(context.Context, *Engine, core.Store, *core.PayIn, *core.PayIn) error {
	return nil
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return errors.Wrap(core.ErrInvalidArguments, "missing")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return errors.Wrapf(core.ErrInvalidArguments, "decode: %v", err)
	}
	return nil
}
