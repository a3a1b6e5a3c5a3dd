package payin

import (
	"context"
	"encoding/json"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type PollVoteArgs struct {
	OptionId uuid.UUID `json:"optionId"`
}

type pollVote struct{ moduleBase }

func (pollVote) Type() core.PayInType { return core.PayInTypePollVote }

func (pollVote) PaymentMethods() []core.PaymentMethod { return optimisticMethods }

func (pollVote) Initial(ctx context.Context, e *Engine, raw json.RawMessage, payer *core.User) (*core.PayIn, error) {
	var args PollVoteArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	option, err := e.store.GetPollOption(ctx, args.OptionId)
	if err != nil {
		return nil, err
	}
	item, err := e.store.GetItemById(ctx, option.ItemId)
	if err != nil {
		return nil, err
	}
	if item.Status != core.ItemStatusActive {
		return nil, core.ErrItemNotActive
	}

	_, err = e.store.FindActivePollVote(ctx, item.Id, payer.Id)
	switch {
	case err == nil:
		return nil, core.ErrAlreadyVoted
	case !errors.Is(err, core.ErrPollNotFound):
		return nil, err
	}

	costSats := item.PollCost
	if costSats < 1 {
		costSats = 1
	}
	return core.NewPayIn(e.clk, core.PayInTypePollVote, core.SatsToMsats(costSats), payer.Id,
		core.WithSubs(item.SubName),
		core.WithItem(item.Id, decimal.Zero),
	), nil
}

func (pollVote) OnBegin(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn, raw json.RawMessage) (core.EnvResult, error) {
	var args PollVoteArgs
	if err := decodeArgs(raw, &args); err != nil {
		return core.EnvResult{}, err
	}
	option, err := tx.GetPollOption(ctx, args.OptionId)
	if err != nil {
		return core.EnvResult{}, err
	}
	vote := &core.PollVote{
		Id:           uuid.Must(uuid.NewV4()),
		PollOptionId: option.Id,
		ItemId:       option.ItemId,
		UserId:       payIn.UserId,
		PayInId:      payIn.Id,
		CreatedAt:    e.clk.Now().Unix(),
	}
	if err := tx.CreatePollVote(ctx, vote); err != nil {
		return core.EnvResult{}, err
	}
	return core.EnvResult{ItemId: &option.ItemId}, nil
}

func (pollVote) OnPaid(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn) error {
	vote, err := tx.GetPollVoteByPayIn(ctx, payIn.Id)
	if err != nil {
		return err
	}
	return tx.IncrementPollOption(ctx, vote.PollOptionId)
}

func (pollVote) OnRetry(ctx context.Context, e *Engine, tx core.Store, old, fresh *core.PayIn) error {
	return tx.MovePollVote(ctx, old.Id, fresh.Id)
}

func (pollVote) Describe(ctx context.Context, e *Engine, payIn *core.PayIn) (string, error) {
	return "poll vote" + onItem(payIn), nil
}
