package payin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	ItemCreateArgs struct {
		SubName     string       `json:"subName"`
		ParentId    *uuid.UUID   `json:"parentId,omitempty"`
		Title       string       `json:"title"`
		Text        string       `json:"text"`
		Boost       int64        `json:"boost,omitempty"`
		Bounty      int64        `json:"bounty,omitempty"`
		PollCost    int64        `json:"pollCost,omitempty"`
		PollOptions []string     `json:"pollOptions,omitempty"`
		Forwards    []ForwardArg `json:"forwards,omitempty"`
		UploadIds   []uuid.UUID  `json:"uploadIds,omitempty"`
	}

	ForwardArg struct {
		UserId uuid.UUID `json:"userId"`
		Pct    int64     `json:"pct"`
	}

	ItemUpdateArgs struct {
		ItemId    uuid.UUID   `json:"itemId"`
		Title     string      `json:"title"`
		Text      string      `json:"text"`
		Boost     int64       `json:"boost,omitempty"`
		UploadIds []uuid.UUID `json:"uploadIds,omitempty"`
	}
)

type itemCreate struct{ moduleBase }

func (itemCreate) Type() core.PayInType { return core.PayInTypeItemCreate }

func (itemCreate) PaymentMethods() []core.PaymentMethod { return optimisticMethods }

func (itemCreate) AnonAllowed() bool { return true }

// Initial prices a post or reply. The base cost grows tenfold with every item the
// payer created in the same territory during the spam interval.
func (itemCreate) Initial(ctx context.Context, e *Engine, raw json.RawMessage, payer *core.User) (*core.PayIn, error) {
	var args ItemCreateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	subName := args.SubName
	if args.ParentId != nil {
		parent, err := e.store.GetItemById(ctx, *args.ParentId)
		if err != nil {
			return nil, err
		}
		if parent.Status != core.ItemStatusActive {
			return nil, core.ErrItemNotActive
		}
		subName = parent.SubName
	}
	sub, err := e.store.GetSubByName(ctx, subName)
	if err != nil {
		return nil, err
	}
	if !sub.Postable() {
		return nil, core.ErrSubNotActive
	}
	if err := validateForwards(args.Forwards); err != nil {
		return nil, err
	}

	payerId := core.PayerId(payer)
	baseSats := sub.BaseCostSats
	if args.ParentId != nil {
		baseSats = sub.ReplyCostSats
	}
	var recent int64
	if !core.IsAnon(payer) {
		since := e.clk.Now().Add(-core.ITEM_SPAM_INTERVAL).Unix()
		if recent, err = e.store.CountRecentItems(ctx, payerId, sub.Name, since); err != nil {
			return nil, err
		}
	}
	mcost := core.SatsToMsats(baseSats).Mul(spamMultiplier(recent))
	if core.IsAnon(payer) {
		mcost = mcost.Mul(decimal.NewFromInt(e.opts.AnonItemMultiplier))
	}

	beneficiaries, err := itemBeneficiaries(ctx, e, payerId, sub.Name, nil, args.Boost, args.UploadIds)
	if err != nil {
		return nil, err
	}
	return core.NewPayIn(e.clk, core.PayInTypeItemCreate, mcost, payerId,
		core.WithSubs(sub.Name),
		core.WithBeneficiaries(beneficiaries...),
	), nil
}

func (itemCreate) OnBegin(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn, raw json.RawMessage) (core.EnvResult, error) {
	var args ItemCreateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return core.EnvResult{}, err
	}

	var parent *core.Item
	if args.ParentId != nil {
		p, err := tx.GetItemById(ctx, *args.ParentId)
		if err != nil {
			return core.EnvResult{}, err
		}
		parent = p
	}
	item := core.NewItem(e.clk, payIn.UserId, args.SubName, parent)
	item.Title = args.Title
	item.Text = args.Text
	item.Bounty = args.Bounty
	item.PollCost = args.PollCost
	if err := tx.CreateItem(ctx, item); err != nil {
		return core.EnvResult{}, err
	}

	if len(args.Forwards) > 0 {
		forwards := make([]*core.ItemForward, 0, len(args.Forwards))
		for _, f := range args.Forwards {
			forwards = append(forwards, &core.ItemForward{Id: uuid.Must(uuid.NewV4()), ItemId: item.Id, UserId: f.UserId, Pct: f.Pct})
		}
		if err := tx.CreateItemForwards(ctx, forwards); err != nil {
			return core.EnvResult{}, err
		}
	}
	if len(args.PollOptions) > 0 {
		options := make([]*core.PollOption, 0, len(args.PollOptions))
		for _, o := range args.PollOptions {
			options = append(options, &core.PollOption{Id: uuid.Must(uuid.NewV4()), ItemId: item.Id, Option: o})
		}
		if err := tx.CreatePollOptions(ctx, options); err != nil {
			return core.EnvResult{}, err
		}
	}

	if err := linkItem(ctx, tx, item.Id, payIn, args.UploadIds); err != nil {
		return core.EnvResult{}, err
	}
	return core.EnvResult{ItemId: &item.Id}, nil
}

func (itemCreate) OnPaid(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn) error {
	if payIn.ItemPayIn == nil {
		return core.Invariantf("item create %s has no item", payIn.Id)
	}
	item, err := tx.GetItemById(ctx, payIn.ItemPayIn.ItemId)
	if err != nil {
		return err
	}
	if err := tx.SetItemStatus(ctx, item.Id, core.ItemStatusActive, e.clk.Now().Unix()); err != nil {
		return err
	}
	if item.ParentId != nil {
		return tx.IncrementItemComments(ctx, *item.ParentId, 1)
	}
	return nil
}

func (itemCreate) OnPaidSideEffects(ctx context.Context, e *Engine, payIn *core.PayIn) error {
	if payIn.ItemPayIn == nil {
		return nil
	}
	itemId := payIn.ItemPayIn.ItemId
	e.schedule(ctx, payIn, core.NewItemJob(core.JobTimestampItem, itemId, e.clk.Now().Add(core.ITEM_TIMESTAMP_DELAY)))

	item, err := e.store.GetItemById(ctx, itemId)
	if err != nil {
		return err
	}
	if item.ParentId == nil {
		return nil
	}
	parent, err := e.store.GetItemById(ctx, *item.ParentId)
	if err != nil {
		return err
	}
	if parent.UserId != item.UserId {
		e.notify(ctx, payIn, func(n core.Notifier) error {
			return n.NotifyReply(ctx, payIn, parent.UserId, item.Id)
		})
	}
	return nil
}

func (itemCreate) OnFail(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn) error {
	if payIn.ItemPayIn == nil {
		return nil
	}
	return tx.SetItemStatus(ctx, payIn.ItemPayIn.ItemId, core.ItemStatusFailed, e.clk.Now().Unix())
}

func (itemCreate) OnRetry(ctx context.Context, e *Engine, tx core.Store, old, fresh *core.PayIn) error {
	if old.ItemPayIn == nil {
		return nil
	}
	return tx.SetItemStatus(ctx, old.ItemPayIn.ItemId, core.ItemStatusPending, e.clk.Now().Unix())
}

func (itemCreate) Describe(ctx context.Context, e *Engine, payIn *core.PayIn) (string, error) {
	where := "~" + firstSub(payIn)
	if payIn.ItemPayIn != nil {
		return fmt.Sprintf("item %s in %s", payIn.ItemPayIn.ItemId, where), nil
	}
	return "new item in " + where, nil
}

type itemUpdate struct{ moduleBase }

func (itemUpdate) Type() core.PayInType { return core.PayInTypeItemUpdate }

func (itemUpdate) PaymentMethods() []core.PaymentMethod { return optimisticMethods }

// Initial prices an edit. The edit itself is free; only added boost and new media cost.
func (itemUpdate) Initial(ctx context.Context, e *Engine, raw json.RawMessage, payer *core.User) (*core.PayIn, error) {
	var args ItemUpdateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	item, err := e.store.GetItemById(ctx, args.ItemId)
	if err != nil {
		return nil, err
	}
	if item.UserId != payer.Id {
		return nil, core.ErrNotItemOwner
	}
	if e.clk.Now().Unix()-item.CreatedAt > int64(core.ITEM_EDIT_WINDOW.Seconds()) {
		return nil, core.ErrItemEditWindowClosed
	}

	beneficiaries, err := itemBeneficiaries(ctx, e, payer.Id, item.SubName, &item.Id, args.Boost, args.UploadIds)
	if err != nil {
		return nil, err
	}
	return core.NewPayIn(e.clk, core.PayInTypeItemUpdate, decimal.Zero, payer.Id,
		core.WithSubs(item.SubName),
		core.WithItem(item.Id, decimal.Zero),
		core.WithBeneficiaries(beneficiaries...),
	), nil
}

func (itemUpdate) OnBegin(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn, raw json.RawMessage) (core.EnvResult, error) {
	var args ItemUpdateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return core.EnvResult{}, err
	}
	if err := tx.UpdateItemContent(ctx, args.ItemId, args.Title, args.Text, e.clk.Now().Unix()); err != nil {
		return core.EnvResult{}, err
	}
	for _, b := range payIn.Beneficiaries {
		if b.PayInType == core.PayInTypeMediaUpload {
			if err := tx.AttachUploads(ctx, args.UploadIds, b.Id); err != nil {
				return core.EnvResult{}, err
			}
		}
	}
	return core.EnvResult{ItemId: &args.ItemId}, nil
}

func (itemUpdate) Describe(ctx context.Context, e *Engine, payIn *core.PayIn) (string, error) {
	if payIn.ItemPayIn == nil {
		return "item edit", nil
	}
	return fmt.Sprintf("edit of item %s", payIn.ItemPayIn.ItemId), nil
}

// itemBeneficiaries builds the BOOST and MEDIA_UPLOAD PayIns settled with an item
// create or update. itemId is nil while the item does not exist yet.
func itemBeneficiaries(ctx context.Context, e *Engine, payerId uuid.UUID, subName string, itemId *uuid.UUID, boostSats int64, uploadIds []uuid.UUID) ([]*core.PayIn, error) {
	var beneficiaries []*core.PayIn
	if boostSats < 0 {
		return nil, core.ErrInvalidAmount
	}
	if boostSats > 0 {
		msats := core.SatsToMsats(boostSats)
		opts := []core.PayInOptFunc{core.WithSubs(subName)}
		if itemId != nil {
			opts = append(opts, core.WithItem(*itemId, msats))
		}
		beneficiaries = append(beneficiaries, core.NewPayIn(e.clk, core.PayInTypeBoost, msats, payerId, opts...))
	}

	if len(uploadIds) > 0 {
		mcost, err := mediaCost(ctx, e, payerId, uploadIds)
		if err != nil {
			return nil, err
		}
		var opts []core.PayInOptFunc
		if itemId != nil {
			opts = append(opts, core.WithItem(*itemId, decimal.Zero))
		}
		beneficiaries = append(beneficiaries, core.NewPayIn(e.clk, core.PayInTypeMediaUpload, mcost, payerId, opts...))
	}
	return beneficiaries, nil
}

// linkItem attaches a freshly created item to the PayIn and its beneficiaries.
func linkItem(ctx context.Context, tx core.Store, itemId uuid.UUID, payIn *core.PayIn, uploadIds []uuid.UUID) error {
	for _, p := range family(payIn) {
		msats := decimal.Zero
		if p.PayInType == core.PayInTypeBoost {
			msats = p.Mcost
		}
		link := &core.ItemPayIn{PayInId: p.Id, ItemId: itemId, Msats: msats}
		if err := tx.CreateItemPayIn(ctx, link); err != nil {
			return err
		}
		p.ItemPayIn = link

		if p.PayInType == core.PayInTypeMediaUpload {
			if err := tx.AttachUploads(ctx, uploadIds, p.Id); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateForwards(forwards []ForwardArg) error {
	var total int64
	for _, f := range forwards {
		if f.Pct <= 0 || f.UserId.IsNil() {
			return core.ErrInvalidForwards
		}
		total += f.Pct
	}
	if total > 100 {
		return core.ErrInvalidForwards
	}
	return nil
}

// spamMultiplier is 10^n with n capped at ITEM_SPAM_MAX_EXPONENT.
func spamMultiplier(recent int64) decimal.Decimal {
	if recent > core.ITEM_SPAM_MAX_EXPONENT {
		recent = core.ITEM_SPAM_MAX_EXPONENT
	}
	return decimal.New(1, int32(recent))
}

func firstSub(payIn *core.PayIn) string {
	if len(payIn.SubPayIns) == 0 {
		return ""
	}
	return payIn.SubPayIns[0].SubName
}
