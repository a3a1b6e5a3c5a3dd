package payin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type MediaUploadArgs struct {
	UploadIds []uuid.UUID `json:"uploadIds"`
}

type mediaUpload struct{ moduleBase }

func (mediaUpload) Type() core.PayInType { return core.PayInTypeMediaUpload }

func (mediaUpload) PaymentMethods() []core.PaymentMethod { return optimisticMethods }

func (mediaUpload) Initial(ctx context.Context, e *Engine, raw json.RawMessage, payer *core.User) (*core.PayIn, error) {
	var args MediaUploadArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	mcost, err := mediaCost(ctx, e, payer.Id, args.UploadIds)
	if err != nil {
		return nil, err
	}
	return core.NewPayIn(e.clk, core.PayInTypeMediaUpload, mcost, payer.Id), nil
}

func (mediaUpload) OnBegin(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn, raw json.RawMessage) (core.EnvResult, error) {
	var args MediaUploadArgs
	if err := decodeArgs(raw, &args); err != nil {
		return core.EnvResult{}, err
	}
	return core.EnvResult{}, tx.AttachUploads(ctx, args.UploadIds, payIn.Id)
}

func (mediaUpload) OnPaid(ctx context.Context, e *Engine, tx core.Store, payIn *core.PayIn) error {
	return tx.MarkUploadsPaid(ctx, payIn.Id)
}

func (mediaUpload) OnRetry(ctx context.Context, e *Engine, tx core.Store, old, fresh *core.PayIn) error {
	return tx.MoveUploads(ctx, old.Id, fresh.Id)
}

func (mediaUpload) Describe(ctx context.Context, e *Engine, payIn *core.PayIn) (string, error) {
	return fmt.Sprintf("media upload of %d sats", core.MsatsToSats(payIn.Mcost)), nil
}

// mediaCost prices unpaid uploads owned by the payer.
func mediaCost(ctx context.Context, e *Engine, payerId uuid.UUID, ids []uuid.UUID) (decimal.Decimal, error) {
	if len(ids) == 0 {
		return decimal.Zero, core.ErrUploadNotFound
	}
	uploads, err := e.store.ListUploads(ctx, ids)
	if err != nil {
		return decimal.Zero, err
	}
	if len(uploads) != len(ids) {
		return decimal.Zero, core.ErrUploadNotFound
	}

	total := decimal.Zero
	for _, u := range uploads {
		if u.UserId != payerId {
			return decimal.Zero, core.ErrUploadNotFound
		}
		if u.Paid {
			return decimal.Zero, core.ErrUploadAlreadyPaid
		}
		total = total.Add(u.MediaFeeMsats(e.opts.MediaFeeSatsPerMB))
	}
	return total, nil
}
