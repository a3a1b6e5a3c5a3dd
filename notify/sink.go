// Package notify records user notifications. Delivery to devices is someone else's job.
package notify

import (
	"context"

	"github.com/DomeLiquid/payin/core"
	"github.com/DomeLiquid/payin/utils"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Sink persists one notification per effect. Repeating an effect, e.g. when
// side effects run twice for the same PayIn, is a no-op.
type Sink struct {
	clk   clock.Clock
	store Store
}

// Store is what the sink reads and writes. User flags gate the opt-out kinds.
type Store interface {
	core.NotificationStore
	GetUserById(ctx context.Context, id uuid.UUID) (*core.User, error)
}

var _ core.Notifier = (*Sink)(nil)

func New(clk clock.Clock, store Store) *Sink {
	return &Sink{clk: clk, store: store}
}

func (s *Sink) NotifyZapped(ctx context.Context, payIn *core.PayIn, userId, itemId uuid.UUID, msats decimal.Decimal) error {
	if ok, err := s.wants(ctx, userId, core.NoteZapsFlag); !ok {
		return err
	}
	return s.create(ctx, payIn, userId, core.NotificationKindZap, map[string]any{
		"itemId": itemId.String(),
		"msats":  msats.String(),
	}, itemId)
}

func (s *Sink) NotifyBountyPaid(ctx context.Context, payIn *core.PayIn, userId, itemId uuid.UUID, msats decimal.Decimal) error {
	if ok, err := s.wants(ctx, userId, core.NoteBountiesFlag); !ok {
		return err
	}
	return s.create(ctx, payIn, userId, core.NotificationKindBounty, map[string]any{
		"itemId": itemId.String(),
		"msats":  msats.String(),
	}, itemId)
}

func (s *Sink) NotifyReply(ctx context.Context, payIn *core.PayIn, userId, itemId uuid.UUID) error {
	return s.create(ctx, payIn, userId, core.NotificationKindReply, map[string]any{
		"itemId": itemId.String(),
	}, itemId)
}

func (s *Sink) NotifyProxyPayment(ctx context.Context, payIn *core.PayIn, userId uuid.UUID, msats decimal.Decimal) error {
	return s.create(ctx, payIn, userId, core.NotificationKindProxyPayment, map[string]any{
		"msats": msats.String(),
	})
}

func (s *Sink) NotifyWithdrawal(ctx context.Context, payIn *core.PayIn) error {
	data := map[string]any{
		"state": payIn.PayInState.String(),
	}
	if payIn.PayOutBolt11 != nil {
		data["msats"] = payIn.PayOutBolt11.Msats.String()
	}
	if payIn.PayInFailureReason != core.PayInFailureReasonNone {
		data["failureReason"] = payIn.PayInFailureReason.String()
	}
	return s.create(ctx, payIn, payIn.UserId, core.NotificationKindWithdrawal, data)
}

func (s *Sink) wants(ctx context.Context, userId uuid.UUID, flag core.UserFlags) (bool, error) {
	user, err := s.store.GetUserById(ctx, userId)
	if err != nil {
		return false, errors.Wrapf(err, "notification settings of %s", userId)
	}
	return user.GetFlag(flag), nil
}

func (s *Sink) create(ctx context.Context, payIn *core.PayIn, userId uuid.UUID, kind core.NotificationKind, data map[string]any, ids ...uuid.UUID) error {
	key := utils.IdempotencyKey(string(kind), append([]uuid.UUID{payIn.Id, userId}, ids...)...)
	n := core.NewNotification(s.clk, userId, kind, payIn.Id, key, data)
	if _, err := s.store.CreateNotification(ctx, n); err != nil {
		return errors.Wrapf(err, "create %s notification", kind)
	}
	return nil
}
