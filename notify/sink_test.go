package notify

import (
	"context"
	"testing"

	"github.com/DomeLiquid/payin/core"
	"github.com/DomeLiquid/payin/store"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.OpenSqliteMemory()
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background(), db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return store.New(db)
}

func newUser(t *testing.T, s *store.Store, clk clock.Clock, name string) uuid.UUID {
	t.Helper()
	user := core.NewUser(clk, name)
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user.Id
}

func TestSinkDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clk := clock.NewMock()
	sink := New(clk, s)

	payIn := &core.PayIn{Id: uuid.Must(uuid.NewV4()), UserId: uuid.Must(uuid.NewV4())}
	alice, bob := newUser(t, s, clk, "alice"), newUser(t, s, clk, "bob")
	itemId := uuid.Must(uuid.NewV4())

	for i := 0; i < 2; i++ {
		require.NoError(t, sink.NotifyZapped(ctx, payIn, alice, itemId, decimal.NewFromInt(700_000)))
		require.NoError(t, sink.NotifyZapped(ctx, payIn, bob, itemId, decimal.NewFromInt(300_000)))
	}

	got, err := s.ListNotifications(ctx, alice, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.NotificationKindZap, got[0].Kind)
	assert.Equal(t, payIn.Id, got[0].PayInId)
	assert.Equal(t, "700000", got[0].Data["msats"])

	got, err = s.ListNotifications(ctx, bob, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSinkRespectsNoteFlags(t *testing.T) {
	cases := []struct {
		name   string
		unset  core.UserFlags
		zaps   int
		bounty int
	}{
		{"defaults", 0, 1, 1},
		{"zaps off", core.NoteZapsFlag, 0, 1},
		{"bounties off", core.NoteBountiesFlag, 1, 0},
		{"both off", core.NoteZapsFlag | core.NoteBountiesFlag, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(t)
			clk := clock.NewMock()
			sink := New(clk, s)

			userId := newUser(t, s, clk, "alice")
			if tc.unset != 0 {
				_, err := s.SetUserFlag(ctx, userId, tc.unset, false)
				require.NoError(t, err)
			}

			itemId := uuid.Must(uuid.NewV4())
			zap := &core.PayIn{Id: uuid.Must(uuid.NewV4())}
			bounty := &core.PayIn{Id: uuid.Must(uuid.NewV4())}
			require.NoError(t, sink.NotifyZapped(ctx, zap, userId, itemId, decimal.NewFromInt(1_000)))
			require.NoError(t, sink.NotifyBountyPaid(ctx, bounty, userId, itemId, decimal.NewFromInt(1_000)))
			require.NoError(t, sink.NotifyReply(ctx, zap, userId, itemId))

			got, err := s.ListNotifications(ctx, userId, 10)
			require.NoError(t, err)
			kinds := map[core.NotificationKind]int{}
			for _, n := range got {
				kinds[n.Kind]++
			}
			assert.Equal(t, tc.zaps, kinds[core.NotificationKindZap])
			assert.Equal(t, tc.bounty, kinds[core.NotificationKindBounty])
			assert.Equal(t, 1, kinds[core.NotificationKindReply])
		})
	}
}

func TestSinkUnknownUser(t *testing.T) {
	s := newTestStore(t)
	sink := New(clock.NewMock(), s)

	payIn := &core.PayIn{Id: uuid.Must(uuid.NewV4())}
	err := sink.NotifyZapped(context.Background(), payIn, uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), decimal.NewFromInt(1_000))
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestNotifyWithdrawal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sink := New(clock.NewMock(), s)

	payIn := &core.PayIn{
		Id:                 uuid.Must(uuid.NewV4()),
		UserId:             uuid.Must(uuid.NewV4()),
		PayInType:          core.PayInTypeWithdrawal,
		PayInState:         core.PayInStateFailed,
		PayInFailureReason: core.PayInFailureReasonWithdrawalFailed,
	}
	require.NoError(t, sink.NotifyWithdrawal(ctx, payIn))

	got, err := s.ListNotifications(ctx, payIn.UserId, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "FAILED", got[0].Data["state"])
	assert.Equal(t, "WITHDRAWAL_FAILED", got[0].Data["failureReason"])
}
