package store

import (
	"context"
	"testing"

	"github.com/DomeLiquid/payin/core"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenSqliteMemory()
	require.NoError(t, err)
	require.NoError(t, Migrate(context.Background(), db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return New(db)
}

func newTestUser(t *testing.T, s *Store, clk clock.Clock, name string, msats, mcredits int64) *core.User {
	t.Helper()
	user := core.NewUser(clk, name)
	user.Msats = decimal.NewFromInt(msats)
	user.Mcredits = decimal.NewFromInt(mcredits)
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

func TestDebitCustodial(t *testing.T) {
	tests := []struct {
		name       string
		balance    int64
		debit      int64
		wantSpent  int64
		wantBefore int64
		wantAfter  int64
	}{
		{name: "full", balance: 1000, debit: 400, wantSpent: 400, wantBefore: 1000, wantAfter: 600},
		{name: "partial", balance: 300, debit: 500, wantSpent: 300, wantBefore: 300, wantAfter: 0},
		{name: "empty", balance: 0, debit: 500, wantSpent: 0, wantBefore: 0, wantAfter: 0},
		{name: "zero debit", balance: 700, debit: 0, wantSpent: 0, wantBefore: 0, wantAfter: 700},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(t)
			user := newTestUser(t, s, clock.NewMock(), "alice", tt.balance, 0)

			spent, before, err := s.DebitCustodial(ctx, user.Id, core.CustodialTokenTypeSats, decimal.NewFromInt(tt.debit))
			require.NoError(t, err)
			assert.True(t, spent.Equal(decimal.NewFromInt(tt.wantSpent)), "spent %s", spent)
			assert.True(t, before.Equal(decimal.NewFromInt(tt.wantBefore)), "before %s", before)

			got, err := s.GetUserById(ctx, user.Id)
			require.NoError(t, err)
			assert.True(t, got.Msats.Equal(decimal.NewFromInt(tt.wantAfter)), "after %s", got.Msats)
			assert.True(t, got.Mcredits.IsZero())
		})
	}
}

func TestCreditCustodial(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := newTestUser(t, s, clock.NewMock(), "bob", 0, 100)

	require.NoError(t, s.CreditCustodial(ctx, user.Id, core.CustodialTokenTypeCredits, decimal.NewFromInt(900)))
	require.NoError(t, s.CreditCustodial(ctx, user.Id, core.CustodialTokenTypeSats, decimal.NewFromInt(50)))

	got, err := s.GetUserById(ctx, user.Id)
	require.NoError(t, err)
	assert.True(t, got.Mcredits.Equal(decimal.NewFromInt(1000)))
	assert.True(t, got.Msats.Equal(decimal.NewFromInt(50)))

	err = s.CreditCustodial(ctx, user.Id, core.CustodialTokenTypeSats, decimal.NewFromInt(-1))
	assert.True(t, core.IsInvariant(err))

	err = s.CreditCustodial(ctx, uuid.Must(uuid.NewV4()), core.CustodialTokenTypeSats, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestSetUserFlag(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := newTestUser(t, s, clock.NewMock(), "dave", 0, 0)

	steps := []struct {
		on      bool
		wantWas bool
	}{
		{on: true, wantWas: false},
		{on: true, wantWas: true},
		{on: false, wantWas: true},
		{on: false, wantWas: false},
	}
	for _, step := range steps {
		was, err := s.SetUserFlag(ctx, user.Id, core.AutoWithdrawingFlag, step.on)
		require.NoError(t, err)
		assert.Equal(t, step.wantWas, was)

		got, err := s.GetUserById(ctx, user.Id)
		require.NoError(t, err)
		assert.Equal(t, step.on, got.GetFlag(core.AutoWithdrawingFlag))
		assert.True(t, got.GetFlag(core.NoteZapsFlag), "other flags untouched")
	}

	_, err := s.SetUserFlag(ctx, uuid.Must(uuid.NewV4()), core.DisabledFlag, true)
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := newTestUser(t, s, clock.NewMock(), "carol", 1000, 0)

	err := s.Transaction(ctx, func(tx core.Store) error {
		if _, _, err := tx.DebitCustodial(ctx, user.Id, core.CustodialTokenTypeSats, decimal.NewFromInt(1000)); err != nil {
			return err
		}
		return core.ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)

	got, err := s.GetUserById(ctx, user.Id)
	require.NoError(t, err)
	assert.True(t, got.Msats.Equal(decimal.NewFromInt(1000)))
}

func TestCreateAndGetPayIn(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	s := newTestStore(t)
	payer := newTestUser(t, s, clk, "payer", 0, 0)
	payee := newTestUser(t, s, clk, "payee", 0, 0)
	itemId := uuid.Must(uuid.NewV4())

	boost := core.NewPayIn(clk, core.PayInTypeBoost, decimal.NewFromInt(5000), payer.Id, core.WithSubs("bitcoin"))
	payOut := core.NewPayOutBolt11(clk, payee.Id, nil, core.PayOutTypeZap, decimal.NewFromInt(700), "lnsim1", "hash-out")
	payIn := core.NewPayIn(clk, core.PayInTypeZap, decimal.NewFromInt(1000), payer.Id,
		core.WithSubs("bitcoin"),
		core.WithItem(itemId, decimal.NewFromInt(1000)),
		core.WithPayOutBolt11(payOut),
		core.WithPayOutCustodialTokens(core.NewPayOutCustodialToken(core.PayOutTypeRoutingFee, nil, decimal.NewFromInt(30), core.CustodialTokenTypeSats)),
		core.WithBeneficiaries(boost),
	)
	payIn.PayInState = core.PayInStatePendingInvoiceWrap
	boost.PayInState = core.PayInStatePendingInvoiceWrap
	payIn.PayInCustodialTokens = append(payIn.PayInCustodialTokens,
		core.NewPayInCustodialToken(clk, payIn.Id, core.CustodialTokenTypeCredits, decimal.NewFromInt(200), decimal.NewFromInt(200)))
	require.NoError(t, s.CreatePayIn(ctx, payIn))

	got, err := s.GetPayIn(ctx, payIn.Id)
	require.NoError(t, err)
	assert.Equal(t, core.PayInTypeZap, got.PayInType)
	require.Len(t, got.PayInCustodialTokens, 1)
	require.Len(t, got.PayOutCustodialTokens, 1)
	require.NotNil(t, got.PayOutBolt11)
	assert.Equal(t, "hash-out", got.PayOutBolt11.Hash)
	require.NotNil(t, got.ItemPayIn)
	assert.Equal(t, itemId, got.ItemPayIn.ItemId)
	assert.Equal(t, []string{"bitcoin"}, got.SubNames())
	require.Len(t, got.Beneficiaries, 1)
	assert.Equal(t, boost.Id, got.Beneficiaries[0].Id)
	require.NotNil(t, got.Beneficiaries[0].BenefactorId)
	assert.Equal(t, payIn.Id, *got.Beneficiaries[0].BenefactorId)
	assert.True(t, got.TotalCost().Equal(decimal.NewFromInt(6000)))

	_, err = s.GetPayIn(ctx, uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, core.ErrPayInNotFound)

	pending, err := s.CountPendingPayIns(ctx, payer.Id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	direct, err := s.CountPendingDirectPayIns(ctx, payer.Id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, direct)
}

func TestTransitionPayInState(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	s := newTestStore(t)
	payer := newTestUser(t, s, clk, "payer", 0, 0)

	payIn := core.NewPayIn(clk, core.PayInTypeBoost, decimal.NewFromInt(1000), payer.Id)
	payIn.PayInState = core.PayInStatePending
	require.NoError(t, s.CreatePayIn(ctx, payIn))

	ok, err := s.TransitionPayInState(ctx, payIn.Id, []core.PayInState{core.PayInStatePending}, core.PayInStatePaid, core.PayInFailureReasonNone, 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TransitionPayInState(ctx, payIn.Id, []core.PayInState{core.PayInStatePending}, core.PayInStateFailed, core.PayInFailureReasonInvoiceExpired, 11)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetPayIn(ctx, payIn.Id)
	require.NoError(t, err)
	assert.Equal(t, core.PayInStatePaid, got.PayInState)
	assert.EqualValues(t, 10, got.PayInStateChangedAt)
}

func TestPayInChain(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	s := newTestStore(t)
	payer := newTestUser(t, s, clk, "payer", 0, 0)

	genesis := core.NewPayIn(clk, core.PayInTypeZap, decimal.NewFromInt(1000), payer.Id)
	genesis.PayInState = core.PayInStateFailed
	require.NoError(t, s.CreatePayIn(ctx, genesis))

	genesisId := genesis.Id
	retry := core.NewPayIn(clk, core.PayInTypeZap, decimal.NewFromInt(1000), payer.Id)
	retry.GenesisId = &genesisId
	retry.Attempt = 1
	retry.PayInState = core.PayInStatePending
	require.NoError(t, s.CreatePayIn(ctx, retry))

	latest, err := s.GetLatestPayInInChain(ctx, genesis.Id)
	require.NoError(t, err)
	assert.Equal(t, retry.Id, latest.Id)

	duplicate := core.NewPayIn(clk, core.PayInTypeZap, decimal.NewFromInt(1000), payer.Id)
	duplicate.GenesisId = &genesisId
	duplicate.Attempt = 1
	duplicate.PayInState = core.PayInStatePending
	assert.Error(t, s.CreatePayIn(ctx, duplicate))

	stale, err := s.ListStalePayIns(ctx, clk.Now().Unix()+1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{retry.Id}, stale)
}

func TestCountWalletFailures(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	s := newTestStore(t)
	payer := newTestUser(t, s, clk, "payer", 0, 0)
	payee := newTestUser(t, s, clk, "payee", 0, 0)

	w1 := core.NewWallet(clk, payee.Id, core.WalletProtocolNWC, "nwc://one", 0)
	w2 := core.NewWallet(clk, payee.Id, core.WalletProtocolLNURL, "payee@example.com", 1)
	require.NoError(t, s.CreateWallet(ctx, w1))
	require.NoError(t, s.CreateWallet(ctx, w2))

	failed := core.NewPayOutBolt11(clk, payee.Id, &w1.Id, core.PayOutTypeZap, decimal.NewFromInt(700), "lnsim1", "h1")
	failed.UpdateStatus(clk, core.PayOutStatusFailed, core.PayOutFailureReasonForwardingFailed)
	genesis := core.NewPayIn(clk, core.PayInTypeZap, decimal.NewFromInt(1000), payer.Id, core.WithPayOutBolt11(failed))
	genesis.PayInState = core.PayInStateFailed
	require.NoError(t, s.CreatePayIn(ctx, genesis))

	failures, err := s.CountWalletFailures(ctx, genesis.Id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, failures[w1.Id])
	assert.EqualValues(t, 0, failures[w2.Id])

	wallets, err := s.ListWalletsByUser(ctx, payee.Id, true)
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, w1.Id, wallets[0].Id)
}

func TestItemCounters(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	s := newTestStore(t)
	author := newTestUser(t, s, clk, "author", 0, 0)

	item := core.NewItem(clk, author.Id, "bitcoin", nil)
	item.Status = core.ItemStatusActive
	require.NoError(t, s.CreateItem(ctx, item))

	require.NoError(t, s.IncrementItemMsats(ctx, item.Id, decimal.NewFromInt(1000)))
	require.NoError(t, s.IncrementItemMsats(ctx, item.Id, decimal.NewFromInt(500)))
	require.NoError(t, s.IncrementItemBoost(ctx, item.Id, 25))
	require.NoError(t, s.IncrementItemComments(ctx, item.Id, 1))

	commentId := uuid.Must(uuid.NewV4())
	require.NoError(t, s.AddItemBountyPaidTo(ctx, item.Id, commentId))
	require.NoError(t, s.AddItemBountyPaidTo(ctx, item.Id, commentId))

	got, err := s.GetItemById(ctx, item.Id)
	require.NoError(t, err)
	assert.True(t, got.Msats.Equal(decimal.NewFromInt(1500)))
	assert.EqualValues(t, 25, got.Boost)
	assert.EqualValues(t, 1, got.NComments)
	assert.True(t, got.BountyPaidToComment(commentId))
	assert.Equal(t, commentId.String(), got.BountyPaidTo)

	count, err := s.CountRecentItems(ctx, author.Id, "bitcoin", clk.Now().Unix())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestCreateNotificationDedupe(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	s := newTestStore(t)
	userId := uuid.Must(uuid.NewV4())
	payInId := uuid.Must(uuid.NewV4())
	key := uuid.Must(uuid.NewV4())

	created, err := s.CreateNotification(ctx, core.NewNotification(clk, userId, core.NotificationKindZap, payInId, key, map[string]any{"msats": "1000"}))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateNotification(ctx, core.NewNotification(clk, userId, core.NotificationKindZap, payInId, key, nil))
	require.NoError(t, err)
	assert.False(t, created)

	list, err := s.ListNotifications(ctx, userId, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
