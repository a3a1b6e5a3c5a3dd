package payin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DomeLiquid/payin/core"
	"github.com/DomeLiquid/payin/metrics"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// errStaleState means a compare-and-set found the PayIn already moved on.
var errStaleState = errors.New("payin state changed concurrently")

// Engine is the PayIn lifecycle controller.
type Engine struct {
	clk      clock.Clock
	log      core.Log
	store    core.Store
	invoices core.InvoiceService
	wallets  core.WalletDirectory
	jobs     core.JobScheduler
	notifier core.Notifier
	router   *Router
	opts     Options
}

func NewEngine(
	clk clock.Clock,
	log core.Log,
	store core.Store,
	invoices core.InvoiceService,
	wallets core.WalletDirectory,
	jobs core.JobScheduler,
	notifier core.Notifier,
	opts Options,
) *Engine {
	return &Engine{
		clk:      clk,
		log:      log,
		store:    store,
		invoices: invoices,
		wallets:  wallets,
		jobs:     jobs,
		notifier: notifier,
		router:   NewRouter(clk, log, wallets, invoices, opts.InvoiceExpiry),
		opts:     opts,
	}
}

func (e *Engine) Router() *Router {
	return e.router
}

// Submit prices the action, collects what it can from the payer's custodial
// balances and either settles immediately or issues the invoice for the rest.
func (e *Engine) Submit(ctx context.Context, payInType core.PayInType, args json.RawMessage, payer *core.User) (*core.PayIn, error) {
	module, err := ModuleFor(payInType)
	if err != nil {
		return nil, err
	}
	if core.IsAnon(payer) && !module.AnonAllowed() {
		return nil, core.ErrAnonNotAllowed
	}
	if payer != nil && payer.GetFlag(core.DisabledFlag) {
		return nil, core.ErrUserDisabled
	}

	payIn, err := module.Initial(ctx, e, args, payer)
	if err != nil {
		return nil, err
	}
	if err := e.assertLimits(ctx, payIn); err != nil {
		return nil, err
	}

	err = e.store.Transaction(ctx, func(tx core.Store) error {
		return e.begin(ctx, tx, module, payIn, args, nil)
	})
	if err != nil {
		return nil, err
	}
	e.observe(ctx, payIn)
	core.WithPayIn(e.log.Info(), payIn).Str("mcost", payIn.Mcost.String()).Msg("payin created")

	return e.afterCommit(ctx, module, payIn)
}

func (e *Engine) assertLimits(ctx context.Context, payIn *core.PayIn) error {
	if payIn.IsAnon() {
		return nil
	}

	if e.opts.MaxPendingPayIns > 0 {
		pending, err := e.store.CountPendingPayIns(ctx, payIn.UserId)
		if err != nil {
			return err
		}
		if pending >= e.opts.MaxPendingPayIns {
			return core.ErrTooManyPendingPayIns
		}
	}

	if payIn.IsP2P() && e.opts.MaxPendingDirectPayments > 0 {
		pending, err := e.store.CountPendingDirectPayIns(ctx, payIn.UserId)
		if err != nil {
			return err
		}
		if pending >= e.opts.MaxPendingDirectPayments {
			return core.ErrTooManyPendingDirectPayments
		}
	}
	return nil
}

// begin debits the payer, picks the initial state and persists the PayIn. For a
// retry, retryOf is the failed attempt being replaced.
func (e *Engine) begin(ctx context.Context, tx core.Store, module Module, payIn *core.PayIn, args json.RawMessage, retryOf *core.PayIn) error {
	methods := module.PaymentMethods()
	if err := e.debitPayIn(ctx, tx, payIn, methods); err != nil {
		return err
	}

	state, err := initialState(payIn, methods)
	if err != nil {
		return err
	}
	now := e.clk.Now().Unix()
	payIn.Transition(state, core.PayInFailureReasonNone, now)
	for _, b := range payIn.Beneficiaries {
		b.Transition(state, core.PayInFailureReasonNone, now)
	}
	if payIn.NeedsPessimisticEnv(methods) {
		payIn.PessimisticEnv = core.NewPessimisticEnv(e.clk, payIn.Id, args)
	}

	if err := tx.CreatePayIn(ctx, payIn); err != nil {
		return err
	}

	switch {
	case retryOf != nil:
		if err := e.retryHooks(ctx, tx, module, retryOf, payIn, args); err != nil {
			return err
		}
	case !payIn.IsPessimistic(methods):
		if _, err := module.OnBegin(ctx, e, tx, payIn, args); err != nil {
			return err
		}
	}

	if state == core.PayInStatePaid {
		return e.finalize(ctx, tx, module, payIn)
	}
	return nil
}

// debitPayIn takes the custodial part of the cost from the payer, CREDITS first.
func (e *Engine) debitPayIn(ctx context.Context, tx core.Store, payIn *core.PayIn, methods []core.PaymentMethod) error {
	if payIn.IsAnon() {
		return nil
	}

	need := payIn.CustodialCost()
	for _, asset := range core.CustodialAssets(methods) {
		if !need.IsPositive() {
			break
		}
		spent, before, err := tx.DebitCustodial(ctx, payIn.UserId, asset, need)
		if err != nil {
			return err
		}
		if !spent.IsPositive() {
			continue
		}
		token := core.NewPayInCustodialToken(e.clk, payIn.Id, asset, spent, before)
		payIn.PayInCustodialTokens = append(payIn.PayInCustodialTokens, token)
		need = need.Sub(spent)
	}
	return nil
}

func initialState(payIn *core.PayIn, methods []core.PaymentMethod) (core.PayInState, error) {
	remaining := payIn.MCostRemaining()
	switch {
	case remaining.IsNegative():
		return "", core.Invariantf("payin %s collected more than it costs: remaining %s", payIn.Id, remaining)
	case remaining.IsPositive():
		if !core.Invoiceable(methods) {
			return "", core.ErrInsufficientFunds
		}
		if payIn.IsP2P() {
			return core.PayInStatePendingInvoiceWrap, nil
		}
		return core.PayInStatePendingInvoiceCreation, nil
	case payIn.PayInType.IsWithdrawal():
		return core.PayInStatePendingWithdrawal, nil
	default:
		return core.PayInStatePaid, nil
	}
}

func (e *Engine) afterCommit(ctx context.Context, module Module, payIn *core.PayIn) (*core.PayIn, error) {
	switch payIn.PayInState {
	case core.PayInStatePaid:
		e.sideEffects(ctx, module, payIn)
	case core.PayInStatePendingInvoiceCreation:
		return e.createInvoice(ctx, module, payIn)
	case core.PayInStatePendingInvoiceWrap:
		return e.wrapInvoice(ctx, module, payIn)
	case core.PayInStatePendingWithdrawal:
		return e.payWithdrawal(ctx, module, payIn)
	}
	return e.store.GetPayIn(ctx, payIn.Id)
}

// Attempt drives a PayIn one step toward a terminal state. It is safe to call
// repeatedly and is what the poller runs.
func (e *Engine) Attempt(ctx context.Context, id uuid.UUID) (*core.PayIn, error) {
	payIn, err := e.store.GetPayIn(ctx, id)
	if err != nil {
		return nil, err
	}
	module, err := ModuleFor(payIn.PayInType)
	if err != nil {
		return nil, err
	}

	switch payIn.PayInState {
	case core.PayInStatePendingInvoiceCreation:
		return e.createInvoice(ctx, module, payIn)
	case core.PayInStatePendingInvoiceWrap:
		return e.wrapInvoice(ctx, module, payIn)
	case core.PayInStatePending, core.PayInStatePendingHeld:
		return e.attemptInvoice(ctx, module, payIn)
	case core.PayInStatePendingWithdrawal:
		return e.attemptWithdrawal(ctx, module, payIn)
	default:
		return payIn, nil
	}
}

func (e *Engine) attemptInvoice(ctx context.Context, module Module, payIn *core.PayIn) (*core.PayIn, error) {
	invoice := payIn.PayInBolt11
	if invoice == nil {
		return payIn, nil
	}

	status, err := e.invoices.LookupInvoice(ctx, invoice.Hash)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup invoice %s", invoice.Hash)
	}

	switch status.State {
	case core.InvoiceStateHeld:
		return e.OnInvoiceHeld(ctx, invoice.Hash)
	case core.InvoiceStatePaid:
		return e.OnInvoicePaid(ctx, invoice.Hash, status.MsatsReceived)
	case core.InvoiceStateCanceled, core.InvoiceStateExpired:
		return e.attemptFailed(ctx, invoice.Hash, status.State)
	case core.InvoiceStateOpen:
		if invoice.Expired(e.clk.Now().Unix()) {
			e.cancelInvoice(ctx, payIn)
			return e.attemptFailed(ctx, invoice.Hash, core.InvoiceStateExpired)
		}
	}
	return payIn, nil
}

func (e *Engine) attemptFailed(ctx context.Context, hash string, state core.InvoiceState) (*core.PayIn, error) {
	payIn, err := e.OnInvoiceFailed(ctx, hash, state)
	if errors.Is(err, core.ErrInvoiceExpired) || errors.Is(err, core.ErrInvoiceCanceled) {
		return payIn, nil
	}
	return payIn, err
}

func (e *Engine) attemptWithdrawal(ctx context.Context, module Module, payIn *core.PayIn) (*core.PayIn, error) {
	payOut := payIn.PayOutBolt11
	if payOut == nil {
		return nil, core.Invariantf("withdrawal %s has no payout", payIn.Id)
	}

	payment, err := e.invoices.LookupPayment(ctx, payOut.Hash)
	if errors.Is(err, core.ErrPaymentNotFound) || (err == nil && payment.State == core.PaymentStateNotFound) {
		return e.payWithdrawal(ctx, module, payIn)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "lookup payment %s", payOut.Hash)
	}
	return e.onWithdrawalPayment(ctx, module, payIn, payment)
}

// Cancel fails a pending PayIn on behalf of its payer.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, payer *core.User) (*core.PayIn, error) {
	if core.IsAnon(payer) {
		return nil, core.ErrAnonNotAllowed
	}
	payIn, err := e.store.GetPayIn(ctx, id)
	if err != nil {
		return nil, err
	}
	if payIn.UserId != payer.Id {
		return nil, core.ErrNotPayInOwner
	}
	if !hasState(core.CancelablePayInStates, payIn.PayInState) {
		return nil, core.ErrNotCancelable
	}
	module, err := ModuleFor(payIn.PayInType)
	if err != nil {
		return nil, err
	}

	if payIn.IsP2P() && payIn.PayInState == core.PayInStatePendingHeld {
		payment, err := e.forwardedPayment(ctx, payIn)
		if err != nil {
			return nil, err
		}
		if payment.State != core.PaymentStateNotFound && payment.State != core.PaymentStateFailed {
			return nil, core.ErrNotCancelable
		}
	}

	e.cancelInvoice(ctx, payIn)
	return e.failPayIn(ctx, module, payIn, core.CancelablePayInStates, core.PayInFailureReasonUserCancelled, "")
}

// Describe renders a PayIn for audit display.
func (e *Engine) Describe(ctx context.Context, id uuid.UUID) (string, error) {
	payIn, err := e.store.GetPayIn(ctx, id)
	if err != nil {
		return "", err
	}
	module, err := ModuleFor(payIn.PayInType)
	if err != nil {
		return "", err
	}
	text, err := module.Describe(ctx, e, payIn)
	if err != nil {
		return "", err
	}

	state := payIn.PayInState.String()
	if payIn.PayInFailureReason != core.PayInFailureReasonNone {
		state += " (" + payIn.PayInFailureReason.String() + ")"
	}
	return fmt.Sprintf("%s: %s, %s msats, %s", payIn.PayInType, text, payIn.TotalCost(), state), nil
}

func (e *Engine) sideEffects(ctx context.Context, module Module, payIn *core.PayIn) {
	var g errgroup.Group
	for _, p := range family(payIn) {
		p, m := p, module
		if p != payIn {
			m = mustModule(p.PayInType)
		}
		g.Go(func() error {
			return errors.Wrapf(m.OnPaidSideEffects(ctx, e, p), "%s side effects", p.PayInType)
		})
	}
	if err := g.Wait(); err != nil {
		core.WithPayIn(e.log.Warn(), payIn).Err(err).Msg("paid side effects")
	}
	e.scheduleAutoWithdrawals(ctx, payIn)
}

// scheduleAutoWithdrawals queues a withdrawal check for payees whose SATS balance
// crossed their auto-withdraw threshold.
func (e *Engine) scheduleAutoWithdrawals(ctx context.Context, payIn *core.PayIn) {
	if payIn.PayInType.IsWithdrawal() {
		return
	}

	seen := map[uuid.UUID]bool{}
	for _, p := range family(payIn) {
		for _, t := range p.PayOutCustodialTokens {
			if t.UserId == nil || t.CustodialTokenType != core.CustodialTokenTypeSats || !t.PayOutType.Credited() {
				continue
			}
			seen[*t.UserId] = true
		}
	}

	for userId := range seen {
		user, err := e.store.GetUserById(ctx, userId)
		if err != nil || user.AutoWithdrawThresholdSats <= 0 {
			continue
		}
		if user.Msats.LessThan(core.SatsToMsats(user.AutoWithdrawThresholdSats)) {
			continue
		}
		job := &core.Job{
			Name:  core.JobAutoWithdraw,
			Key:   core.JobAutoWithdraw + ":" + userId.String(),
			Data:  map[string]string{"userId": userId.String()},
			RunAt: e.clk.Now().Unix(),
		}
		e.schedule(ctx, payIn, job)
	}
}

func (e *Engine) schedule(ctx context.Context, payIn *core.PayIn, job *core.Job) {
	if e.jobs == nil {
		return
	}
	if err := e.jobs.Schedule(ctx, job); err != nil {
		core.WithPayIn(e.log.Warn(), payIn).Err(err).Str("job", job.Key).Msg("schedule job")
	}
}

func (e *Engine) notify(ctx context.Context, payIn *core.PayIn, fn func(n core.Notifier) error) {
	if e.notifier == nil {
		return
	}
	if err := fn(e.notifier); err != nil {
		core.WithPayIn(e.log.Warn(), payIn).Err(err).Msg("notify")
	}
}

func (e *Engine) cancelInvoice(ctx context.Context, payIn *core.PayIn) {
	if payIn.PayInBolt11 == nil {
		return
	}
	if err := e.invoices.CancelInvoice(ctx, payIn.PayInBolt11.Hash); err != nil {
		core.WithPayIn(e.log.Warn(), payIn).Err(err).Msg("cancel invoice")
	}
}

func (e *Engine) observe(ctx context.Context, payIn *core.PayIn) {
	metrics.RecordTransition(ctx, payIn.PayInType.String(), payIn.PayInState.String())
	if payIn.PayInState == core.PayInStatePaid {
		latency := time.Duration(e.clk.Now().Unix()-payIn.CreatedAt) * time.Second
		metrics.RecordSettleLatency(ctx, payIn.PayInType.String(), latency)
	}
}

// family is the PayIn followed by its beneficiaries.
func family(payIn *core.PayIn) []*core.PayIn {
	return append([]*core.PayIn{payIn}, payIn.Beneficiaries...)
}

func hasState(states []core.PayInState, state core.PayInState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}
