// Package lnsim is an in-process Lightning node. It issues, holds, settles and pays
// invoices in memory and lets tests decide how wallets and payments behave.
package lnsim

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/DomeLiquid/payin/core"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type invoice struct {
	core.Invoice
	Description   string
	State         core.InvoiceState
	MsatsReceived decimal.Decimal
	// Wallet is the receiving wallet address of a payee invoice.
	Wallet string
	// Forward is the payee invoice a wrapped invoice pays out to.
	Forward string
}

type Node struct {
	mu  sync.Mutex
	clk clock.Clock

	// own holds the invoices this node collects on, external those of payee wallets.
	own      map[string]*invoice
	external map[string]*invoice
	bolt11s  map[string]*invoice
	payments map[string]*core.Payment

	routingFee     decimal.Decimal
	createErr      error
	wrapErr        error
	probeErr       error
	paymentFailure map[string]core.PayOutFailureReason
	inFlight       map[string]bool
	walletErr      map[string]error
	truncate       map[string]decimal.Decimal
}

var (
	_ core.InvoiceService = (*Node)(nil)
	_ core.WrapProber     = (*Node)(nil)
)

func New(clk clock.Clock) *Node {
	return &Node{
		clk:            clk,
		own:            map[string]*invoice{},
		external:       map[string]*invoice{},
		bolt11s:        map[string]*invoice{},
		payments:       map[string]*core.Payment{},
		routingFee:     decimal.Zero,
		paymentFailure: map[string]core.PayOutFailureReason{},
		inFlight:       map[string]bool{},
		walletErr:      map[string]error{},
		truncate:       map[string]decimal.Decimal{},
	}
}

func (n *Node) CreateInvoice(ctx context.Context, req core.CreateInvoiceRequest) (*core.Invoice, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.createErr != nil {
		return nil, n.createErr
	}
	inv := n.newInvoice(req.Msats, req.Description, req.Expiry, req.Hold)
	n.own[inv.Hash] = inv
	return n.public(inv), nil
}

// WrapInvoice issues a hold invoice for the payee invoice's hash. The node learns
// the preimage only once the forward succeeds.
func (n *Node) WrapInvoice(ctx context.Context, req core.WrapInvoiceRequest) (*core.Invoice, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.wrapErr != nil {
		return nil, n.wrapErr
	}
	payee, ok := n.bolt11s[req.Bolt11]
	if !ok {
		return nil, core.NewReceiverError(core.PayOutFailureReasonWrappingUnknown, core.ErrInvalidInvoice)
	}
	if req.Msats.LessThan(payee.Msats) {
		return nil, core.NewReceiverError(core.PayOutFailureReasonWrappingUnknown,
			errors.Errorf("wrap of %s msats cannot cover %s", req.Msats, payee.Msats))
	}

	inv := &invoice{
		Invoice: core.Invoice{
			Hash:      payee.Hash,
			Msats:     req.Msats,
			Hold:      true,
			ExpiresAt: n.clk.Now().Add(req.Expiry).Unix(),
		},
		Description:   req.Description,
		State:         core.InvoiceStateOpen,
		MsatsReceived: decimal.Zero,
		Forward:       req.Bolt11,
	}
	inv.Bolt11 = encode("lnsimw", inv.Hash, inv.Msats)
	n.own[inv.Hash] = inv
	n.bolt11s[inv.Bolt11] = inv
	return n.public(inv), nil
}

func (n *Node) ProbeWrap(ctx context.Context, decoded *core.DecodedInvoice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.probeErr
}

func (n *Node) InspectInvoice(ctx context.Context, bolt11 string) (*core.DecodedInvoice, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	inv, ok := n.bolt11s[bolt11]
	if !ok {
		return nil, errors.Wrapf(core.ErrInvalidInvoice, "unknown bolt11 %q", bolt11)
	}
	return &core.DecodedInvoice{
		Hash:        inv.Hash,
		Msats:       inv.Msats,
		Description: inv.Description,
		ExpiresAt:   inv.ExpiresAt,
	}, nil
}

func (n *Node) LookupInvoice(ctx context.Context, hash string) (*core.InvoiceStatus, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	inv, ok := n.own[hash]
	if !ok {
		return nil, errors.Wrap(core.ErrInvoiceNotFound, hash)
	}
	n.expire(inv)
	return &core.InvoiceStatus{Hash: hash, State: inv.State, MsatsReceived: inv.MsatsReceived}, nil
}

func (n *Node) CancelInvoice(ctx context.Context, hash string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	inv, ok := n.own[hash]
	if !ok {
		return errors.Wrap(core.ErrInvoiceNotFound, hash)
	}
	if inv.State == core.InvoiceStatePaid {
		return errors.Errorf("invoice %s already paid", hash)
	}
	inv.State = core.InvoiceStateCanceled
	return nil
}

func (n *Node) SettleInvoice(ctx context.Context, preimage string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	hash, err := hashOf(preimage)
	if err != nil {
		return err
	}
	inv, ok := n.own[hash]
	if !ok {
		return errors.Wrap(core.ErrInvoiceNotFound, hash)
	}
	switch inv.State {
	case core.InvoiceStatePaid:
		return nil
	case core.InvoiceStateHeld:
		inv.State = core.InvoiceStatePaid
		return nil
	default:
		return errors.Errorf("invoice %s is %s, not held", hash, inv.State)
	}
}

// PayInvoice pays a payee invoice. A repeated call returns the first attempt.
func (n *Node) PayInvoice(ctx context.Context, req core.PayInvoiceRequest) (*core.Payment, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	target, ok := n.bolt11s[req.Bolt11]
	if !ok {
		return nil, errors.Wrapf(core.ErrInvalidInvoice, "unknown bolt11 %q", req.Bolt11)
	}
	if p, ok := n.payments[target.Hash]; ok && p.State != core.PaymentStateFailed {
		return clonePayment(p), nil
	}

	payment := &core.Payment{Hash: target.Hash, FeeMsats: decimal.Zero}
	n.payments[target.Hash] = payment
	switch {
	case n.inFlight[target.Hash]:
		payment.State = core.PaymentStateInFlight
	case n.paymentFailure[target.Wallet] != "":
		payment.State = core.PaymentStateFailed
		payment.FailureReason = n.paymentFailure[target.Wallet]
	case n.routingFee.GreaterThan(req.MaxFeeMsats):
		payment.State = core.PaymentStateFailed
		payment.FailureReason = core.PayOutFailureReasonForwardingFailed
	default:
		n.succeed(payment, target)
	}
	return clonePayment(payment), nil
}

func (n *Node) LookupPayment(ctx context.Context, hash string) (*core.Payment, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, ok := n.payments[hash]
	if !ok {
		return nil, errors.Wrap(core.ErrPaymentNotFound, hash)
	}
	return clonePayment(p), nil
}

func (n *Node) succeed(payment *core.Payment, target *invoice) {
	payment.State = core.PaymentStateSucceeded
	payment.Preimage = target.Preimage
	payment.FeeMsats = n.routingFee
	target.State = core.InvoiceStatePaid
	target.MsatsReceived = target.Msats
}

func (n *Node) newInvoice(msats decimal.Decimal, description string, expiry time.Duration, hold bool) *invoice {
	preimage := randomHex()
	hash, _ := hashOf(preimage)
	inv := &invoice{
		Invoice: core.Invoice{
			Hash:      hash,
			Preimage:  preimage,
			Msats:     msats,
			Hold:      hold,
			ExpiresAt: n.clk.Now().Add(expiry).Unix(),
		},
		Description:   description,
		State:         core.InvoiceStateOpen,
		MsatsReceived: decimal.Zero,
	}
	inv.Bolt11 = encode("lnsim", hash, msats)
	n.bolt11s[inv.Bolt11] = inv
	return inv
}

func (n *Node) expire(inv *invoice) {
	if inv.State == core.InvoiceStateOpen && inv.ExpiresAt > 0 && n.clk.Now().Unix() >= inv.ExpiresAt {
		inv.State = core.InvoiceStateExpired
	}
}

func (n *Node) public(inv *invoice) *core.Invoice {
	c := inv.Invoice
	return &c
}

func clonePayment(p *core.Payment) *core.Payment {
	c := *p
	return &c
}

func encode(prefix, hash string, msats decimal.Decimal) string {
	return fmt.Sprintf("%s%sm1%s", prefix, msats.String(), hash)
}

func randomHex() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func hashOf(preimage string) (string, error) {
	raw, err := hex.DecodeString(preimage)
	if err != nil {
		return "", errors.Wrap(err, "decode preimage")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
