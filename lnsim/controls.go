package lnsim

import (
	"context"
	"time"

	"github.com/DomeLiquid/payin/core"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Hold locks a payer's htlc into a hold invoice.
func (n *Node) Hold(hash string, msats decimal.Decimal) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	inv, ok := n.own[hash]
	if !ok {
		return errors.Wrap(core.ErrInvoiceNotFound, hash)
	}
	if !inv.Hold || inv.State != core.InvoiceStateOpen {
		return errors.Errorf("invoice %s cannot be held in state %s", hash, inv.State)
	}
	inv.State = core.InvoiceStateHeld
	inv.MsatsReceived = msats
	return nil
}

// Pay settles a regular invoice as if a payer paid it.
func (n *Node) Pay(hash string, msats decimal.Decimal) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	inv, ok := n.own[hash]
	if !ok {
		return errors.Wrap(core.ErrInvoiceNotFound, hash)
	}
	if inv.Hold || inv.State != core.InvoiceStateOpen {
		return errors.Errorf("invoice %s cannot be paid in state %s", hash, inv.State)
	}
	inv.State = core.InvoiceStatePaid
	inv.MsatsReceived = msats
	return nil
}

func (n *Node) Expire(hash string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	inv, ok := n.own[hash]
	if !ok {
		return errors.Wrap(core.ErrInvoiceNotFound, hash)
	}
	if inv.State != core.InvoiceStateOpen && inv.State != core.InvoiceStateHeld {
		return errors.Errorf("invoice %s already %s", hash, inv.State)
	}
	inv.State = core.InvoiceStateExpired
	return nil
}

func (n *Node) InvoiceState(hash string) core.InvoiceState {
	n.mu.Lock()
	defer n.mu.Unlock()

	if inv, ok := n.own[hash]; ok {
		return inv.State
	}
	if inv, ok := n.external[hash]; ok {
		return inv.State
	}
	return ""
}

func (n *Node) SetRoutingFee(msats decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routingFee = msats
}

func (n *Node) FailCreate(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.createErr = err
}

func (n *Node) FailWrap(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.wrapErr = err
}

func (n *Node) FailProbe(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.probeErr = err
}

// FailPaymentsTo makes every payment to invoices of the wallet address fail.
func (n *Node) FailPaymentsTo(address string, reason core.PayOutFailureReason) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paymentFailure[address] = reason
}

// StallPayment leaves payments to hash in flight until CompletePayment.
func (n *Node) StallPayment(hash string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inFlight[hash] = true
}

func (n *Node) CompletePayment(hash string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.inFlight, hash)
	p, ok := n.payments[hash]
	if !ok {
		return errors.Wrap(core.ErrPaymentNotFound, hash)
	}
	target, ok := n.external[hash]
	if !ok {
		return errors.Wrap(core.ErrInvoiceNotFound, hash)
	}
	n.succeed(p, target)
	return nil
}

// FailWallet makes the wallet at address refuse to issue invoices.
func (n *Node) FailWallet(address string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.walletErr, address)
		return
	}
	n.walletErr[address] = err
}

// TruncateWallet makes the wallet at address issue invoices for msats less than asked.
func (n *Node) TruncateWallet(address string, msats decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.truncate[address] = msats
}

// ExternalInvoice issues an invoice from a wallet outside the node, such as
// the destination of a withdrawal.
func (n *Node) ExternalInvoice(address string, msats decimal.Decimal, description string, expiry time.Duration) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	inv := n.newInvoice(msats, description, expiry, false)
	inv.Wallet = address
	n.external[inv.Hash] = inv
	return inv.Bolt11
}

// Receiver issues payee invoices for wallets of any protocol.
func (n *Node) Receiver() *Receiver { return &Receiver{node: n} }

type Receiver struct {
	node *Node
}

func (r *Receiver) CreateInvoice(ctx context.Context, wallet *core.Wallet, msats decimal.Decimal, description string, expiry time.Duration) (string, error) {
	n := r.node
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.walletErr[wallet.Address]; err != nil {
		return "", err
	}
	if cut, ok := n.truncate[wallet.Address]; ok {
		msats = msats.Sub(cut)
	}
	inv := n.newInvoice(msats, description, expiry, false)
	inv.Wallet = wallet.Address
	n.external[inv.Hash] = inv
	return inv.Bolt11, nil
}
