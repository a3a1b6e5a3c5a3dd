package payin

import (
	"context"
	"strings"
	"time"

	"github.com/DomeLiquid/payin/core"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Router turns a payee into a P2P payout by asking each of their receive wallets
// for an invoice until one is usable.
type Router struct {
	clk      clock.Clock
	log      core.Log
	wallets  core.WalletDirectory
	invoices core.InvoiceService
	expiry   time.Duration
}

// PayoutRequest asks for a payout of at most Msats to UserId. A GenesisId ranks
// wallets by their failures in earlier attempts of the same chain; CanWrap asks the
// invoice service whether the payee invoice can be wrapped.
type PayoutRequest struct {
	UserId      uuid.UUID
	GenesisId   *uuid.UUID
	Msats       decimal.Decimal
	Description string
	PayOutType  core.PayOutType
	CanWrap     bool
}

func NewRouter(clk clock.Clock, log core.Log, wallets core.WalletDirectory, invoices core.InvoiceService, expiry time.Duration) *Router {
	return &Router{
		clk:      clk,
		log:      log,
		wallets:  wallets,
		invoices: invoices,
		expiry:   expiry,
	}
}

// Payout returns a prospect PayOutBolt11 for the payee or a *core.NoReceiveWalletError
// listing why each wallet was skipped.
func (r *Router) Payout(ctx context.Context, req PayoutRequest) (*core.PayOutBolt11, error) {
	if !req.Msats.IsPositive() {
		return nil, core.ErrInvalidAmount
	}
	if r.wallets == nil {
		return nil, core.NewNoReceiveWalletError(req.UserId, "no wallet directory")
	}

	var (
		wallets []*core.Wallet
		err     error
	)
	if req.GenesisId != nil {
		wallets, err = r.wallets.ListLeastFailedWallets(ctx, *req.GenesisId, req.UserId)
	} else {
		wallets, err = r.wallets.ListEnabledWallets(ctx, req.UserId)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "list wallets of %s", req.UserId)
	}

	noWallet := core.NewNoReceiveWalletError(req.UserId, "")
	for _, w := range core.RankWallets(wallets) {
		payOut, reason, err := r.tryWallet(ctx, w, req)
		if err == nil {
			return payOut, nil
		}
		r.log.Debug().Err(err).
			Str("walletId", w.Id.String()).
			Str("userId", req.UserId.String()).
			Str("reason", reason.String()).
			Msg("wallet skipped")
		noWallet.Add(w.Id, reason)
	}
	return nil, noWallet
}

func (r *Router) tryWallet(ctx context.Context, w *core.Wallet, req PayoutRequest) (*core.PayOutBolt11, core.PayOutFailureReason, error) {
	bolt11, err := r.wallets.CreateInvoice(ctx, w, req.Msats, req.Description, r.expiry)
	if err != nil {
		return nil, core.PayOutFailureReasonWrappingUnknown, errors.Wrap(err, "wallet invoice")
	}

	decoded, err := r.invoices.InspectInvoice(ctx, bolt11)
	if err != nil {
		return nil, core.PayOutFailureReasonWrappingUnknown, errors.Wrap(err, "inspect invoice")
	}
	// A wallet may invoice less than asked, never more.
	switch {
	case !decoded.Msats.IsPositive(), decoded.Msats.GreaterThan(req.Msats):
		return nil, core.PayOutFailureReasonWrappingUnknown, errors.Wrapf(core.ErrInvalidInvoice, "invoice for %s msats, asked %s", decoded.Msats, req.Msats)
	case decoded.Description != req.Description:
		return nil, core.PayOutFailureReasonWrappingUnknown, errors.Wrap(core.ErrInvalidInvoice, "description mismatch")
	}

	if req.CanWrap {
		if prober, ok := r.invoices.(core.WrapProber); ok {
			if err := prober.ProbeWrap(ctx, decoded); err != nil {
				reason := core.PayOutFailureReasonWrappingUnknown
				var receiverErr *core.ReceiverError
				if errors.As(err, &receiverErr) {
					reason = receiverErr.Reason
				}
				return nil, reason, err
			}
		}
	}

	walletId := w.Id
	payOut := core.NewPayOutBolt11(r.clk, req.UserId, &walletId, req.PayOutType, decoded.Msats, bolt11, decoded.Hash)
	return payOut, "", nil
}

// ReplacePayOut asks the payee's wallets for a new invoice standing in for a failed
// payout. Like any payout it may be smaller than the original but never larger.
func (r *Router) ReplacePayOut(ctx context.Context, old *core.PayOutBolt11, genesisId uuid.UUID, description string) (*core.PayOutBolt11, error) {
	payOut, err := r.Payout(ctx, PayoutRequest{
		UserId:      old.UserId,
		GenesisId:   &genesisId,
		Msats:       old.Msats,
		Description: description,
		PayOutType:  old.PayOutType,
		CanWrap:     true,
	})
	if err != nil {
		return nil, err
	}
	return payOut, nil
}

func payOutDescription(payInType core.PayInType) string {
	return "payin " + strings.ToLower(payInType.String())
}
