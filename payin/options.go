package payin

import (
	"time"

	"github.com/DomeLiquid/payin/core"
)

type Options struct {
	MaxPendingPayIns         int64
	MaxPendingDirectPayments int64

	InvoiceExpiry time.Duration
	HoldExpiry    time.Duration

	ZapRoutingFeePct     int64
	BountyRoutingFeePct  int64
	ProxyRoutingFeePct   int64
	AnonItemMultiplier   int64
	MediaFeeSatsPerMB    int64
	WithdrawalMaxFeeSats int64
}

func DefaultOptions() Options {
	return Options{
		MaxPendingPayIns:         core.MAX_PENDING_PAYINS,
		MaxPendingDirectPayments: core.MAX_PENDING_DIRECT_PAYINS,
		InvoiceExpiry:            core.DEFAULT_INVOICE_EXPIRY,
		HoldExpiry:               core.DEFAULT_HOLD_EXPIRY,
		ZapRoutingFeePct:         core.ZAP_ROUTING_FEE_PCT,
		BountyRoutingFeePct:      core.BOUNTY_ROUTING_FEE_PCT,
		ProxyRoutingFeePct:       core.PROXY_ROUTING_FEE_PCT,
		AnonItemMultiplier:       core.ANON_ITEM_FEE_MULTIPLIER,
		MediaFeeSatsPerMB:        core.MEDIA_FEE_SATS_PER_UNIT,
		WithdrawalMaxFeeSats:     core.WITHDRAWAL_MAX_FEE_SATS,
	}
}
