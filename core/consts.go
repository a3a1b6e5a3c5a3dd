package core

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

var (
	// AnonUserId owns every PayIn submitted without an identified payer.
	AnonUserId = uuid.Must(uuid.FromString("00000000-0000-0000-0000-000000000001"))

	// RewardsUserId owns the rewards pool. It is never credited directly.
	RewardsUserId = uuid.Must(uuid.FromString("00000000-0000-0000-0000-000000000002"))
)

var (
	ONE   = decimal.NewFromInt(1)
	MSATS = decimal.NewFromInt(1000)
	PCT   = decimal.NewFromInt(100)
)

const (
	ITEM_SPAM_INTERVAL        = 10 * time.Minute
	ITEM_SPAM_MAX_EXPONENT    = 4
	ITEM_EDIT_WINDOW          = 10 * time.Minute
	ITEM_TIMESTAMP_DELAY      = 10 * time.Minute
	BOOST_EXPIRY              = 7 * 24 * time.Hour
	MEDIA_FEE_BYTES_PER_UNIT  = 1 << 20
	DEFAULT_INVOICE_EXPIRY    = 5 * time.Minute
	DEFAULT_HOLD_EXPIRY       = 5 * time.Minute
	ZAP_ROUTING_FEE_PCT       = 3
	BOUNTY_ROUTING_FEE_PCT    = 3
	PROXY_ROUTING_FEE_PCT     = 3
	ANON_ITEM_FEE_MULTIPLIER  = 100
	MEDIA_FEE_SATS_PER_UNIT   = 10
	WITHDRAWAL_MAX_FEE_SATS   = 10
	MAX_PENDING_PAYINS        = 10
	MAX_PENDING_DIRECT_PAYINS = 3
)
