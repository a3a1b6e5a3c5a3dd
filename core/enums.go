package core

type PayInType string

const (
	PayInTypeItemCreate     PayInType = "ITEM_CREATE"
	PayInTypeItemUpdate     PayInType = "ITEM_UPDATE"
	PayInTypeBoost          PayInType = "BOOST"
	PayInTypeZap            PayInType = "ZAP"
	PayInTypeDownZap        PayInType = "DOWN_ZAP"
	PayInTypeBountyPayment  PayInType = "BOUNTY_PAYMENT"
	PayInTypePollVote       PayInType = "POLL_VOTE"
	PayInTypeMediaUpload    PayInType = "MEDIA_UPLOAD"
	PayInTypeWithdrawal     PayInType = "WITHDRAWAL"
	PayInTypeAutoWithdrawal PayInType = "AUTO_WITHDRAWAL"
	PayInTypeProxyPayment   PayInType = "PROXY_PAYMENT"
)

var PayInTypes = []PayInType{
	PayInTypeItemCreate,
	PayInTypeItemUpdate,
	PayInTypeBoost,
	PayInTypeZap,
	PayInTypeDownZap,
	PayInTypeBountyPayment,
	PayInTypePollVote,
	PayInTypeMediaUpload,
	PayInTypeWithdrawal,
	PayInTypeAutoWithdrawal,
	PayInTypeProxyPayment,
}

func (t PayInType) String() string { return string(t) }

func (t PayInType) IsWithdrawal() bool {
	return t == PayInTypeWithdrawal || t == PayInTypeAutoWithdrawal
}

// IsP2POnly reports whether the payout of this kind may never degrade to custodial credit.
func (t PayInType) IsP2POnly() bool {
	switch t {
	case PayInTypeBountyPayment, PayInTypeProxyPayment, PayInTypeWithdrawal, PayInTypeAutoWithdrawal:
		return true
	default:
		return false
	}
}

type PayInState string

const (
	PayInStatePendingInvoiceCreation PayInState = "PENDING_INVOICE_CREATION"
	PayInStatePendingInvoiceWrap     PayInState = "PENDING_INVOICE_WRAP"
	PayInStatePending                PayInState = "PENDING"
	PayInStatePendingHeld            PayInState = "PENDING_HELD"
	PayInStatePendingWithdrawal      PayInState = "PENDING_WITHDRAWAL"
	PayInStatePaid                   PayInState = "PAID"
	PayInStateFailed                 PayInState = "FAILED"
)

var (
	PendingPayInStates = []PayInState{
		PayInStatePendingInvoiceCreation,
		PayInStatePendingInvoiceWrap,
		PayInStatePending,
		PayInStatePendingHeld,
		PayInStatePendingWithdrawal,
	}
	CancelablePayInStates = []PayInState{
		PayInStatePendingInvoiceCreation,
		PayInStatePendingInvoiceWrap,
		PayInStatePending,
		PayInStatePendingHeld,
	}
)

func (s PayInState) String() string { return string(s) }

func (s PayInState) IsTerminal() bool {
	return s == PayInStatePaid || s == PayInStateFailed
}

type PayInFailureReason string

const (
	PayInFailureReasonNone                       PayInFailureReason = ""
	PayInFailureReasonInvoiceCreationFailed      PayInFailureReason = "INVOICE_CREATION_FAILED"
	PayInFailureReasonInvoiceWrappingHighFee     PayInFailureReason = "INVOICE_WRAPPING_FAILED_HIGH_PREDICTED_FEE"
	PayInFailureReasonInvoiceWrappingHighExpiry  PayInFailureReason = "INVOICE_WRAPPING_FAILED_HIGH_PREDICTED_EXPIRY"
	PayInFailureReasonInvoiceWrappingUnknown     PayInFailureReason = "INVOICE_WRAPPING_FAILED_UNKNOWN"
	PayInFailureReasonForwardingCltvDeltaTooLow  PayInFailureReason = "INVOICE_FORWARDING_CLTV_DELTA_TOO_LOW"
	PayInFailureReasonInvoiceForwardingFailed    PayInFailureReason = "INVOICE_FORWARDING_FAILED"
	PayInFailureReasonInvoiceExpired             PayInFailureReason = "INVOICE_EXPIRED"
	PayInFailureReasonInvoiceCanceled            PayInFailureReason = "INVOICE_CANCELED"
	PayInFailureReasonUserCancelled              PayInFailureReason = "USER_CANCELLED"
	PayInFailureReasonWithdrawalFailed           PayInFailureReason = "WITHDRAWAL_FAILED"
	PayInFailureReasonExecutionFailed            PayInFailureReason = "EXECUTION_FAILED"
	PayInFailureReasonHeldInvoiceUnexpectedError PayInFailureReason = "HELD_INVOICE_UNEXPECTED_ERROR"
	PayInFailureReasonUnknown                    PayInFailureReason = "UNKNOWN_FAILURE"
)

func (r PayInFailureReason) String() string { return string(r) }

// PayOutFailureReason is the fixed receiver-failure taxonomy.
type PayOutFailureReason string

const (
	PayOutFailureReasonWrappingHighFee    PayOutFailureReason = "INVOICE_WRAPPING_FAILED_HIGH_PREDICTED_FEE"
	PayOutFailureReasonWrappingHighExpiry PayOutFailureReason = "INVOICE_WRAPPING_FAILED_HIGH_PREDICTED_EXPIRY"
	PayOutFailureReasonWrappingUnknown    PayOutFailureReason = "INVOICE_WRAPPING_FAILED_UNKNOWN"
	PayOutFailureReasonCltvDeltaTooLow    PayOutFailureReason = "INVOICE_FORWARDING_CLTV_DELTA_TOO_LOW"
	PayOutFailureReasonForwardingFailed   PayOutFailureReason = "INVOICE_FORWARDING_FAILED"
)

func (r PayOutFailureReason) String() string { return string(r) }

// PayInReason maps a receiver failure onto the PayIn failure it causes.
func (r PayOutFailureReason) PayInReason() PayInFailureReason {
	switch r {
	case PayOutFailureReasonWrappingHighFee:
		return PayInFailureReasonInvoiceWrappingHighFee
	case PayOutFailureReasonWrappingHighExpiry:
		return PayInFailureReasonInvoiceWrappingHighExpiry
	case PayOutFailureReasonCltvDeltaTooLow:
		return PayInFailureReasonForwardingCltvDeltaTooLow
	case PayOutFailureReasonForwardingFailed:
		return PayInFailureReasonInvoiceForwardingFailed
	default:
		return PayInFailureReasonInvoiceWrappingUnknown
	}
}

// CustodialTokenType names the two custodial balances. CREDITS are spent before SATS.
type CustodialTokenType string

const (
	CustodialTokenTypeCredits CustodialTokenType = "CREDITS"
	CustodialTokenTypeSats    CustodialTokenType = "SATS"
)

func (t CustodialTokenType) String() string { return string(t) }

type PayOutType string

const (
	PayOutTypeTerritoryRevenue PayOutType = "TERRITORY_REVENUE"
	PayOutTypeRewardsPool      PayOutType = "REWARDS_POOL"
	PayOutTypeRoutingFee       PayOutType = "ROUTING_FEE"
	PayOutTypeRoutingFeeRefund PayOutType = "ROUTING_FEE_REFUND"
	PayOutTypeZap              PayOutType = "ZAP"
	PayOutTypeBountyPayment    PayOutType = "BOUNTY_PAYMENT"
	PayOutTypeWithdrawal       PayOutType = "WITHDRAWAL"
	PayOutTypeProxyPayment     PayOutType = "PROXY_PAYMENT"
)

func (t PayOutType) String() string { return string(t) }

// Credited reports whether rows of this type move money into a user's balance.
func (t PayOutType) Credited() bool {
	return t != PayOutTypeRewardsPool && t != PayOutTypeRoutingFee
}

type PayOutStatus string

const (
	PayOutStatusPending   PayOutStatus = "PENDING"
	PayOutStatusConfirmed PayOutStatus = "CONFIRMED"
	PayOutStatusFailed    PayOutStatus = "FAILED"
)

func (s PayOutStatus) String() string { return string(s) }

type PaymentMethod string

const (
	PaymentMethodFeeCredit   PaymentMethod = "FEE_CREDIT"
	PaymentMethodRewardSats  PaymentMethod = "REWARD_SATS"
	PaymentMethodOptimistic  PaymentMethod = "OPTIMISTIC"
	PaymentMethodPessimistic PaymentMethod = "PESSIMISTIC"
	PaymentMethodP2P         PaymentMethod = "P2P"
	PaymentMethodDirect      PaymentMethod = "DIRECT"
)

func (m PaymentMethod) String() string { return string(m) }

// CustodialAssets returns the balances the methods may debit, in spending order.
func CustodialAssets(methods []PaymentMethod) []CustodialTokenType {
	var credits, sats bool
	for _, m := range methods {
		switch m {
		case PaymentMethodFeeCredit:
			credits = true
		case PaymentMethodRewardSats:
			sats = true
		}
	}
	assets := make([]CustodialTokenType, 0, 2)
	if credits {
		assets = append(assets, CustodialTokenTypeCredits)
	}
	if sats {
		assets = append(assets, CustodialTokenTypeSats)
	}
	return assets
}

func HasPaymentMethod(methods []PaymentMethod, method PaymentMethod) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

// Invoiceable reports whether an uncovered remainder may be collected by invoice.
func Invoiceable(methods []PaymentMethod) bool {
	return HasPaymentMethod(methods, PaymentMethodOptimistic) ||
		HasPaymentMethod(methods, PaymentMethodPessimistic) ||
		HasPaymentMethod(methods, PaymentMethodP2P)
}
