package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// InvoiceService is the Lightning node the engine collects and forwards through.
	// Invoices are addressed by payment hash.
	InvoiceService interface {
		CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
		// WrapInvoice issues a hold invoice whose payment is forwarded to the payee invoice.
		// Receiver-side rejections are returned as *ReceiverError.
		WrapInvoice(ctx context.Context, req WrapInvoiceRequest) (*Invoice, error)
		InspectInvoice(ctx context.Context, bolt11 string) (*DecodedInvoice, error)
		LookupInvoice(ctx context.Context, hash string) (*InvoiceStatus, error)
		CancelInvoice(ctx context.Context, hash string) error
		SettleInvoice(ctx context.Context, preimage string) error
		PayInvoice(ctx context.Context, req PayInvoiceRequest) (*Payment, error)
		LookupPayment(ctx context.Context, hash string) (*Payment, error)
	}

	// WrapProber is implemented by invoice services that can predict whether a payee
	// invoice is wrappable before the PayIn is committed.
	WrapProber interface {
		ProbeWrap(ctx context.Context, invoice *DecodedInvoice) error
	}

	CreateInvoiceRequest struct {
		Msats       decimal.Decimal
		Description string
		Expiry      time.Duration
		Hold        bool
	}

	WrapInvoiceRequest struct {
		Bolt11      string
		Msats       decimal.Decimal
		Description string
		Expiry      time.Duration
	}

	PayInvoiceRequest struct {
		Bolt11      string
		MaxFeeMsats decimal.Decimal
	}

	Invoice struct {
		Hash      string          `json:"hash"`
		Bolt11    string          `json:"bolt11"`
		Preimage  string          `json:"-"`
		Msats     decimal.Decimal `json:"msats"`
		Hold      bool            `json:"hold"`
		ExpiresAt int64           `json:"expiresAt"`
	}

	DecodedInvoice struct {
		Hash        string          `json:"hash"`
		Msats       decimal.Decimal `json:"msats"`
		Description string          `json:"description"`
		ExpiresAt   int64           `json:"expiresAt"`
	}

	InvoiceStatus struct {
		Hash          string          `json:"hash"`
		State         InvoiceState    `json:"state"`
		MsatsReceived decimal.Decimal `json:"msatsReceived"`
	}

	Payment struct {
		Hash          string              `json:"hash"`
		State         PaymentState        `json:"state"`
		Preimage      string              `json:"-"`
		FeeMsats      decimal.Decimal     `json:"feeMsats"`
		FailureReason PayOutFailureReason `json:"failureReason,omitempty"`
	}

	InvoiceState string
	PaymentState string
)

const (
	InvoiceStateOpen     InvoiceState = "OPEN"
	InvoiceStateHeld     InvoiceState = "HELD"
	InvoiceStatePaid     InvoiceState = "PAID"
	InvoiceStateCanceled InvoiceState = "CANCELED"
	InvoiceStateExpired  InvoiceState = "EXPIRED"
)

const (
	PaymentStateInFlight  PaymentState = "IN_FLIGHT"
	PaymentStateSucceeded PaymentState = "SUCCEEDED"
	PaymentStateFailed    PaymentState = "FAILED"
	PaymentStateNotFound  PaymentState = "NOT_FOUND"
)

func (s InvoiceState) String() string { return string(s) }
func (s PaymentState) String() string { return string(s) }
