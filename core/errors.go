package core

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

var (
	ErrInsufficientFunds            = errors.New("insufficient funds")
	ErrInvoiceExpired               = errors.New("invoice expired")
	ErrInvoiceCanceled              = errors.New("invoice canceled")
	ErrTooManyPendingPayIns         = errors.New("too many pending payins")
	ErrTooManyPendingDirectPayments = errors.New("too many pending direct payments")
	ErrAnonNotAllowed               = errors.New("anonymous payer not allowed")
	ErrPayInNotFound                = errors.New("payin not found")
	ErrNotRetryable                 = errors.New("payin cannot be retried")
	ErrNotCancelable                = errors.New("payin cannot be cancelled")
	ErrNotPayInOwner                = errors.New("payin belongs to another user")
	ErrUnknownPayInType             = errors.New("unknown payin type")
	ErrInvoiceNotFound              = errors.New("invoice not found")
	ErrInvoiceNotPaid               = errors.New("invoice is not paid")
	ErrPaymentNotFound              = errors.New("payment not found")

	ErrUserNotFound               = errors.New("user not found")
	ErrUserDisabled               = errors.New("user is disabled")
	ErrSubNotFound                = errors.New("territory not found")
	ErrSubNotActive               = errors.New("territory is not active")
	ErrItemNotFound               = errors.New("item not found")
	ErrItemNotActive              = errors.New("item is not active")
	ErrItemEditWindowClosed       = errors.New("item can no longer be edited")
	ErrNotItemOwner               = errors.New("item belongs to another user")
	ErrSelfZap                    = errors.New("cannot zap own item")
	ErrInvalidAmount              = errors.New("amount must be positive")
	ErrInvalidForwards            = errors.New("forward percentages must be positive and sum to at most 100")
	ErrNoBounty                   = errors.New("item has no bounty")
	ErrNotBountyOwner             = errors.New("only the bounty owner can pay it")
	ErrBountyAlreadyPaid          = errors.New("bounty already paid to this comment")
	ErrPollNotFound               = errors.New("poll option not found")
	ErrAlreadyVoted               = errors.New("already voted in this poll")
	ErrUploadNotFound             = errors.New("upload not found")
	ErrUploadAlreadyPaid          = errors.New("upload already paid")
	ErrAutoWithdrawBelowThreshold = errors.New("balance below auto-withdraw threshold")
	ErrAutoWithdrawPending        = errors.New("auto-withdrawal already pending")
	ErrInvalidInvoice             = errors.New("invalid invoice")
	ErrInvalidArguments           = errors.New("invalid payin arguments")
)

// NoReceiveWalletError means no payout channel could be produced for the payee.
type NoReceiveWalletError struct {
	UserId  uuid.UUID
	Reasons map[uuid.UUID]PayOutFailureReason
	Message string
}

func NewNoReceiveWalletError(userId uuid.UUID, message string) *NoReceiveWalletError {
	return &NoReceiveWalletError{
		UserId:  userId,
		Reasons: map[uuid.UUID]PayOutFailureReason{},
		Message: message,
	}
}

func (e *NoReceiveWalletError) Add(walletId uuid.UUID, reason PayOutFailureReason) {
	e.Reasons[walletId] = reason
}

func (e *NoReceiveWalletError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no receive wallet"
	}
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("%s for user %s", msg, e.UserId)
	}
	parts := make([]string, 0, len(e.Reasons))
	for id, reason := range e.Reasons {
		parts = append(parts, fmt.Sprintf("%s:%s", id, reason))
	}
	return fmt.Sprintf("%s for user %s (%s)", msg, e.UserId, strings.Join(parts, ", "))
}

// ReceiverError is a wrap or forward failure attributed to the payee side.
type ReceiverError struct {
	Reason PayOutFailureReason
	Err    error
}

func NewReceiverError(reason PayOutFailureReason, err error) *ReceiverError {
	return &ReceiverError{Reason: reason, Err: err}
}

func (e *ReceiverError) Error() string {
	if e.Err == nil {
		return e.Reason.String()
	}
	return e.Reason.String() + ": " + e.Err.Error()
}

func (e *ReceiverError) Unwrap() error { return e.Err }

// InvariantError is a ledger arithmetic violation. It always aborts the transaction.
type InvariantError struct {
	Msg string
}

func Invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

func (e *InvariantError) Error() string {
	return "ledger invariant violated: " + e.Msg
}

func IsNoReceiveWallet(err error) bool {
	var target *NoReceiveWalletError
	return errors.As(err, &target)
}

func IsInvariant(err error) bool {
	var target *InvariantError
	return errors.As(err, &target)
}
