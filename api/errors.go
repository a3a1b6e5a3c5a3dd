package api

import (
	"net/http"

	"github.com/DomeLiquid/payin/core"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

var statusByError = []struct {
	err    error
	status int
}{
	{core.ErrPayInNotFound, http.StatusNotFound},
	{core.ErrInvoiceNotFound, http.StatusNotFound},
	{core.ErrUserNotFound, http.StatusNotFound},
	{core.ErrSubNotFound, http.StatusNotFound},
	{core.ErrItemNotFound, http.StatusNotFound},
	{core.ErrPollNotFound, http.StatusNotFound},
	{core.ErrUploadNotFound, http.StatusNotFound},
	{core.ErrAnonNotAllowed, http.StatusUnauthorized},
	{core.ErrUserDisabled, http.StatusForbidden},
	{core.ErrNotPayInOwner, http.StatusForbidden},
	{core.ErrNotItemOwner, http.StatusForbidden},
	{core.ErrNotBountyOwner, http.StatusForbidden},
	{core.ErrSelfZap, http.StatusForbidden},
	{core.ErrTooManyPendingPayIns, http.StatusTooManyRequests},
	{core.ErrTooManyPendingDirectPayments, http.StatusTooManyRequests},
	{core.ErrNotRetryable, http.StatusConflict},
	{core.ErrNotCancelable, http.StatusConflict},
	{core.ErrInvoiceNotPaid, http.StatusConflict},
	{core.ErrAutoWithdrawPending, http.StatusConflict},
	{core.ErrAlreadyVoted, http.StatusConflict},
	{core.ErrBountyAlreadyPaid, http.StatusConflict},
	{core.ErrUploadAlreadyPaid, http.StatusConflict},
	{core.ErrItemEditWindowClosed, http.StatusConflict},
	{core.ErrInsufficientFunds, http.StatusPaymentRequired},
	{core.ErrUnknownPayInType, http.StatusBadRequest},
	{core.ErrInvalidArguments, http.StatusBadRequest},
	{core.ErrInvalidAmount, http.StatusBadRequest},
	{core.ErrInvalidForwards, http.StatusBadRequest},
	{core.ErrInvalidInvoice, http.StatusBadRequest},
	{core.ErrNoBounty, http.StatusBadRequest},
	{core.ErrSubNotActive, http.StatusUnprocessableEntity},
	{core.ErrItemNotActive, http.StatusUnprocessableEntity},
	{core.ErrAutoWithdrawBelowThreshold, http.StatusUnprocessableEntity},
}

func statusOf(err error) int {
	if core.IsNoReceiveWallet(err) {
		return http.StatusUnprocessableEntity
	}
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// abort writes err as a JSON error body. Internal failures are logged and
// reported without detail.
func abort(c *gin.Context, log core.Log, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
