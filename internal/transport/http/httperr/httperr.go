// Package httperr translates domain sentinel errors into AppErrors with
// stable codes. Anything unrecognised is returned unchanged and ends up as
// an internal error.
package httperr

import (
	"errors"

	"github.com/Additional-Code/handoff/internal/auth"
	"github.com/Additional-Code/handoff/internal/service/handoff"
	"github.com/Additional-Code/handoff/internal/service/purchase"
	"github.com/Additional-Code/handoff/pkg/errorbank"
)

type rule struct {
	target error
	kind   errorbank.Kind
	code   string
	msg    string
}

// Order matters: the first matching rule wins.
var rules = []rule{
	{handoff.ErrTokenMalformed, errorbank.KindBadRequest, "token_malformed", "token could not be read"},
	{handoff.ErrTokenSignatureInvalid, errorbank.KindUnauthorized, "token_signature_invalid", "token signature is invalid"},
	{handoff.ErrTokenExpired, errorbank.KindUnauthorized, "token_expired", "token has expired, ask the buyer to refresh it"},
	{handoff.ErrTicketExpired, errorbank.KindUnauthorized, "ticket_expired", "handoff took too long, scan the token again"},
	{handoff.ErrTicketInvalid, errorbank.KindUnauthorized, "ticket_invalid", "handoff ticket is not valid for this request"},
	{handoff.ErrStepOutOfOrder, errorbank.KindConflict, "step_out_of_order", "previous handoff step has not been completed"},
	{handoff.ErrOrderNotInToken, errorbank.KindUnprocessableEntity, "order_not_in_token", "order is not listed in the scanned token"},
	{handoff.ErrOrderBuyerMismatch, errorbank.KindForbidden, "order_buyer_mismatch", "order does not belong to this buyer"},
	{handoff.ErrAuthenticationFailed, errorbank.KindUnauthorized, "authentication_failed", "invalid username or password"},
	{auth.ErrInvalidCredentials, errorbank.KindUnauthorized, "authentication_failed", "invalid username or password"},
	{handoff.ErrOTPExpired, errorbank.KindUnprocessableEntity, "otp_expired", "code has expired, request a new one"},
	{handoff.ErrOTPNotFound, errorbank.KindUnprocessableEntity, "otp_not_found", "code is incorrect or already used"},
	{handoff.ErrNotificationDispatchFailed, errorbank.KindUnavailable, "notification_dispatch_failed", "code was created but could not be sent, try resending"},
	{purchase.ErrOrderNotFound, errorbank.KindNotFound, "order_not_found", "order not found"},
	{purchase.ErrProductNotFound, errorbank.KindNotFound, "product_not_found", "product not found"},
	{purchase.ErrInvalidTransition, errorbank.KindConflict, "invalid_transition", "order is not in a state that allows this action"},
	{purchase.ErrInsufficientInventory, errorbank.KindConflict, "insufficient_inventory", "not enough stock for this quantity"},
	{purchase.ErrInvalidQuantity, errorbank.KindBadRequest, "invalid_quantity", "quantity must be at least 1"},
	{purchase.ErrInvalidDeliveryMethod, errorbank.KindBadRequest, "invalid_delivery_method", "delivery method must be pickup or delivery"},
	{purchase.ErrAddressRequired, errorbank.KindBadRequest, "address_required", "delivery address is required for delivery"},
}

// Map converts err into an AppError when it matches a known sentinel.
func Map(err error, opts ...errorbank.Option) error {
	if err == nil {
		return nil
	}
	var appErr *errorbank.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, r := range rules {
		if errors.Is(err, r.target) {
			return errorbank.New(r.kind, r.msg, append([]errorbank.Option{errorbank.WithCode(r.code), errorbank.WithCause(err)}, opts...)...)
		}
	}
	return err
}
