package httperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/service/handoff"
	"github.com/Additional-Code/handoff/internal/service/purchase"
	"github.com/Additional-Code/handoff/pkg/errorbank"
)

func TestMap(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"malformed", handoff.ErrTokenMalformed, http.StatusBadRequest, "token_malformed"},
		{"expired", fmt.Errorf("decode: %w", handoff.ErrTokenExpired), http.StatusUnauthorized, "token_expired"},
		{"signature", handoff.ErrTokenSignatureInvalid, http.StatusUnauthorized, "token_signature_invalid"},
		{"buyer_mismatch", handoff.ErrOrderBuyerMismatch, http.StatusForbidden, "order_buyer_mismatch"},
		{"auth_failed", handoff.ErrAuthenticationFailed, http.StatusUnauthorized, "authentication_failed"},
		{"otp_not_found", handoff.ErrOTPNotFound, http.StatusUnprocessableEntity, "otp_not_found"},
		{"otp_expired", handoff.ErrOTPExpired, http.StatusUnprocessableEntity, "otp_expired"},
		{"dispatch", errors.Join(handoff.ErrNotificationDispatchFailed, errors.New("smtp")), http.StatusServiceUnavailable, "notification_dispatch_failed"},
		{"transition", &purchase.TransitionError{From: entity.StatusCompleted, To: entity.StatusCompleted}, http.StatusConflict, "invalid_transition"},
		{"inventory", purchase.ErrInsufficientInventory, http.StatusConflict, "insufficient_inventory"},
		{"order_not_found", purchase.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var appErr *errorbank.AppError
			require.ErrorAs(t, Map(tt.err), &appErr)
			assert.Equal(t, tt.wantStatus, appErr.StatusCode())
			assert.Equal(t, tt.wantCode, appErr.Code())
			assert.ErrorIs(t, appErr, tt.err)
		})
	}
}

func TestMap_PassThrough(t *testing.T) {
	assert.NoError(t, Map(nil))

	unknown := errors.New("connection reset")
	assert.Same(t, unknown, Map(unknown))

	known := errorbank.Forbidden("no")
	assert.Same(t, known, Map(known))
}
