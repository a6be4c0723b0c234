package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/models"
)

// VerifyPayment checks a platform payment for the signed-in wallet.
func VerifyPayment(payments PaymentVerifier, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())

		var req models.PaymentVerifyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.UserAddress != session.WalletAddress {
			writeError(w, http.StatusForbidden, "userAddress does not match the signed-in wallet")
			return
		}

		// the caller going away must not abandon a lookup that may be about to persist
		ctx := context.WithoutCancel(r.Context())
		v, err := payments.VerifyPayment(ctx, session.UserID, req)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, models.PaymentVerifyResponse{
			Success:      true,
			Verification: models.NewVerificationView(v),
		})
	}
}

// ActivePayment reports the caller's unexpired verification of ?type=.
func ActivePayment(payments PaymentVerifier, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())
		t := models.PaymentType(r.URL.Query().Get("type"))

		v, err := payments.ActiveVerification(r.Context(), session.UserID, t)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"verification": models.NewVerificationView(v),
		})
	}
}
