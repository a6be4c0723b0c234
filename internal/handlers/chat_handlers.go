package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/models"
)

// VerifyChat checks a paid chat post made from the signed-in wallet.
func VerifyChat(chat ChatVerifier, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())

		var req models.ChatVerifyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.UserAddress != session.WalletAddress {
			writeError(w, http.StatusForbidden, "userAddress does not match the signed-in wallet")
			return
		}

		v, text, err := chat.VerifyChatPost(context.WithoutCancel(r.Context()), session.UserID, req)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, models.ChatVerifyResponse{
			Success:      true,
			Verification: models.NewVerificationView(v),
			StreamID:     req.StreamID,
			Message:      text,
		})
	}
}
