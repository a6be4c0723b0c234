package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/models"
)

// VerifyTip checks a tip sent from the signed-in wallet.
func VerifyTip(tips TipVerifier, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())

		var req models.TipVerifyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.SenderWalletAddress != session.WalletAddress {
			writeError(w, http.StatusForbidden, "senderWalletAddress does not match the signed-in wallet")
			return
		}

		tip, err := tips.VerifyTip(context.WithoutCancel(r.Context()), req)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, models.TipVerifyResponse{
			Success:   true,
			Tip:       tip,
			AmountKAS: models.KASNumber(tip.AmountSompi),
		})
	}
}

// ListStreamTips returns the newest verified tips of {streamId}.
func ListStreamTips(tips TipVerifier, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 20)
		list, err := tips.ListTips(r.Context(), chi.URLParam(r, "streamId"), limit)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		if list == nil {
			list = []models.Tip{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"tips": list})
	}
}

// queryInt reads a positive integer parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
