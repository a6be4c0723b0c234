package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/models"
)

const defaultTransactionLimit = 20

// AddressTransactions lists recent chain activity of {address}.
func AddressTransactions(addresses AddressLister, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", defaultTransactionLimit)
		txs, err := addresses.RecentTransactions(r.Context(), chi.URLParam(r, "address"), limit)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		if txs == nil {
			txs = []models.AddressTransaction{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
	}
}
