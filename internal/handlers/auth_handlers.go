package handlers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/models"
	"github.com/vivoor/vivoor-api/internal/services"
)

// Challenge hands out a fresh message for the wallet to sign.
func Challenge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := services.NewChallengeMessage(time.Now())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": msg})
	}
}

// WalletLogin handles wallet authentication
func WalletLogin(auth Authenticator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.WalletAuthRequest
		if !decodeBody(w, r, &req) {
			return
		}

		resp, err := auth.AuthenticateWithWallet(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// GetSession describes the caller's session.
func GetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())
		writeJSON(w, http.StatusOK, models.SessionInfo{
			WalletAddress:   session.WalletAddress,
			EncryptedUserID: session.EncryptedUserID,
			ExpiresAt:       session.ExpiresAt,
		})
	}
}

// Logout ends the caller's session.
func Logout(auth Authenticator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())
		if err := auth.Logout(r.Context(), session); err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// AuthMiddleware is a middleware for authenticating requests
func AuthMiddleware(auth Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			// Extract token from "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			session, err := auth.ValidateSession(r.Context(), parts[1])
			if err != nil {
				writeServiceError(w, r, log, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContextWithSession(r.Context(), session)))
		})
	}
}
