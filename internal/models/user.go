package models

import (
	"time"
)

// User is the internal identity behind one or more wallet addresses.
type User struct {
	ID              string    `json:"id" db:"id"`
	EncryptedUserID string    `json:"encrypted_user_id" db:"encrypted_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Wallet maps a wallet address to a user. Address is unique.
type Wallet struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Address   string    `json:"address" db:"address"`
	Type      string    `json:"type" db:"type"` // "kaspa"
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Session is a server-side login record. ID is the opaque token id carried
// in the session token.
type Session struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"-" db:"-"`
	EncryptedUserID string    `json:"encrypted_user_id" db:"encrypted_user_id"`
	WalletAddress   string    `json:"wallet_address" db:"wallet_address"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	ExpiresAt       time.Time `json:"expires_at" db:"expires_at"`
	IsActive        bool      `json:"is_active" db:"is_active"`
}

// Valid reports whether the session may still authorize requests at now.
func (s *Session) Valid(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// AuthChallenge is the parsed form of a signed VIVOOR_AUTH message.
type AuthChallenge struct {
	Prefix      string
	TimestampMs int64
	Nonce       string
}

// WalletAuthRequest represents a request to authenticate with a wallet
type WalletAuthRequest struct {
	WalletAddress string `json:"walletAddress"`
	Message       string `json:"message"`
	Signature     string `json:"signature"`
	PublicKey     string `json:"publicKey"`
}

// WalletAuthResponse is returned on a successful handshake.
type WalletAuthResponse struct {
	Success         bool      `json:"success"`
	SessionToken    string    `json:"sessionToken"`
	EncryptedUserID string    `json:"encryptedUserId"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// SessionInfo describes the caller's current session.
type SessionInfo struct {
	WalletAddress   string    `json:"walletAddress"`
	EncryptedUserID string    `json:"encryptedUserId"`
	ExpiresAt       time.Time `json:"expiresAt"`
}
