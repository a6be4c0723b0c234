package models

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// SompiPerKAS is the smallest-unit scale of the native currency.
const SompiPerKAS = 100_000_000

// PaymentType is the claimed purpose of a transaction.
type PaymentType string

const (
	PaymentStreamStart         PaymentType = "stream_start"
	PaymentMonthlyVerification PaymentType = "monthly_verification"
	PaymentYearlyVerification  PaymentType = "yearly_verification"
	PaymentTip                 PaymentType = "tip"
	PaymentChatPost            PaymentType = "chat_post"
)

// fixed platform fees, in sompi
var paymentAmounts = map[PaymentType]uint64{
	PaymentStreamStart:         120_000_000,
	PaymentMonthlyVerification: 10_000_000_000,
	PaymentYearlyVerification:  100_000_000_000,
}

var paymentLifetimes = map[PaymentType]time.Duration{
	PaymentMonthlyVerification: 30 * 24 * time.Hour,
	PaymentYearlyVerification:  365 * 24 * time.Hour,
}

// FixedAmount returns the fee for a fixed-price payment type.
func (p PaymentType) FixedAmount() (uint64, bool) {
	amt, ok := paymentAmounts[p]
	return amt, ok
}

// ExpiresAt returns the expiry of a verification created at createdAt, or nil
// for one-off payments.
func (p PaymentType) ExpiresAt(createdAt time.Time) *time.Time {
	d, ok := paymentLifetimes[p]
	if !ok {
		return nil
	}
	exp := createdAt.Add(d)
	return &exp
}

// SompiToKAS converts sompi into the display denomination.
func SompiToKAS(sompi uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(sompi), -8)
}

// KASNumber renders sompi as a bare JSON number in KAS, e.g. 1.2.
func KASNumber(sompi uint64) json.Number {
	return json.Number(SompiToKAS(sompi).String())
}

// PaymentVerification is an append-only record of a verified platform payment.
// TxID is unique.
type PaymentVerification struct {
	ID          string      `json:"id" db:"id"`
	UserID      string      `json:"user_id" db:"user_id"`
	PaymentType PaymentType `json:"payment_type" db:"payment_type"`
	AmountSompi uint64      `json:"amount_sompi" db:"amount_sompi"`
	TxID        string      `json:"txid" db:"txid"`
	BlockTime   time.Time   `json:"block_time" db:"block_time"`
	ExpiresAt   *time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// Tip is a verified viewer tip. TxID is unique.
type Tip struct {
	ID                string    `json:"id" db:"id"`
	StreamID          string    `json:"stream_id" db:"stream_id"`
	SenderAddress     string    `json:"sender_address" db:"sender_address"`
	RecipientAddress  string    `json:"recipient_address" db:"recipient_address"`
	AmountSompi       uint64    `json:"amount_sompi" db:"amount_sompi"`
	TxID              string    `json:"txid" db:"txid"`
	EncryptedPayload  string    `json:"encrypted_payload" db:"encrypted_payload"`
	DecodedMessage    string    `json:"decoded_message" db:"decoded_message"`
	SenderDisplayName string    `json:"sender_display_name" db:"sender_display_name"`
	SenderAvatarURL   string    `json:"sender_avatar_url" db:"sender_avatar_url"`
	ProcessedAt       time.Time `json:"processed_at" db:"processed_at"`
}

// PaymentVerifyRequest is the body of POST /payments/verify.
type PaymentVerifyRequest struct {
	UserAddress string          `json:"userAddress"`
	PaymentType PaymentType     `json:"paymentType"`
	TxID        string          `json:"txid"`
	StartTime   int64           `json:"startTime"`
	Transaction json.RawMessage `json:"transaction,omitempty"`
}

// TipVerifyRequest is the body of POST /tips/verify.
type TipVerifyRequest struct {
	TxID                string          `json:"txid"`
	StreamID            string          `json:"streamId"`
	RecipientAddress    string          `json:"recipientAddress"`
	AmountSompi         uint64          `json:"amountSompi"`
	SenderWalletAddress string          `json:"senderWalletAddress"`
	SenderName          string          `json:"senderName"`
	SenderAvatar        string          `json:"senderAvatar"`
	TipMessage          string          `json:"tipMessage"`
	Transaction         json.RawMessage `json:"transaction,omitempty"`
}

// ChatVerifyRequest is the body of POST /chat/verify.
type ChatVerifyRequest struct {
	UserAddress string `json:"userAddress"`
	StreamID    string `json:"streamId"`
	TxID        string `json:"txid"`
}

// VerificationView is the client-facing projection of a PaymentVerification.
type VerificationView struct {
	ID          string      `json:"id"`
	PaymentType PaymentType `json:"payment_type"`
	AmountKAS   json.Number `json:"amount_kas"`
	ExpiresAt   *time.Time  `json:"expires_at"`
}

// NewVerificationView projects a stored verification.
func NewVerificationView(v *PaymentVerification) VerificationView {
	return VerificationView{
		ID:          v.ID,
		PaymentType: v.PaymentType,
		AmountKAS:   KASNumber(v.AmountSompi),
		ExpiresAt:   v.ExpiresAt,
	}
}

// PaymentVerifyResponse is returned on a successful payment verification.
type PaymentVerifyResponse struct {
	Success      bool             `json:"success"`
	Verification VerificationView `json:"verification"`
}

// TipVerifyResponse is returned on a successful tip verification.
type TipVerifyResponse struct {
	Success   bool        `json:"success"`
	Tip       *Tip        `json:"tip"`
	AmountKAS json.Number `json:"amount_kas"`
}

// ChatVerifyResponse is returned on a successful chat-post verification.
type ChatVerifyResponse struct {
	Success      bool             `json:"success"`
	Verification VerificationView `json:"verification"`
	StreamID     string           `json:"stream_id"`
	Message      string           `json:"message"`
}
