package services

import (
	"fmt"
	"net/http"
)

// AuthReason is the terminal rejection reason of a wallet handshake.
type AuthReason string

const (
	ReasonInvalidAddress     AuthReason = "invalid_address_format"
	ReasonInvalidMessage     AuthReason = "invalid_message_format_or_stale"
	ReasonBadSignature       AuthReason = "signature_verification_failed"
	ReasonIdentityResolution AuthReason = "identity_resolution_failed"
	ReasonSessionCreation    AuthReason = "session_creation_failed"
)

var authReasonStatus = map[AuthReason]int{
	ReasonInvalidAddress:     http.StatusBadRequest,
	ReasonInvalidMessage:     http.StatusBadRequest,
	ReasonBadSignature:       http.StatusUnauthorized,
	ReasonIdentityResolution: http.StatusInternalServerError,
	ReasonSessionCreation:    http.StatusInternalServerError,
}

var authReasonMessage = map[AuthReason]string{
	ReasonInvalidAddress:     "Invalid wallet address format",
	ReasonInvalidMessage:     "Authentication message is malformed or expired, please sign again",
	ReasonBadSignature:       "Signature verification failed",
	ReasonIdentityResolution: "Could not resolve wallet identity",
	ReasonSessionCreation:    "Could not create session",
}

// AuthError is a rejected handshake. Err carries the internal cause and is
// never shown to the caller.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %v", e.Reason, e.Err)
	}
	return "auth " + string(e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// HTTPStatus maps the reason to a response status.
func (e *AuthError) HTTPStatus() int { return authReasonStatus[e.Reason] }

// Message is the user-facing text for the reason.
func (e *AuthError) Message() string { return authReasonMessage[e.Reason] }

func authErr(reason AuthReason, err error) *AuthError {
	return &AuthError{Reason: reason, Err: err}
}

// VerificationState is a step of payment/tip verification. The success path
// runs PENDING_LOOKUP through PERSISTED; the rest are terminal failures.
type VerificationState string

const (
	StatePendingLookup        VerificationState = "PENDING_LOOKUP"
	StateFoundUnaccepted      VerificationState = "FOUND_UNACCEPTED"
	StateFoundAccepted        VerificationState = "FOUND_ACCEPTED"
	StateAmountValidated      VerificationState = "AMOUNT_VALIDATED"
	StateDestinationValidated VerificationState = "DESTINATION_VALIDATED"
	StateSenderValidated      VerificationState = "SENDER_VALIDATED"
	StatePayloadDecoded       VerificationState = "PAYLOAD_DECODED"
	StatePersisted            VerificationState = "PERSISTED"

	StateInvalidRequest       VerificationState = "INVALID_REQUEST"
	StateDuplicateTxID        VerificationState = "DUPLICATE_TXID"
	StateNotFoundAfterRetries VerificationState = "NOT_FOUND_AFTER_RETRIES"
	StateNotAccepted          VerificationState = "NOT_ACCEPTED"
	StateRejectedAmount       VerificationState = "REJECTED_AMOUNT"
	StateRejectedDestination  VerificationState = "REJECTED_DESTINATION"
	StateRejectedSender       VerificationState = "REJECTED_SENDER"
	StateMissingPayload       VerificationState = "MISSING_PAYLOAD"
	StateLookupFailed         VerificationState = "LOOKUP_FAILED"
	StateStorageFailed        VerificationState = "STORAGE_FAILED"
)

var verificationMessages = map[VerificationState]string{
	StateInvalidRequest:       "invalid verification request",
	StateDuplicateTxID:        "transaction already processed",
	StateNotFoundAfterRetries: "transaction not found on the network yet",
	StateNotAccepted:          "transaction found but not yet accepted by the network",
	StateRejectedAmount:       "transaction amount is below the required amount",
	StateRejectedDestination:  "transaction was not sent to the expected address",
	StateRejectedSender:       "transaction was not sent from the claimed address",
	StateMissingPayload:       "no application payload found in transaction",
	StateLookupFailed:         "could not reach the blockchain indexer",
	StateStorageFailed:        "could not record verification",
}

// VerificationError is a terminal verification failure.
type VerificationError struct {
	State  VerificationState
	Detail string
	Err    error
}

func (e *VerificationError) Error() string {
	msg := string(e.State)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Message is the user-facing reason.
func (e *VerificationError) Message() string {
	if e.Detail != "" && e.State != StateStorageFailed && e.State != StateLookupFailed {
		return verificationMessages[e.State] + ": " + e.Detail
	}
	return verificationMessages[e.State]
}

// Retryable reports whether submitting the same txid later may succeed.
// Policy mismatches never will: the transaction itself is wrong.
func (e *VerificationError) Retryable() bool {
	switch e.State {
	case StateNotFoundAfterRetries, StateNotAccepted, StateLookupFailed, StateStorageFailed:
		return true
	}
	return false
}

// HTTPStatus maps the state to a response status.
func (e *VerificationError) HTTPStatus() int {
	switch e.State {
	case StateLookupFailed, StateStorageFailed:
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func verificationErr(state VerificationState, detail string, err error) *VerificationError {
	return &VerificationError{State: state, Detail: detail, Err: err}
}
