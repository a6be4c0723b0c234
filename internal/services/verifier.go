package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/chain"
	"github.com/vivoor/vivoor-api/internal/models"
	"github.com/vivoor/vivoor-api/internal/payload"
)

// Claim is what a caller asserts about a transaction.
type Claim struct {
	TxID                string
	Purpose             models.PaymentType
	ExpectedAmount      uint64
	ExpectedDestination string
	ClaimedSender       string
	// RequireSender enforces that the transaction was sent from ClaimedSender.
	RequireSender bool
	// RequirePayload names the payload kind that must be present; "" means none.
	RequirePayload payload.Kind
	// Submitted is the wallet's own broadcast result, if the client sent it.
	Submitted *chain.WalletSubmitted
}

// Outcome is a transaction that passed every check.
type Outcome struct {
	Tx      *models.ChainTransaction
	Output  models.TxOutput
	Payload *payload.Message
	State   VerificationState
}

// TxVerifier runs the checks shared by every payment flow, up to but not
// including persistence.
type TxVerifier struct {
	chain    ChainReader
	registry TxIDRegistry
	// trustWallet lets a wallet-submitted object stand in for the indexer
	// record when checking amount and destination. Acceptance always comes
	// from the indexer.
	trustWallet bool
	log         *zap.Logger
}

// NewTxVerifier creates a TxVerifier.
func NewTxVerifier(reader ChainReader, registry TxIDRegistry, trustWallet bool, log *zap.Logger) *TxVerifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &TxVerifier{chain: reader, registry: registry, trustWallet: trustWallet, log: log}
}

// Verify walks PENDING_LOOKUP → … → PAYLOAD_DECODED. The duplicate check runs
// before any chain traffic.
func (v *TxVerifier) Verify(ctx context.Context, claim Claim) (*Outcome, error) {
	txid := strings.ToLower(strings.TrimSpace(claim.TxID))
	if !chain.ValidTxID(txid) {
		return nil, verificationErr(StateInvalidRequest, "txid must be 64 hex characters", nil)
	}
	if claim.Submitted != nil && claim.Submitted.ReportedTxID() != txid {
		return nil, verificationErr(StateInvalidRequest, "wallet transaction does not match txid", nil)
	}

	seen, err := v.registry.TxIDExists(ctx, txid)
	if err != nil {
		return nil, verificationErr(StateStorageFailed, "", err)
	}
	if seen {
		return nil, verificationErr(StateDuplicateTxID, "", nil)
	}

	log := v.log.With(zap.String("txid", txid), zap.String("purpose", string(claim.Purpose)))
	log.Debug("verification", zap.String("state", string(StatePendingLookup)))

	tx, err := v.chain.WaitForAcceptance(ctx, txid)
	switch {
	case errors.Is(err, chain.ErrNotFound):
		return nil, verificationErr(StateNotFoundAfterRetries, "", err)
	case errors.Is(err, chain.ErrNotAccepted):
		log.Debug("verification", zap.String("state", string(StateFoundUnaccepted)))
		return nil, verificationErr(StateNotAccepted, "", err)
	case errors.Is(err, chain.ErrInvalidTxID):
		return nil, verificationErr(StateInvalidRequest, "", err)
	case err != nil:
		return nil, verificationErr(StateLookupFailed, "", err)
	case !tx.IsAccepted:
		return nil, verificationErr(StateNotAccepted, "", nil)
	}
	log.Debug("verification", zap.String("state", string(StateFoundAccepted)))

	judged := tx
	if v.trustWallet && claim.Submitted != nil {
		judged = chain.Normalize(claim.Submitted)
		log.Info("judging outputs from wallet-submitted transaction")
	}

	out, err := matchOutput(judged.Outputs, claim.ExpectedAmount, claim.ExpectedDestination)
	if err != nil {
		log.Info("verification rejected", zap.Error(err))
		return nil, err
	}

	if claim.RequireSender {
		if sender := tx.SenderAddress(); sender == "" || sender != claim.ClaimedSender {
			log.Info("verification rejected", zap.String("sender", sender))
			return nil, verificationErr(StateRejectedSender, "", nil)
		}
	}

	outcome := &Outcome{Tx: tx, Output: out, State: StateSenderValidated}

	msg := payload.Decode(tx.Payload)
	if claim.RequirePayload != "" {
		if msg == nil || msg.Kind != claim.RequirePayload {
			return nil, verificationErr(StateMissingPayload, fmt.Sprintf("no %s payload found", claim.RequirePayload), nil)
		}
	}
	outcome.Payload = msg
	outcome.State = StatePayloadDecoded
	return outcome, nil
}

// matchOutput picks the output that pays the claim. Only outputs of at least
// the expected amount qualify; one of them must go to the expected address.
// A correctly-addressed output that is too small does not rescue the
// transaction.
func matchOutput(outputs []models.TxOutput, amount uint64, destination string) (models.TxOutput, error) {
	qualifying := 0
	for _, o := range outputs {
		if o.Amount < amount {
			continue
		}
		qualifying++
		if o.DestinationAddress == destination {
			return o, nil
		}
	}
	if qualifying == 0 {
		return models.TxOutput{}, verificationErr(StateRejectedAmount, "", nil)
	}
	return models.TxOutput{}, verificationErr(StateRejectedDestination, "", nil)
}
