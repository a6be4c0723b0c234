package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/chain"
	"github.com/vivoor/vivoor-api/internal/errs"
	"github.com/vivoor/vivoor-api/internal/models"
)

// PaymentService verifies fixed-price platform payments to the treasury.
type PaymentService struct {
	verifier *TxVerifier
	payments PaymentStore
	events   EventPublisher
	treasury string
	now      func() time.Time
	log      *zap.Logger
}

// NewPaymentService creates a new PaymentService. events may be nil.
func NewPaymentService(verifier *TxVerifier, payments PaymentStore, events EventPublisher, treasury string, log *zap.Logger) *PaymentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentService{
		verifier: verifier,
		payments: payments,
		events:   events,
		treasury: treasury,
		now:      time.Now,
		log:      log,
	}
}

// VerifyPayment checks that txid pays the fee for req.PaymentType to the
// treasury and records it once.
func (s *PaymentService) VerifyPayment(ctx context.Context, userID string, req models.PaymentVerifyRequest) (*models.PaymentVerification, error) {
	expected, ok := req.PaymentType.FixedAmount()
	if !ok {
		return nil, verificationErr(StateInvalidRequest, fmt.Sprintf("unknown payment type %q", req.PaymentType), nil)
	}
	submitted, err := parseSubmitted(req.Transaction)
	if err != nil {
		return nil, err
	}

	outcome, err := s.verifier.Verify(ctx, Claim{
		TxID:                req.TxID,
		Purpose:             req.PaymentType,
		ExpectedAmount:      expected,
		ExpectedDestination: s.treasury,
		ClaimedSender:       req.UserAddress,
		Submitted:           submitted,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	v := &models.PaymentVerification{
		ID:          uuid.New().String(),
		UserID:      userID,
		PaymentType: req.PaymentType,
		AmountSompi: outcome.Output.Amount,
		TxID:        outcome.Tx.ID,
		BlockTime:   blockTime(outcome.Tx, req.StartTime, now),
		ExpiresAt:   req.PaymentType.ExpiresAt(now),
		CreatedAt:   now,
	}
	if err := persist(ctx, func(ctx context.Context) error { return s.payments.Create(ctx, v) }); err != nil {
		return nil, err
	}

	s.log.Info("payment verified",
		zap.String("txid", v.TxID),
		zap.String("payment_type", string(v.PaymentType)),
		zap.Uint64("amount_sompi", v.AmountSompi),
	)
	if s.events != nil {
		if err := s.events.PublishPaymentVerified(ctx, v); err != nil {
			s.log.Warn("publish payment verified", zap.Error(err))
		}
	}
	return v, nil
}

// ActiveVerification returns the user's unexpired verification of type t.
func (s *PaymentService) ActiveVerification(ctx context.Context, userID string, t models.PaymentType) (*models.PaymentVerification, error) {
	if t != models.PaymentMonthlyVerification && t != models.PaymentYearlyVerification {
		return nil, verificationErr(StateInvalidRequest, fmt.Sprintf("%q does not expire", t), nil)
	}
	return s.payments.GetActive(ctx, userID, t, s.now())
}

func parseSubmitted(raw []byte) (*chain.WalletSubmitted, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	w, err := chain.ParseWalletSubmitted(raw)
	if err != nil {
		return nil, verificationErr(StateInvalidRequest, "malformed wallet transaction", err)
	}
	return w, nil
}

// persist maps the store's unique-txid violation onto DUPLICATE_TXID. This is
// the authoritative guard when two requests race past the pre-check.
func persist(ctx context.Context, insert func(context.Context) error) error {
	err := insert(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrAlreadyExists):
		return verificationErr(StateDuplicateTxID, "", nil)
	default:
		return verificationErr(StateStorageFailed, "", err)
	}
}

// blockTime prefers the indexer's block time, then the client's start time.
func blockTime(tx *models.ChainTransaction, startTimeMs int64, now time.Time) time.Time {
	switch {
	case tx.BlockTimeMs > 0:
		return time.UnixMilli(tx.BlockTimeMs).UTC()
	case startTimeMs > 0:
		return time.UnixMilli(startTimeMs).UTC()
	}
	return now
}
