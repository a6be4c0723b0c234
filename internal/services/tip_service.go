package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/models"
	"github.com/vivoor/vivoor-api/internal/payload"
)

const (
	defaultTipPage = 20
	maxTipPage     = 100
)

// TipService verifies viewer tips paid directly to a streamer.
type TipService struct {
	verifier *TxVerifier
	tips     TipStore
	wallet   *WalletService
	events   EventPublisher
	minTip   uint64
	now      func() time.Time
	log      *zap.Logger
}

// NewTipService creates a new TipService. events may be nil.
func NewTipService(verifier *TxVerifier, tips TipStore, wallet *WalletService, events EventPublisher, minTip uint64, log *zap.Logger) *TipService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TipService{
		verifier: verifier,
		tips:     tips,
		wallet:   wallet,
		events:   events,
		minTip:   minTip,
		now:      time.Now,
		log:      log,
	}
}

// VerifyTip checks that txid pays at least the claimed amount to the
// recipient and carries a tip payload, then records it once.
func (s *TipService) VerifyTip(ctx context.Context, req models.TipVerifyRequest) (*models.Tip, error) {
	if strings.TrimSpace(req.StreamID) == "" {
		return nil, verificationErr(StateInvalidRequest, "streamId is required", nil)
	}
	if !s.wallet.IsAddressValid(req.RecipientAddress) || !s.wallet.IsAddressValid(req.SenderWalletAddress) {
		return nil, verificationErr(StateInvalidRequest, "invalid wallet address", nil)
	}
	amount := req.AmountSompi
	if amount == 0 {
		amount = s.minTip
	}
	if amount < s.minTip {
		return nil, verificationErr(StateInvalidRequest, "tip is below the minimum", nil)
	}
	submitted, err := parseSubmitted(req.Transaction)
	if err != nil {
		return nil, err
	}

	outcome, err := s.verifier.Verify(ctx, Claim{
		TxID:                req.TxID,
		Purpose:             models.PaymentTip,
		ExpectedAmount:      amount,
		ExpectedDestination: req.RecipientAddress,
		ClaimedSender:       req.SenderWalletAddress,
		RequirePayload:      payload.KindTip,
		Submitted:           submitted,
	})
	if err != nil {
		return nil, err
	}

	tip := &models.Tip{
		ID:                uuid.New().String(),
		StreamID:          req.StreamID,
		SenderAddress:     req.SenderWalletAddress,
		RecipientAddress:  req.RecipientAddress,
		AmountSompi:       outcome.Output.Amount,
		TxID:              outcome.Tx.ID,
		EncryptedPayload:  outcome.Tx.Payload,
		DecodedMessage:    firstNonEmpty(outcome.Payload.Get(payload.FieldMsg), req.TipMessage),
		SenderDisplayName: firstNonEmpty(req.SenderName, outcome.Payload.Get(payload.FieldSender)),
		SenderAvatarURL:   req.SenderAvatar,
		ProcessedAt:       s.now(),
	}
	if err := persist(ctx, func(ctx context.Context) error { return s.tips.Create(ctx, tip) }); err != nil {
		return nil, err
	}

	s.log.Info("tip verified",
		zap.String("txid", tip.TxID),
		zap.String("stream_id", tip.StreamID),
		zap.Uint64("amount_sompi", tip.AmountSompi),
	)
	if s.events != nil {
		if err := s.events.PublishTipVerified(ctx, tip); err != nil {
			s.log.Warn("publish tip verified", zap.Error(err))
		}
	}
	return tip, nil
}

// ListTips returns the most recent tips for a stream.
func (s *TipService) ListTips(ctx context.Context, streamID string, limit int) ([]models.Tip, error) {
	switch {
	case limit <= 0:
		limit = defaultTipPage
	case limit > maxTipPage:
		limit = maxTipPage
	}
	return s.tips.ListByStream(ctx, streamID, limit)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
