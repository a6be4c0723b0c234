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

// ChatService verifies paid chat posts. A chat post is a self-send of at
// least the chat fee whose payload names the stream.
type ChatService struct {
	verifier *TxVerifier
	payments PaymentStore
	wallet   *WalletService
	fee      uint64
	now      func() time.Time
	log      *zap.Logger
}

// NewChatService creates a new ChatService.
func NewChatService(verifier *TxVerifier, payments PaymentStore, wallet *WalletService, fee uint64, log *zap.Logger) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		verifier: verifier,
		payments: payments,
		wallet:   wallet,
		fee:      fee,
		now:      time.Now,
		log:      log,
	}
}

// VerifyChatPost verifies txid as a chat post by req.UserAddress to
// req.StreamID and returns the recorded verification and the posted text.
func (s *ChatService) VerifyChatPost(ctx context.Context, userID string, req models.ChatVerifyRequest) (*models.PaymentVerification, string, error) {
	if strings.TrimSpace(req.StreamID) == "" {
		return nil, "", verificationErr(StateInvalidRequest, "streamId is required", nil)
	}
	if !s.wallet.IsAddressValid(req.UserAddress) {
		return nil, "", verificationErr(StateInvalidRequest, "invalid wallet address", nil)
	}

	outcome, err := s.verifier.Verify(ctx, Claim{
		TxID:                req.TxID,
		Purpose:             models.PaymentChatPost,
		ExpectedAmount:      s.fee,
		ExpectedDestination: req.UserAddress,
		ClaimedSender:       req.UserAddress,
		RequireSender:       true,
		RequirePayload:      payload.KindChat,
	})
	if err != nil {
		return nil, "", err
	}
	if outcome.Payload.Get(payload.FieldStreamID) != req.StreamID {
		return nil, "", verificationErr(StateMissingPayload, "payload is for a different stream", nil)
	}

	now := s.now()
	v := &models.PaymentVerification{
		ID:          uuid.New().String(),
		UserID:      userID,
		PaymentType: models.PaymentChatPost,
		AmountSompi: outcome.Output.Amount,
		TxID:        outcome.Tx.ID,
		BlockTime:   blockTime(outcome.Tx, 0, now),
		CreatedAt:   now,
	}
	if err := persist(ctx, func(ctx context.Context) error { return s.payments.Create(ctx, v) }); err != nil {
		return nil, "", err
	}

	s.log.Info("chat post verified", zap.String("txid", v.TxID), zap.String("stream_id", req.StreamID))
	return v, outcome.Payload.Get(payload.FieldText), nil
}
