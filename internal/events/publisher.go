// Package events carries completed verifications and logouts between API
// instances over watermill.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/vivoor/vivoor-api/internal/models"
)

const (
	TopicLogout          = "vivoor.auth.logout"
	TopicPaymentVerified = "vivoor.payments.verified"
	TopicTipVerified     = "vivoor.tips.verified"
)

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Address   string `json:"address"`
	SessionID string `json:"session_id"`
}

// PaymentEvent announces a recorded platform payment. The internal user id
// stays out of the event.
type PaymentEvent struct {
	ID          string             `json:"id"`
	PaymentType models.PaymentType `json:"payment_type"`
	TxID        string             `json:"txid"`
	AmountSompi uint64             `json:"amount_sompi"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
}

// WatermillPublisher publishes domain events to a watermill publisher.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new WatermillPublisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address, sessionID string) error {
	return p.publish(ctx, TopicLogout, sessionID, LogoutEvent{Address: address, SessionID: sessionID})
}

// PublishPaymentVerified publishes a payment event keyed by txid.
func (p *WatermillPublisher) PublishPaymentVerified(ctx context.Context, v *models.PaymentVerification) error {
	return p.publish(ctx, TopicPaymentVerified, v.TxID, PaymentEvent{
		ID:          v.ID,
		PaymentType: v.PaymentType,
		TxID:        v.TxID,
		AmountSompi: v.AmountSompi,
		ExpiresAt:   v.ExpiresAt,
	})
}

// PublishTipVerified publishes the full tip keyed by txid.
func (p *WatermillPublisher) PublishTipVerified(ctx context.Context, t *models.Tip) error {
	return p.publish(ctx, TopicTipVerified, t.TxID, t)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, id string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
