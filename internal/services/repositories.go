package services

import (
	"context"
	"time"

	"github.com/vivoor/vivoor-api/internal/models"
)

// IdentityStore maps wallet addresses to users. ResolveWallet must be safe
// under concurrent first-time registration of the same address: the store's
// unique constraint decides the winner and every caller gets that user.
type IdentityStore interface {
	ResolveWallet(ctx context.Context, address string, candidate *models.User) (*models.User, error)
}

// SessionStore persists sessions.
type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	Deactivate(ctx context.Context, id string) error
}

// NonceCache remembers challenge nonces for the freshness window.
// Remember reports false when the nonce was already seen.
type NonceCache interface {
	Remember(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// RevocationCache short-circuits lookups of logged-out sessions.
type RevocationCache interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// EventPublisher announces completed operations to other instances.
type EventPublisher interface {
	PublishLogout(ctx context.Context, address, sessionID string) error
	PublishPaymentVerified(ctx context.Context, v *models.PaymentVerification) error
	PublishTipVerified(ctx context.Context, t *models.Tip) error
}

// TxIDRegistry answers whether a txid has already been recorded by any flow.
type TxIDRegistry interface {
	TxIDExists(ctx context.Context, txid string) (bool, error)
}

// PaymentStore persists payment verifications. Create returns
// errs.ErrAlreadyExists on a txid collision.
type PaymentStore interface {
	Create(ctx context.Context, v *models.PaymentVerification) error
	GetActive(ctx context.Context, userID string, t models.PaymentType, now time.Time) (*models.PaymentVerification, error)
}

// TipStore persists tips. Create returns errs.ErrAlreadyExists on a txid
// collision.
type TipStore interface {
	Create(ctx context.Context, t *models.Tip) error
	ListByStream(ctx context.Context, streamID string, limit int) ([]models.Tip, error)
}

// ChainReader is the subset of the indexer client the services use.
type ChainReader interface {
	WaitForAcceptance(ctx context.Context, txid string) (*models.ChainTransaction, error)
	FetchAddressTransactions(ctx context.Context, address string, limit int) ([]models.ChainTransaction, error)
}
