package handlers

import (
	"context"

	"github.com/vivoor/vivoor-api/internal/models"
)

// Authenticator is the auth surface the handlers need.
type Authenticator interface {
	AuthenticateWithWallet(ctx context.Context, req models.WalletAuthRequest) (*models.WalletAuthResponse, error)
	ValidateSession(ctx context.Context, token string) (*models.Session, error)
	Logout(ctx context.Context, session *models.Session) error
}

// PaymentVerifier verifies platform payments.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, userID string, req models.PaymentVerifyRequest) (*models.PaymentVerification, error)
	ActiveVerification(ctx context.Context, userID string, t models.PaymentType) (*models.PaymentVerification, error)
}

// TipVerifier verifies and lists tips.
type TipVerifier interface {
	VerifyTip(ctx context.Context, req models.TipVerifyRequest) (*models.Tip, error)
	ListTips(ctx context.Context, streamID string, limit int) ([]models.Tip, error)
}

// ChatVerifier verifies paid chat posts.
type ChatVerifier interface {
	VerifyChatPost(ctx context.Context, userID string, req models.ChatVerifyRequest) (*models.PaymentVerification, string, error)
}

// AddressLister lists recent chain activity for an address.
type AddressLister interface {
	RecentTransactions(ctx context.Context, address string, limit int) ([]models.AddressTransaction, error)
}

// Pinger reports storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
