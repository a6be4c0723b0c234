package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/config"
	"github.com/vivoor/vivoor-api/internal/errs"
	"github.com/vivoor/vivoor-api/internal/models"
)

const tokenIssuer = "vivoor-api"

// Claims represents the session token claims. The registered ID (jti) is the
// session id; the token is useless once that row is inactive or expired.
type Claims struct {
	WalletAddress string `json:"wallet_address"`
	jwt.RegisteredClaims
}

// AuthService runs the wallet handshake and owns session lifecycle.
type AuthService struct {
	identities IdentityStore
	sessions   SessionStore
	wallet     *WalletService
	challenges *ChallengeValidator
	cipher     *UserIDCipher

	nonces  NonceCache
	revoked RevocationCache
	events  EventPublisher

	secret []byte
	ttl    time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// AuthOption configures optional collaborators.
type AuthOption func(*AuthService)

// WithNonceCache enables rejection of replayed challenge nonces.
func WithNonceCache(c NonceCache) AuthOption {
	return func(s *AuthService) { s.nonces = c }
}

// WithRevocationCache lets ValidateSession reject logged-out sessions without a DB hit.
func WithRevocationCache(c RevocationCache) AuthOption {
	return func(s *AuthService) { s.revoked = c }
}

// WithAuthEvents publishes logout events.
func WithAuthEvents(p EventPublisher) AuthOption {
	return func(s *AuthService) { s.events = p }
}

// WithAuthClock overrides time.Now.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// WithAuthLogger sets the logger.
func WithAuthLogger(log *zap.Logger) AuthOption {
	return func(s *AuthService) { s.log = log }
}

// NewAuthService creates a new AuthService
func NewAuthService(identities IdentityStore, sessions SessionStore, wallet *WalletService, cipher *UserIDCipher, cfg config.AuthConfig, opts ...AuthOption) *AuthService {
	s := &AuthService{
		identities: identities,
		sessions:   sessions,
		wallet:     wallet,
		challenges: NewChallengeValidator(cfg.MessageMaxAge(), cfg.ClockSkew()),
		cipher:     cipher,
		secret:     []byte(cfg.JWTSecret),
		ttl:        cfg.SessionTTL(),
		now:        time.Now,
		log:        zap.NewNop(),
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthenticateWithWallet verifies a signed challenge and issues a session.
// Cheap stateless checks run before anything touches storage.
func (s *AuthService) AuthenticateWithWallet(ctx context.Context, req models.WalletAuthRequest) (*models.WalletAuthResponse, error) {
	now := s.now()

	if !s.wallet.IsAddressValid(req.WalletAddress) {
		return nil, authErr(ReasonInvalidAddress, nil)
	}

	challenge, err := s.challenges.Parse(req.Message, now)
	if err != nil {
		return nil, authErr(ReasonInvalidMessage, err)
	}

	if !s.wallet.VerifySignature(req.Message, req.Signature, req.PublicKey) {
		return nil, authErr(ReasonBadSignature, nil)
	}

	if s.nonces != nil {
		fresh, err := s.nonces.Remember(ctx, challenge.Nonce, s.challenges.MaxAge+s.challenges.ClockSkew)
		switch {
		case err != nil:
			// the freshness window still holds without the cache
			s.log.Warn("nonce cache unavailable", zap.Error(err))
		case !fresh:
			return nil, authErr(ReasonInvalidMessage, errors.New("challenge nonce already used"))
		}
	}

	candidate, err := s.newUser(now)
	if err != nil {
		return nil, authErr(ReasonIdentityResolution, err)
	}
	user, err := s.identities.ResolveWallet(ctx, req.WalletAddress, candidate)
	if err != nil {
		return nil, authErr(ReasonIdentityResolution, err)
	}

	session, token, err := s.issueSession(ctx, user, req.WalletAddress, now)
	if err != nil {
		return nil, authErr(ReasonSessionCreation, err)
	}

	s.log.Info("wallet authenticated",
		zap.String("wallet", req.WalletAddress),
		zap.String("session_id", session.ID),
		zap.Bool("new_user", user.ID == candidate.ID),
	)

	return &models.WalletAuthResponse{
		Success:         true,
		SessionToken:    token,
		EncryptedUserID: user.EncryptedUserID,
		ExpiresAt:       session.ExpiresAt,
	}, nil
}

func (s *AuthService) newUser(now time.Time) (*models.User, error) {
	id := uuid.New().String()
	enc, err := s.cipher.Seal(id)
	if err != nil {
		return nil, err
	}
	return &models.User{ID: id, EncryptedUserID: enc, CreatedAt: now}, nil
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User, address string, now time.Time) (*models.Session, string, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, "", err
	}

	session := &models.Session{
		ID:              hex.EncodeToString(idBytes),
		UserID:          user.ID,
		EncryptedUserID: user.EncryptedUserID,
		WalletAddress:   address,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
		IsActive:        true,
	}

	token, err := s.generateToken(session)
	if err != nil {
		return nil, "", err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", err
	}
	return session, token, nil
}

// ValidateSession resolves a session token to an active session. The token
// signature is checked first; the stored row is the source of truth.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*models.Session, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.ID == "" {
		return nil, errs.ErrUnauthorized
	}

	if s.revoked != nil {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			s.log.Warn("revocation cache unavailable", zap.Error(err))
		} else if revoked {
			return nil, errs.ErrUnauthorized
		}
	}

	session, err := s.sessions.GetByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUnauthorized
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !session.Valid(s.now()) || session.WalletAddress != claims.WalletAddress {
		return nil, errs.ErrUnauthorized
	}

	userID, err := s.cipher.Open(session.EncryptedUserID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", session.ID, err)
	}
	session.UserID = userID
	return session, nil
}

// Logout deactivates one session. Other sessions of the same wallet stay valid.
func (s *AuthService) Logout(ctx context.Context, session *models.Session) error {
	if err := s.sessions.Deactivate(ctx, session.ID); err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}

	if s.revoked != nil {
		if ttl := session.ExpiresAt.Sub(s.now()); ttl > 0 {
			if err := s.revoked.Revoke(ctx, session.ID, ttl); err != nil {
				s.log.Warn("revocation cache write failed", zap.Error(err))
			}
		}
	}
	if s.events != nil {
		if err := s.events.PublishLogout(ctx, session.WalletAddress, session.ID); err != nil {
			s.log.Warn("publish logout", zap.Error(err))
		}
	}
	return nil
}

// generateToken signs the session token.
func (s *AuthService) generateToken(session *models.Session) (string, error) {
	claims := &Claims{
		WalletAddress: session.WalletAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			NotBefore: jwt.NewNumericDate(session.CreatedAt),
			Issuer:    tokenIssuer,
			Subject:   session.EncryptedUserID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
