package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/vivoor/vivoor-api/internal/models"
)

// ChallengePrefix starts every signed authentication message.
const ChallengePrefix = "VIVOOR_AUTH"

const (
	DefaultMessageMaxAge = 5 * time.Minute
	DefaultClockSkew     = time.Minute
)

var (
	challengePattern = regexp.MustCompile(`^VIVOOR_AUTH_(\d{13})_([0-9a-fA-F]{32})$`)

	ErrChallengeFormat = errors.New("challenge: malformed message")
	ErrChallengeStale  = errors.New("challenge: message too old")
	ErrChallengeFuture = errors.New("challenge: timestamp in the future")
)

// ChallengeValidator enforces the message grammar and freshness window.
type ChallengeValidator struct {
	MaxAge    time.Duration
	ClockSkew time.Duration
}

// NewChallengeValidator creates a validator; zero durations fall back to the defaults.
func NewChallengeValidator(maxAge, clockSkew time.Duration) *ChallengeValidator {
	if maxAge <= 0 {
		maxAge = DefaultMessageMaxAge
	}
	if clockSkew <= 0 {
		clockSkew = DefaultClockSkew
	}
	return &ChallengeValidator{MaxAge: maxAge, ClockSkew: clockSkew}
}

// Parse checks message against the grammar and window at now.
func (v *ChallengeValidator) Parse(message string, now time.Time) (*models.AuthChallenge, error) {
	m := challengePattern.FindStringSubmatch(message)
	if m == nil {
		return nil, ErrChallengeFormat
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil, ErrChallengeFormat
	}

	nowMs := now.UnixMilli()
	if nowMs-ts > v.MaxAge.Milliseconds() {
		return nil, ErrChallengeStale
	}
	if ts > nowMs+v.ClockSkew.Milliseconds() {
		return nil, ErrChallengeFuture
	}

	return &models.AuthChallenge{Prefix: ChallengePrefix, TimestampMs: ts, Nonce: m[2]}, nil
}

// Validate is Parse reduced to a yes/no answer.
func (v *ChallengeValidator) Validate(message string, now time.Time) bool {
	_, err := v.Parse(message, now)
	return err == nil
}

// ValidateMessage validates with the default five-minute window and one
// minute of clock skew.
func ValidateMessage(message string, now time.Time) bool {
	return NewChallengeValidator(0, 0).Validate(message, now)
}

// NewChallengeMessage builds a fresh message for a wallet to sign.
func NewChallengeMessage(now time.Time) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%013d_%s", ChallengePrefix, now.UnixMilli(), hex.EncodeToString(nonce)), nil
}
