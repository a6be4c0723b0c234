// Package client talks to the vivoor API on behalf of a wallet holder.
package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vivoor/vivoor-api/internal/models"
	"github.com/vivoor/vivoor-api/internal/services"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status    int
	Message   string `json:"error"`
	Reason    string `json:"reason"`
	State     string `json:"state"`
	Retryable bool   `json:"retryable"`
}

func (e *APIError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.State, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// Unauthorized reports whether the server rejected the session token.
func (e *APIError) Unauthorized() bool { return e.Status == http.StatusUnauthorized }

// Client is a thin JSON client for the API.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithToken starts the client with an existing session token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// verification requests block while the server polls the indexer
		http: &http.Client{Timeout: 90 * time.Second},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current session token.
func (c *Client) Token() string { return c.token }

// SignChallenge signs message the way a wallet does: a compact r||s
// signature over SHA-256(message), hex encoded.
func SignChallenge(priv *btcec.PrivateKey, message string) string {
	compact := ecdsa.SignCompact(priv, chainhash.HashB([]byte(message)), true)
	// drop the recovery byte
	return hex.EncodeToString(compact[1:])
}

// Authenticate signs a fresh challenge with priv and logs address in.
// On success the client keeps the issued token.
func (c *Client) Authenticate(ctx context.Context, priv *btcec.PrivateKey, address string) (*models.WalletAuthResponse, error) {
	msg, err := services.NewChallengeMessage(c.now())
	if err != nil {
		return nil, err
	}
	sig := SignChallenge(priv, msg)

	req := models.WalletAuthRequest{
		WalletAddress: address,
		Message:       msg,
		Signature:     sig,
		PublicKey:     hex.EncodeToString(priv.PubKey().SerializeCompressed()),
	}
	var resp models.WalletAuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/wallet", req, &resp); err != nil {
		return nil, err
	}
	c.token = resp.SessionToken
	return &resp, nil
}

// Session describes the current session.
func (c *Client) Session(ctx context.Context) (*models.SessionInfo, error) {
	var info models.SessionInfo
	if err := c.do(ctx, http.MethodGet, "/auth/session", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Logout ends the current session and forgets the token.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		return err
	}
	c.token = ""
	return nil
}

// VerifyPayment submits a platform payment for verification.
func (c *Client) VerifyPayment(ctx context.Context, req models.PaymentVerifyRequest) (*models.PaymentVerifyResponse, error) {
	var resp models.PaymentVerifyResponse
	if err := c.do(ctx, http.MethodPost, "/payments/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyTip submits a tip for verification.
func (c *Client) VerifyTip(ctx context.Context, req models.TipVerifyRequest) (*models.TipVerifyResponse, error) {
	var resp models.TipVerifyResponse
	if err := c.do(ctx, http.MethodPost, "/tips/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
