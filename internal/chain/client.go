// Package chain reads transactions from the Kaspa REST indexer.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/config"
	"github.com/vivoor/vivoor-api/internal/models"
)

var (
	// ErrInvalidTxID is returned for ids that are not 64 hex characters.
	ErrInvalidTxID = errors.New("chain: invalid transaction id")
	// ErrNotFound means the indexer never returned the transaction.
	ErrNotFound = errors.New("chain: transaction not found")
	// ErrNotAccepted means the transaction was found but never accepted.
	ErrNotAccepted = errors.New("chain: transaction found but not accepted")
	// ErrUnavailable means every attempt failed with a transport or 5xx error.
	ErrUnavailable = errors.New("chain: indexer unavailable")
)

// StatusError is an unexpected indexer response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chain: indexer returned %d: %s", e.Code, e.Body)
}

func (e *StatusError) transient() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

var txIDPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidTxID reports whether id is a lowercase 64-hex transaction id.
func ValidTxID(id string) bool {
	return txIDPattern.MatchString(id)
}

const (
	defaultMaxAttempts    = 6
	defaultBaseDelay      = 2 * time.Second
	defaultRequestTimeout = 8 * time.Second
	maxAddressPage        = 50
)

// Client is an indexer reader with bounded linear-backoff retries. Each
// attempt has its own timeout, separate from the overall retry budget.
type Client struct {
	baseURL        string
	http           *http.Client
	maxAttempts    int
	baseDelay      time.Duration
	requestTimeout time.Duration
	log            *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetry sets the attempt budget and the linear backoff step.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.baseDelay = baseDelay
	}
}

// WithRequestTimeout bounds each indexer call.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a Client for the indexer at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{},
		maxAttempts:    defaultMaxAttempts,
		baseDelay:      defaultBaseDelay,
		requestTimeout: defaultRequestTimeout,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	return c
}

// NewClientFromConfig creates a Client from the chain section of the config.
func NewClientFromConfig(cfg config.ChainConfig, log *zap.Logger) *Client {
	return NewClient(cfg.IndexerURL,
		WithRetry(cfg.MaxAttempts, cfg.BaseDelay()),
		WithRequestTimeout(cfg.RequestTimeout()),
		WithLogger(log),
	)
}

// backoff waits attempt × baseDelay between attempts.
func (c *Client) backoff() retry.Backoff {
	var attempt int64
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * c.baseDelay, false
	})
	return retry.WithMaxRetries(uint64(c.maxAttempts-1), linear)
}

// FetchTransaction returns the indexer record for txid. A 404 is retried,
// since indexer propagation lags the network; only after the attempt budget
// is spent does it become ErrNotFound.
func (c *Client) FetchTransaction(ctx context.Context, txid string) (*models.ChainTransaction, error) {
	return c.lookup(ctx, txid, false)
}

// WaitForAcceptance polls until the transaction is found and accepted. When
// the budget runs out on an unaccepted transaction it returns the last record
// together with ErrNotAccepted.
func (c *Client) WaitForAcceptance(ctx context.Context, txid string) (*models.ChainTransaction, error) {
	return c.lookup(ctx, txid, true)
}

func (c *Client) lookup(ctx context.Context, txid string, requireAccepted bool) (*models.ChainTransaction, error) {
	txid = strings.ToLower(txid)
	if !ValidTxID(txid) {
		return nil, ErrInvalidTxID
	}

	var (
		tx      *models.ChainTransaction
		attempt int
	)
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		got, err := c.getTransaction(ctx, txid)
		if err != nil {
			if retryable(err) {
				c.log.Debug("indexer lookup retry",
					zap.String("txid", txid),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				return retry.RetryableError(err)
			}
			return err
		}
		tx = got
		if requireAccepted && !got.IsAccepted {
			c.log.Debug("transaction not yet accepted",
				zap.String("txid", txid),
				zap.Int("attempt", attempt),
			)
			return retry.RetryableError(ErrNotAccepted)
		}
		return nil
	})

	switch {
	case err == nil:
		return tx, nil
	case errors.Is(err, ErrNotAccepted):
		return tx, ErrNotAccepted
	case errors.Is(err, ErrNotFound):
		if tx != nil {
			// seen earlier, then lost by a lagging indexer replica
			return tx, ErrNotAccepted
		}
		return nil, ErrNotFound
	case ctx.Err() != nil:
		return tx, ctx.Err()
	}

	var te *transportError
	var se *StatusError
	if errors.As(err, &te) || (errors.As(err, &se) && se.transient()) {
		return tx, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, attempt, err)
	}
	return tx, err
}

// FetchAddressTransactions returns up to limit recent transactions touching
// address, newest first.
func (c *Client) FetchAddressTransactions(ctx context.Context, address string, limit int) ([]models.ChainTransaction, error) {
	if limit <= 0 || limit > maxAddressPage {
		limit = maxAddressPage
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("resolve_previous_outpoints", "light")
	endpoint := fmt.Sprintf("%s/addresses/%s/full-transactions-page?%s", c.baseURL, url.PathEscape(address), q.Encode())

	var page []IndexerFetched
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		page = nil
		err := c.getJSON(ctx, endpoint, &page)
		if err != nil && retryable(err) && !errors.Is(err, ErrNotFound) {
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return []models.ChainTransaction{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]models.ChainTransaction, 0, len(page))
	for i := range page {
		out = append(out, *Normalize(&page[i]))
	}
	return out, nil
}

func (c *Client) getTransaction(ctx context.Context, txid string) (*models.ChainTransaction, error) {
	q := url.Values{}
	q.Set("inputs", "true")
	q.Set("outputs", "true")
	q.Set("resolve_previous_outpoints", "light")
	endpoint := fmt.Sprintf("%s/transactions/%s?%s", c.baseURL, txid, q.Encode())

	var rec IndexerFetched
	if err := c.getJSON(ctx, endpoint, &rec); err != nil {
		return nil, err
	}
	if rec.TransactionID == "" {
		// some indexer versions answer 200 with an empty body while syncing
		return nil, ErrNotFound
	}
	return Normalize(&rec), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chain: decode indexer response: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.transient()
	}
	return false
}
