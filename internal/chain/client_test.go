package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivoor/vivoor-api/internal/models"
)

var testTxID = strings.Repeat("ab", 32)

func indexerTx(accepted bool) map[string]any {
	return map[string]any{
		"transaction_id":             testTxID,
		"payload":                    "56495652",
		"block_time":                 1700000000000,
		"is_accepted":                accepted,
		"accepting_block_blue_score": 42,
		"inputs": []map[string]any{
			{"previous_outpoint_address": "kaspa:sender", "previous_outpoint_amount": 500000000},
		},
		"outputs": []map[string]any{
			{"index": 0, "amount": 120000000, "script_public_key_address": "kaspa:treasury"},
			{"index": 1, "amount": 379000000, "script_public_key_address": "kaspa:sender"},
		},
	}
}

func newTestClient(url string, attempts int) *Client {
	return NewClient(url, WithRetry(attempts, time.Millisecond), WithRequestTimeout(time.Second))
}

func TestFetchTransaction_RetriesUntilIndexed(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/"+testTxID, r.URL.Path)
		assert.Equal(t, "light", r.URL.Query().Get("resolve_previous_outpoints"))
		if atomic.AddInt32(&calls, 1) < 3 {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(indexerTx(true))
	}))
	defer srv.Close()

	tx, err := newTestClient(srv.URL, 5).FetchTransaction(context.Background(), testTxID)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	assert.Equal(t, testTxID, tx.ID)
	assert.True(t, tx.IsAccepted)
	assert.Equal(t, uint64(42), tx.AcceptingBlockScore)
	assert.Equal(t, models.SourceIndexer, tx.Source)
	assert.Equal(t, "kaspa:sender", tx.SenderAddress())
	require.Len(t, tx.Outputs, 2)
	assert.Equal(t, models.TxOutput{Amount: 120000000, DestinationAddress: "kaspa:treasury"}, tx.Outputs[0])
	assert.Equal(t, "56495652", tx.Payload)
}

func TestFetchTransaction_NotFoundAfterBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 5).FetchTransaction(context.Background(), testTxID)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestWaitForAcceptance(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(indexerTx(n >= 2))
	}))
	defer srv.Close()

	tx, err := newTestClient(srv.URL, 5).WaitForAcceptance(context.Background(), testTxID)
	require.NoError(t, err)
	assert.True(t, tx.IsAccepted)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWaitForAcceptance_NeverAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(indexerTx(false))
	}))
	defer srv.Close()

	tx, err := newTestClient(srv.URL, 5).WaitForAcceptance(context.Background(), testTxID)
	require.ErrorIs(t, err, ErrNotAccepted)
	require.NotNil(t, tx)
	assert.False(t, tx.IsAccepted)
}

func TestFetchTransaction_ServerErrorsExhaust(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 5).FetchTransaction(context.Background(), testTxID)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestFetchTransaction_ClientErrorIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad txid", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 5).FetchTransaction(context.Background(), testTxID)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchTransaction_InvalidTxID(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	for _, id := range []string{"", "abc", strings.Repeat("z", 64), strings.Repeat("a", 63)} {
		_, err := c.FetchTransaction(context.Background(), id)
		require.ErrorIs(t, err, ErrInvalidTxID, id)
	}
}

func TestFetchTransaction_PerAttemptTimeout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		_ = json.NewEncoder(w).Encode(indexerTx(true))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(5, time.Millisecond), WithRequestTimeout(50*time.Millisecond))
	tx, err := c.FetchTransaction(context.Background(), testTxID)
	require.NoError(t, err)
	assert.True(t, tx.IsAccepted)
}

func TestLookup_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(srv.URL, WithRetry(5, time.Hour)).FetchTransaction(ctx, testTxID)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoff_IsLinear(t *testing.T) {
	c := NewClient("http://x", WithRetry(4, time.Second))
	b := c.backoff()
	var got []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			break
		}
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, got)
}

func TestFetchAddressTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/addresses/kaspa:sender/full-transactions-page", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]map[string]any{indexerTx(true), indexerTx(false)})
	}))
	defer srv.Close()

	txs, err := newTestClient(srv.URL, 5).FetchAddressTransactions(context.Background(), "kaspa:sender", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].IsAccepted)
	assert.False(t, txs[1].IsAccepted)
}

func TestFetchAddressTransactions_UnknownAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	txs, err := newTestClient(srv.URL, 5).FetchAddressTransactions(context.Background(), "kaspa:nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestNormalize_WalletShapes(t *testing.T) {
	raw := fmt.Sprintf(`{
		"id": %q,
		"inputs": [{"address": "kaspa:sender"}],
		"outputs": [
			{"value": 120000000, "address": "kaspa:treasury"},
			{"amount": 5, "script_public_key_address": "kaspa:change"}
		],
		"payload": "ab"
	}`, strings.ToUpper(testTxID))

	w, err := ParseWalletSubmitted(json.RawMessage(raw))
	require.NoError(t, err)

	tx := Normalize(w)
	assert.Equal(t, testTxID, tx.ID)
	assert.False(t, tx.IsAccepted)
	assert.Equal(t, models.SourceWallet, tx.Source)
	assert.Equal(t, []models.TxOutput{
		{Amount: 120000000, DestinationAddress: "kaspa:treasury"},
		{Amount: 5, DestinationAddress: "kaspa:change"},
	}, tx.Outputs)
	assert.Equal(t, "kaspa:sender", tx.SenderAddress())
}

func TestParseWalletSubmitted_Rejects(t *testing.T) {
	_, err := ParseWalletSubmitted(json.RawMessage(`{"id":"nope"}`))
	require.ErrorIs(t, err, ErrInvalidTxID)

	_, err = ParseWalletSubmitted(json.RawMessage(`[`))
	require.Error(t, err)
}
