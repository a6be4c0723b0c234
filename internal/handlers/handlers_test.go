package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/errs"
	"github.com/vivoor/vivoor-api/internal/models"
	"github.com/vivoor/vivoor-api/internal/services"
)

const (
	walletAddr = "kaspa:qqwalletqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"
	goodToken  = "good-token"
)

type fakeAuth struct {
	loginErr  error
	loggedOut []string
}

func (f *fakeAuth) AuthenticateWithWallet(_ context.Context, req models.WalletAuthRequest) (*models.WalletAuthResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &models.WalletAuthResponse{Success: true, SessionToken: goodToken, EncryptedUserID: "enc"}, nil
}

func (f *fakeAuth) ValidateSession(_ context.Context, token string) (*models.Session, error) {
	if token != goodToken {
		return nil, errs.ErrUnauthorized
	}
	return &models.Session{
		ID:              "sess-1",
		UserID:          "user-1",
		EncryptedUserID: "enc",
		WalletAddress:   walletAddr,
		ExpiresAt:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:        true,
	}, nil
}

func (f *fakeAuth) Logout(_ context.Context, s *models.Session) error {
	f.loggedOut = append(f.loggedOut, s.ID)
	return nil
}

type fakePayments struct {
	err      error
	gotUser  string
	ctxAlive bool
}

func (f *fakePayments) VerifyPayment(ctx context.Context, userID string, req models.PaymentVerifyRequest) (*models.PaymentVerification, error) {
	f.gotUser = userID
	f.ctxAlive = ctx.Done() == nil
	if f.err != nil {
		return nil, f.err
	}
	return &models.PaymentVerification{ID: "pv-1", PaymentType: req.PaymentType, AmountSompi: 120_000_000, TxID: req.TxID}, nil
}

func (f *fakePayments) ActiveVerification(_ context.Context, userID string, t models.PaymentType) (*models.PaymentVerification, error) {
	if t != models.PaymentMonthlyVerification {
		return nil, errs.ErrNotFound
	}
	return &models.PaymentVerification{ID: "pv-2", PaymentType: t, AmountSompi: 10_000_000_000}, nil
}

type fakeTips struct {
	gotLimit int
}

func (f *fakeTips) VerifyTip(_ context.Context, req models.TipVerifyRequest) (*models.Tip, error) {
	return &models.Tip{ID: "tip-1", StreamID: req.StreamID, TxID: req.TxID, AmountSompi: 500_000_000}, nil
}

func (f *fakeTips) ListTips(_ context.Context, streamID string, limit int) ([]models.Tip, error) {
	f.gotLimit = limit
	return nil, nil
}

type fakeChat struct{}

func (fakeChat) VerifyChatPost(_ context.Context, _ string, req models.ChatVerifyRequest) (*models.PaymentVerification, string, error) {
	return &models.PaymentVerification{ID: "pv-3", PaymentType: models.PaymentChatPost, AmountSompi: 20_000_000}, "hello", nil
}

type fakeAddresses struct {
	gotLimit int
}

func (f *fakeAddresses) RecentTransactions(_ context.Context, address string, limit int) ([]models.AddressTransaction, error) {
	f.gotLimit = limit
	if address == "bad" {
		return nil, &services.VerificationError{State: services.StateInvalidRequest, Detail: "invalid address"}
	}
	return []models.AddressTransaction{{ChainTransaction: models.ChainTransaction{ID: "ab"}}}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type routerFixture struct {
	auth      *fakeAuth
	payments  *fakePayments
	tips      *fakeTips
	addresses *fakeAddresses
	handler   http.Handler
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		auth:      &fakeAuth{},
		payments:  &fakePayments{},
		tips:      &fakeTips{},
		addresses: &fakeAddresses{},
	}
	f.handler = NewRouter(Deps{
		Auth:      f.auth,
		Payments:  f.payments,
		Tips:      f.tips,
		Chat:      fakeChat{},
		Addresses: f.addresses,
		DB:        fakePinger{},
	})
	return f
}

func (f *routerFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestWalletLogin(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodPost, "/auth/wallet", "", `{"walletAddress":"x","message":"m","signature":"s","publicKey":"p"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, goodToken, decode(t, rec)["sessionToken"])

	f.auth.loginErr = &services.AuthError{Reason: services.ReasonBadSignature, Err: errors.New("internal detail")}
	rec = f.do(http.MethodPost, "/auth/wallet", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Signature verification failed", body["error"])
	assert.NotContains(t, rec.Body.String(), "internal detail")

	rec = f.do(http.MethodPost, "/auth/wallet", "", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChallenge(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodGet, "/auth/challenge", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Regexp(t, `^VIVOOR_AUTH_\d{13}_[0-9a-f]{32}$`, decode(t, rec)["message"])
}

func TestAuthMiddleware(t *testing.T) {
	f := newRouterFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/auth/session", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/auth/session", "wrong", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Token "+goodToken)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/auth/session", goodToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, walletAddr, body["walletAddress"])
	assert.NotContains(t, rec.Body.String(), "user-1")
}

func TestLogout(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodPost, "/auth/logout", goodToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sess-1"}, f.auth.loggedOut)
}

func TestVerifyPayment(t *testing.T) {
	f := newRouterFixture(t)
	body := `{"userAddress":"` + walletAddr + `","paymentType":"stream_start","txid":"aa"}`

	rec := f.do(http.MethodPost, "/payments/verify", goodToken, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"amount_kas":1.2`)
	assert.Equal(t, "user-1", f.payments.gotUser)
	assert.True(t, f.payments.ctxAlive, "verification runs detached from the request")

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/payments/verify", "", body).Code)
}

func TestVerifyPayment_ForeignAddress(t *testing.T) {
	f := newRouterFixture(t)
	body := `{"userAddress":"kaspa:someoneelse","paymentType":"stream_start","txid":"aa"}`
	rec := f.do(http.MethodPost, "/payments/verify", goodToken, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.payments.gotUser)
}

func TestVerifyPayment_ErrorMapping(t *testing.T) {
	body := `{"userAddress":"` + walletAddr + `","paymentType":"stream_start","txid":"aa"}`
	cases := []struct {
		state     services.VerificationState
		status    int
		retryable bool
	}{
		{services.StateDuplicateTxID, http.StatusBadRequest, false},
		{services.StateRejectedAmount, http.StatusBadRequest, false},
		{services.StateNotFoundAfterRetries, http.StatusBadRequest, true},
		{services.StateLookupFailed, http.StatusInternalServerError, true},
		{services.StateStorageFailed, http.StatusInternalServerError, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.state), func(t *testing.T) {
			f := newRouterFixture(t)
			f.payments.err = &services.VerificationError{State: tc.state, Err: errors.New("pq: secret")}
			rec := f.do(http.MethodPost, "/payments/verify", goodToken, body)
			assert.Equal(t, tc.status, rec.Code)
			out := decode(t, rec)
			assert.Equal(t, string(tc.state), out["state"])
			assert.Equal(t, tc.retryable, out["retryable"] == true)
			assert.NotContains(t, rec.Body.String(), "pq: secret")
		})
	}
}

func TestActivePayment(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodGet, "/payments/active?type=monthly_verification", goodToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amount_kas":100`)

	rec = f.do(http.MethodGet, "/payments/active?type=yearly_verification", goodToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyTip(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodPost, "/tips/verify", goodToken,
		`{"txid":"bb","streamId":"s1","senderWalletAddress":"`+walletAddr+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amount_kas":5`)

	rec = f.do(http.MethodPost, "/tips/verify", goodToken, `{"txid":"bb","streamId":"s1","senderWalletAddress":"kaspa:other"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVerifyChat(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodPost, "/chat/verify", goodToken,
		`{"userAddress":"`+walletAddr+`","streamId":"s1","txid":"cc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "hello", body["message"])
	assert.Equal(t, "s1", body["stream_id"])
}

func TestListStreamTips(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodGet, "/streams/s1/tips", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tips":[]}`, rec.Body.String())
	assert.Equal(t, 20, f.tips.gotLimit)

	f.do(http.MethodGet, "/streams/s1/tips?limit=7", "", "")
	assert.Equal(t, 7, f.tips.gotLimit)
}

func TestAddressTransactions(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodGet, "/addresses/"+walletAddr+"/transactions", goodToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, f.addresses.gotLimit)

	f.do(http.MethodGet, "/addresses/"+walletAddr+"/transactions?limit=abc", goodToken, "")
	assert.Equal(t, 20, f.addresses.gotLimit)

	rec = f.do(http.MethodGet, "/addresses/bad/transactions", goodToken, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newRouterFixture(t)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/readyz", "", "").Code)

	h := NewRouter(Deps{DB: fakePinger{err: errors.New("down")}})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
