package services

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vivoor/vivoor-api/internal/chain"
	"github.com/vivoor/vivoor-api/internal/errs"
	"github.com/vivoor/vivoor-api/internal/models"
)

// testAddress builds a well-formed mainnet address from a bech32-alphabet seed.
func testAddress(seed string) string {
	return "kaspa:" + seed + strings.Repeat("q", 61-len(seed))
}

var (
	treasuryAddr = testAddress("treasury")
	senderAddr   = testAddress("sender")
	streamerAddr = testAddress("streamer")
	otherAddr    = testAddress("elsewhere")
)

func txid(seed string) string {
	return strings.Repeat(seed, 64/len(seed))
}

type fakeChain struct {
	mu      sync.Mutex
	txs     map[string]*models.ChainTransaction
	errs    map[string]error
	byAddr  map[string][]models.ChainTransaction
	lookups int32
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		txs:    map[string]*models.ChainTransaction{},
		errs:   map[string]error{},
		byAddr: map[string][]models.ChainTransaction{},
	}
}

func (c *fakeChain) put(tx *models.ChainTransaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs[tx.ID] = tx
}

func (c *fakeChain) WaitForAcceptance(_ context.Context, id string) (*models.ChainTransaction, error) {
	atomic.AddInt32(&c.lookups, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.errs[id]; ok {
		return c.txs[id], err
	}
	tx, ok := c.txs[id]
	if !ok {
		return nil, chain.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (c *fakeChain) FetchAddressTransactions(_ context.Context, address string, limit int) ([]models.ChainTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	txs := c.byAddr[address]
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (c *fakeChain) calls() int { return int(atomic.LoadInt32(&c.lookups)) }

// memStore backs payments and tips with one txid namespace, the way the
// database's unique indexes do.
type memStore struct {
	mu       sync.Mutex
	seen     map[string]bool
	payments []models.PaymentVerification
	tips     []models.Tip
	failWith error
	// hidePrecheck makes TxIDExists always answer false so tests can drive
	// the insert-time guard.
	hidePrecheck bool
}

func newMemStore() *memStore {
	return &memStore{seen: map[string]bool{}}
}

func (m *memStore) TxIDExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hidePrecheck {
		return false, nil
	}
	return m.seen[id], nil
}

func (m *memStore) claim(id string) error {
	if m.failWith != nil {
		return m.failWith
	}
	if m.seen[id] {
		return errs.ErrAlreadyExists
	}
	m.seen[id] = true
	return nil
}

func (m *memStore) Create(_ context.Context, v *models.PaymentVerification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.claim(v.TxID); err != nil {
		return err
	}
	m.payments = append(m.payments, *v)
	return nil
}

func (m *memStore) GetActive(_ context.Context, userID string, t models.PaymentType, now time.Time) (*models.PaymentVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.payments) - 1; i >= 0; i-- {
		p := m.payments[i]
		if p.UserID == userID && p.PaymentType == t && p.ExpiresAt != nil && p.ExpiresAt.After(now) {
			return &p, nil
		}
	}
	return nil, errs.ErrNotFound
}

type memTips struct{ *memStore }

func (m memTips) Create(_ context.Context, t *models.Tip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.claim(t.TxID); err != nil {
		return err
	}
	m.tips = append(m.tips, *t)
	return nil
}

func (m memTips) ListByStream(_ context.Context, streamID string, limit int) ([]models.Tip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Tip
	for i := len(m.tips) - 1; i >= 0 && len(out) < limit; i-- {
		if m.tips[i].StreamID == streamID {
			out = append(out, m.tips[i])
		}
	}
	return out, nil
}

type fakeEvents struct {
	mu       sync.Mutex
	logouts  []string
	payments []string
	tips     []string
}

func (e *fakeEvents) PublishLogout(_ context.Context, _ string, sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logouts = append(e.logouts, sessionID)
	return nil
}

func (e *fakeEvents) PublishPaymentVerified(_ context.Context, v *models.PaymentVerification) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payments = append(e.payments, v.TxID)
	return nil
}

func (e *fakeEvents) PublishTipVerified(_ context.Context, t *models.Tip) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tips = append(e.tips, t.TxID)
	return nil
}

type fakeIdentities struct {
	mu      sync.Mutex
	byAddr  map[string]*models.User
	failErr error
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{byAddr: map[string]*models.User{}}
}

func (f *fakeIdentities) ResolveWallet(_ context.Context, address string, candidate *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	if u, ok := f.byAddr[address]; ok {
		return u, nil
	}
	f.byAddr[address] = candidate
	return candidate, nil
}

type fakeSessions struct {
	mu   sync.Mutex
	rows map[string]*models.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: map[string]*models.Session{}}
}

func (f *fakeSessions) Create(_ context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	cp.UserID = ""
	f.rows[s.ID] = &cp
	return nil
}

func (f *fakeSessions) GetByID(_ context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) Deactivate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[id]; ok {
		s.IsActive = false
	}
	return nil
}

type memNonces struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (n *memNonces) Remember(_ context.Context, nonce string, _ time.Duration) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return false, n.err
	}
	if n.seen == nil {
		n.seen = map[string]bool{}
	}
	if n.seen[nonce] {
		return false, nil
	}
	n.seen[nonce] = true
	return true, nil
}
