package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bwise1/voteledger/internal/db"
	"github.com/bwise1/voteledger/internal/ledger"
	"github.com/bwise1/voteledger/internal/model"
	"github.com/bwise1/voteledger/internal/pending"
	"github.com/bwise1/voteledger/internal/testutil"
)

const testCap = 5

type captureNotifier struct {
	mu      sync.Mutex
	notices []model.VoteNotice
}

func (c *captureNotifier) VoteOccurred(_ context.Context, n model.VoteNotice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, n)
	return nil
}

func (c *captureNotifier) all() []model.VoteNotice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.VoteNotice(nil), c.notices...)
}

type fixture struct {
	store      *db.SQLiteStore
	clock      *testutil.StubClock
	pending    *pending.MemoryStore
	notifier   *captureNotifier
	reconciler *ledger.Reconciler
	engine     *ledger.Engine
	unlocker   *ledger.Unlocker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    testutil.NewTestStore(t),
		clock:    testutil.FixedClock(),
		notifier: &captureNotifier{},
	}
	f.pending = pending.NewMemoryStore(f.clock)
	f.reconciler = ledger.NewReconciler(f.store, ledger.ReconcilerConfig{MaxAttempts: 3, Timeout: time.Second}, nil)
	f.engine = ledger.NewEngine(f.store, f.reconciler,
		ledger.QuotaConfig{DailyCap: testCap, Location: time.UTC},
		ledger.WithClock(f.clock),
		ledger.WithNotifier(f.notifier),
	)
	f.unlocker = ledger.NewUnlocker(f.store, f.pending,
		ledger.UnlockConfig{DailyCap: testCap, TTL: 15 * time.Minute, Location: time.UTC},
		ledger.UnlockWithClock(f.clock),
	)
	return f
}

func (f *fixture) entity(t *testing.T, name string) model.Entity {
	t.Helper()
	return testutil.SeedEntity(t, f.store, name, uuid.New())
}

func (f *fixture) count(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	e, err := f.store.GetEntity(context.Background(), id)
	if err != nil {
		t.Fatalf("GetEntity(%s): %v", id, err)
	}
	return e.VoteCount
}

// unlockOnce requests and confirms one share unlock.
func (f *fixture) unlockOnce(t *testing.T, actor uuid.UUID, kind model.VoteKind) ledger.Confirmation {
	t.Helper()
	ctx := context.Background()
	ticket, err := f.unlocker.RequestUnlock(ctx, actor, kind)
	if err != nil {
		t.Fatalf("RequestUnlock: %v", err)
	}
	conf, err := f.unlocker.ConfirmShareProof(ctx, actor, ticket.Token)
	if err != nil {
		t.Fatalf("ConfirmShareProof: %v", err)
	}
	return conf
}
