package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"payrank-backend/internal/metrics"
	"payrank-backend/internal/models"
	"payrank-backend/internal/notify"
	"payrank-backend/internal/payment/demo"
	"payrank-backend/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testLedgerSecret = "test-ledger-secret"

// Wednesday 16 April 2025, 12:00 UTC.
var testNow = time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type published struct {
	Topic string
	Event notify.Event
}

// recorder is a Publisher that keeps everything it is given.
type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(_ context.Context, topic string, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{Topic: topic, Event: ev})
	return nil
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) On(topic string) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, p := range r.events {
		if p.Topic == topic {
			out = append(out, p.Event)
		}
	}
	return out
}

type testEnv struct {
	store       store.Store
	clock       *testClock
	pub         *recorder
	metrics     *metrics.Metrics
	notifier    *Notifier
	settlement  *SettlementService
	leaderboard *LeaderboardService
	ledger      *LedgerService
}

func newTestGormStore(t *testing.T) store.Store {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	s := store.NewGormStore(db)
	require.NoError(t, s.Migrate())
	return s
}

func newTestEnv(t *testing.T, st store.Store) *testEnv {
	clock := &testClock{now: testNow}
	pub := &recorder{}
	m := metrics.New(prometheus.NewRegistry())
	log := zap.NewNop()

	notifier := NewNotifier(pub, st, log, m)
	t.Cleanup(notifier.Wait)

	return &testEnv{
		store:    st,
		clock:    clock,
		pub:      pub,
		metrics:  m,
		notifier: notifier,
		settlement: NewSettlementService(st, demo.NewDriver(""), notifier, nil, SettlementConfig{
			LedgerSecret: testLedgerSecret,
			RetryDelay:   time.Millisecond,
			Clock:        clock,
		}, log, m),
		leaderboard: NewLeaderboardService(st, LeaderboardConfig{Clock: clock}),
		ledger:      NewLedgerService(st, testLedgerSecret),
	}
}

// eachStore runs fn against the gorm and the in-memory store.
func eachStore(t *testing.T, fn func(t *testing.T, e *testEnv)) {
	t.Run("gorm", func(t *testing.T) { fn(t, newTestEnv(t, newTestGormStore(t))) })
	t.Run("memory", func(t *testing.T) { fn(t, newTestEnv(t, store.NewMemoryStore())) })
}

func (e *testEnv) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, DisplayName: strings.ToUpper(name[:1]) + name[1:]}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) settle(t *testing.T, userID uint, amount, ref string) *SettlementResult {
	t.Helper()
	res, err := e.settlement.SettlePayment(context.Background(), SettleRequest{
		UserID:    userID,
		Amount:    dec(amount),
		Reference: ref,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) spend(t *testing.T, userID uint) decimal.Decimal {
	t.Helper()
	u, err := e.store.FindUser(context.Background(), userID)
	require.NoError(t, err)
	return u.CumulativeSpend
}

func zapNop() *zap.Logger {
	return zap.NewNop()
}
