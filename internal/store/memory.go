package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"payrank-backend/internal/models"
	"payrank-backend/internal/rank"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps everything in process memory. Transactions are serialized and work on a
// copy of the state that replaces the live state only on success.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	users    map[uint]models.User
	payments map[uint]models.Payment
	byRef    map[string]uint
	badges   []models.UserBadge
	ledger   []models.LedgerEntry

	nextUserID    uint
	nextPaymentID uint
	nextBadgeID   uint
	nextLedgerID  uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		users:    map[uint]models.User{},
		payments: map[uint]models.Payment{},
		byRef:    map[string]uint{},
	}}
}

func (st *memState) clone() *memState {
	c := *st
	c.users = make(map[uint]models.User, len(st.users))
	for k, v := range st.users {
		c.users[k] = v
	}
	c.payments = make(map[uint]models.Payment, len(st.payments))
	for k, v := range st.payments {
		c.payments[k] = v
	}
	c.byRef = make(map[string]uint, len(st.byRef))
	for k, v := range st.byRef {
		c.byRef[k] = v
	}
	c.badges = append([]models.UserBadge(nil), st.badges...)
	c.ledger = append([]models.LedgerEntry(nil), st.ledger...)
	return &c
}

func (st *memState) standings() []rank.Standing {
	out := make([]rank.Standing, 0, len(st.users))
	for _, u := range st.users {
		out = append(out, rank.Standing{UserID: u.ID, Total: u.CumulativeSpend, ReachedAt: u.SpendReachedAt})
	}
	return out
}

func (st *memState) windowStandings(since time.Time) []rank.Standing {
	totals := map[uint]*rank.Standing{}
	for _, p := range st.payments {
		if p.Status != models.PaymentStatusCompleted || p.SettledAt == nil || p.SettledAt.Before(since) {
			continue
		}
		s, ok := totals[p.UserID]
		if !ok {
			s = &rank.Standing{UserID: p.UserID, Total: decimal.Zero}
			totals[p.UserID] = s
		}
		s.Total = s.Total.Add(p.Amount)
		if p.SettledAt.After(s.ReachedAt) {
			s.ReachedAt = *p.SettledAt
		}
	}
	out := make([]rank.Standing, 0, len(totals))
	for _, s := range totals {
		out = append(out, *s)
	}
	return out
}

func (st *memState) usersFor(ranked []rank.Ranked) []models.User {
	out := make([]models.User, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, st.users[s.UserID])
	}
	return out
}

func (st *memState) userBadges(userID uint) []string {
	var names []string
	for _, b := range st.badges {
		if b.UserID == userID {
			names = append(names, b.BadgeName)
		}
	}
	return names
}

func window(n, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit >= 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}

func (s *MemoryStore) read() *memState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *MemoryStore) FindUser(_ context.Context, id uint) (*models.User, error) {
	u, ok := s.read().users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) FindUsers(_ context.Context, ids []uint) (map[uint]models.User, error) {
	st := s.read()
	out := make(map[uint]models.User, len(ids))
	for _, id := range ids {
		if u, ok := st.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *MemoryStore) CountUsers(_ context.Context) (int64, error) {
	return int64(len(s.read().users)), nil
}

func (s *MemoryStore) CountUsersAbove(_ context.Context, spend decimal.Decimal) (int64, error) {
	return int64(rank.CountAbove(s.read().standings(), spend)), nil
}

func (s *MemoryStore) ListUsersBySpend(_ context.Context, offset, limit int) ([]models.User, error) {
	st := s.read()
	return st.usersFor(rank.Page(st.standings(), offset, limit)), nil
}

func (s *MemoryStore) UsersAbove(_ context.Context, spend decimal.Decimal, limit int) ([]models.User, error) {
	st := s.read()
	higher, _ := rank.Nearby(st.standings(), spend, limit, 0)
	return st.usersFor(higher), nil
}

func (s *MemoryStore) UsersBelow(_ context.Context, spend decimal.Decimal, limit int) ([]models.User, error) {
	st := s.read()
	_, lower := rank.Nearby(st.standings(), spend, 0, limit)
	return st.usersFor(lower), nil
}

func (s *MemoryStore) UsersBetween(_ context.Context, low, high decimal.Decimal) ([]models.User, error) {
	st := s.read()
	var between []rank.Standing
	for _, x := range st.standings() {
		if x.Total.GreaterThan(low) && x.Total.LessThan(high) {
			between = append(between, x)
		}
	}
	return st.usersFor(rank.Order(between)), nil
}

func (s *MemoryStore) WindowTotals(_ context.Context, since time.Time, offset, limit int) ([]WindowTotal, error) {
	page := rank.Page(s.read().windowStandings(since), offset, limit)
	out := make([]WindowTotal, 0, len(page))
	for _, r := range page {
		out = append(out, WindowTotal{UserID: r.UserID, Total: r.Total})
	}
	return out, nil
}

func (s *MemoryStore) CountWindowParticipants(_ context.Context, since time.Time) (int64, error) {
	return int64(len(s.read().windowStandings(since))), nil
}

func (s *MemoryStore) UserWindowTotal(_ context.Context, userID uint, since time.Time) (decimal.Decimal, error) {
	for _, x := range s.read().windowStandings(since) {
		if x.UserID == userID {
			return x.Total, nil
		}
	}
	return decimal.Zero, nil
}

func (s *MemoryStore) CountWindowAbove(_ context.Context, since time.Time, total decimal.Decimal) (int64, error) {
	return int64(rank.CountAbove(s.read().windowStandings(since), total)), nil
}

func (s *MemoryStore) Badges(_ context.Context, userIDs ...uint) (map[uint][]string, error) {
	st := s.read()
	out := make(map[uint][]string, len(userIDs))
	for _, id := range userIDs {
		if names := st.userBadges(id); len(names) > 0 {
			out[id] = names
		}
	}
	return out, nil
}

func (s *MemoryStore) FindPayment(_ context.Context, id uint) (*models.Payment, error) {
	p, ok := s.read().payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) FindPaymentByReference(_ context.Context, reference string) (*models.Payment, error) {
	st := s.read()
	id, ok := st.byRef[reference]
	if !ok {
		return nil, ErrNotFound
	}
	p := st.payments[id]
	return &p, nil
}

func (s *MemoryStore) PaymentsForUser(_ context.Context, userID uint, offset, limit int) ([]models.Payment, int64, error) {
	var list []models.Payment
	for _, p := range s.read().payments {
		if p.UserID == userID {
			list = append(list, p)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	from, to := window(len(list), offset, limit)
	return append([]models.Payment{}, list[from:to]...), int64(len(list)), nil
}

func (s *MemoryStore) PaymentStats(_ context.Context, since time.Time) (models.PaymentStats, error) {
	stats := models.PaymentStats{Amount: decimal.Zero}
	for _, p := range s.read().payments {
		if p.Status != models.PaymentStatusCompleted || p.SettledAt == nil || p.SettledAt.Before(since) {
			continue
		}
		stats.Amount = stats.Amount.Add(p.Amount)
		stats.Count++
	}
	return stats, nil
}

func (s *MemoryStore) LedgerEntries(_ context.Context, filter LedgerFilter) ([]models.LedgerEntry, int64, error) {
	var list []models.LedgerEntry
	for _, e := range s.read().ledger {
		if filter.UserID != nil && e.UserID != *filter.UserID {
			continue
		}
		if filter.Type != nil && e.Type != *filter.Type {
			continue
		}
		if filter.StartTime != nil && e.CreatedAt.Before(*filter.StartTime) {
			continue
		}
		if filter.EndTime != nil && e.CreatedAt.After(*filter.EndTime) {
			continue
		}
		list = append(list, e)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})

	total := int64(len(list))
	if filter.Limit <= 0 {
		return list, total, nil
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	from, to := window(len(list), (page-1)*filter.Limit, filter.Limit)
	return list[from:to], total, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.state.users {
		if u.Username == user.Username {
			return ErrDuplicate
		}
	}
	st := s.state.clone()
	now := time.Now()
	st.nextUserID++
	user.ID = st.nextUserID
	user.CreatedAt, user.UpdatedAt = now, now
	if user.SpendReachedAt.IsZero() {
		user.SpendReachedAt = now
	}
	if user.ProfileTheme == "" {
		user.ProfileTheme = models.DefaultTheme
	}
	if user.Version == 0 {
		user.Version = 1
	}
	st.users[user.ID] = *user
	s.state = st
	return nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, id uint, update models.ProfileUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.state.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !update.Empty() {
		update.Apply(&u)
		u.UpdatedAt = time.Now()
		st := s.state.clone()
		st.users[id] = u
		s.state = st
	}
	return &u, nil
}

func (s *MemoryStore) CreatePayment(_ context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.clone()
	if err := (&memTx{st: st}).insertPayment(payment); err != nil {
		return err
	}
	s.state = st
	return nil
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type memTx struct {
	st *memState
}

// Writers hold the store mutex for the whole transaction, so locks are implicit.
func (t *memTx) LockUser(id uint) (*models.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *memTx) LockPayment(id uint) (*models.Payment, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) LockPaymentByReference(reference string) (*models.Payment, error) {
	id, ok := t.st.byRef[reference]
	if !ok {
		return nil, ErrNotFound
	}
	p := t.st.payments[id]
	return &p, nil
}

func (t *memTx) CountUsersAbove(spend decimal.Decimal) (int64, error) {
	return int64(rank.CountAbove(t.st.standings(), spend)), nil
}

func (t *memTx) UpdateSpend(user *models.User, spend decimal.Decimal, at time.Time) error {
	cur, ok := t.st.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != user.Version {
		return ErrConflict
	}
	cur.CumulativeSpend = spend
	cur.SpendReachedAt = at
	cur.Version++
	cur.UpdatedAt = time.Now()
	t.st.users[user.ID] = cur
	*user = cur
	return nil
}

func (t *memTx) UpdateRank(userID uint, r int) error {
	u, ok := t.st.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.CurrentRank = r
	t.st.users[userID] = u
	return nil
}

func (t *memTx) insertPayment(p *models.Payment) error {
	if _, dup := t.st.byRef[p.Reference]; dup {
		return ErrDuplicate
	}
	now := time.Now()
	t.st.nextPaymentID++
	p.ID = t.st.nextPaymentID
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		p.Status = models.PaymentStatusPending
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	t.st.payments[p.ID] = *p
	t.st.byRef[p.Reference] = p.ID
	return nil
}

func (t *memTx) SavePayment(p *models.Payment) error {
	if p.ID == 0 {
		return t.insertPayment(p)
	}
	prev, ok := t.st.payments[p.ID]
	if !ok {
		return ErrNotFound
	}
	if prev.Reference != p.Reference {
		if _, dup := t.st.byRef[p.Reference]; dup {
			return ErrDuplicate
		}
		delete(t.st.byRef, prev.Reference)
		t.st.byRef[p.Reference] = p.ID
	}
	p.UpdatedAt = time.Now()
	t.st.payments[p.ID] = *p
	return nil
}

func (t *memTx) Badges(userID uint) ([]string, error) {
	return t.st.userBadges(userID), nil
}

func (t *memTx) PaymentBadges(paymentID uint) ([]string, error) {
	var names []string
	for _, b := range t.st.badges {
		if b.PaymentID == paymentID {
			names = append(names, b.BadgeName)
		}
	}
	return names, nil
}

func (t *memTx) AwardBadges(userID, paymentID uint, names []string, at time.Time) error {
	owned := map[string]bool{}
	for _, n := range t.st.userBadges(userID) {
		owned[n] = true
	}
	for _, n := range names {
		if owned[n] {
			continue
		}
		owned[n] = true
		t.st.nextBadgeID++
		t.st.badges = append(t.st.badges, models.UserBadge{
			ID: t.st.nextBadgeID, UserID: userID, BadgeName: n, PaymentID: paymentID, AwardedAt: at,
		})
	}
	return nil
}

func (t *memTx) AppendLedger(e *models.LedgerEntry) error {
	t.st.nextLedgerID++
	e.ID = t.st.nextLedgerID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	t.st.ledger = append(t.st.ledger, *e)
	return nil
}

func (t *memTx) LedgerEntryFor(paymentID uint, entryType models.LedgerEntryType) (*models.LedgerEntry, error) {
	for i := len(t.st.ledger) - 1; i >= 0; i-- {
		if e := t.st.ledger[i]; e.PaymentID == paymentID && e.Type == entryType {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}
