package services

import (
	"context"
	"errors"
	"time"

	"payrank-backend/internal/models"
	"payrank-backend/internal/rank"
	"payrank-backend/internal/store"

	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	DefaultTop      = 10
	DefaultNearby   = 3
	maxNearby       = 25
)

type LeaderboardConfig struct {
	// Location decides where weeks and months begin.
	Location *time.Location
	Clock    rank.Clock
}

// Entry is one public leaderboard row.
type Entry struct {
	ID          uint            `json:"id"`
	Rank        int             `json:"rank"`
	Username    string          `json:"username"`
	DisplayName string          `json:"displayName"`
	Avatar      string          `json:"avatar"`
	TotalSpent  decimal.Decimal `json:"totalSpent"`
	Badges      []string        `json:"badges"`
	Theme       string          `json:"theme"`
}

type Board struct {
	Window      rank.Window `json:"window"`
	Entries     []Entry     `json:"users"`
	Total       int64       `json:"total"`
	Pages       int         `json:"pages"`
	CurrentPage int         `json:"currentPage"`
}

type Standing struct {
	Rank  int             `json:"rank"`
	Total decimal.Decimal `json:"totalSpent"`
}

type Position struct {
	UserID  uint     `json:"userId"`
	Global  Standing `json:"global"`
	Weekly  Standing `json:"weekly"`
	Monthly Standing `json:"monthly"`
}

type Competitor struct {
	Entry
	// Offset is the competitor's rank minus the user's rank.
	Offset int `json:"offset"`
}

type Nearby struct {
	Current Entry        `json:"current"`
	Above   []Competitor `json:"above"`
	Below   []Competitor `json:"below"`
}

type PaymentPage struct {
	Payments    []models.Payment `json:"payments"`
	Total       int64            `json:"total"`
	Pages       int              `json:"pages"`
	CurrentPage int              `json:"currentPage"`
}

type Stats struct {
	Users   int64               `json:"users"`
	AllTime models.PaymentStats `json:"allTime"`
	Weekly  models.PaymentStats `json:"weekly"`
	Monthly models.PaymentStats `json:"monthly"`
}

// LeaderboardService answers read-only ranking queries. Ranks come from unlocked snapshots
// and may lag a concurrent settlement.
type LeaderboardService struct {
	store store.Reader
	cfg   LeaderboardConfig
}

func NewLeaderboardService(st store.Reader, cfg LeaderboardConfig) *LeaderboardService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = rank.SystemClock{}
	}
	return &LeaderboardService{store: st, cfg: cfg}
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

func pageCount(total int64, size int) int {
	return int((total + int64(size) - 1) / int64(size))
}

func (s *LeaderboardService) windowStart(w rank.Window) time.Time {
	return w.Start(s.cfg.Clock.Now(), s.cfg.Location)
}

// GlobalLeaderboard pages through every user by cumulative spend.
func (s *LeaderboardService) GlobalLeaderboard(ctx context.Context, page, pageSize int) (*Board, error) {
	page, pageSize = normalizePage(page, pageSize)

	total, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, classify(err)
	}
	users, err := s.store.ListUsersBySpend(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, classify(err)
	}

	ranks := newRankMemo(func(t decimal.Decimal) (int64, error) { return s.store.CountUsersAbove(ctx, t) })
	rows := make([]row, 0, len(users))
	for _, u := range users {
		r, err := ranks.of(u.CumulativeSpend)
		if err != nil {
			return nil, classify(err)
		}
		rows = append(rows, row{user: u, rank: r, total: u.CumulativeSpend})
	}

	entries, err := s.entries(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &Board{
		Window:      rank.WindowGlobal,
		Entries:     entries,
		Total:       total,
		Pages:       pageCount(total, pageSize),
		CurrentPage: page,
	}, nil
}

// WindowedLeaderboard ranks users by completed payments settled inside the current week or
// month. Users without a payment in the window are not listed.
func (s *LeaderboardService) WindowedLeaderboard(ctx context.Context, w rank.Window, page, pageSize int) (*Board, error) {
	if w == rank.WindowGlobal {
		return s.GlobalLeaderboard(ctx, page, pageSize)
	}
	page, pageSize = normalizePage(page, pageSize)
	since := s.windowStart(w)

	total, err := s.store.CountWindowParticipants(ctx, since)
	if err != nil {
		return nil, classify(err)
	}
	totals, err := s.store.WindowTotals(ctx, since, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, classify(err)
	}

	ids := make([]uint, len(totals))
	for i, t := range totals {
		ids[i] = t.UserID
	}
	users, err := s.store.FindUsers(ctx, ids)
	if err != nil {
		return nil, classify(err)
	}

	ranks := newRankMemo(func(t decimal.Decimal) (int64, error) { return s.store.CountWindowAbove(ctx, since, t) })
	rows := make([]row, 0, len(totals))
	for _, t := range totals {
		u, ok := users[t.UserID]
		if !ok {
			continue
		}
		r, err := ranks.of(t.Total)
		if err != nil {
			return nil, classify(err)
		}
		rows = append(rows, row{user: u, rank: r, total: t.Total})
	}

	entries, err := s.entries(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &Board{
		Window:      w,
		Entries:     entries,
		Total:       total,
		Pages:       pageCount(total, pageSize),
		CurrentPage: page,
	}, nil
}

// Top returns the first n rows of the global board, n capped at MaxPageSize.
func (s *LeaderboardService) Top(ctx context.Context, n int) ([]Entry, error) {
	if n < 1 {
		n = DefaultTop
	}
	board, err := s.GlobalLeaderboard(ctx, 1, n)
	if err != nil {
		return nil, err
	}
	return board.Entries, nil
}

// UserPosition reports the user's rank and total on each board. A user with nothing in a
// window ranks after every participant of that window.
func (s *LeaderboardService) UserPosition(ctx context.Context, userID uint) (*Position, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	above, err := s.store.CountUsersAbove(ctx, user.CumulativeSpend)
	if err != nil {
		return nil, classify(err)
	}
	pos := &Position{
		UserID: userID,
		Global: Standing{Rank: int(above) + 1, Total: user.CumulativeSpend},
	}

	for _, w := range []rank.Window{rank.WindowWeekly, rank.WindowMonthly} {
		since := s.windowStart(w)
		total, err := s.store.UserWindowTotal(ctx, userID, since)
		if err != nil {
			return nil, classify(err)
		}
		above, err := s.store.CountWindowAbove(ctx, since, total)
		if err != nil {
			return nil, classify(err)
		}
		st := Standing{Rank: int(above) + 1, Total: total}
		if w == rank.WindowWeekly {
			pos.Weekly = st
		} else {
			pos.Monthly = st
		}
	}
	return pos, nil
}

// NearbyCompetitors lists the users just above and just below userID on the global board,
// closest first in both directions. Users tied with userID are in neither list.
func (s *LeaderboardService) NearbyCompetitors(ctx context.Context, userID uint, above, below int) (*Nearby, error) {
	above = clampNearby(above)
	below = clampNearby(below)

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	higher, err := s.store.UsersAbove(ctx, user.CumulativeSpend, above)
	if err != nil {
		return nil, classify(err)
	}
	lower, err := s.store.UsersBelow(ctx, user.CumulativeSpend, below)
	if err != nil {
		return nil, classify(err)
	}

	ranks := newRankMemo(func(t decimal.Decimal) (int64, error) { return s.store.CountUsersAbove(ctx, t) })
	toRows := func(users []models.User) ([]row, error) {
		rows := make([]row, 0, len(users))
		for _, u := range users {
			r, err := ranks.of(u.CumulativeSpend)
			if err != nil {
				return nil, classify(err)
			}
			rows = append(rows, row{user: u, rank: r, total: u.CumulativeSpend})
		}
		return rows, nil
	}

	myRank, err := ranks.of(user.CumulativeSpend)
	if err != nil {
		return nil, classify(err)
	}
	aboveRows, err := toRows(higher)
	if err != nil {
		return nil, err
	}
	belowRows, err := toRows(lower)
	if err != nil {
		return nil, err
	}

	all := append([]row{{user: *user, rank: myRank, total: user.CumulativeSpend}}, aboveRows...)
	all = append(all, belowRows...)
	entries, err := s.entries(ctx, all)
	if err != nil {
		return nil, err
	}

	competitors := func(es []Entry) []Competitor {
		out := make([]Competitor, len(es))
		for i, e := range es {
			out[i] = Competitor{Entry: e, Offset: e.Rank - myRank}
		}
		return out
	}
	return &Nearby{
		Current: entries[0],
		Above:   competitors(entries[1 : 1+len(aboveRows)]),
		Below:   competitors(entries[1+len(aboveRows):]),
	}, nil
}

func clampNearby(n int) int {
	if n < 0 {
		return DefaultNearby
	}
	if n > maxNearby {
		return maxNearby
	}
	return n
}

// PaymentHistory pages through a user's payments, newest first.
func (s *LeaderboardService) PaymentHistory(ctx context.Context, userID uint, page, pageSize int) (*PaymentPage, error) {
	page, pageSize = normalizePage(page, pageSize)
	if _, err := s.findUser(ctx, userID); err != nil {
		return nil, err
	}
	payments, total, err := s.store.PaymentsForUser(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, classify(err)
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return &PaymentPage{
		Payments:    payments,
		Total:       total,
		Pages:       pageCount(total, pageSize),
		CurrentPage: page,
	}, nil
}

// PaymentStats sums completed payments for every window.
func (s *LeaderboardService) PaymentStats(ctx context.Context) (*Stats, error) {
	users, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, classify(err)
	}
	stats := &Stats{Users: users}
	for _, w := range []rank.Window{rank.WindowGlobal, rank.WindowWeekly, rank.WindowMonthly} {
		ps, err := s.store.PaymentStats(ctx, s.windowStart(w))
		if err != nil {
			return nil, classify(err)
		}
		switch w {
		case rank.WindowGlobal:
			stats.AllTime = ps
		case rank.WindowWeekly:
			stats.Weekly = ps
		case rank.WindowMonthly:
			stats.Monthly = ps
		}
	}
	return stats, nil
}

func (s *LeaderboardService) findUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, classify(err)
	}
	return user, nil
}

type row struct {
	user  models.User
	rank  int
	total decimal.Decimal
}

// entries attaches badges and public display fields, keeping the order of rows.
func (s *LeaderboardService) entries(ctx context.Context, rows []row) ([]Entry, error) {
	ids := make([]uint, len(rows))
	for i, r := range rows {
		ids[i] = r.user.ID
	}
	badges := map[uint][]string{}
	if len(ids) > 0 {
		var err error
		if badges, err = s.store.Badges(ctx, ids...); err != nil {
			return nil, classify(err)
		}
	}

	out := make([]Entry, len(rows))
	for i, r := range rows {
		b := badges[r.user.ID]
		if b == nil {
			b = []string{}
		}
		out[i] = Entry{
			ID:          r.user.ID,
			Rank:        r.rank,
			Username:    r.user.PublicUsername(),
			DisplayName: r.user.PublicDisplayName(),
			Avatar:      r.user.AvatarOrDefault(),
			TotalSpent:  r.total,
			Badges:      b,
			Theme:       r.user.ThemeOrDefault(),
		}
	}
	return out, nil
}

// rankMemo caches 1 + count(strictly greater) per distinct total within one query.
type rankMemo struct {
	count func(decimal.Decimal) (int64, error)
	seen  map[string]int
}

func newRankMemo(count func(decimal.Decimal) (int64, error)) *rankMemo {
	return &rankMemo{count: count, seen: map[string]int{}}
}

func (m *rankMemo) of(total decimal.Decimal) (int, error) {
	key := total.StringFixed(2)
	if r, ok := m.seen[key]; ok {
		return r, nil
	}
	n, err := m.count(total)
	if err != nil {
		return 0, err
	}
	m.seen[key] = int(n) + 1
	return int(n) + 1, nil
}
