// Package rank computes leaderboard positions from snapshots of per-user totals.
//
// Every user's rank is 1 + the number of users with a strictly greater total, so users
// with equal totals share a rank number. Display order inside a tie is earliest
// ReachedAt first, then lowest UserID.
package rank

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Standing is one user's total at the time the snapshot was taken.
type Standing struct {
	UserID    uint
	Total     decimal.Decimal
	ReachedAt time.Time
}

// Ranked is a standing with its computed rank.
type Ranked struct {
	Standing
	Rank int
}

// CountAbove returns how many standings have a total strictly greater than total.
func CountAbove(standings []Standing, total decimal.Decimal) int {
	n := 0
	for _, s := range standings {
		if s.Total.GreaterThan(total) {
			n++
		}
	}
	return n
}

// Of returns the rank a total would hold among standings.
func Of(standings []Standing, total decimal.Decimal) int {
	return CountAbove(standings, total) + 1
}

// Less is the display ordering used by Order and by the SQL queries.
func Less(a, b Standing) bool {
	if c := a.Total.Cmp(b.Total); c != 0 {
		return c > 0
	}
	if !a.ReachedAt.Equal(b.ReachedAt) {
		return a.ReachedAt.Before(b.ReachedAt)
	}
	return a.UserID < b.UserID
}

// Order sorts a copy of standings for display and assigns ranks.
func Order(standings []Standing) []Ranked {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool { return Less(sorted[i], sorted[j]) })

	out := make([]Ranked, len(sorted))
	for i, s := range sorted {
		r := i + 1
		if i > 0 && s.Total.Equal(sorted[i-1].Total) {
			r = out[i-1].Rank
		}
		out[i] = Ranked{Standing: s, Rank: r}
	}
	return out
}

// Page returns ordered rows [offset, offset+limit). A negative limit means no limit.
func Page(standings []Standing, offset, limit int) []Ranked {
	ordered := Order(standings)
	from, to := bounds(len(ordered), offset, limit)
	return ordered[from:to]
}

// Nearby returns up to above standings with the closest strictly greater totals and up to
// below with the closest strictly lower totals, closest first. Standings tied with total are
// in neither list. A negative limit means no limit.
func Nearby(standings []Standing, total decimal.Decimal, above, below int) (higher, lower []Ranked) {
	var up, down []Standing
	for _, s := range standings {
		switch {
		case s.Total.GreaterThan(total):
			up = append(up, s)
		case s.Total.LessThan(total):
			down = append(down, s)
		}
	}

	sort.SliceStable(up, func(i, j int) bool {
		if c := up[i].Total.Cmp(up[j].Total); c != 0 {
			return c < 0
		}
		return Less(up[i], up[j])
	})
	sort.SliceStable(down, func(i, j int) bool { return Less(down[i], down[j]) })

	return withRanks(standings, up, above), withRanks(standings, down, below)
}

func withRanks(all, candidates []Standing, limit int) []Ranked {
	_, to := bounds(len(candidates), 0, limit)
	out := make([]Ranked, 0, to)
	for _, s := range candidates[:to] {
		out = append(out, Ranked{Standing: s, Rank: Of(all, s.Total)})
	}
	return out
}

func bounds(n, offset, limit int) (int, int) {
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
