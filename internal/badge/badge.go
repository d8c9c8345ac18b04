// Package badge derives spend-threshold achievements.
package badge

import "github.com/shopspring/decimal"

const (
	Newcomer    = "Newcomer"
	Rookie      = "Rookie"
	Enthusiast  = "Enthusiast"
	Dedicated   = "Dedicated"
	Whale       = "Whale"
	TopSpender  = "Top Spender"
	Millionaire = "Millionaire"
)

type Tier struct {
	Name      string
	Threshold decimal.Decimal
	// Newcomer is awarded for any positive spend; every other tier at >= Threshold.
	Exclusive bool
}

// Tiers are ordered by ascending threshold.
var Tiers = []Tier{
	{Name: Newcomer, Threshold: decimal.Zero, Exclusive: true},
	{Name: Rookie, Threshold: decimal.NewFromInt(500)},
	{Name: Enthusiast, Threshold: decimal.NewFromInt(1_000)},
	{Name: Dedicated, Threshold: decimal.NewFromInt(5_000)},
	{Name: Whale, Threshold: decimal.NewFromInt(10_000)},
	{Name: TopSpender, Threshold: decimal.NewFromInt(100_000)},
	{Name: Millionaire, Threshold: decimal.NewFromInt(1_000_000)},
}

func (t Tier) reached(spend decimal.Decimal) bool {
	if t.Exclusive {
		return spend.GreaterThan(t.Threshold)
	}
	return spend.GreaterThanOrEqual(t.Threshold)
}

// Earned returns every badge implied by spend, lowest tier first.
func Earned(spend decimal.Decimal) []string {
	var out []string
	for _, t := range Tiers {
		if t.reached(spend) {
			out = append(out, t.Name)
		}
	}
	return out
}

// Missing returns the badges implied by spend that are not in owned.
func Missing(spend decimal.Decimal, owned []string) []string {
	have := make(map[string]struct{}, len(owned))
	for _, b := range owned {
		have[b] = struct{}{}
	}
	var out []string
	for _, b := range Earned(spend) {
		if _, ok := have[b]; !ok {
			out = append(out, b)
		}
	}
	return out
}
