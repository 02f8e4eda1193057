package sim

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/engine"
)

// Feature: stocksim, Property: settled simulation conserves cash and shares

func totals(snap domain.Snapshot) (decimal.Decimal, map[domain.CompanyID]uint64) {
	cash := decimal.Zero
	shares := make(map[domain.CompanyID]uint64)
	for _, a := range snap.Agents {
		cash = cash.Add(a.Balance)
		for c, n := range a.Holdings {
			shares[c] += n
		}
	}
	return cash, shares
}

func TestProperty_SettledSimulationConserves(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Uint64().Draw(t, "seed")
		snap, err := Bootstrap(rapid.IntRange(2, 20).Draw(t, "agents"), rapid.IntRange(1, 3).Draw(t, "companies"), seed)
		if err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		cashBefore, sharesBefore := totals(snap)

		m, err := engine.Restore(snap, rapid.Uint64Range(1, 5).Draw(t, "lifetime"), nil, discardLogger())
		if err != nil {
			t.Fatalf("Restore: %v", err)
		}
		cfg := Config{
			RetryProbability: 0.4,
			RetryDecay:       dec("0.25"),
			RetryQuantity:    rapid.Uint64Range(1, 20).Draw(t, "retryQty"),
			Deviation:        decimal.NewFromInt(rapid.Int64Range(0, 5).Draw(t, "deviation")),
			OrdersPerTick:    rapid.IntRange(1, 30).Draw(t, "ordersPerTick"),
			Seed:             seed,
		}
		s := New(cfg, m, nil, NewRandomPolicy(seed, cfg.Deviation, 50), engine.NewProbabilisticConcession(0.3, seed), discardLogger())

		ticks := rapid.IntRange(1, 15).Draw(t, "ticks")
		for i := 0; i < ticks; i++ {
			if _, err := s.Step(context.Background()); err != nil {
				t.Fatalf("Step: %v", err)
			}
		}

		cashAfter, sharesAfter := totals(s.Settle())
		if !cashAfter.Equal(cashBefore) {
			t.Fatalf("cash not conserved: %s -> %s", cashBefore, cashAfter)
		}
		for c, n := range sharesBefore {
			if sharesAfter[c] != n {
				t.Fatalf("company %d shares not conserved: %d -> %d", c, n, sharesAfter[c])
			}
		}
	})
}
