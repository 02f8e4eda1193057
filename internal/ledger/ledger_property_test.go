package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/efreitasn/stocksim/internal/domain"
)

// Property: every mutation either applies in full or leaves state unchanged,
// and balances and holdings never go negative.
func TestProperty_LedgerAtomicity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := New()
		l.RegisterCompany(0)
		const agents = 3
		for i := 0; i < agents; i++ {
			start := decimal.NewFromInt(rapid.Int64Range(0, 1000).Draw(t, fmt.Sprintf("start-%d", i)))
			if err := l.Open(domain.AgentID(i), start); err != nil {
				t.Fatalf("Open: %v", err)
			}
		}

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for s := 0; s < steps; s++ {
			agent := domain.AgentID(rapid.IntRange(0, agents-1).Draw(t, "agent"))
			beforeBal, _ := l.Balance(agent)
			beforeHold := l.Holding(agent, 0)

			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				delta := decimal.NewFromInt(rapid.Int64Range(-1500, 1500).Draw(t, "delta"))
				err := l.AddBalance(agent, delta)
				after, _ := l.Balance(agent)
				if err != nil {
					if !errors.Is(err, domain.ErrUnspendable) || !after.Equal(beforeBal) {
						t.Fatalf("failed AddBalance mutated state or returned %v", err)
					}
				} else if !after.Equal(beforeBal.Add(delta)) {
					t.Fatalf("AddBalance applied %s, want %s", after.Sub(beforeBal), delta)
				}
				if after.IsNegative() {
					t.Fatalf("balance went negative: %s", after)
				}
			case 1:
				qty := rapid.Uint64Range(0, 500).Draw(t, "push")
				if err := l.PushHolding(agent, 0, qty); err != nil {
					t.Fatalf("PushHolding: %v", err)
				}
				if l.Holding(agent, 0) != beforeHold+qty {
					t.Fatalf("holding = %d, want %d", l.Holding(agent, 0), beforeHold+qty)
				}
			case 2:
				qty := rapid.Uint64Range(0, 500).Draw(t, "pop")
				err := l.PopHolding(agent, 0, qty)
				switch {
				case qty > beforeHold && err == nil:
					t.Fatalf("PopHolding(%d) from %d succeeded", qty, beforeHold)
				case err != nil && l.Holding(agent, 0) != beforeHold:
					t.Fatalf("failed PopHolding mutated holding")
				case err == nil && l.Holding(agent, 0) != beforeHold-qty:
					t.Fatalf("holding = %d, want %d", l.Holding(agent, 0), beforeHold-qty)
				}
			}
		}
	})
}
