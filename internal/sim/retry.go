package sim

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/engine"
	"github.com/efreitasn/stocksim/internal/ledger"
)

type retry struct {
	side  domain.Side
	price decimal.Decimal
}

// retryTable remembers, per (agent, company), the side and decayed price
// of the agent's last expired offer.
type retryTable struct {
	decay   decimal.Decimal
	entries map[domain.CompositeKey]retry
}

func newRetryTable(decay decimal.Decimal) *retryTable {
	return &retryTable{decay: decay, entries: make(map[domain.CompositeKey]retry)}
}

// record stores a retry for an expired offer. A buyer retries higher and
// a seller lower, each by the decay fraction.
func (t *retryTable) record(agent domain.AgentID, company domain.CompanyID, side domain.Side, price decimal.Decimal) {
	one := decimal.NewFromInt(1)
	var next decimal.Decimal
	switch side {
	case domain.SideBuy:
		next = price.Mul(one.Add(t.decay))
	case domain.SideSell:
		next = price.Mul(one.Sub(t.decay))
	default:
		return
	}
	if !next.IsPositive() {
		return
	}
	t.entries[domain.Combine(agent, company)] = retry{side: side, price: next}
}

// due rolls every entry with probability p. Entries that win the roll and
// are affordable become orders of qty shares and leave the table; the
// rest stay for a later tick.
func (t *retryTable) due(rng *rand.Rand, p float64, qty uint64, deviation decimal.Decimal, l *ledger.Ledger) []Order {
	if len(t.entries) == 0 {
		return nil
	}
	keys := make([]domain.CompositeKey, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b domain.CompositeKey) int {
		if c := cmp.Compare(a.Agent(), b.Agent()); c != 0 {
			return c
		}
		return cmp.Compare(a.Company(), b.Company())
	})

	var orders []Order
	for _, k := range keys {
		if rng.Float64() >= p {
			continue
		}
		r := t.entries[k]
		agent, company := k.Split()
		switch r.side {
		case domain.SideBuy:
			if b, err := l.Balance(agent); err != nil || b.LessThan(domain.Cost(r.price, qty)) {
				continue
			}
		case domain.SideSell:
			if l.Holding(agent, company) < qty {
				continue
			}
		}
		delete(t.entries, k)
		orders = append(orders, Order{Request: engine.Request{
			Agent:     agent,
			Company:   company,
			Side:      r.side,
			Price:     r.price,
			Deviation: deviation,
			Quantity:  qty,
		}})
	}
	return orders
}

func (t *retryTable) len() int { return len(t.entries) }
