package sim

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/engine"
	"github.com/efreitasn/stocksim/internal/issuance"
)

// Order is one request queued for the next tick.
type Order struct {
	engine.Request
	// PreferIssuance routes a buy to the company's open issuance window
	// instead of the book.
	PreferIssuance bool
}

// Policy produces the orders agents want to place this tick. It runs
// with exclusive access to the market.
type Policy interface {
	Orders(m *engine.Market, iss *issuance.Engine, n int) []Order
}

// RandomPolicy picks a random agent and company per order and prices it
// within ±10% of the company's current price. An agent only buys what it
// can afford and only sells what it holds.
type RandomPolicy struct {
	rng         *rand.Rand
	deviation   decimal.Decimal
	maxQuantity uint64
	// IssuanceBias is the chance a buy goes to an open issuance window.
	IssuanceBias float64
}

// NewRandomPolicy creates a policy drawing from a source seeded with seed.
func NewRandomPolicy(seed uint64, deviation decimal.Decimal, maxQuantity uint64) *RandomPolicy {
	if maxQuantity == 0 {
		maxQuantity = 1
	}
	return &RandomPolicy{
		rng:          rand.New(rand.NewPCG(seed, seed+1)),
		deviation:    deviation,
		maxQuantity:  maxQuantity,
		IssuanceBias: 0.5,
	}
}

var (
	jitterSpan = decimal.NewFromFloat(0.2)
	jitterBase = decimal.NewFromFloat(0.9)
	minPrice   = decimal.RequireFromString("0.01")
)

// Orders implements Policy.
func (p *RandomPolicy) Orders(m *engine.Market, iss *issuance.Engine, n int) []Order {
	l := m.Ledger()
	agents, companies := l.Agents(), l.Companies()
	if len(agents) == 0 || len(companies) == 0 {
		return nil
	}

	orders := make([]Order, 0, n)
	for i := 0; i < n; i++ {
		agent := agents[p.rng.IntN(len(agents))]
		company := companies[p.rng.IntN(len(companies))]
		mv, err := m.Prices().Value(company)
		if err != nil || !mv.CurrentPrice.IsPositive() {
			continue
		}
		factor := jitterBase.Add(jitterSpan.Mul(decimal.NewFromFloat(p.rng.Float64())))
		price := mv.CurrentPrice.Mul(factor).Round(2)
		if price.LessThan(minPrice) {
			price = minPrice
		}
		qty := 1 + p.rng.Uint64N(p.maxQuantity)

		o := Order{Request: engine.Request{
			Agent:     agent,
			Company:   company,
			Price:     price,
			Deviation: p.deviation,
			Quantity:  qty,
		}}
		if p.rng.Float64() < 0.5 {
			balance, _ := l.Balance(agent)
			if balance.LessThan(domain.Cost(price, qty)) {
				continue
			}
			o.Side = domain.SideBuy
			o.PreferIssuance = iss != nil && iss.IsOpen(company) && p.rng.Float64() < p.IssuanceBias
		} else {
			if l.Holding(agent, company) < qty {
				continue
			}
			o.Side = domain.SideSell
		}
		orders = append(orders, o)
	}
	return orders
}
