package sim

import (
	"fmt"
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/ledger"
)

// Bootstrap builds a fresh market snapshot with numAgents agents and
// numCompanies companies, ids starting at 1. Each agent gets a random
// balance under 1000 and a random stake under 1000 shares in one random
// company. Each company starts at a random price in [1, 100].
func Bootstrap(numAgents, numCompanies int, seed uint64) (domain.Snapshot, error) {
	if numAgents <= 0 || numCompanies <= 0 {
		return domain.Snapshot{}, &domain.ValidationError{Message: "bootstrap needs at least one agent and one company"}
	}
	rng := rand.New(rand.NewPCG(seed, seed+1))
	l := ledger.New()
	for c := 1; c <= numCompanies; c++ {
		l.RegisterCompany(domain.CompanyID(c))
	}
	for a := 1; a <= numAgents; a++ {
		agent := domain.AgentID(a)
		if err := l.Open(agent, decimal.Zero); err != nil {
			return domain.Snapshot{}, fmt.Errorf("bootstrap: %w", err)
		}
		cash := decimal.NewFromFloat(rng.Float64() * 1000).Round(2)
		company := domain.CompanyID(1 + rng.IntN(numCompanies))
		if err := l.Grant(agent, company, cash, rng.Uint64N(1000)); err != nil {
			return domain.Snapshot{}, fmt.Errorf("bootstrap: %w", err)
		}
	}

	snap := l.Snapshot()
	for i := range snap.Companies {
		price := decimal.NewFromFloat(1 + rng.Float64()*99).Round(2)
		snap.Companies[i].MarketValue = domain.MarketValue{
			CurrentPrice:         price,
			HighestPrice:         price,
			LowestPrice:          price,
			OverallMovementStart: price,
			OverallMovementEnd:   price,
		}
	}
	return snap, nil
}
