// Package ledger holds every agent's cash balance and per-company share
// holdings. Balances and holdings never go negative: each mutation either
// applies in full or leaves the ledger untouched.
//
// A Ledger is not safe for concurrent use. It is owned by a single
// engine.Market for the duration of a tick.
package ledger

import (
	"fmt"
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
)

// Ledger tracks balances, holdings, and the number of shares issued per
// company.
type Ledger struct {
	balances map[domain.AgentID]decimal.Decimal
	holdings map[domain.CompositeKey]uint64
	issued   map[domain.CompanyID]uint64
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{
		balances: make(map[domain.AgentID]decimal.Decimal),
		holdings: make(map[domain.CompositeKey]uint64),
		issued:   make(map[domain.CompanyID]uint64),
	}
}

// Open registers an agent with a starting balance.
func (l *Ledger) Open(agent domain.AgentID, balance decimal.Decimal) error {
	if _, exists := l.balances[agent]; exists {
		return fmt.Errorf("agent %d: %w", agent, domain.ErrAgentExists)
	}
	if balance.IsNegative() {
		return fmt.Errorf("agent %d opening balance %s: %w", agent, balance, domain.ErrUnspendable)
	}
	l.balances[agent] = balance
	return nil
}

// RegisterCompany makes a company known to the ledger. Registering an
// existing company is a no-op.
func (l *Ledger) RegisterCompany(company domain.CompanyID) {
	if _, ok := l.issued[company]; !ok {
		l.issued[company] = 0
	}
}

// HasAgent reports whether the agent exists.
func (l *Ledger) HasAgent(agent domain.AgentID) bool {
	_, ok := l.balances[agent]
	return ok
}

// HasCompany reports whether the company exists.
func (l *Ledger) HasCompany(company domain.CompanyID) bool {
	_, ok := l.issued[company]
	return ok
}

// Balance returns the agent's cash balance.
func (l *Ledger) Balance(agent domain.AgentID) (decimal.Decimal, error) {
	b, ok := l.balances[agent]
	if !ok {
		return decimal.Zero, fmt.Errorf("agent %d: %w", agent, domain.ErrAgentNotFound)
	}
	return b, nil
}

// AddBalance applies a signed delta to the agent's balance. It fails with
// ErrUnspendable, leaving the balance unchanged, if the result would be
// negative.
func (l *Ledger) AddBalance(agent domain.AgentID, delta decimal.Decimal) error {
	b, ok := l.balances[agent]
	if !ok {
		return fmt.Errorf("agent %d: %w", agent, domain.ErrAgentNotFound)
	}
	next := b.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("agent %d balance %s delta %s: %w", agent, b, delta, domain.ErrUnspendable)
	}
	l.balances[agent] = next
	return nil
}

// Holding returns the number of shares the agent holds in the company.
// Unknown pairs hold zero shares.
func (l *Ledger) Holding(agent domain.AgentID, company domain.CompanyID) uint64 {
	return l.holdings[domain.Combine(agent, company)]
}

// PushHolding credits qty shares to the agent.
func (l *Ledger) PushHolding(agent domain.AgentID, company domain.CompanyID, qty uint64) error {
	if err := l.check(agent, company); err != nil {
		return err
	}
	key := domain.Combine(agent, company)
	cur := l.holdings[key]
	if qty > math.MaxUint64-cur {
		return fmt.Errorf("holding %v overflow: %w", key, domain.ErrUnspendable)
	}
	l.holdings[key] = cur + qty
	return nil
}

// PopHolding debits qty shares from the agent. It fails with
// ErrUnspendable, leaving the holding unchanged, if qty exceeds the
// current holding.
func (l *Ledger) PopHolding(agent domain.AgentID, company domain.CompanyID, qty uint64) error {
	if err := l.check(agent, company); err != nil {
		return err
	}
	key := domain.Combine(agent, company)
	cur := l.holdings[key]
	if qty > cur {
		return fmt.Errorf("holding %v has %d, need %d: %w", key, cur, qty, domain.ErrUnspendable)
	}
	if cur == qty {
		delete(l.holdings, key)
		return nil
	}
	l.holdings[key] = cur - qty
	return nil
}

// Issue creates qty new shares of company in the agent's holding and
// counts them towards the company's issued total.
func (l *Ledger) Issue(agent domain.AgentID, company domain.CompanyID, qty uint64) error {
	if err := l.PushHolding(agent, company, qty); err != nil {
		return err
	}
	l.issued[company] += qty
	return nil
}

// Grant gives an agent cash and newly issued shares in one step. Nothing
// is applied if either half fails.
func (l *Ledger) Grant(agent domain.AgentID, company domain.CompanyID, cash decimal.Decimal, shares uint64) error {
	if err := l.check(agent, company); err != nil {
		return err
	}
	if cash.IsNegative() {
		return fmt.Errorf("grant of %s to agent %d: %w", cash, agent, domain.ErrUnspendable)
	}
	if err := l.Issue(agent, company, shares); err != nil {
		return err
	}
	l.balances[agent] = l.balances[agent].Add(cash)
	return nil
}

// Issued returns the total number of shares ever issued for the company.
func (l *Ledger) Issued(company domain.CompanyID) uint64 {
	return l.issued[company]
}

// TotalCash sums every agent's balance.
func (l *Ledger) TotalCash() decimal.Decimal {
	total := decimal.Zero
	for _, b := range l.balances {
		total = total.Add(b)
	}
	return total
}

// TotalHeld sums every agent's holding in the company.
func (l *Ledger) TotalHeld(company domain.CompanyID) uint64 {
	var total uint64
	for key, qty := range l.holdings {
		if key.Company() == company {
			total += qty
		}
	}
	return total
}

// HoldingsOf returns a copy of all non-zero holdings of the agent.
func (l *Ledger) HoldingsOf(agent domain.AgentID) map[domain.CompanyID]uint64 {
	out := make(map[domain.CompanyID]uint64)
	for key, qty := range l.holdings {
		if key.Agent() == agent && qty > 0 {
			out[key.Company()] = qty
		}
	}
	return out
}

// Agents returns all agent ids in ascending order.
func (l *Ledger) Agents() []domain.AgentID {
	ids := make([]domain.AgentID, 0, len(l.balances))
	for id := range l.balances {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Companies returns all company ids in ascending order.
func (l *Ledger) Companies() []domain.CompanyID {
	ids := make([]domain.CompanyID, 0, len(l.issued))
	for id := range l.issued {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (l *Ledger) check(agent domain.AgentID, company domain.CompanyID) error {
	if _, ok := l.balances[agent]; !ok {
		return fmt.Errorf("agent %d: %w", agent, domain.ErrAgentNotFound)
	}
	if _, ok := l.issued[company]; !ok {
		return fmt.Errorf("company %d: %w", company, domain.ErrCompanyNotFound)
	}
	return nil
}
