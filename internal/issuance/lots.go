// Package issuance runs primary-market share lots. Agents bet cash on
// lots while a company's window is open; finalizing the window allocates
// newly issued shares to the largest bets first.
package issuance

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/ledger"
)

// DefaultMinStrikePrice is the floor for a reissued lot price.
var DefaultMinStrikePrice = decimal.NewFromInt(5)

// Lots is one company's issuance window.
type Lots struct {
	Company      domain.CompanyID
	StrikePrice  decimal.Decimal
	NumberOfLots uint64
	LotSize      uint64
	TotalBets    uint64
	Open         bool
	bets         map[domain.AgentID]uint64
}

// Bet returns the number of lots the agent has bet on.
func (l *Lots) Bet(agent domain.AgentID) uint64 {
	return l.bets[agent]
}

// Bets returns a copy of all outstanding bets.
func (l *Lots) Bets() map[domain.AgentID]uint64 {
	out := make(map[domain.AgentID]uint64, len(l.bets))
	for a, n := range l.bets {
		out[a] = n
	}
	return out
}

func (l *Lots) lotCost(lots uint64) decimal.Decimal {
	return domain.Cost(l.StrikePrice, lots).Mul(decimal.NewFromUint64(l.LotSize))
}

// maxLots is the most lots one window can hold without its shares
// exceeding domain.MaxQuantity.
func (l *Lots) maxLots() uint64 {
	return domain.MaxQuantity / l.LotSize
}

// Allocation reports the outcome of a finalized window.
type Allocation struct {
	Company domain.CompanyID
	// Shares credited per agent.
	Shares map[domain.AgentID]uint64
	// Refunded cash per agent, from compression or unsatisfied bets.
	Refunded map[domain.AgentID]decimal.Decimal
	// Compressed is set when lot sizes were divided by Ratio.
	Compressed    bool
	Ratio         uint64
	LotsAllocated uint64
	// Proceeds is the bet cash consumed by allocated lots.
	Proceeds decimal.Decimal
}

// Engine owns every company's lots and escrows bets through the ledger.
// It is not safe for concurrent use.
type Engine struct {
	ledger    *ledger.Ledger
	lots      map[domain.CompanyID]*Lots
	minStrike decimal.Decimal
	logger    *slog.Logger
}

// New creates an Engine. A zero minStrike selects DefaultMinStrikePrice.
func New(l *ledger.Ledger, minStrike decimal.Decimal, logger *slog.Logger) *Engine {
	if minStrike.IsZero() {
		minStrike = DefaultMinStrikePrice
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		ledger:    l,
		lots:      make(map[domain.CompanyID]*Lots),
		minStrike: minStrike,
		logger:    logger,
	}
}

// Open starts a window for the company. Bets left from a previous
// window that was never finalized are refunded.
func (e *Engine) Open(company domain.CompanyID, strike decimal.Decimal, numberOfLots, lotSize uint64) (*Lots, error) {
	if !e.ledger.HasCompany(company) {
		return nil, fmt.Errorf("company %d: %w", company, domain.ErrCompanyNotFound)
	}
	if !strike.IsPositive() || numberOfLots == 0 || lotSize == 0 {
		return nil, &domain.ValidationError{Message: "lots need a positive strike price, lot count and lot size"}
	}
	if lotSize > domain.MaxQuantity || numberOfLots > domain.MaxQuantity/lotSize {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("a window may issue at most %d shares", domain.MaxQuantity)}
	}
	if prev, ok := e.lots[company]; ok {
		for _, agent := range sortedAgents(prev.bets) {
			e.credit(agent, prev.lotCost(prev.bets[agent]))
		}
	}
	lots := &Lots{
		Company:      company,
		StrikePrice:  strike,
		NumberOfLots: numberOfLots,
		LotSize:      lotSize,
		Open:         true,
		bets:         make(map[domain.AgentID]uint64),
	}
	e.lots[company] = lots
	return lots, nil
}

// Reissue opens a new window priced from the company's current price
// moved by shock (for example 0.1 for a 10% rise), floored at the
// engine's minimum strike price.
func (e *Engine) Reissue(company domain.CompanyID, current, shock decimal.Decimal, numberOfLots, lotSize uint64) (*Lots, error) {
	strike := current.Mul(decimal.NewFromInt(1).Add(shock))
	if strike.LessThan(e.minStrike) {
		strike = e.minStrike
	}
	return e.Open(company, strike, numberOfLots, lotSize)
}

// Lots returns the company's current window.
func (e *Engine) Lots(company domain.CompanyID) (*Lots, bool) {
	l, ok := e.lots[company]
	return l, ok
}

// IsOpen reports whether the company accepts bets.
func (e *Engine) IsOpen(company domain.CompanyID) bool {
	l, ok := e.lots[company]
	return ok && l.Open
}

// OpenCompanies returns companies with an open window in ascending order.
func (e *Engine) OpenCompanies() []domain.CompanyID {
	var ids []domain.CompanyID
	for id, l := range e.lots {
		if l.Open {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// EscrowedCash sums the cash held for outstanding bets.
func (e *Engine) EscrowedCash() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.lots {
		for _, n := range l.bets {
			total = total.Add(l.lotCost(n))
		}
	}
	return total
}

// AddBet escrows lotCount lots worth of cash from the agent.
func (e *Engine) AddBet(company domain.CompanyID, agent domain.AgentID, lotCount uint64) error {
	l, err := e.open(company)
	if err != nil {
		return err
	}
	if lotCount == 0 {
		return &domain.ValidationError{Message: "lot count must be > 0"}
	}
	if lotCount > l.maxLots()-l.TotalBets {
		return &domain.ValidationError{Message: fmt.Sprintf("window holds at most %d lots, %d already bet", l.maxLots(), l.TotalBets)}
	}
	if err := e.ledger.AddBalance(agent, l.lotCost(lotCount).Neg()); err != nil {
		return err
	}
	l.bets[agent] += lotCount
	l.TotalBets += lotCount
	return nil
}

// RemoveBet withdraws lotCount lots of the agent's bet and refunds them.
func (e *Engine) RemoveBet(company domain.CompanyID, agent domain.AgentID, lotCount uint64) error {
	l, err := e.open(company)
	if err != nil {
		return err
	}
	placed, ok := l.bets[agent]
	if !ok {
		return fmt.Errorf("agent %d has no bet on company %d: %w", agent, company, domain.ErrAgentNotFound)
	}
	if lotCount > placed {
		return fmt.Errorf("agent %d bet %d lots, asked %d: %w", agent, placed, lotCount, domain.ErrUnspendable)
	}
	if err := e.ledger.AddBalance(agent, l.lotCost(lotCount)); err != nil {
		return err
	}
	if lotCount == placed {
		delete(l.bets, agent)
	} else {
		l.bets[agent] = placed - lotCount
	}
	l.TotalBets -= lotCount
	return nil
}

// Finalize closes the company's window. It compresses lots when the
// bets divide them exactly, then allocates shares to the largest bets
// first. Bets that no longer fit are refunded. All bets are cleared.
func (e *Engine) Finalize(company domain.CompanyID) (Allocation, error) {
	l, err := e.open(company)
	if err != nil {
		return Allocation{}, err
	}
	alloc := Allocation{
		Company:  company,
		Shares:   make(map[domain.AgentID]uint64),
		Refunded: make(map[domain.AgentID]decimal.Decimal),
		Ratio:    1,
		Proceeds: decimal.Zero,
	}

	ratio, err := e.compress(l, &alloc)
	switch {
	case err == nil:
		alloc.Compressed = true
		alloc.Ratio = ratio
	case errors.Is(err, domain.ErrUnDoable):
		e.logger.Debug("lot compression skipped",
			slog.Uint64("company_id", uint64(company)),
			slog.Uint64("total_bets", l.TotalBets),
			slog.Uint64("number_of_lots", l.NumberOfLots),
		)
	default:
		return Allocation{}, err
	}

	e.distribute(l, &alloc)

	l.bets = make(map[domain.AgentID]uint64)
	l.TotalBets = 0
	l.Open = false
	return alloc, nil
}

// compress divides the lot size by ratio = total bets / number of lots
// and multiplies the lot count by it, so every bet fits. Each bettor is
// refunded the cash of the shares removed from their lots.
func (e *Engine) compress(l *Lots, alloc *Allocation) (uint64, error) {
	if l.TotalBets == 0 || l.TotalBets%l.NumberOfLots != 0 {
		return 0, domain.ErrUnDoable
	}
	ratio := l.TotalBets / l.NumberOfLots
	if ratio < 2 || l.LotSize%ratio != 0 {
		return 0, domain.ErrUnDoable
	}

	newSize := l.LotSize / ratio
	perLot := domain.Cost(l.StrikePrice, l.LotSize-newSize)
	for _, agent := range sortedAgents(l.bets) {
		refund := perLot.Mul(decimal.NewFromUint64(l.bets[agent]))
		e.credit(agent, refund)
		alloc.Refunded[agent] = alloc.Refunded[agent].Add(refund)
	}
	l.LotSize = newSize
	l.NumberOfLots *= ratio
	return ratio, nil
}

// distribute credits whole bets in descending bet size, ties by agent
// id, while lots remain. A bet larger than what remains is refunded and
// smaller bets are still considered.
func (e *Engine) distribute(l *Lots, alloc *Allocation) {
	type bet struct {
		agent domain.AgentID
		lots  uint64
	}
	bets := make([]bet, 0, len(l.bets))
	for a, n := range l.bets {
		bets = append(bets, bet{a, n})
	}
	slices.SortFunc(bets, func(a, b bet) int {
		if c := cmp.Compare(b.lots, a.lots); c != 0 {
			return c
		}
		return cmp.Compare(a.agent, b.agent)
	})

	remaining := l.NumberOfLots
	for _, b := range bets {
		cost := l.lotCost(b.lots)
		if b.lots > remaining {
			e.credit(b.agent, cost)
			alloc.Refunded[b.agent] = alloc.Refunded[b.agent].Add(cost)
			continue
		}
		shares := b.lots * l.LotSize
		if err := e.ledger.Issue(b.agent, l.Company, shares); err != nil {
			e.logger.Error("issue lot shares",
				slog.Uint64("agent_id", uint64(b.agent)),
				slog.Uint64("company_id", uint64(l.Company)),
				slog.String("error", err.Error()),
			)
			e.credit(b.agent, cost)
			alloc.Refunded[b.agent] = alloc.Refunded[b.agent].Add(cost)
			continue
		}
		remaining -= b.lots
		alloc.Shares[b.agent] += shares
		alloc.LotsAllocated += b.lots
		alloc.Proceeds = alloc.Proceeds.Add(cost)
	}
	l.NumberOfLots = remaining
}

// CancelAll refunds every outstanding bet and closes every window. It
// returns the number of bets refunded.
func (e *Engine) CancelAll() int {
	n := 0
	for _, company := range slices.Sorted(maps.Keys(e.lots)) {
		l := e.lots[company]
		for _, agent := range sortedAgents(l.bets) {
			e.credit(agent, l.lotCost(l.bets[agent]))
			n++
		}
		l.bets = make(map[domain.AgentID]uint64)
		l.TotalBets = 0
		l.Open = false
	}
	return n
}

func (e *Engine) open(company domain.CompanyID) (*Lots, error) {
	l, ok := e.lots[company]
	if !ok || !l.Open {
		return nil, fmt.Errorf("company %d: %w", company, domain.ErrLotsClosed)
	}
	return l, nil
}

func (e *Engine) credit(agent domain.AgentID, cash decimal.Decimal) {
	if err := e.ledger.AddBalance(agent, cash); err != nil {
		e.logger.Error("refund bet",
			slog.Uint64("agent_id", uint64(agent)),
			slog.String("error", err.Error()),
		)
	}
}

func sortedAgents(m map[domain.AgentID]uint64) []domain.AgentID {
	ids := make([]domain.AgentID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
