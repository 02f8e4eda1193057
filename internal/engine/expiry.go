package engine

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
)

// TickReport summarizes one maintenance pass of the market.
type TickReport struct {
	Tick           uint64
	Expired        []Expired[domain.Trade]
	ExpiredOptions []Expired[domain.StockOption]
	Bars           map[domain.CompanyID]domain.MarketValue
}

// Tick ends the current tick: it ages every offer, refunds the escrow of
// expired ones to their offerers, and folds each company's buffered fill
// prices into its bar.
func (m *Market) Tick() TickReport {
	report := TickReport{
		Expired:        m.trades.Tick(),
		ExpiredOptions: m.options.Tick(),
		Bars:           make(map[domain.CompanyID]domain.MarketValue),
	}
	for _, e := range report.Expired {
		m.refund(e.Company, e.Side, e.Offer.OffererID, e.Offer)
	}
	for _, e := range report.ExpiredOptions {
		m.refund(e.Company, e.Side, e.Offer.OffererID, e.Offer)
	}
	for _, company := range m.ledger.Companies() {
		if bar, ok := m.prices.Tick(company); ok {
			report.Bars[company] = bar
		}
	}

	m.tick++
	report.Tick = m.tick
	return report
}

// Drain removes every resting offer from both books and refunds its
// escrow. It returns the number of offers drained.
func (m *Market) Drain() int {
	trades := m.trades.Drain()
	for _, e := range trades {
		m.refund(e.Company, e.Side, e.Offer.OffererID, e.Offer)
	}
	options := m.options.Drain()
	for _, e := range options {
		m.refund(e.Company, e.Side, e.Offer.OffererID, e.Offer)
	}
	return len(trades) + len(options)
}

type escrowed interface {
	Escrow(side domain.Side) (cash decimal.Decimal, shares uint64)
}

func (m *Market) refund(company domain.CompanyID, side domain.Side, agent domain.AgentID, offer escrowed) {
	cash, shares := offer.Escrow(side)
	if err := m.release(agent, company, side, cash, shares); err != nil {
		m.logger.Error("refund expired offer",
			slog.Uint64("agent_id", uint64(agent)),
			slog.Uint64("company_id", uint64(company)),
			slog.String("side", side.String()),
			slog.String("error", err.Error()),
		)
	}
}
