package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/engine"
	"github.com/efreitasn/stocksim/internal/issuance"
	"github.com/efreitasn/stocksim/internal/sim"
	"github.com/efreitasn/stocksim/internal/store"
)

const (
	// DefaultBookDepth is the number of price levels returned when the
	// caller asks for none.
	DefaultBookDepth = 10
	maxBookDepth     = 50

	// DefaultTransactionLimit caps a transaction listing by default.
	DefaultTransactionLimit = 100
	maxTransactionLimit     = 1000
)

// BalanceResponse represents the response for the agent balance endpoint.
type BalanceResponse struct {
	AgentID  domain.AgentID
	Balance  decimal.Decimal
	Holdings map[domain.CompanyID]uint64
}

// HoldingResponse represents one agent's stake in one company.
type HoldingResponse struct {
	AgentID   domain.AgentID
	CompanyID domain.CompanyID
	Shares    uint64
}

// PriceResponse represents the response for GET /companies/{id}/price.
type PriceResponse struct {
	CompanyID    domain.CompanyID
	Value        domain.MarketValue
	Movement     decimal.Decimal
	PendingFills int // fills since the last tick, not yet in Value
	Tick         uint64
}

// BookResponse represents the response for GET /companies/{id}/book.
type BookResponse struct {
	CompanyID  domain.CompanyID
	Bids       []engine.PriceLevel
	Asks       []engine.PriceLevel
	Spread     *decimal.Decimal // nil if either side empty
	// MinPrice and MaxPrice bound every strike ever offered; nil before
	// the first offer.
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	BuyOffers  int
	SellOffers int
	Options    int
	Tick       uint64
}

// LotsResponse represents the response for GET /companies/{id}/lots.
type LotsResponse struct {
	CompanyID    domain.CompanyID
	Open         bool
	StrikePrice  decimal.Decimal
	NumberOfLots uint64
	LotSize      uint64
	TotalBets    uint64
	Bettors      int
}

// StatusResponse summarizes the whole market.
type StatusResponse struct {
	Tick           uint64
	Agents         int
	Companies      int
	OpenBuyOffers  int
	OpenSellOffers int
	OpenLots       int
	PendingRetries int
	QueuedOrders   int
	Transactions   uint64
	TotalCash      decimal.Decimal
	EscrowedCash   decimal.Decimal
}

// MarketService answers read queries against the simulator and queues
// external orders for it.
type MarketService struct {
	sim              *sim.Simulator
	txlog            *store.TransactionLog
	defaultDeviation decimal.Decimal
}

// NewMarketService creates a new MarketService. Orders that carry no
// deviation use defaultDeviation.
func NewMarketService(s *sim.Simulator, txlog *store.TransactionLog, defaultDeviation decimal.Decimal) *MarketService {
	return &MarketService{
		sim:              s,
		txlog:            txlog,
		defaultDeviation: defaultDeviation,
	}
}

// GetBalance returns the agent's cash balance and holdings.
func (s *MarketService) GetBalance(agent domain.AgentID) (*BalanceResponse, error) {
	var (
		resp *BalanceResponse
		err  error
	)
	s.sim.View(func(m *engine.Market, _ *issuance.Engine) {
		l := m.Ledger()
		balance, berr := l.Balance(agent)
		if berr != nil {
			err = berr
			return
		}
		resp = &BalanceResponse{
			AgentID:  agent,
			Balance:  balance,
			Holdings: l.HoldingsOf(agent),
		}
	})
	return resp, err
}

// GetHolding returns the agent's shares of one company.
func (s *MarketService) GetHolding(agent domain.AgentID, company domain.CompanyID) (*HoldingResponse, error) {
	var (
		resp *HoldingResponse
		err  error
	)
	s.sim.View(func(m *engine.Market, _ *issuance.Engine) {
		l := m.Ledger()
		if !l.HasAgent(agent) {
			err = fmt.Errorf("agent %d: %w", agent, domain.ErrAgentNotFound)
			return
		}
		if !l.HasCompany(company) {
			err = fmt.Errorf("company %d: %w", company, domain.ErrCompanyNotFound)
			return
		}
		resp = &HoldingResponse{AgentID: agent, CompanyID: company, Shares: l.Holding(agent, company)}
	})
	return resp, err
}

// GetPrice returns the company's current price bar.
func (s *MarketService) GetPrice(company domain.CompanyID) (*PriceResponse, error) {
	var (
		resp *PriceResponse
		err  error
	)
	s.sim.View(func(m *engine.Market, _ *issuance.Engine) {
		if !m.Ledger().HasCompany(company) {
			err = fmt.Errorf("company %d: %w", company, domain.ErrCompanyNotFound)
			return
		}
		mv, verr := m.Prices().Value(company)
		if verr != nil {
			err = verr
			return
		}
		resp = &PriceResponse{
			CompanyID:    company,
			Value:        mv,
			Movement:     mv.Movement(),
			PendingFills: m.Prices().Pending(company),
			Tick:         m.CurrentTick(),
		}
	})
	return resp, err
}

// GetBook returns the top depth price levels of each side of the
// company's trade book.
func (s *MarketService) GetBook(company domain.CompanyID, depth int) (*BookResponse, error) {
	if depth < 1 || depth > maxBookDepth {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("depth must be between 1 and %d", maxBookDepth),
		}
	}

	var (
		resp *BookResponse
		err  error
	)
	s.sim.View(func(m *engine.Market, _ *issuance.Engine) {
		if !m.Ledger().HasCompany(company) {
			err = fmt.Errorf("company %d: %w", company, domain.ErrCompanyNotFound)
			return
		}
		book := m.Book()
		resp = &BookResponse{
			CompanyID:  company,
			Bids:       book.TopLevels(company, domain.SideBuy, depth),
			Asks:       book.TopLevels(company, domain.SideSell, depth),
			BuyOffers:  book.Len(company, domain.SideBuy),
			SellOffers: book.Len(company, domain.SideSell),
			Options:    m.Options().Len(company, domain.SideBuy) + m.Options().Len(company, domain.SideSell),
			Tick:       m.CurrentTick(),
		}
		bid, hasBid := book.Best(company, domain.SideBuy)
		ask, hasAsk := book.Best(company, domain.SideSell)
		if hasBid && hasAsk {
			spread := ask.StrikePrice.Sub(bid.StrikePrice)
			resp.Spread = &spread
		}
		if lo, hi, ok := book.PriceRange(company); ok {
			resp.MinPrice, resp.MaxPrice = &lo, &hi
		}
	})
	return resp, err
}

// GetLots returns the company's issuance window. It fails with
// ErrLotsClosed when the company never had one.
func (s *MarketService) GetLots(company domain.CompanyID) (*LotsResponse, error) {
	var (
		resp *LotsResponse
		err  error
	)
	s.sim.View(func(m *engine.Market, iss *issuance.Engine) {
		if !m.Ledger().HasCompany(company) {
			err = fmt.Errorf("company %d: %w", company, domain.ErrCompanyNotFound)
			return
		}
		if iss == nil {
			err = fmt.Errorf("company %d: %w", company, domain.ErrLotsClosed)
			return
		}
		lots, ok := iss.Lots(company)
		if !ok {
			err = fmt.Errorf("company %d: %w", company, domain.ErrLotsClosed)
			return
		}
		resp = &LotsResponse{
			CompanyID:    company,
			Open:         lots.Open,
			StrikePrice:  lots.StrikePrice,
			NumberOfLots: lots.NumberOfLots,
			LotSize:      lots.LotSize,
			TotalBets:    lots.TotalBets,
			Bettors:      len(lots.Bets()),
		}
	})
	return resp, err
}

// ListTransactions returns up to limit of the most recent transactions,
// oldest first. A nil company lists every company. A zero limit selects
// DefaultTransactionLimit.
func (s *MarketService) ListTransactions(company *domain.CompanyID, limit int) ([]domain.Transaction, error) {
	if limit == 0 {
		limit = DefaultTransactionLimit
	}
	if limit < 1 || limit > maxTransactionLimit {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("limit must be between 1 and %d", maxTransactionLimit),
		}
	}
	if company == nil {
		return s.txlog.Recent(limit), nil
	}

	var err error
	s.sim.View(func(m *engine.Market, _ *issuance.Engine) {
		if !m.Ledger().HasCompany(*company) {
			err = fmt.Errorf("company %d: %w", *company, domain.ErrCompanyNotFound)
		}
	})
	if err != nil {
		return nil, err
	}
	return s.txlog.ByCompany(*company, limit), nil
}

// Status summarizes the market.
func (s *MarketService) Status() *StatusResponse {
	resp := &StatusResponse{
		PendingRetries: s.sim.PendingRetries(),
		QueuedOrders:   s.sim.Queued(),
		Transactions:   s.txlog.Total(),
	}
	s.sim.View(func(m *engine.Market, iss *issuance.Engine) {
		l := m.Ledger()
		resp.Tick = m.CurrentTick()
		resp.Agents = len(l.Agents())
		resp.Companies = len(l.Companies())
		resp.OpenBuyOffers = m.Book().Total(domain.SideBuy)
		resp.OpenSellOffers = m.Book().Total(domain.SideSell)
		resp.TotalCash = l.TotalCash()
		resp.EscrowedCash = m.Book().EscrowedCash().Add(m.Options().EscrowedCash())
		if iss != nil {
			resp.OpenLots = len(iss.OpenCompanies())
			resp.EscrowedCash = resp.EscrowedCash.Add(iss.EscrowedCash())
		}
	})
	return resp
}
