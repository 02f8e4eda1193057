package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/ledger"
)

// Request is one order submitted to the market.
type Request struct {
	Agent     domain.AgentID
	Company   domain.CompanyID
	Side      domain.Side
	Price     decimal.Decimal
	Deviation decimal.Decimal
	Quantity  uint64
}

// ResultKind tags the outcome of Market.Trade.
type ResultKind uint8

const (
	// AddedToOffers: no acceptable counter-offer existed and the request
	// now rests on the book.
	AddedToOffers ResultKind = iota + 1
	// InstantlyResolved: the request was filled in full.
	InstantlyResolved
	// PartiallyResolved: the request was filled in part and the remainder
	// rests on the book at the requester's price.
	PartiallyResolved
	// Rejected: candidates within deviation exist but every one is priced
	// worse than the requester's limit. Nothing was escrowed.
	Rejected
)

func (k ResultKind) String() string {
	switch k {
	case AddedToOffers:
		return "added_to_offers"
	case InstantlyResolved:
		return "instantly_resolved"
	case PartiallyResolved:
		return "partially_resolved"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("result(%d)", uint8(k))
}

// Result is the outcome of one request.
type Result struct {
	Kind ResultKind
	// Transaction is set for InstantlyResolved and PartiallyResolved.
	Transaction *domain.Transaction
	// Offer is the offer left resting for the requester, set for
	// AddedToOffers and PartiallyResolved.
	Offer *domain.Offer[domain.Trade]
	// Candidates holds book indices on the opposite side, set for Rejected.
	Candidates []int
}

// Recorder receives every transaction the market creates.
type Recorder interface {
	Append(tx domain.Transaction)
}

// Market executes requests against the Ledger and the offer books and
// keeps per-company price bars. It is not safe for concurrent use; one
// caller drives it for the duration of a tick.
type Market struct {
	ledger  *ledger.Ledger
	trades  *OfferBook[domain.Trade]
	options *OfferBook[domain.StockOption]
	prices  *PriceTracker
	rec     Recorder
	logger  *slog.Logger
	tick    uint64
}

// NewMarket creates a Market over the given ledger. Offers rest for
// lifetime ticks.
func NewMarket(l *ledger.Ledger, lifetime uint64, rec Recorder, logger *slog.Logger) *Market {
	if logger == nil {
		logger = slog.Default()
	}
	return &Market{
		ledger:  l,
		trades:  NewOfferBook[domain.Trade](lifetime),
		options: NewOfferBook[domain.StockOption](lifetime),
		prices:  NewPriceTracker(),
		rec:     rec,
		logger:  logger,
	}
}

// Ledger returns the underlying ledger.
func (m *Market) Ledger() *ledger.Ledger { return m.ledger }

// Book returns the trade offer book.
func (m *Market) Book() *OfferBook[domain.Trade] { return m.trades }

// Options returns the stock option offer book.
func (m *Market) Options() *OfferBook[domain.StockOption] { return m.options }

// Prices returns the price tracker.
func (m *Market) Prices() *PriceTracker { return m.prices }

// CurrentTick returns the number of completed ticks.
func (m *Market) CurrentTick() uint64 { return m.tick }

// Trade escrows the requester's cash or shares, then either fills
// against the first acceptable candidate, rests a new offer, or reports
// the worse-priced candidates. Escrow failures abort the request before
// the book is touched.
func (m *Market) Trade(req Request) (Result, error) {
	if err := m.validate(req); err != nil {
		return Result{}, err
	}
	if err := m.escrow(req.Agent, req.Company, req.Side, domain.Cost(req.Price, req.Quantity), req.Quantity); err != nil {
		return Result{}, err
	}

	counter := req.Side.Opposite()
	candidates := m.trades.FindCandidates(req.Company, req.Price, req.Deviation, counter)
	if len(candidates) == 0 {
		offer := m.trades.Submit(req.Company, domain.Offer[domain.Trade]{
			OffererID:   req.Agent,
			StrikePrice: req.Price,
			Data:        domain.Trade{Shares: req.Quantity},
		}, req.Side)
		return Result{Kind: AddedToOffers, Offer: &offer}, nil
	}

	for _, idx := range candidates {
		cand, err := m.trades.Offer(req.Company, counter, idx)
		if err != nil {
			return Result{}, err
		}
		if acceptable(req.Side, req.Price, cand.StrikePrice) {
			return m.fill(req, idx, req.Price)
		}
	}

	// Every candidate is worse than the limit. Release the escrow so a
	// declined concession leaves the requester untouched.
	if err := m.release(req.Agent, req.Company, req.Side, domain.Cost(req.Price, req.Quantity), req.Quantity); err != nil {
		return Result{}, err
	}
	return Result{Kind: Rejected, Candidates: candidates}, nil
}

// Concede fills req against the opposite-side offer at idx regardless of
// its price. It is meant to follow a Rejected result: the filled part is
// escrowed at the candidate's price and any remainder at the request's
// price.
func (m *Market) Concede(req Request, idx int) (Result, error) {
	if err := m.validate(req); err != nil {
		return Result{}, err
	}
	cand, err := m.trades.Offer(req.Company, req.Side.Opposite(), idx)
	if err != nil {
		return Result{}, err
	}

	filled := min(req.Quantity, cand.Quantity())
	cash := domain.Cost(cand.StrikePrice, filled).Add(domain.Cost(req.Price, req.Quantity-filled))
	if err := m.escrow(req.Agent, req.Company, req.Side, cash, req.Quantity); err != nil {
		return Result{}, err
	}
	return m.fill(req, idx, cand.StrikePrice)
}

// Execute runs Trade and, on a Rejected result, lets policy pick a
// candidate to concede to.
func (m *Market) Execute(req Request, policy ConcessionPolicy) (Result, error) {
	res, err := m.Trade(req)
	if err != nil || res.Kind != Rejected || policy == nil {
		return res, err
	}
	idx, ok := policy.Choose(req, res.Candidates)
	if !ok {
		return res, nil
	}
	return m.Concede(req, idx)
}

// PostOption escrows and rests a stock option offer. Options are never
// matched; they expire and are refunded like trade offers.
func (m *Market) PostOption(agent domain.AgentID, company domain.CompanyID, side domain.Side, price decimal.Decimal, opt domain.StockOption) (domain.Offer[domain.StockOption], error) {
	req := Request{Agent: agent, Company: company, Side: side, Price: price, Quantity: opt.Shares}
	if err := m.validate(req); err != nil {
		return domain.Offer[domain.StockOption]{}, err
	}
	offer := domain.Offer[domain.StockOption]{OffererID: agent, StrikePrice: price, Data: opt}
	cash, shares := offer.Escrow(side)
	if err := m.escrow(agent, company, side, cash, shares); err != nil {
		return domain.Offer[domain.StockOption]{}, err
	}
	return m.options.Submit(company, offer, side), nil
}

// fill settles req against the candidate at idx. escrowPrice is the price
// at which the requester escrowed the filled part; a buyer is refunded
// the difference to the strike price.
func (m *Market) fill(req Request, idx int, escrowPrice decimal.Decimal) (Result, error) {
	counter := req.Side.Opposite()
	cand, err := m.trades.Remove(req.Company, counter, idx)
	if err != nil {
		return Result{}, err
	}

	strike := cand.StrikePrice
	filled := min(req.Quantity, cand.Quantity())

	buyer, seller := req.Agent, cand.OffererID
	if req.Side == domain.SideSell {
		buyer, seller = cand.OffererID, req.Agent
	}

	if err := m.ledger.PushHolding(buyer, req.Company, filled); err != nil {
		return Result{}, fmt.Errorf("settle buyer: %w", err)
	}
	if err := m.ledger.AddBalance(seller, domain.Cost(strike, filled)); err != nil {
		return Result{}, fmt.Errorf("settle seller: %w", err)
	}
	if req.Side == domain.SideBuy && escrowPrice.GreaterThan(strike) {
		if err := m.ledger.AddBalance(buyer, domain.Cost(escrowPrice.Sub(strike), filled)); err != nil {
			return Result{}, fmt.Errorf("refund price improvement: %w", err)
		}
	}

	tx := domain.Transaction{
		ID:          uuid.New().String(),
		BuyerID:     buyer,
		SellerID:    seller,
		CompanyID:   req.Company,
		Shares:      filled,
		StrikePrice: strike,
		Tick:        m.tick,
	}
	m.prices.Record(req.Company, strike)
	if m.rec != nil {
		m.rec.Append(tx)
	}

	switch {
	case cand.Quantity() > filled:
		// The candidate keeps its price and escrow for the remainder.
		m.trades.Submit(req.Company, domain.Offer[domain.Trade]{
			OffererID:   cand.OffererID,
			StrikePrice: strike,
			Data:        cand.Data.WithQuantity(cand.Quantity() - filled),
		}, counter)
		return Result{Kind: InstantlyResolved, Transaction: &tx}, nil
	case req.Quantity > filled:
		rest := m.trades.Submit(req.Company, domain.Offer[domain.Trade]{
			OffererID:   req.Agent,
			StrikePrice: req.Price,
			Data:        domain.Trade{Shares: req.Quantity - filled},
		}, req.Side)
		return Result{Kind: PartiallyResolved, Transaction: &tx, Offer: &rest}, nil
	default:
		return Result{Kind: InstantlyResolved, Transaction: &tx}, nil
	}
}

func (m *Market) validate(req Request) error {
	if !req.Side.Valid() {
		return &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if req.Quantity == 0 {
		return &domain.ValidationError{Message: "quantity must be > 0"}
	}
	if req.Quantity > domain.MaxQuantity {
		return &domain.ValidationError{Message: fmt.Sprintf("quantity must be <= %d", domain.MaxQuantity)}
	}
	if !req.Price.IsPositive() {
		return &domain.ValidationError{Message: "price must be > 0"}
	}
	if req.Deviation.IsNegative() {
		return &domain.ValidationError{Message: "deviation must be >= 0"}
	}
	if !m.ledger.HasAgent(req.Agent) {
		return fmt.Errorf("agent %d: %w", req.Agent, domain.ErrAgentNotFound)
	}
	if !m.ledger.HasCompany(req.Company) {
		return fmt.Errorf("company %d: %w", req.Company, domain.ErrCompanyNotFound)
	}
	return nil
}

// escrow locks cash for a buy or shares for a sell.
func (m *Market) escrow(agent domain.AgentID, company domain.CompanyID, side domain.Side, cash decimal.Decimal, shares uint64) error {
	switch side {
	case domain.SideBuy:
		return m.ledger.AddBalance(agent, cash.Neg())
	case domain.SideSell:
		return m.ledger.PopHolding(agent, company, shares)
	}
	return &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
}

// release returns escrowed cash or shares to the agent.
func (m *Market) release(agent domain.AgentID, company domain.CompanyID, side domain.Side, cash decimal.Decimal, shares uint64) error {
	switch side {
	case domain.SideBuy:
		return m.ledger.AddBalance(agent, cash)
	case domain.SideSell:
		return m.ledger.PushHolding(agent, company, shares)
	}
	return &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
}

// acceptable reports whether a counter-offer at price is no worse for
// the taker than limit.
func acceptable(side domain.Side, limit, price decimal.Decimal) bool {
	switch side {
	case domain.SideBuy:
		return price.LessThanOrEqual(limit)
	case domain.SideSell:
		return price.GreaterThanOrEqual(limit)
	}
	panic("engine: invalid side " + side.String())
}

// IsRequestError reports whether err is confined to a single request
// and the caller should log and skip it.
func IsRequestError(err error) bool {
	var verr *domain.ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, domain.ErrAgentNotFound) ||
		errors.Is(err, domain.ErrCompanyNotFound) ||
		errors.Is(err, domain.ErrUnspendable) ||
		errors.Is(err, domain.ErrOfferNotFound)
}
