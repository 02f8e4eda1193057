package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
)

// PriceTracker accumulates fill prices per company and folds them into a
// MarketValue bar once per tick.
type PriceTracker struct {
	values  map[domain.CompanyID]domain.MarketValue
	buffers map[domain.CompanyID][]decimal.Decimal
}

// NewPriceTracker creates an empty tracker.
func NewPriceTracker() *PriceTracker {
	return &PriceTracker{
		values:  make(map[domain.CompanyID]domain.MarketValue),
		buffers: make(map[domain.CompanyID][]decimal.Decimal),
	}
}

// Seed sets a company's bar, typically from a restored snapshot. Any
// buffered prices for the company are discarded.
func (p *PriceTracker) Seed(company domain.CompanyID, mv domain.MarketValue) {
	p.values[company] = mv
	delete(p.buffers, company)
}

// Record appends a fill price to the company's buffer.
func (p *PriceTracker) Record(company domain.CompanyID, price decimal.Decimal) {
	p.buffers[company] = append(p.buffers[company], price)
}

// Pending returns the number of prices buffered since the last tick.
func (p *PriceTracker) Pending(company domain.CompanyID) int {
	return len(p.buffers[company])
}

// Tick folds the company's buffer into its bar and clears the buffer.
// With an empty buffer the bar is held flat at the current price. It
// reports false, and records nothing, for a company that has no bar and
// no buffered prices.
func (p *PriceTracker) Tick(company domain.CompanyID) (domain.MarketValue, bool) {
	mv, ok := p.values[company]
	buf := p.buffers[company]
	if len(buf) == 0 {
		if !ok {
			return domain.MarketValue{}, false
		}
		mv.HighestPrice = mv.CurrentPrice
		mv.LowestPrice = mv.CurrentPrice
		p.values[company] = mv
		return mv, true
	}

	hi, lo, sum := buf[0], buf[0], decimal.Zero
	for _, price := range buf {
		if price.GreaterThan(hi) {
			hi = price
		}
		if price.LessThan(lo) {
			lo = price
		}
		sum = sum.Add(price)
	}
	mv.HighestPrice = hi
	mv.LowestPrice = lo
	mv.CurrentPrice = sum.Div(decimal.NewFromInt(int64(len(buf))))
	mv.OverallMovementStart = mv.OverallMovementEnd
	mv.OverallMovementEnd = buf[len(buf)-1]

	p.values[company] = mv
	delete(p.buffers, company)
	return mv, true
}

// Value returns the company's current bar. It fails with ErrNoData when
// the company has neither been seeded nor ticked.
func (p *PriceTracker) Value(company domain.CompanyID) (domain.MarketValue, error) {
	mv, ok := p.values[company]
	if !ok {
		return domain.MarketValue{}, fmt.Errorf("company %d price: %w", company, domain.ErrNoData)
	}
	return mv, nil
}
