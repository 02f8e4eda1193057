package engine

import (
	"fmt"
	"slices"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
)

// DefaultOfferLifetime is the number of ticks an offer rests before it
// expires, unless the book is configured otherwise.
const DefaultOfferLifetime = 10

// indexEntry is a resting offer's position in a side's price index.
type indexEntry struct {
	Price   decimal.Decimal
	OfferID uint64
	Shares  uint64
}

// bidLess orders the buy side: price descending, then offer id
// ascending. Min() returns the best bid.
func bidLess(a, b indexEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return a.OfferID < b.OfferID
}

// askLess orders the sell side: price ascending, then offer id
// ascending. Min() returns the best ask.
func askLess(a, b indexEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	return a.OfferID < b.OfferID
}

// PriceLevel is an aggregated price level of one side of the book.
type PriceLevel struct {
	Price         decimal.Decimal
	TotalQuantity uint64
	OfferCount    int
}

// Expired is an offer evicted by a tick. The caller owns the refund.
type Expired[T domain.Payload[T]] struct {
	Company domain.CompanyID
	Side    domain.Side
	Offer   domain.Offer[T]
}

// sideBook keeps offers in insertion order, which defines candidate
// indices, alongside a price index for best-price and depth queries.
type sideBook[T domain.Payload[T]] struct {
	offers []domain.Offer[T]
	index  *btree.BTreeG[indexEntry]
}

func newSideBook[T domain.Payload[T]](less btree.LessFunc[indexEntry]) sideBook[T] {
	const degree = 32
	return sideBook[T]{index: btree.NewG[indexEntry](degree, less)}
}

func (s *sideBook[T]) insert(o domain.Offer[T]) {
	s.offers = append(s.offers, o)
	s.index.ReplaceOrInsert(entryOf(o))
}

func (s *sideBook[T]) removeAt(idx int) domain.Offer[T] {
	o := s.offers[idx]
	s.offers = slices.Delete(s.offers, idx, idx+1)
	s.index.Delete(entryOf(o))
	return o
}

func entryOf[T domain.Payload[T]](o domain.Offer[T]) indexEntry {
	return indexEntry{Price: o.StrikePrice, OfferID: o.ID, Shares: o.Quantity()}
}

// companyBook holds both sides for one company plus the lowest and
// highest strike price ever submitted. The extremes are informational.
type companyBook[T domain.Payload[T]] struct {
	buy      sideBook[T]
	sell     sideBook[T]
	minPrice decimal.Decimal
	maxPrice decimal.Decimal
	seen     bool
}

func (c *companyBook[T]) side(s domain.Side) *sideBook[T] {
	switch s {
	case domain.SideBuy:
		return &c.buy
	case domain.SideSell:
		return &c.sell
	}
	panic("engine: invalid side " + s.String())
}

// OfferBook holds resting offers of one payload kind for every company.
// It is not safe for concurrent use.
type OfferBook[T domain.Payload[T]] struct {
	lifetime uint64
	nextID   uint64
	books    map[domain.CompanyID]*companyBook[T]
}

// NewOfferBook creates an empty book whose offers rest for lifetime
// ticks. A zero lifetime selects DefaultOfferLifetime.
func NewOfferBook[T domain.Payload[T]](lifetime uint64) *OfferBook[T] {
	if lifetime == 0 {
		lifetime = DefaultOfferLifetime
	}
	return &OfferBook[T]{
		lifetime: lifetime,
		books:    make(map[domain.CompanyID]*companyBook[T]),
	}
}

// Lifetime returns the number of ticks a fresh offer rests.
func (b *OfferBook[T]) Lifetime() uint64 {
	return b.lifetime
}

func (b *OfferBook[T]) company(c domain.CompanyID) *companyBook[T] {
	cb, ok := b.books[c]
	if !ok {
		cb = &companyBook[T]{
			buy:  newSideBook[T](bidLess),
			sell: newSideBook[T](askLess),
		}
		b.books[c] = cb
	}
	return cb
}

// Submit rests an offer on the given side. The book assigns the offer id
// and, when the offer carries no lifetime, a fresh one. The stored offer
// is returned.
func (b *OfferBook[T]) Submit(company domain.CompanyID, offer domain.Offer[T], side domain.Side) domain.Offer[T] {
	cb := b.company(company)
	b.nextID++
	offer.ID = b.nextID
	if offer.Lifetime == 0 {
		offer.Lifetime = b.lifetime
	}
	cb.side(side).insert(offer)

	if !cb.seen || offer.StrikePrice.LessThan(cb.minPrice) {
		cb.minPrice = offer.StrikePrice
	}
	if !cb.seen || offer.StrikePrice.GreaterThan(cb.maxPrice) {
		cb.maxPrice = offer.StrikePrice
	}
	cb.seen = true
	return offer
}

// FindCandidates returns the indices, in insertion order, of offers on
// side whose price is within deviation of desired. A sell offer
// qualifies when its price <= desired + deviation, a buy offer when its
// price >= desired - deviation.
func (b *OfferBook[T]) FindCandidates(company domain.CompanyID, desired, deviation decimal.Decimal, side domain.Side) []int {
	cb, ok := b.books[company]
	if !ok {
		return nil
	}
	var out []int
	switch side {
	case domain.SideSell:
		ceiling := desired.Add(deviation)
		for i, o := range cb.sell.offers {
			if o.StrikePrice.LessThanOrEqual(ceiling) {
				out = append(out, i)
			}
		}
	case domain.SideBuy:
		floor := desired.Sub(deviation)
		for i, o := range cb.buy.offers {
			if o.StrikePrice.GreaterThanOrEqual(floor) {
				out = append(out, i)
			}
		}
	default:
		panic("engine: invalid side " + side.String())
	}
	return out
}

// Offer returns the offer at idx on the given side.
func (b *OfferBook[T]) Offer(company domain.CompanyID, side domain.Side, idx int) (domain.Offer[T], error) {
	cb, ok := b.books[company]
	if !ok {
		return domain.Offer[T]{}, fmt.Errorf("company %d %s[%d]: %w", company, side, idx, domain.ErrOfferNotFound)
	}
	sb := cb.side(side)
	if idx < 0 || idx >= len(sb.offers) {
		return domain.Offer[T]{}, fmt.Errorf("company %d %s[%d]: %w", company, side, idx, domain.ErrOfferNotFound)
	}
	return sb.offers[idx], nil
}

// Remove evicts and returns the offer at idx on the given side. Offers
// after idx shift down by one.
func (b *OfferBook[T]) Remove(company domain.CompanyID, side domain.Side, idx int) (domain.Offer[T], error) {
	if _, err := b.Offer(company, side, idx); err != nil {
		return domain.Offer[T]{}, err
	}
	return b.books[company].side(side).removeAt(idx), nil
}

// Tick decrements every offer's lifetime and evicts those reaching
// zero. Evicted offers are reported in ascending company order, buys
// before sells, each side in insertion order.
func (b *OfferBook[T]) Tick() []Expired[T] {
	var out []Expired[T]
	for _, company := range b.Companies() {
		cb := b.books[company]
		for _, side := range [...]domain.Side{domain.SideBuy, domain.SideSell} {
			sb := cb.side(side)
			kept := sb.offers[:0]
			for _, o := range sb.offers {
				if o.Lifetime <= 1 {
					sb.index.Delete(entryOf(o))
					o.Lifetime = 0
					out = append(out, Expired[T]{Company: company, Side: side, Offer: o})
					continue
				}
				o.Lifetime--
				kept = append(kept, o)
			}
			clear(sb.offers[len(kept):])
			sb.offers = kept
		}
	}
	return out
}

// Drain evicts every resting offer, reported in the same order as Tick.
func (b *OfferBook[T]) Drain() []Expired[T] {
	var out []Expired[T]
	for _, company := range b.Companies() {
		cb := b.books[company]
		for _, side := range [...]domain.Side{domain.SideBuy, domain.SideSell} {
			sb := cb.side(side)
			for _, o := range sb.offers {
				out = append(out, Expired[T]{Company: company, Side: side, Offer: o})
			}
			sb.offers = nil
			sb.index.Clear(false)
		}
	}
	return out
}

// Offers returns a copy of the side's offers in insertion order.
func (b *OfferBook[T]) Offers(company domain.CompanyID, side domain.Side) []domain.Offer[T] {
	cb, ok := b.books[company]
	if !ok {
		return nil
	}
	return slices.Clone(cb.side(side).offers)
}

// Best returns the best-priced offer on the side: highest buy or lowest
// sell, earliest first among equal prices.
func (b *OfferBook[T]) Best(company domain.CompanyID, side domain.Side) (domain.Offer[T], bool) {
	cb, ok := b.books[company]
	if !ok {
		return domain.Offer[T]{}, false
	}
	sb := cb.side(side)
	e, ok := sb.index.Min()
	if !ok {
		return domain.Offer[T]{}, false
	}
	for _, o := range sb.offers {
		if o.ID == e.OfferID {
			return o, true
		}
	}
	return domain.Offer[T]{}, false
}

// TopLevels returns up to depth aggregated price levels of the side,
// best price first.
func (b *OfferBook[T]) TopLevels(company domain.CompanyID, side domain.Side, depth int) []PriceLevel {
	cb, ok := b.books[company]
	if !ok || depth <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, depth)
	cb.side(side).index.Ascend(func(e indexEntry) bool {
		if n := len(levels); n > 0 && levels[n-1].Price.Equal(e.Price) {
			levels[n-1].TotalQuantity += e.Shares
			levels[n-1].OfferCount++
			return true
		}
		if len(levels) >= depth {
			return false
		}
		levels = append(levels, PriceLevel{Price: e.Price, TotalQuantity: e.Shares, OfferCount: 1})
		return true
	})
	return levels
}

// PriceRange returns the lowest and highest strike price ever submitted
// for the company.
func (b *OfferBook[T]) PriceRange(company domain.CompanyID) (lo, hi decimal.Decimal, ok bool) {
	cb, found := b.books[company]
	if !found || !cb.seen {
		return decimal.Zero, decimal.Zero, false
	}
	return cb.minPrice, cb.maxPrice, true
}

// Len returns the number of offers resting on the side.
func (b *OfferBook[T]) Len(company domain.CompanyID, side domain.Side) int {
	cb, ok := b.books[company]
	if !ok {
		return 0
	}
	return len(cb.side(side).offers)
}

// Total returns the number of offers resting on the side across all
// companies.
func (b *OfferBook[T]) Total(side domain.Side) int {
	n := 0
	for _, cb := range b.books {
		n += len(cb.side(side).offers)
	}
	return n
}

// EscrowedShares sums the shares locked in the company's sell offers.
func (b *OfferBook[T]) EscrowedShares(company domain.CompanyID) uint64 {
	cb, ok := b.books[company]
	if !ok {
		return 0
	}
	var total uint64
	for _, o := range cb.sell.offers {
		total += o.Quantity()
	}
	return total
}

// EscrowedCash sums the cash locked in buy offers across all companies.
func (b *OfferBook[T]) EscrowedCash() decimal.Decimal {
	total := decimal.Zero
	for _, cb := range b.books {
		for _, o := range cb.buy.offers {
			total = total.Add(domain.Cost(o.StrikePrice, o.Quantity()))
		}
	}
	return total
}

// Companies returns the ids of companies that have ever had an offer,
// in ascending order.
func (b *OfferBook[T]) Companies() []domain.CompanyID {
	ids := make([]domain.CompanyID, 0, len(b.books))
	for id := range b.books {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
