package domain

import "github.com/shopspring/decimal"

// Trade is the payload of a plain share offer.
type Trade struct {
	Shares uint64
}

// Quantity returns the number of shares offered.
func (t Trade) Quantity() uint64 { return t.Shares }

// WithQuantity returns a copy carrying n shares.
func (t Trade) WithQuantity(n uint64) Trade { return Trade{Shares: n} }

// StockOption is the payload of an option offer: a share quantity
// exercisable within Horizon ticks.
type StockOption struct {
	Shares  uint64
	Horizon uint64
}

// Quantity returns the number of shares covered by the option.
func (o StockOption) Quantity() uint64 { return o.Shares }

// WithQuantity returns a copy carrying n shares and the same horizon.
func (o StockOption) WithQuantity(n uint64) StockOption {
	return StockOption{Shares: n, Horizon: o.Horizon}
}

// Payload constrains what an Offer can carry.
type Payload[T any] interface {
	Trade | StockOption
	Quantity() uint64
	WithQuantity(n uint64) T
}

// Offer is a resting order awaiting a counterparty. Lifetime counts the
// ticks left before the offer expires and is refunded.
type Offer[T Payload[T]] struct {
	ID          uint64
	OffererID   AgentID
	StrikePrice decimal.Decimal
	Data        T
	Lifetime    uint64
}

// Quantity returns the payload's share count.
func (o Offer[T]) Quantity() uint64 {
	return o.Data.Quantity()
}

// Escrow returns the resources the offerer locked when the offer was
// created: cash for a buy, shares for a sell.
func (o Offer[T]) Escrow(side Side) (cash decimal.Decimal, shares uint64) {
	switch side {
	case SideBuy:
		return Cost(o.StrikePrice, o.Quantity()), 0
	case SideSell:
		return decimal.Zero, o.Quantity()
	}
	panic("domain: invalid side " + side.String())
}
