package domain

import "github.com/shopspring/decimal"

// MarketValue is a company's price bar, recomputed once per tick.
type MarketValue struct {
	CurrentPrice         decimal.Decimal `json:"current_price"`
	HighestPrice         decimal.Decimal `json:"highest_price"`
	LowestPrice          decimal.Decimal `json:"lowest_price"`
	OverallMovementStart decimal.Decimal `json:"overall_movement_start"`
	OverallMovementEnd   decimal.Decimal `json:"overall_movement_end"`
}

// Movement returns end - start of the overall movement.
func (mv MarketValue) Movement() decimal.Decimal {
	return mv.OverallMovementEnd.Sub(mv.OverallMovementStart)
}
