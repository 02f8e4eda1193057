package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/engine"
	"github.com/efreitasn/stocksim/internal/sim"
)

// SubmitOrderRequest represents the input for order submission.
type SubmitOrderRequest struct {
	AgentID        domain.AgentID
	CompanyID      domain.CompanyID
	Side           string
	Price          decimal.Decimal
	Deviation      *decimal.Decimal // nil selects the service default
	Quantity       uint64
	PreferIssuance bool
}

// SubmitOrderResponse acknowledges a queued order.
type SubmitOrderResponse struct {
	Status string
	Queued int
}

// SubmitOrder validates the request and queues it for the next tick.
func (s *MarketService) SubmitOrder(req SubmitOrderRequest) (*SubmitOrderResponse, error) {
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		return nil, err
	}
	if req.Quantity == 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}
	if req.Quantity > domain.MaxQuantity {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("quantity must be <= %d", domain.MaxQuantity)}
	}
	if !req.Price.IsPositive() {
		return nil, &domain.ValidationError{Message: "price must be > 0"}
	}
	deviation := s.defaultDeviation
	if req.Deviation != nil {
		deviation = *req.Deviation
	}
	if deviation.IsNegative() {
		return nil, &domain.ValidationError{Message: "deviation must be >= 0"}
	}
	if req.PreferIssuance && side != domain.SideBuy {
		return nil, &domain.ValidationError{Message: "prefer_issuance applies to buy orders only"}
	}

	order := sim.Order{
		Request: engine.Request{
			Agent:     req.AgentID,
			Company:   req.CompanyID,
			Side:      side,
			Price:     req.Price,
			Deviation: deviation,
			Quantity:  req.Quantity,
		},
		PreferIssuance: req.PreferIssuance,
	}
	if err := s.sim.Submit(order); err != nil {
		return nil, err
	}
	return &SubmitOrderResponse{Status: "queued", Queued: s.sim.Queued()}, nil
}
