package domain

import "github.com/shopspring/decimal"

// Transaction is an immutable record of one resolved fill.
type Transaction struct {
	ID          string          `json:"id"`
	BuyerID     AgentID         `json:"buyer_id"`
	SellerID    AgentID         `json:"seller_id"`
	CompanyID   CompanyID       `json:"company_id"`
	Shares      uint64          `json:"shares"`
	StrikePrice decimal.Decimal `json:"strike_price"`
	Tick        uint64          `json:"tick"`
}

// Value returns the cash that moved from buyer to seller.
func (t Transaction) Value() decimal.Decimal {
	return Cost(t.StrikePrice, t.Shares)
}
