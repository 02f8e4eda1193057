package domain

import "github.com/shopspring/decimal"

// AgentSnapshot is the persisted state of a single agent.
type AgentSnapshot struct {
	ID       AgentID
	Balance  decimal.Decimal
	Holdings map[CompanyID]uint64
}

// CompanySnapshot is the persisted state of a single company.
type CompanySnapshot struct {
	ID           CompanyID
	SharesIssued uint64
	MarketValue  MarketValue
}

// Snapshot round-trips the ledger and price bars between runs.
type Snapshot struct {
	Agents    []AgentSnapshot
	Companies []CompanySnapshot
}
