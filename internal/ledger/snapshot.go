package ledger

import (
	"fmt"

	"github.com/efreitasn/stocksim/internal/domain"
)

// Snapshot captures agents and companies in ascending id order. Market
// values are left zero; the price tracker fills them in.
func (l *Ledger) Snapshot() domain.Snapshot {
	agents := l.Agents()
	snap := domain.Snapshot{
		Agents:    make([]domain.AgentSnapshot, 0, len(agents)),
		Companies: make([]domain.CompanySnapshot, 0, len(l.issued)),
	}
	byAgent := make(map[domain.AgentID]map[domain.CompanyID]uint64, len(agents))
	for key, qty := range l.holdings {
		m := byAgent[key.Agent()]
		if m == nil {
			m = make(map[domain.CompanyID]uint64)
			byAgent[key.Agent()] = m
		}
		m[key.Company()] = qty
	}
	for _, id := range agents {
		h := byAgent[id]
		if h == nil {
			h = make(map[domain.CompanyID]uint64)
		}
		snap.Agents = append(snap.Agents, domain.AgentSnapshot{
			ID:       id,
			Balance:  l.balances[id],
			Holdings: h,
		})
	}
	for _, id := range l.Companies() {
		snap.Companies = append(snap.Companies, domain.CompanySnapshot{
			ID:           id,
			SharesIssued: l.issued[id],
		})
	}
	return snap
}

// Restore rebuilds a Ledger from a snapshot. Companies referenced only by
// holdings are registered implicitly; their issued count is raised to
// cover the held shares.
func Restore(snap domain.Snapshot) (*Ledger, error) {
	l := New()
	for _, c := range snap.Companies {
		if _, dup := l.issued[c.ID]; dup {
			return nil, fmt.Errorf("restore: duplicate company %d", c.ID)
		}
		l.issued[c.ID] = c.SharesIssued
	}
	held := make(map[domain.CompanyID]uint64)
	for _, a := range snap.Agents {
		if err := l.Open(a.ID, a.Balance); err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
		for company, qty := range a.Holdings {
			if qty == 0 {
				continue
			}
			l.RegisterCompany(company)
			l.holdings[domain.Combine(a.ID, company)] = qty
			held[company] += qty
		}
	}
	for company, qty := range held {
		if l.issued[company] < qty {
			l.issued[company] = qty
		}
	}
	return l, nil
}
