package engine

import (
	"log/slog"

	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/ledger"
)

// Snapshot captures the ledger together with each company's price bar.
// Shares and cash escrowed in open offers are not part of the snapshot;
// call Drain first to return them to their owners.
func (m *Market) Snapshot() domain.Snapshot {
	snap := m.ledger.Snapshot()
	for i, c := range snap.Companies {
		if mv, err := m.prices.Value(c.ID); err == nil {
			snap.Companies[i].MarketValue = mv
		}
	}
	return snap
}

// Restore rebuilds a Market from a snapshot, seeding each company's
// price bar. Companies saved without a price stay unpriced.
func Restore(snap domain.Snapshot, lifetime uint64, rec Recorder, logger *slog.Logger) (*Market, error) {
	l, err := ledger.Restore(snap)
	if err != nil {
		return nil, err
	}
	m := NewMarket(l, lifetime, rec, logger)
	for _, c := range snap.Companies {
		if c.MarketValue.CurrentPrice.IsZero() {
			continue
		}
		m.prices.Seed(c.ID, c.MarketValue)
	}
	return m, nil
}
