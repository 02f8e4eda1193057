package engine

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/efreitasn/stocksim/internal/domain"
)

// Feature: stocksim, Property: book ordering and tick idempotence

func genTradeOffer(t *rapid.T, label string) domain.Offer[domain.Trade] {
	return domain.Offer[domain.Trade]{
		OffererID:   domain.AgentID(rapid.IntRange(0, 5).Draw(t, label+"-agent")),
		StrikePrice: decimal.NewFromInt(rapid.Int64Range(1, 50).Draw(t, label+"-price")),
		Data:        domain.Trade{Shares: rapid.Uint64Range(1, 100).Draw(t, label+"-shares")},
	}
}

func TestProperty_TopLevelsSorted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOfferBook[domain.Trade](10)
		n := rapid.IntRange(1, 50).Draw(t, "n")
		for i := 0; i < n; i++ {
			book.Submit(0, genTradeOffer(t, fmt.Sprintf("bid-%d", i)), domain.SideBuy)
			book.Submit(0, genTradeOffer(t, fmt.Sprintf("ask-%d", i)), domain.SideSell)
		}

		bids := book.TopLevels(0, domain.SideBuy, n)
		for i := 1; i < len(bids); i++ {
			if !bids[i].Price.LessThan(bids[i-1].Price) {
				t.Fatalf("bid levels not strictly descending: %s after %s", bids[i].Price, bids[i-1].Price)
			}
		}
		asks := book.TopLevels(0, domain.SideSell, n)
		for i := 1; i < len(asks); i++ {
			if !asks[i].Price.GreaterThan(asks[i-1].Price) {
				t.Fatalf("ask levels not strictly ascending: %s after %s", asks[i].Price, asks[i-1].Price)
			}
		}

		var total uint64
		for _, o := range book.Offers(0, domain.SideSell) {
			total += o.Quantity()
		}
		var levelTotal uint64
		for _, lvl := range asks {
			levelTotal += lvl.TotalQuantity
		}
		if total != levelTotal {
			t.Fatalf("ask levels hold %d shares, offers hold %d", levelTotal, total)
		}
		if best, ok := book.Best(0, domain.SideSell); !ok || !best.StrikePrice.Equal(asks[0].Price) {
			t.Fatalf("Best ask = %s, top level = %s", best.StrikePrice, asks[0].Price)
		}
	})
}

// A tick that expires nothing only ages the offers: order, prices and
// quantities are unchanged.
func TestProperty_IdempotentTick(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOfferBook[domain.Trade](100)
		n := rapid.IntRange(0, 30).Draw(t, "n")
		for i := 0; i < n; i++ {
			side := domain.SideBuy
			if rapid.Bool().Draw(t, "sell") {
				side = domain.SideSell
			}
			book.Submit(domain.CompanyID(rapid.IntRange(0, 2).Draw(t, "company")), genTradeOffer(t, "offer"), side)
		}

		type snap struct {
			buy, sell []domain.Offer[domain.Trade]
		}
		before := map[domain.CompanyID]snap{}
		for _, c := range book.Companies() {
			before[c] = snap{book.Offers(c, domain.SideBuy), book.Offers(c, domain.SideSell)}
		}

		if got := book.Tick(); len(got) != 0 {
			t.Fatalf("Tick expired %d offers, want 0", len(got))
		}

		for c, s := range before {
			for side, want := range map[domain.Side][]domain.Offer[domain.Trade]{domain.SideBuy: s.buy, domain.SideSell: s.sell} {
				got := book.Offers(c, side)
				if len(got) != len(want) {
					t.Fatalf("company %d %s: %d offers, want %d", c, side, len(got), len(want))
				}
				for i := range got {
					if got[i].ID != want[i].ID || !got[i].StrikePrice.Equal(want[i].StrikePrice) ||
						got[i].Quantity() != want[i].Quantity() || got[i].Lifetime != want[i].Lifetime-1 {
						t.Fatalf("company %d %s[%d] = %+v, was %+v", c, side, i, got[i], want[i])
					}
				}
			}
		}
	})
}
