package sim

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
)

func TestBootstrap(t *testing.T) {
	snap, err := Bootstrap(50, 4, 9)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if len(snap.Agents) != 50 || len(snap.Companies) != 4 {
		t.Fatalf("got %d agents, %d companies", len(snap.Agents), len(snap.Companies))
	}

	held := make(map[domain.CompanyID]uint64)
	for _, a := range snap.Agents {
		if a.Balance.IsNegative() || a.Balance.GreaterThanOrEqual(decimal.NewFromInt(1000)) {
			t.Errorf("agent %d balance %s out of range", a.ID, a.Balance)
		}
		for c, n := range a.Holdings {
			held[c] += n
		}
	}
	lo, hi := decimal.NewFromInt(1), decimal.NewFromInt(100)
	for _, c := range snap.Companies {
		mv := c.MarketValue
		if mv.CurrentPrice.LessThan(lo) || mv.CurrentPrice.GreaterThan(hi) {
			t.Errorf("company %d price %s out of range", c.ID, mv.CurrentPrice)
		}
		if !mv.HighestPrice.Equal(mv.CurrentPrice) || !mv.LowestPrice.Equal(mv.CurrentPrice) {
			t.Errorf("company %d bar not flat: %+v", c.ID, mv)
		}
		if c.SharesIssued != held[c.ID] {
			t.Errorf("company %d issued %d, held %d", c.ID, c.SharesIssued, held[c.ID])
		}
	}
}

func TestBootstrap_Deterministic(t *testing.T) {
	a, err := Bootstrap(10, 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Bootstrap(10, 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Agents {
		if !a.Agents[i].Balance.Equal(b.Agents[i].Balance) {
			t.Fatalf("agent %d balance differs", a.Agents[i].ID)
		}
	}
	for i := range a.Companies {
		if !a.Companies[i].MarketValue.CurrentPrice.Equal(b.Companies[i].MarketValue.CurrentPrice) {
			t.Fatalf("company %d price differs", a.Companies[i].ID)
		}
	}
}

func TestBootstrap_Invalid(t *testing.T) {
	var verr *domain.ValidationError
	if _, err := Bootstrap(0, 1, 1); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if _, err := Bootstrap(1, 0, 1); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}
