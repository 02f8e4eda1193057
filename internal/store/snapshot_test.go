package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
)

func setupTestDB(t *testing.T) *SnapshotStore {
	t.Helper()
	s, err := OpenSnapshotStore(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("OpenSnapshotStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Agents: []domain.AgentSnapshot{
			{ID: 1, Balance: decimal.RequireFromString("100.25"), Holdings: map[domain.CompanyID]uint64{0: 10, 1: 3}},
			{ID: 2, Balance: decimal.Zero, Holdings: map[domain.CompanyID]uint64{}},
		},
		Companies: []domain.CompanySnapshot{
			{ID: 0, SharesIssued: 10, MarketValue: domain.MarketValue{CurrentPrice: decimal.RequireFromString("12.5")}},
			{ID: 1, SharesIssued: 3},
		},
	}
}

func TestSnapshotStore_LoadEmpty(t *testing.T) {
	s := setupTestDB(t)
	if _, err := s.Load(context.Background()); !errors.Is(err, domain.ErrNoData) {
		t.Fatalf("Load error = %v, want ErrNoData", err)
	}
}

func TestSnapshotStore_SaveLoad(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	if err := s.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Agents) != 2 || len(got.Companies) != 2 {
		t.Fatalf("loaded %d agents, %d companies", len(got.Agents), len(got.Companies))
	}
	a := got.Agents[0]
	if a.ID != 1 || !a.Balance.Equal(decimal.RequireFromString("100.25")) || a.Holdings[0] != 10 || a.Holdings[1] != 3 {
		t.Errorf("agent 1 = %+v", a)
	}
	if got.Agents[1].Holdings == nil {
		t.Error("agent without holdings loaded nil map")
	}
	c := got.Companies[0]
	if c.SharesIssued != 10 || !c.MarketValue.CurrentPrice.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("company 0 = %+v", c)
	}
}

func TestSnapshotStore_SaveReplaces(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	if err := s.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	next := domain.Snapshot{
		Agents:    []domain.AgentSnapshot{{ID: 9, Balance: decimal.NewFromInt(1)}},
		Companies: []domain.CompanySnapshot{{ID: 4}},
	}
	if err := s.Save(ctx, next); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Agents) != 1 || got.Agents[0].ID != 9 || len(got.Agents[0].Holdings) != 0 {
		t.Fatalf("agents = %+v", got.Agents)
	}
	if len(got.Companies) != 1 || got.Companies[0].ID != 4 {
		t.Fatalf("companies = %+v", got.Companies)
	}
}
