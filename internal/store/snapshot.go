package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/efreitasn/stocksim/internal/domain"
)

type agentRow struct {
	ID      uint64          `gorm:"primaryKey;autoIncrement:false"`
	Balance decimal.Decimal `gorm:"type:text;not null"`
}

func (agentRow) TableName() string { return "agents" }

type holdingRow struct {
	AgentID   uint64 `gorm:"primaryKey;autoIncrement:false"`
	CompanyID uint64 `gorm:"primaryKey;autoIncrement:false"`
	Shares    uint64 `gorm:"not null"`
}

func (holdingRow) TableName() string { return "holdings" }

type companyRow struct {
	ID                   uint64          `gorm:"primaryKey;autoIncrement:false"`
	SharesIssued         uint64          `gorm:"not null"`
	CurrentPrice         decimal.Decimal `gorm:"type:text;not null"`
	HighestPrice         decimal.Decimal `gorm:"type:text;not null"`
	LowestPrice          decimal.Decimal `gorm:"type:text;not null"`
	OverallMovementStart decimal.Decimal `gorm:"type:text;not null"`
	OverallMovementEnd   decimal.Decimal `gorm:"type:text;not null"`
}

func (companyRow) TableName() string { return "companies" }

// SnapshotStore persists market snapshots in a SQLite database. Each Save
// replaces the previous snapshot.
type SnapshotStore struct {
	db *gorm.DB
}

// OpenSnapshotStore opens (creating if needed) the database at path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	if err := db.AutoMigrate(&agentRow{}, &holdingRow{}, &companyRow{}); err != nil {
		return nil, fmt.Errorf("migrate snapshot database: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SnapshotStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save replaces the stored snapshot with snap in one transaction.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	agents := make([]agentRow, 0, len(snap.Agents))
	var holdings []holdingRow
	for _, a := range snap.Agents {
		agents = append(agents, agentRow{ID: uint64(a.ID), Balance: a.Balance})
		for company, shares := range a.Holdings {
			if shares == 0 {
				continue
			}
			holdings = append(holdings, holdingRow{AgentID: uint64(a.ID), CompanyID: uint64(company), Shares: shares})
		}
	}
	companies := make([]companyRow, 0, len(snap.Companies))
	for _, c := range snap.Companies {
		mv := c.MarketValue
		companies = append(companies, companyRow{
			ID:                   uint64(c.ID),
			SharesIssued:         c.SharesIssued,
			CurrentPrice:         mv.CurrentPrice,
			HighestPrice:         mv.HighestPrice,
			LowestPrice:          mv.LowestPrice,
			OverallMovementStart: mv.OverallMovementStart,
			OverallMovementEnd:   mv.OverallMovementEnd,
		})
	}

	const batch = 500
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&holdingRow{}, &agentRow{}, &companyRow{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return fmt.Errorf("clear snapshot: %w", err)
			}
		}
		if len(agents) > 0 {
			if err := tx.CreateInBatches(agents, batch).Error; err != nil {
				return fmt.Errorf("save agents: %w", err)
			}
		}
		if len(holdings) > 0 {
			if err := tx.CreateInBatches(holdings, batch).Error; err != nil {
				return fmt.Errorf("save holdings: %w", err)
			}
		}
		if len(companies) > 0 {
			if err := tx.CreateInBatches(companies, batch).Error; err != nil {
				return fmt.Errorf("save companies: %w", err)
			}
		}
		return nil
	})
}

// Load reads the stored snapshot. It fails with domain.ErrNoData when
// nothing has been saved yet.
func (s *SnapshotStore) Load(ctx context.Context) (domain.Snapshot, error) {
	db := s.db.WithContext(ctx)

	var agents []agentRow
	if err := db.Order("id").Find(&agents).Error; err != nil {
		return domain.Snapshot{}, fmt.Errorf("load agents: %w", err)
	}
	var companies []companyRow
	if err := db.Order("id").Find(&companies).Error; err != nil {
		return domain.Snapshot{}, fmt.Errorf("load companies: %w", err)
	}
	if len(agents) == 0 && len(companies) == 0 {
		return domain.Snapshot{}, domain.ErrNoData
	}
	var holdings []holdingRow
	if err := db.Find(&holdings).Error; err != nil {
		return domain.Snapshot{}, fmt.Errorf("load holdings: %w", err)
	}

	byAgent := make(map[uint64]map[domain.CompanyID]uint64)
	for _, h := range holdings {
		m := byAgent[h.AgentID]
		if m == nil {
			m = make(map[domain.CompanyID]uint64)
			byAgent[h.AgentID] = m
		}
		m[domain.CompanyID(h.CompanyID)] = h.Shares
	}

	snap := domain.Snapshot{
		Agents:    make([]domain.AgentSnapshot, 0, len(agents)),
		Companies: make([]domain.CompanySnapshot, 0, len(companies)),
	}
	for _, a := range agents {
		h := byAgent[a.ID]
		if h == nil {
			h = make(map[domain.CompanyID]uint64)
		}
		snap.Agents = append(snap.Agents, domain.AgentSnapshot{ID: domain.AgentID(a.ID), Balance: a.Balance, Holdings: h})
	}
	for _, c := range companies {
		snap.Companies = append(snap.Companies, domain.CompanySnapshot{
			ID:           domain.CompanyID(c.ID),
			SharesIssued: c.SharesIssued,
			MarketValue: domain.MarketValue{
				CurrentPrice:         c.CurrentPrice,
				HighestPrice:         c.HighestPrice,
				LowestPrice:          c.LowestPrice,
				OverallMovementStart: c.OverallMovementStart,
				OverallMovementEnd:   c.OverallMovementEnd,
			},
		})
	}
	return snap, nil
}
