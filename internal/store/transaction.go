package store

import (
	"sync"

	"github.com/efreitasn/stocksim/internal/domain"
)

// DefaultRetention is the number of transactions kept per company.
const DefaultRetention = 1000

// TransactionLog is a thread-safe in-memory log of resolved fills.
// Transactions are append-only and chronological; only the newest
// retention entries per company are kept in memory.
type TransactionLog struct {
	mu        sync.RWMutex
	retention int
	total     uint64
	byCompany map[domain.CompanyID][]domain.Transaction
	recent    []domain.Transaction
}

// NewTransactionLog creates an empty log. A non-positive retention
// selects DefaultRetention.
func NewTransactionLog(retention int) *TransactionLog {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &TransactionLog{
		retention: retention,
		byCompany: make(map[domain.CompanyID][]domain.Transaction),
	}
}

// Append records a transaction.
func (s *TransactionLog) Append(tx domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.byCompany[tx.CompanyID] = trim(append(s.byCompany[tx.CompanyID], tx), s.retention)
	s.recent = trim(append(s.recent, tx), s.retention)
}

// Total returns the number of transactions ever appended.
func (s *TransactionLog) Total() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// ByCompany returns up to limit of the company's newest transactions in
// chronological order. A non-positive limit returns everything retained.
func (s *TransactionLog) ByCompany(company domain.CompanyID, limit int) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.byCompany[company], limit)
}

// Recent returns up to limit of the newest transactions across all
// companies in chronological order.
func (s *TransactionLog) Recent(limit int) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.recent, limit)
}

func trim(txs []domain.Transaction, n int) []domain.Transaction {
	if len(txs) <= n {
		return txs
	}
	// Copy so the dropped prefix can be collected.
	out := make([]domain.Transaction, n, n+n/4)
	copy(out, txs[len(txs)-n:])
	return out
}

// tail returns a copy of the last limit entries.
func tail(txs []domain.Transaction, limit int) []domain.Transaction {
	if limit <= 0 || limit > len(txs) {
		limit = len(txs)
	}
	out := make([]domain.Transaction, limit)
	copy(out, txs[len(txs)-limit:])
	return out
}
