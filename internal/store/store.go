package store

import (
	"context"

	"github.com/lootview/wallet-portfolio/internal/store/schema"
)

// Store defines the interface for database operations
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	// AppendReconciliation records one pipeline result in the journal
	AppendReconciliation(ctx context.Context, entry *schema.ReconciliationJournal) error
	// ListReconciliations returns journal rows newest first, optionally
	// filtered by wallet address
	ListReconciliations(ctx context.Context, walletAddress string, limit int) ([]schema.ReconciliationJournal, error)
}
