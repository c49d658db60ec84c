package txn

import (
	"log/slog"
	"sync"

	"github.com/carebridge/memorycore/errors"
	"github.com/carebridge/memorycore/scope"
)

type (
	// Backend maps abstract transactions onto a store's native transaction
	// primitive. Implemented by the graph store.
	Backend interface {
		BeginTransaction(tx *Transaction) error
		CommitTransaction(tx *Transaction) error
		RollbackTransaction(tx *Transaction) error
	}

	// Manager is the registry of active transactions. Commit and Rollback
	// always remove the entry from the registry, whatever the backend call
	// returns, so a failed commit can never leak an active transaction.
	Manager struct {
		mu      sync.Mutex
		active  map[string]*Transaction
		backend Backend
		logger  *slog.Logger
	}
)

func NewManager(backend Backend, logger *slog.Logger) *Manager {
	return &Manager{
		active:  make(map[string]*Transaction),
		backend: backend,
		logger:  logger,
	}
}

// Begin opens a native transaction under the given scope and registers it.
func (m *Manager) Begin(sc scope.Scope) (*Transaction, error) {
	tx := newTransaction(sc)
	if err := m.backend.BeginTransaction(tx); err != nil {
		return nil, errors.Wrapf(err, "failed to begin transaction")
	}

	m.mu.Lock()
	m.active[tx.ID] = tx
	m.mu.Unlock()

	m.logger.Debug("transaction started", slog.String("id", tx.ID), slog.String("scope", sc.ID))
	return tx, nil
}

// Commit commits the transaction. A commit of an unknown or already closed
// transaction is a programming error, not a recoverable condition.
func (m *Manager) Commit(tx *Transaction) error {
	if err := m.take(tx); err != nil {
		return err
	}

	if err := m.backend.CommitTransaction(tx); err != nil {
		tx.setStatus(StatusFailed)
		return errors.Wrapf(err, "failed to commit transaction %s", tx.ID)
	}
	tx.setStatus(StatusCommitted)
	m.logger.Debug("transaction committed", slog.String("id", tx.ID), slog.Int("ops", len(tx.Operations())))
	return nil
}

// Rollback discards the transaction. Like Commit, it deregisters the
// transaction no matter what the backend reports.
func (m *Manager) Rollback(tx *Transaction) error {
	if err := m.take(tx); err != nil {
		return err
	}

	if err := m.backend.RollbackTransaction(tx); err != nil {
		tx.setStatus(StatusFailed)
		return errors.Wrapf(err, "failed to rollback transaction %s", tx.ID)
	}
	tx.setStatus(StatusRolledBack)
	m.logger.Debug("transaction rolled back", slog.String("id", tx.ID))
	return nil
}

// ActiveCount reports how many transactions are currently registered.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// take removes the transaction from the registry, failing if it was never
// registered or already taken.
func (m *Manager) take(tx *Transaction) error {
	if tx == nil {
		return errors.WithStack(errors.ErrInvalidParams)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[tx.ID]; !ok {
		switch tx.Status() {
		case StatusCommitted, StatusRolledBack, StatusFailed:
			return errors.Wrapf(errors.ErrTransactionClosed, "transaction %s is %s", tx.ID, tx.Status())
		default:
			return errors.Wrapf(errors.ErrUnknownTransaction, "transaction %s is not active", tx.ID)
		}
	}
	delete(m.active, tx.ID)
	return nil
}
