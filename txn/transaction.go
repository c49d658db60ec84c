package txn

import (
	"sync"
	"time"

	"github.com/carebridge/memorycore/scope"
	"github.com/google/uuid"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
	StatusFailed     Status = "failed"
)

// Operation is one entry of a transaction's append-only log.
type Operation struct {
	Name        string
	AffectedIDs []string
	At          time.Time
}

// Transaction is the abstract transaction handed to the structured store and
// the coordinator. The native store handle it maps onto lives inside the
// store; this object only carries identity, scope and the operation log.
//
// Status transitions only active -> {committed, rolled_back, failed}; the
// terminal states are never left.
type Transaction struct {
	ID        string
	Scope     scope.Scope
	StartedAt time.Time

	mu     sync.Mutex
	status Status
	ops    []Operation
}

func newTransaction(sc scope.Scope) *Transaction {
	return &Transaction{
		ID:        uuid.NewString(),
		Scope:     sc,
		StartedAt: time.Now(),
		status:    StatusActive,
	}
}

func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Transaction) setStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusActive {
		t.status = s
	}
}

// Record appends an operation to the transaction log.
func (t *Transaction) Record(name string, affectedIDs ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops = append(t.ops, Operation{
		Name:        name,
		AffectedIDs: affectedIDs,
		At:          time.Now(),
	})
}

// Operations returns a copy of the operation log in enqueue order.
func (t *Transaction) Operations() []Operation {
	t.mu.Lock()
	defer t.mu.Unlock()
	ops := make([]Operation, len(t.ops))
	copy(ops, t.ops)
	return ops
}
