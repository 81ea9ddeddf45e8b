// -----------------------------------------------------------------------
// Status Ledger - durable entity -> status mapping backed by the row store
// -----------------------------------------------------------------------

package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
)

// Ledger holds the statuses of one batch for the lifetime of a run.
// It is written by the worker goroutine only; readers may take snapshots concurrently.
type Ledger struct {
	store   interfaces.RowStore
	mu      sync.RWMutex
	batch   []models.Entity
	index   map[models.TaxID]int
	flushes int
}

// New builds a ledger over an already loaded batch.
// When an ID appears more than once the first row wins and later duplicates mirror its status.
func New(store interfaces.RowStore, batch []models.Entity) *Ledger {
	l := &Ledger{
		store: store,
		batch: make([]models.Entity, len(batch)),
		index: make(map[models.TaxID]int, len(batch)),
	}
	copy(l.batch, batch)
	for i, e := range l.batch {
		if _, exists := l.index[e.ID]; !exists {
			l.index[e.ID] = i
		}
	}
	return l
}

// Load reads the batch from the store and wraps it in a ledger
func Load(ctx context.Context, store interfaces.RowStore) (*Ledger, error) {
	batch, err := store.LoadBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch from %s: %w", store.Location(), err)
	}
	return New(store, batch), nil
}

// Get returns the recorded status. ok is false for unknown IDs and for entities never processed.
func (l *Ledger) Get(id models.TaxID) (models.Status, bool) {
	i, exists := l.index[id]
	if !exists {
		return models.StatusPending, false
	}
	l.mu.RLock()
	status := l.batch[i].Status
	l.mu.RUnlock()
	return status, !status.IsPending()
}

// Set overwrites the status of every row carrying id. Unknown IDs are an error.
func (l *Ledger) Set(id models.TaxID, status models.Status) error {
	if _, exists := l.index[id]; !exists {
		return fmt.Errorf("entity %s is not part of the batch", id)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.batch {
		if l.batch[i].ID == id {
			l.batch[i].Status = status
		}
	}
	return nil
}

// IsDone reports whether the entity already reached Completed
func (l *Ledger) IsDone(id models.TaxID) bool {
	status, _ := l.Get(id)
	return status.IsDone()
}

// Flush writes the full batch back to the row store
func (l *Ledger) Flush(ctx context.Context) error {
	if err := l.store.Persist(ctx, l.Entities()); err != nil {
		return fmt.Errorf("failed to persist ledger to %s: %w", l.store.Location(), err)
	}
	l.flushes++
	return nil
}

// Entities returns a copy of the batch with current statuses, in batch order
func (l *Ledger) Entities() []models.Entity {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Entity, len(l.batch))
	copy(out, l.batch)
	return out
}

// Len is the number of rows in the batch
func (l *Ledger) Len() int {
	return len(l.batch)
}

// Flushes counts successful flushes since the ledger was created
func (l *Ledger) Flushes() int {
	return l.flushes
}

// Counts tallies the current statuses by label
func (l *Ledger) Counts() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return models.CountStatuses(l.batch)
}

// Store returns the backing row store
func (l *Ledger) Store() interfaces.RowStore {
	return l.store
}
