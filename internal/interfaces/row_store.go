package interfaces

import (
	"context"

	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
)

// RowStore is the tabular source and sink of the batch.
// Implementations isolate the loosely typed spreadsheet behind strongly typed entities.
type RowStore interface {
	// LoadBatch reads every entity in sheet order
	LoadBatch(ctx context.Context) ([]models.Entity, error)

	// Persist writes the status of every entity back. It is all-or-nothing for the caller.
	Persist(ctx context.Context, batch []models.Entity) error

	// Location describes where the rows live (file path) for logs and reports
	Location() string
}
