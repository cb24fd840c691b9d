package storage

import (
	"context"

	"github.com/mselser95/reservation-escrow/internal/escrow"
)

// Storage is the interface for journaling protocol events.
type Storage interface {
	// StoreEvent persists one event from the escrow event log.
	StoreEvent(ctx context.Context, evt *escrow.Event) error

	// Close closes the storage connection.
	Close() error
}
