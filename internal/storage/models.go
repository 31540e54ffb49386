package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction is one persisted customer conversation. Every column except ID
// and CreatedAt is nullable; a nil pointer maps to SQL NULL.
type Interaction struct {
	ID           int64
	Transcript   *string
	CustomerName *string
	Phone        *string
	Address      *string
	City         *string
	Locality     *string
	Summary      *string
	RawJSON      *string // serialized {customer, interaction}, never validated on write
	CreatedAt    time.Time
}
