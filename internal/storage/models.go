package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Slot is a single named key-value entry. Value holds serialized JSON text
// written by the persistence layer; the store never interprets it.
type Slot struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
