package store

import "fmt"

// Category classifies a store failure.
type Category string

const (
	CategoryConnection Category = "connection"
	CategoryConstraint Category = "constraint"
	CategoryConflict   Category = "conflict"
)

// StoreError is an atomic transactional failure. The cache is always left in
// its prior consistent state when one of these surfaces.
type StoreError struct {
	Category Category
	Op       string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %s: %v", e.Op, e.Category, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newStoreError(category Category, op string, err error) *StoreError {
	return &StoreError{Category: category, Op: op, Err: err}
}
