package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrResultLimitExceeded is returned when a cursor would yield more rows
	// than its configured cap.
	ErrResultLimitExceeded = errors.New("result limit exceeded")
	// ErrTableUnavailable is returned when table metadata could not be
	// resolved or the table could not be created.
	ErrTableUnavailable = errors.New("table unavailable")
	// ErrStoreCallFailed matches every *StoreError.
	ErrStoreCallFailed = errors.New("store call failed")
	// ErrTableNotFound is reported by stores describing a missing table.
	ErrTableNotFound = errors.New("table not found")
	// ErrTableExists is reported by stores when DDL races another creator.
	ErrTableExists = errors.New("table already exists")
	// ErrDuplicateKey is returned when an insert targets an existing identity.
	ErrDuplicateKey = errors.New("duplicate key")
)

// StoreError wraps a failed store call with the operation and table it
// belonged to.
type StoreError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s: %s: %v", ErrStoreCallFailed, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrStoreCallFailed, e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes every StoreError match ErrStoreCallFailed.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreCallFailed
}

func storeError(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Table: table, Err: err}
}
