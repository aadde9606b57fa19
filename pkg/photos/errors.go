package photos

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the photo or its stats row does not exist.
	ErrNotFound = errors.New("photo not found")

	// ErrBreedNotFound indicates the upstream API does not know the requested breed.
	ErrBreedNotFound = errors.New("breed not found")

	// ErrInvalidLimit indicates a list limit outside 1..MaxListLimit.
	ErrInvalidLimit = errors.New("invalid limit")

	// ErrInvalidPhoto indicates the photo failed validation before insert.
	ErrInvalidPhoto = errors.New("invalid photo")
)

// PersistenceError wraps a database failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("photos: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
