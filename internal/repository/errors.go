package repository

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrSeatsUnavailable = errors.New("some seats unavailable")
	ErrCapacityInUse    = errors.New("sold seats outside new capacity")
	ErrOrderCancelled   = errors.New("order already cancelled")
)
