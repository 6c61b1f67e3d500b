package schedule

import (
	"errors"
)

var (
	ErrStationConflict   = errors.New("station already exists")
	ErrRouteConflict     = errors.New("route already exists")
	ErrTrainTypeConflict = errors.New("train type already exists")
	ErrCargoTypeConflict = errors.New("cargo type already exists")
	ErrReferenceNotFound = errors.New("referenced record does not exist")
	ErrTrainNotFound     = errors.New("train not found")
	ErrCapacityInUse     = errors.New("sold seats would fall outside the new layout")
)

// ValidationError is a caller error on the schedule write path.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return "validation: " + e.Reason
}
