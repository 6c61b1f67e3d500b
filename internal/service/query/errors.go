package query

import (
	"errors"
)

var ErrJourneyNotFound = errors.New("journey not found")
