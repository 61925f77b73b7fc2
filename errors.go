package vecdb

import (
	"errors"

	"github.com/hupe1980/vecdb/index"
)

var (
	// ErrUnknownIndexKind is returned when an operation names an index kind
	// that is not registered.
	ErrUnknownIndexKind = errors.New("unknown index kind")

	// ErrMissingVectors is returned when an upsert document lacks the
	// reserved "vectors" field.
	ErrMissingVectors = errors.New("document has no vectors field")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = index.ErrInvalidK
)
