package query

import "errors"

// ErrRecordNotFound is returned when the store has no record with the
// requested ID. Callers treat it as a client error, not a store outage.
var ErrRecordNotFound = errors.New("record not found")
