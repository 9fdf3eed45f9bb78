package domain

import "errors"

// ErrStoreClosed is returned when an operation is attempted on a store that
// has already been closed.
var ErrStoreClosed = errors.New("session store is closed")
