package repository

import "errors"

// ErrNoRowsAffected signals an update that matched nothing. Services map it
// to a not-found error.
var ErrNoRowsAffected = errors.New("no rows affected")
