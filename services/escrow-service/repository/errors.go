package repository

import "errors"

// ErrNotFound is returned by every repository when the addressed record does not exist.
var ErrNotFound = errors.New("record not found")
