package repository

import "errors"

// ErrNotFound is returned by every store when a deployment, its sources or its reservations are absent.
var ErrNotFound = errors.New("repository: record not found")
