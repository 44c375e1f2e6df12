package repository

import "errors"

// ErrNotFound is returned when a requested record is not found in the repository.
// This abstracts away the underlying storage implementation from the service layer.
var ErrNotFound = errors.New("record not found")

// ErrNotAvailable is returned when a lot can only be edited or deleted
// while it is still available.
var ErrNotAvailable = errors.New("lot is not available")
