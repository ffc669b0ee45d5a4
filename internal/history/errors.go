package history

import "errors"

// ErrNotFound is returned when a history record does not exist for the
// given gid (and, where relevant, the given user).
var ErrNotFound = errors.New("history: record not found")
