package snapshotstore

import "outcome.io/sim/internal/apperrors"

// ErrNotFound creates the lookup failure for a name absent from the store.
func ErrNotFound(name string) error {
	return apperrors.NotFound(apperrors.CodeFailedReadingSnapshot, "no such snapshot: "+name)
}
