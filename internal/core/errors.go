package core

import (
	"errors"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/store"
)

// StoreError translates a store sentinel into the application taxonomy.
// Errors that already carry a code pass through.
func StoreError(op, entity, id string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NewNotFoundError(entity, id)
	case errors.Is(err, store.ErrConflict):
		return apperrors.NewConcurrentModificationError(entity, id)
	case errors.Is(err, store.ErrDuplicate):
		return apperrors.NewValidationError(entity + " " + id + " already exists")
	default:
		return apperrors.NewDatabaseError(op, err)
	}
}
