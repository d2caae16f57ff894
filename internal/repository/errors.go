package repository

import (
	"errors"

	"github.com/saber-em-movimento/backend/internal/directory"
)

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write collides with a unique field.
	ErrDuplicate = errors.New("record already exists")
)

func mapDirectoryErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, directory.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, directory.ErrDuplicate):
		return ErrDuplicate
	default:
		return err
	}
}

func first(docs []directory.Document) (directory.Document, error) {
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}
