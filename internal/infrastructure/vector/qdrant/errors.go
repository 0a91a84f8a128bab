package qdrant

import (
	"errors"
	"fmt"
)

// StatusError is a non-2xx Qdrant response with a truncated body excerpt.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant: %s", e.Status)
	}
	return fmt.Sprintf("qdrant: %s: %s", e.Status, e.Body)
}

func asStatusError(err error, target **StatusError) bool {
	return errors.As(err, target)
}
