package graph

import (
	"errors"
	"fmt"
)

// NotFoundError reports that a directory or device-management object could
// not be resolved by its lookup key.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// RequestError is returned when the Graph endpoint answers with a non-2xx
// status.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("graph %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
