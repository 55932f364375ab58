package app

import "fmt"

// Error categories carried on the wire in the "error" field.
const (
	catBadRequest       = "Bad Request"
	catUnauthorized     = "Unauthorized"
	catNotFound         = "Not Found"
	catMethodNotAllowed = "Method Not Allowed"
	catInternal         = "Internal Server Error"
)

type DomainError struct {
	Status   int
	Category string
	Message  string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func domainError(status int, category, message string) *DomainError {
	return &DomainError{
		Status:   status,
		Category: category,
		Message:  message,
	}
}
