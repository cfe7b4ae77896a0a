package search

import "fmt"

// ErrorKind labels the user-input errors a structured query can produce.
type ErrorKind string

const (
	ErrLoginRequired ErrorKind = "login_required"
	ErrTagNotFound   ErrorKind = "tag_not_found"
	ErrPaperNotFound ErrorKind = "paper_not_found"
)

// QueryError is a user-input error attached to the response. It suppresses
// search execution entirely and is distinct from a zero-result search and
// from backing-store faults.
type QueryError struct {
	Kind    ErrorKind
	Message string
}

func (e *QueryError) Error() string { return e.Message }

func tagNotFound(name string) *QueryError {
	return &QueryError{Kind: ErrTagNotFound, Message: fmt.Sprintf("Tag '%s' does not exist", name)}
}

func loginRequired() *QueryError {
	return &QueryError{Kind: ErrLoginRequired, Message: "You must be logged in to search by tag"}
}

func paperNotFound(id string) *QueryError {
	return &QueryError{Kind: ErrPaperNotFound, Message: fmt.Sprintf("Paper '%s' does not exist", id)}
}
