package notion

import "fmt"

// APIError is a non-2xx response from the page store, decoded from its error object.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("notion: status %d (%s): %s", e.Status, e.Code, e.Message)
}

// PublishError reports a remote operation that failed on every attempt. Err is the
// error of the last attempt.
type PublishError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
