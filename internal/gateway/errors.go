package gateway

// ValidationError rejects a malformed caller request before any quota spend
// or upstream call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError means no search or report result was resolvable for the
// given handle or id.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }
