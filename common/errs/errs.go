package errs

import "fmt"

// HttpError carries a status code through handler plumbing to the
// response writer. Data holds reason details such as the request id.
type HttpError struct {
	Code    int
	Message string
	Data    any
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("code %d: %s, data: %v", e.Code, e.Message, e.Data)
}
