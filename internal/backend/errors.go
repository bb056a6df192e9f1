package backend

import (
	"encoding/json"
	"errors"
	"fmt"
)

// APIError is the single error convention for backend calls: every non-2xx
// response surfaces as one of these, carrying the status, the backend's
// message when it sent one, and the raw response payload.
type APIError struct {
	Status  int
	Message string
	Data    json.RawMessage
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// AsAPIError unwraps err into an *APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	ae, ok := AsAPIError(err)
	return ok && ae.Status == status
}

// newAPIError builds an APIError from a response body, pulling the message
// from the common {"message": ...} / {"error": ...} envelope shapes.
func newAPIError(status int, body []byte) *APIError {
	ae := &APIError{Status: status, Data: append(json.RawMessage(nil), body...)}
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			ae.Message = env.Message
		} else if env.Error != "" {
			ae.Message = env.Error
		}
	}
	return ae
}
