package gate

import (
	"errors"
	"fmt"
)

// ErrAuthenticationFailed is returned when a supplied token does not verify.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Rejection is a structured quota violation surfaced to the client as an
// error frame. Code is one of the protocol error codes.
type Rejection struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}
