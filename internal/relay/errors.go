package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable indicates the relay could not be reached (refused, reset, timed out)
	ErrUnreachable = errors.New("relay: unreachable")

	// ErrMalformedReply indicates the reply was not a well-formed envelope:
	// it could not be decoded, or carried neither (or both) of result and err
	ErrMalformedReply = errors.New("relay: malformed reply")
)

// RemoteError is returned when the relay answered with an error message.
type RemoteError struct {
	// Message is the err string from the reply envelope
	Message string
	// StatusCode is the HTTP status the relay answered with
	StatusCode int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("relay responded with error: %s", e.Message)
}

// RequestError ties a failure to the command that produced it.
type RequestError struct {
	Command Command
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("relay %s: %v", e.Command, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsRemote reports whether err carries an error message sent by the relay.
func IsRemote(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote)
}
