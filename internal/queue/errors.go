package queue

import "fmt"

// MessageError reports an inbound or outbound message that does not match its schema.
// Such messages are never retried.
type MessageError struct {
	Subject string
	Message string
	Cause   error
}

func (e *MessageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Subject, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Subject, e.Message)
}

func (e *MessageError) Unwrap() error {
	return e.Cause
}
