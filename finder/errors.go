package finder

import (
	"errors"
	"fmt"
)

var ErrInvalidRequest = errors.New("invalid filter request")

// ConfigError reports a malformed FilterRequest. It is always returned before
// any call to the social API is made.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidRequest, e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// TransportError wraps any failure of the social API. A run that hits one is
// aborted and returns no profiles.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("social api %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
