package prediction

import (
	"errors"
	"fmt"
)

// ErrInputValidation is the only error the engine returns to callers.
var ErrInputValidation = errors.New("invalid prediction input")

// InputError names the offending input field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInputValidation }
