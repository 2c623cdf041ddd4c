package extraction

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineFault matches any *EngineFault
	ErrEngineFault = errors.New("extraction engine fault")
	// ErrInputState matches any *InputStateError
	ErrInputState = errors.New("subject not ready for extraction")
)

// EngineFault reports an unrecoverable failure while scanning text. No record is produced.
type EngineFault struct {
	Field string
	Cause error
}

func (e *EngineFault) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("extraction engine fault: %v", e.Cause)
	}
	return fmt.Sprintf("extraction engine fault in %s: %v", e.Field, e.Cause)
}

func (e *EngineFault) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrEngineFault}
	}
	return []error{ErrEngineFault, e.Cause}
}

// InputStateError is returned when extraction is requested for a subject
// whose document has not been located.
type InputStateError struct {
	SubjectID int
	Reason    string
}

func (e *InputStateError) Error() string {
	return fmt.Sprintf("subject %d not ready for extraction: %s", e.SubjectID, e.Reason)
}

func (e *InputStateError) Is(target error) bool {
	return target == ErrInputState
}
