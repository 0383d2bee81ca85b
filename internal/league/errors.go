package league

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTeam          = errors.New("team missing from rating table")
	ErrFixtureCountMismatch = errors.New("number of games does not match number of dates")
	ErrNoCandidates         = errors.New("no candidate opponents")
	ErrUnscheduled          = errors.New("fixture has no opponent")
)

// ValidationError describes a precondition failure on caller input.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }
