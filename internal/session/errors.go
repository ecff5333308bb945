package session

import (
	"errors"
	"fmt"
	"strings"
)

// Every navigation failure matches one of these with errors.Is. All of them
// are recoverable: the session state is unchanged when one is returned.
var (
	ErrFetchFailed      = errors.New("fetch failed")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrNoSuchPage       = errors.New("no such page")
	ErrAtRoot           = errors.New("already at root")
	ErrAmbiguousTarget  = errors.New("ambiguous target")
	ErrBusy             = errors.New("another operation is in progress")
)

// FetchError reports a gateway failure for a position. It matches both
// ErrFetchFailed and the underlying cause.
type FetchError struct {
	Position Position
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Position, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}

// AmbiguousError lists the candidates a name matched.
type AmbiguousError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%q matches %d targets: %s", e.Query, len(e.Candidates), strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousError) Unwrap() error {
	return ErrAmbiguousTarget
}

func invalidSelection(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSelection, fmt.Sprintf(format, args...))
}
