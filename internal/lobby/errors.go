package lobby

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected action
type Kind int

const (
	// KindValidation is malformed input; nothing was changed.
	KindValidation Kind = iota + 1
	// KindConflict is an action that does not fit the lobby's current state.
	KindConflict
	// KindNotFound means the lobby or draft no longer exists.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinel errors for errors.Is checks
var (
	ErrInvalidCapacity     = errors.New("invalid capacity")
	ErrInvalidTitle        = errors.New("invalid title")
	ErrUnknownMap          = errors.New("unknown map")
	ErrIncompleteSelection = errors.New("incomplete selection")
	ErrInvalidSelection    = errors.New("invalid selection")
	ErrLobbyNotFound       = errors.New("lobby not found")
	ErrSelectionExpired    = errors.New("selection expired")
	ErrNotHost             = errors.New("not the host")
	ErrNotOpen             = errors.New("lobby not open")
	ErrAlreadyMember       = errors.New("already a member")
	ErrFull                = errors.New("lobby full")
	ErrNotMember           = errors.New("not a member")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// Error is a rejection that is safe to show to the user who triggered it
type Error struct {
	Kind    Kind
	Err     error
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validation(err error, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Err: err, Message: fmt.Sprintf(format, args...)}
}

func conflict(err error, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Err: err, Message: fmt.Sprintf(format, args...)}
}

func notFound(err error, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Err: err, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError builds a validation rejection for callers outside the
// package, such as the selection flows.
func NewValidationError(err error, message string) error {
	return validation(err, "%s", message)
}

// ExpiredError is returned for interactions on a draft that timed out
func ExpiredError() error {
	return notFound(ErrSelectionExpired, "This selection has expired. Please start again.")
}

// IsUserFacing reports whether err is a rejection with a user message
func IsUserFacing(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// KindOf returns the rejection kind, or 0 for internal errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// UserMessage returns the text to show the user for err
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Something went wrong. Please try again."
}
