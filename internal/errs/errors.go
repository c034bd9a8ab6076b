package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/movie-dubber/pkg/log"
)

type Kind int

const (
	// Transient covers network fetches and cache transactions that may succeed later.
	Transient Kind = iota
	// Decode means cached or fetched bytes could not be turned into audio.
	Decode
	// NotFound covers missing video elements, tracks and audio assets.
	NotFound
	// CrossOrigin means a frame's document could not be accessed directly.
	CrossOrigin
	// Timeout means a cross-context round trip did not answer in time.
	Timeout
	// Unavailable means a collaborator (store, backend) cannot be used at all.
	Unavailable
	Validation
	Config
	Unknown
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "Transient"
	case Decode:
		return "Decode"
	case NotFound:
		return "NotFound"
	case CrossOrigin:
		return "CrossOrigin"
	case Timeout:
		return "Timeout"
	case Unavailable:
		return "Unavailable"
	case Validation:
		return "Validation"
	case Config:
		return "Config"
	default:
		return "Unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
	}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

func Wrap(err error, kind Kind, message string) *Error {
	e := New(kind, message)
	e.Cause = err
	return e
}

func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Kind, e.Message)}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, "context: "+strings.Join(ctxParts, ", "))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}
	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// Is reports whether any error in err's chain carries kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in the chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// UserMessage is the text shown to the end user for err. It never contains protocol details.
func UserMessage(err error) string {
	switch KindOf(err) {
	case NotFound:
		return "Nothing is available for this selection yet"
	case Unavailable, Transient, Timeout:
		return "Could not reach the dubbing service, please try again"
	case Validation:
		return "Please check the selected values"
	default:
		return "Something went wrong, please try again"
	}
}

// SafeExecute runs fn and turns a panic into an Unknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Newf(Unknown, "runtime error: %v", r)
		}
	}()
	return fn()
}

// Guard runs fn at an event-handler boundary: errors and panics are logged, never propagated.
func Guard(scope string, fn func() error) {
	if err := SafeExecute(fn); err != nil {
		log.Error("%s: %v", scope, err)
	}
}
