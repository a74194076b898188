package orchestrator

import "errors"

// ErrCategory classifies an orchestrator error for logging and for the
// {error:true, message, category} shape relayed to clients. It is a
// taxonomy, not a type hierarchy: a single concrete error is tagged with
// exactly one category via [CategorizedError].
type ErrCategory string

const (
	CategoryConfiguration    ErrCategory = "configuration"
	CategoryProtocol         ErrCategory = "protocol"
	CategorySessionLifecycle ErrCategory = "session_lifecycle"
	CategoryTransport        ErrCategory = "transport"
	CategoryTool             ErrCategory = "tool"
	CategoryResource         ErrCategory = "resource"
)

var (
	// ErrEmptyPrompt is returned by SetupSystemPrompt when content is blank.
	ErrEmptyPrompt = errors.New("orchestrator: system prompt must not be blank")

	// ErrOutOfOrder is returned when a trigger is invoked in a state that does
	// not permit it (e.g. setupStartAudio before promptStart, or any setup
	// trigger once the session is Closing).
	ErrOutOfOrder = errors.New("orchestrator: operation is out of order for session state")

	// ErrSessionClosed names a session that has already transitioned to
	// Closing. The Session trigger methods do not return it; a trigger
	// called in Closing returns ErrOutOfOrder.
	ErrSessionClosed = errors.New("orchestrator: session is closed")

	// ErrUnknownSession names an id with no live session. No lookup in this
	// module returns it; gateway.Registry.Get reports a miss through its
	// boolean result.
	ErrUnknownSession = errors.New("orchestrator: unknown session id")
)

// CategorizedError pairs an error with its taxonomy category, so the gateway
// can surface {message, category} without re-deriving classification from
// error text.
type CategorizedError struct {
	Category ErrCategory
	Err      error
}

func (e *CategorizedError) Error() string { return e.Err.Error() }
func (e *CategorizedError) Unwrap() error { return e.Err }

// Categorize wraps err with the given category.
func Categorize(category ErrCategory, err error) *CategorizedError {
	return &CategorizedError{Category: category, Err: err}
}
