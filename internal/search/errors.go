package search

// Error is a search failure carrying a message safe to show to chat users.
type Error struct {
	UserMessage string
	cause       error
}

func (e *Error) Error() string {
	return e.UserMessage
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds a user-facing search error.
func NewError(userMessage string) *Error {
	return &Error{UserMessage: userMessage}
}

// WrapError attaches a cause while keeping the user-facing message.
func WrapError(userMessage string, cause error) *Error {
	return &Error{UserMessage: userMessage, cause: cause}
}
