package openrouter

// ChatError is a chat completion failure with a message safe to show users.
type ChatError struct {
	UserMessage string
	StatusCode  int
	cause       error
}

func (e *ChatError) Error() string { return e.UserMessage }
func (e *ChatError) Unwrap() error { return e.cause }

// ImageError is an image generation failure with a user-facing message.
type ImageError struct {
	UserMessage string
	StatusCode  int
	cause       error
}

func (e *ImageError) Error() string { return e.UserMessage }
func (e *ImageError) Unwrap() error { return e.cause }
