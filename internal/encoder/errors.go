package encoder

import "errors"

// ErrorKind categorizes encoding failures.
type ErrorKind int

const (
	// KindValidation indicates the file is not an image.
	KindValidation ErrorKind = iota
	// KindRead indicates the file could not be read or decoded.
	KindRead
)

// Messages shown to the user for each kind.
const (
	MessageUnsupportedType = "unsupported file type"
	MessageReadFailed      = "failed to process image"
)

// Error is returned by Encode. Message is safe to show to the user; Err
// carries the underlying cause for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is an unsupported-file-type error.
func IsValidation(err error) bool {
	var encErr *Error
	return errors.As(err, &encErr) && encErr.Kind == KindValidation
}

// IsRead reports whether err is a read/decode failure.
func IsRead(err error) bool {
	var encErr *Error
	return errors.As(err, &encErr) && encErr.Kind == KindRead
}

func validationError(contentType string) error {
	return &Error{
		Kind:    KindValidation,
		Message: MessageUnsupportedType,
		Err:     errors.New("content type " + quoteOrEmpty(contentType) + " is not an image"),
	}
}

func readError(err error) error {
	return &Error{Kind: KindRead, Message: MessageReadFailed, Err: err}
}

func quoteOrEmpty(s string) string {
	if s == "" {
		return `""`
	}
	return `"` + s + `"`
}
