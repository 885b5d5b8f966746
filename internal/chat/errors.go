package chat

import "errors"

// GenerationErrorKind categorizes try-on generation failures.
type GenerationErrorKind int

const (
	// KindConfiguration means no API credential is configured.
	KindConfiguration GenerationErrorKind = iota
	// KindNoImage means the service answered without any image part.
	KindNoImage
	// KindGenerationFailed means the call itself failed.
	KindGenerationFailed
)

// User-facing messages. The underlying cause is never part of them.
const (
	MessageCredentialNotSet = "credential not set"
	MessageNoImageReturned  = "no image was returned by the service; please try again"
	MessageGenerationFailed = "failed to generate the try-on image; please try again"
)

// GenerationError is returned by TryOnClient.Generate. Error() is safe to
// show to the user; Unwrap exposes the cause for diagnostics.
type GenerationError struct {
	Kind    GenerationErrorKind
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	return e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a GenerationError in err's chain.
func KindOf(err error) (GenerationErrorKind, bool) {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind, true
	}
	return 0, false
}
