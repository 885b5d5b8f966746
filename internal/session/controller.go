// Package session owns the try-on workflow state: the three upload slots,
// the error banner, and the generation state machine
//
//	Idle -> InProgress -> {Succeeded, Failed} -> InProgress -> ...
//
// Uploads and clears never touch the generation state.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fpang/virtual-tryon/internal/encoder"
	"github.com/fpang/virtual-tryon/internal/preview"
	"github.com/rs/zerolog/log"
)

// MessageUnexpected is used when a failure carries no message of its own.
const MessageUnexpected = "An unexpected error occurred."

var (
	// ErrSubmitUnavailable is returned by Begin when a role is empty or a
	// generation is already in flight. The state is left unchanged.
	ErrSubmitUnavailable = errors.New("submit is unavailable until all three images are uploaded and no generation is running")
	// ErrSuperseded is returned by Upload when a newer upload or clear for
	// the same role arrived while this one was encoding.
	ErrSuperseded = errors.New("upload superseded by a newer selection")
	// ErrUnknownRole is returned for roles outside person/top/bottom.
	ErrUnknownRole = errors.New("unknown role")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// ImageEncoder turns an uploaded file into an EncodedImage.
type ImageEncoder interface {
	Encode(ctx context.Context, src encoder.Source) (*encoder.EncodedImage, error)
}

// Generator produces the composited try-on image.
type Generator interface {
	Generate(ctx context.Context, person, top, bottom *encoder.EncodedImage) (string, error)
}

// Observer is notified when uploads and generations finish.
type Observer interface {
	UploadFinished(role Role, err error)
	GenerationFinished(d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) UploadFinished(Role, error) {}
func (nopObserver) GenerationFinished(time.Duration, error) {}

// Controller is the single owner of the upload slots. It is safe for
// concurrent use; HTTP handlers call it from many goroutines.
type Controller struct {
	enc      ImageEncoder
	gen      Generator
	observer Observer

	mu     sync.Mutex
	slots  [numRoles]*encoder.EncodedImage
	seq    [numRoles]uint64
	state  GenerationState
	errMsg string
	closed bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers an observer for upload and generation outcomes.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observer = o
		}
	}
}

// New creates a controller in the Idle state with three empty slots.
func New(enc ImageEncoder, gen Generator, opts ...Option) *Controller {
	c := &Controller{
		enc:      enc,
		gen:      gen,
		observer: nopObserver{},
		state:    Idle{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload encodes src and stores it under role. Only the most recent upload
// (or clear) for a role takes effect; a completion that was overtaken
// returns ErrSuperseded and its preview is released.
//
// On failure the banner shows the error and the role's previous image is
// kept.
func (c *Controller) Upload(ctx context.Context, role Role, src encoder.Source) error {
	if !role.Valid() {
		return ErrUnknownRole
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.seq[role]++
	token := c.seq[role]
	c.mu.Unlock()

	img, err := c.enc.Encode(ctx, src)

	scope := preview.NewScope()
	defer scope.Close()
	if img != nil {
		scope.Track(img)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if token != c.seq[role] {
		log.Debug().
			Str("role", role.String()).
			Str("file", src.Name).
			Msg("Discarding superseded upload")
		return ErrSuperseded
	}

	c.observer.UploadFinished(role, err)

	if err != nil {
		c.errMsg = uploadMessage(err)
		log.Warn().
			Err(err).
			Str("role", role.String()).
			Str("file", src.Name).
			Msg("Upload failed")
		return err
	}

	if prev := c.slots[role]; prev != nil {
		scope.Track(prev)
	}
	c.slots[role] = img
	scope.Keep(img)
	c.errMsg = ""

	log.Info().
		Str("role", role.String()).
		Str("file", src.Name).
		Str("content_type", img.MediaType).
		Int64("bytes", img.Size).
		Msg("Image uploaded")

	return nil
}

// Clear removes role's image and releases its preview. Any upload for the
// role still encoding is superseded.
func (c *Controller) Clear(role Role) error {
	if !role.Valid() {
		return ErrUnknownRole
	}

	c.mu.Lock()
	img := c.slots[role]
	c.slots[role] = nil
	c.seq[role]++
	c.mu.Unlock()

	img.Release()

	log.Info().Str("role", role.String()).Bool("had_image", img != nil).Msg("Image cleared")
	return nil
}

// CanSubmit reports whether all three roles hold an image and no
// generation is in flight.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSubmitLocked()
}

func (c *Controller) canSubmitLocked() bool {
	if c.closed {
		return false
	}
	if _, running := c.state.(InProgress); running {
		return false
	}
	for _, img := range c.slots {
		if img == nil {
			return false
		}
	}
	return true
}

// Submission is one accepted generation request.
type Submission struct {
	c                   *Controller
	person, top, bottom *encoder.EncodedImage
}

// Begin moves to InProgress, clearing the previous error and result, and
// returns the submission to Run. It returns ErrSubmitUnavailable, with no
// state change, when submit is disabled.
func (c *Controller) Begin() (*Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.canSubmitLocked() {
		log.Debug().Msg("Submit ignored: not all roles filled or generation running")
		return nil, ErrSubmitUnavailable
	}

	c.state = InProgress{}
	c.errMsg = ""

	log.Info().Msg("Try-on generation started")

	return &Submission{
		c:      c,
		person: c.slots[RolePerson],
		top:    c.slots[RoleTop],
		bottom: c.slots[RoleBottom],
	}, nil
}

// Run performs the generation call and records Succeeded or Failed. It is
// not cancellable from the UI; the most recent completion always applies.
func (s *Submission) Run(ctx context.Context) {
	c := s.c
	start := time.Now()

	payload, err := c.gen.Generate(ctx, s.person, s.top, s.bottom)
	elapsed := time.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.observer.GenerationFinished(elapsed, err)

	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = MessageUnexpected
		}
		c.state = Failed{Message: msg}
		c.errMsg = msg
		log.Warn().Err(err).Dur("duration", elapsed).Msg("Try-on generation failed")
		return
	}

	c.state = Succeeded{Payload: payload}
	log.Info().Int("payload_bytes", len(payload)).Dur("duration", elapsed).Msg("Try-on generation succeeded")
}

// Submit runs Begin followed by Run and returns Begin's error.
func (c *Controller) Submit(ctx context.Context) error {
	sub, err := c.Begin()
	if err != nil {
		return err
	}
	sub.Run(ctx)
	return nil
}

// DismissError clears the banner without touching uploads or the result.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errMsg = ""
}

// Close releases every held preview. Further uploads fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	slots := c.slots
	c.slots = [numRoles]*encoder.EncodedImage{}
	c.closed = true
	c.mu.Unlock()

	for _, img := range slots {
		img.Release()
	}
}

func uploadMessage(err error) string {
	var encErr *encoder.Error
	if errors.As(err, &encErr) && encErr.Message != "" {
		return encErr.Message
	}
	return encoder.MessageReadFailed
}
