// Package encoder turns raw uploaded files into EncodedImage values: a
// base64 payload for transport plus a preview handle for the upload slot.
package encoder

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/fpang/virtual-tryon/internal/preview"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxBytes bounds how much of an upload is read.
	DefaultMaxBytes int64 = 20 * 1024 * 1024
	// DefaultPreviewMaxDimension is the longest preview edge in pixels.
	DefaultPreviewMaxDimension = 512

	previewJPEGQuality = 85
	sniffLen           = 512
)

// Source is a raw file handed over by an upload slot.
type Source struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// Encoder validates and encodes uploads. It is safe for concurrent use.
type Encoder struct {
	previews     *preview.Store
	maxBytes     int64
	maxDimension int
	allowed      map[string]bool
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithMaxBytes sets the largest accepted upload.
func WithMaxBytes(n int64) Option {
	return func(e *Encoder) {
		e.maxBytes = n
	}
}

// WithPreviewMaxDimension sets the longest preview edge.
func WithPreviewMaxDimension(px int) Option {
	return func(e *Encoder) {
		e.maxDimension = px
	}
}

// WithAllowedTypes restricts uploads to the given image MIME types.
// Without it any image/* type is accepted.
func WithAllowedTypes(types ...string) Option {
	return func(e *Encoder) {
		e.allowed = make(map[string]bool, len(types))
		for _, t := range types {
			e.allowed[strings.ToLower(t)] = true
		}
	}
}

// New creates an Encoder that allocates preview handles from store.
func New(store *preview.Store, opts ...Option) *Encoder {
	e := &Encoder{
		previews:     store,
		maxBytes:     DefaultMaxBytes,
		maxDimension: DefaultPreviewMaxDimension,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode validates the declared content type, reads the whole file, and
// returns its base64 payload together with a freshly acquired preview
// handle. The caller owns the handle and must Release it.
func (e *Encoder) Encode(ctx context.Context, src Source) (*EncodedImage, error) {
	start := time.Now()

	if src.Reader == nil {
		return nil, readError(errors.New("no file content"))
	}

	r := io.LimitReader(src.Reader, e.maxBytes+1)

	contentType := normalizeContentType(src.ContentType)
	if contentType == "" {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(r, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return nil, readError(fmt.Errorf("failed to sniff content type: %w", err))
		}
		head = head[:n]
		contentType = normalizeContentType(http.DetectContentType(head))
		r = io.MultiReader(bytes.NewReader(head), r)
	}

	if !e.accepts(contentType) {
		log.Debug().
			Str("file", src.Name).
			Str("content_type", contentType).
			Msg("Rejected upload with unsupported content type")
		return nil, validationError(contentType)
	}

	if err := ctx.Err(); err != nil {
		return nil, readError(err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		log.Warn().Err(err).Str("file", src.Name).Msg("Failed to read upload")
		return nil, readError(fmt.Errorf("failed to read file: %w", err))
	}
	if int64(len(data)) > e.maxBytes {
		return nil, readError(fmt.Errorf("file exceeds %d bytes", e.maxBytes))
	}
	if len(data) == 0 {
		return nil, readError(errors.New("file is empty"))
	}

	previewData, previewMIME, detected, err := e.buildPreview(data, contentType)
	if err != nil {
		log.Warn().Err(err).Str("file", src.Name).Msg("Failed to decode upload")
		return nil, readError(err)
	}
	if detected != contentType {
		log.Debug().
			Str("file", src.Name).
			Str("declared", contentType).
			Str("detected", detected).
			Msg("Upload content does not match declared type")
		if !e.accepts(detected) {
			return nil, validationError(detected)
		}
		contentType = detected
	}

	if contentType == "image/jpeg" {
		logUploadMetadata(src.Name, data)
	}

	img := &EncodedImage{
		Payload:   base64.StdEncoding.EncodeToString(data),
		MediaType: contentType,
		Name:      src.Name,
		Size:      int64(len(data)),
	}
	img.Preview = e.previews.Acquire(previewData, previewMIME)

	log.Debug().
		Str("file", src.Name).
		Str("content_type", contentType).
		Int("bytes", len(data)).
		Int("preview_bytes", len(previewData)).
		Dur("duration", time.Since(start)).
		Msg("Upload encoded")

	return img, nil
}

func (e *Encoder) accepts(contentType string) bool {
	if !strings.HasPrefix(contentType, "image/") {
		return false
	}
	if len(e.allowed) == 0 {
		return true
	}
	return e.allowed[contentType]
}

// decodableTypes are the MIME types with a registered decoder.
var decodableTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// buildPreview downscales decodable images to maxDimension and returns the
// media type the content actually decodes as. Types without a registered
// decoder are previewed as-is; bytes declared as a decodable type that do
// not decode are treated as corrupt.
func (e *Encoder) buildPreview(data []byte, contentType string) ([]byte, string, string, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		if decodableTypes[contentType] {
			return nil, "", "", fmt.Errorf("content is not a valid %s image: %w", contentType, err)
		}
		return data, contentType, contentType, nil
	}
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to decode image: %w", err)
	}

	detected := "image/" + format
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= e.maxDimension && h <= e.maxDimension {
		return data, detected, detected, nil
	}

	newW, newH := fitWithin(w, h, e.maxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if format == "png" {
		if err := png.Encode(&buf, dst); err != nil {
			return nil, "", "", fmt.Errorf("failed to encode preview: %w", err)
		}
		return buf.Bytes(), "image/png", detected, nil
	}
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: previewJPEGQuality}); err != nil {
		return nil, "", "", fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), "image/jpeg", detected, nil
}

// fitWithin scales w x h so the longest edge equals max, keeping the aspect ratio.
func fitWithin(w, h, max int) (int, int) {
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}

// logUploadMetadata logs camera EXIF fields at debug level. Best-effort:
// garment product shots rarely carry any.
func logUploadMetadata(name string, data []byte) {
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		return
	}
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return
	}
	evt := log.Debug().Str("file", name)
	if cameraMake := strings.TrimSpace(exifData.Make); cameraMake != "" {
		evt = evt.Str("camera_make", cameraMake)
	}
	if model := strings.TrimSpace(exifData.Model); model != "" {
		evt = evt.Str("camera_model", model)
	}
	if taken := exifData.DateTimeOriginal(); !taken.IsZero() {
		evt = evt.Time("date_taken", taken)
	}
	evt.Msg("Upload metadata")
}

func normalizeContentType(ct string) string {
	ct = strings.TrimSpace(strings.ToLower(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		ct = "image/jpeg"
	}
	return ct
}
