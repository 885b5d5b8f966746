package encoder

import (
	"encoding/base64"
	"strings"

	"github.com/fpang/virtual-tryon/internal/preview"
)

// EncodedImage is one user-supplied image ready for transport and display.
type EncodedImage struct {
	// Preview references a downscaled copy for the upload slot.
	Preview *preview.Handle
	// Payload is the standard base64 encoding of the original bytes,
	// without any data URI prefix.
	Payload string
	// MediaType is the original MIME type, e.g. "image/png".
	MediaType string
	// Name is the uploaded file name.
	Name string
	// Size is the original size in bytes.
	Size int64
}

// Bytes decodes the payload back to the original bytes.
func (img *EncodedImage) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(img.Payload)
}

// DataURI returns the payload as a data: URI.
func (img *EncodedImage) DataURI() string {
	return DataURI(img.MediaType, img.Payload)
}

// PreviewURL returns the URL of the preview, or "" if there is none.
func (img *EncodedImage) PreviewURL() string {
	if img == nil {
		return ""
	}
	return img.Preview.URL()
}

// Release frees the preview handle. Safe on nil and when called twice.
func (img *EncodedImage) Release() {
	if img == nil {
		return
	}
	img.Preview.Release()
}

// DataURI builds "data:<mediaType>;base64,<payload>".
func DataURI(mediaType, payload string) string {
	var sb strings.Builder
	sb.Grow(len("data:;base64,") + len(mediaType) + len(payload))
	sb.WriteString("data:")
	sb.WriteString(mediaType)
	sb.WriteString(";base64,")
	sb.WriteString(payload)
	return sb.String()
}
