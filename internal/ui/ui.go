// Package ui renders the try-on page from embedded templates.
package ui

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/fpang/virtual-tryon/internal/encoder"
	"github.com/fpang/virtual-tryon/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	Title    = "Virtual Try-On"
	Subtitle = "See how clothes look on you with the power of AI"

	CaptionGenerating = "Generating your new look... this may take a moment."
	CaptionIdle       = "Your generated image will appear here."

	ButtonSubmit     = "Try It On!"
	ButtonGenerating = "Generating..."

	// ResultMediaType is the media type assumed for generated images.
	ResultMediaType = "image/png"
)

// AcceptedTypes are offered to the browser file picker.
var AcceptedTypes = []string{"image/png", "image/jpeg"}

// Outline icon paths per role.
var roleIcons = map[session.Role]string{
	session.RolePerson: "M16 7a4 4 0 11-8 0 4 4 0 018 0zM12 14a7 7 0 00-7 7h14a7 7 0 00-7-7z",
	session.RoleTop:    "M9 4l3 2 3-2 5 3-2 4-2-1v10H8V10l-2 1-2-4 5-3z",
	session.RoleBottom: "M7 3h10l1 18h-4l-2-11-2 11H6L7 3z",
}

// SlotView is the template data for one upload slot.
type SlotView struct {
	ID         string
	Role       string
	Label      string
	Icon       string
	Accept     string
	PreviewURL string
}

// NewSlotView converts a controller slot snapshot.
func NewSlotView(s session.SlotView) SlotView {
	return SlotView{
		ID:         s.Role.String() + "-upload",
		Role:       s.Role.String(),
		Label:      s.Role.Label(),
		Icon:       roleIcons[s.Role],
		Accept:     strings.Join(AcceptedTypes, ", "),
		PreviewURL: s.PreviewURL,
	}
}

// ResultView is the template data for the result panel. It depends only
// on the generation state.
type ResultView struct {
	Status     string
	Generating bool
	ImageSrc   template.URL
	Caption    string
}

// NewResultView derives the result panel from a generation state.
func NewResultView(state session.GenerationState) ResultView {
	if state == nil {
		state = session.Idle{}
	}
	v := ResultView{Status: state.Status(), Caption: CaptionIdle}
	switch s := state.(type) {
	case session.InProgress:
		v.Generating = true
		v.Caption = CaptionGenerating
	case session.Succeeded:
		if s.Payload != "" {
			// Payloads are base64 produced by the service client, never user input.
			v.ImageSrc = template.URL(encoder.DataURI(ResultMediaType, s.Payload))
			v.Caption = ""
		}
	}
	return v
}

// PageView is the template data for the whole page.
type PageView struct {
	Title      string
	Subtitle   string
	Slots      []SlotView
	Result     ResultView
	Error      string
	CanSubmit  bool
	ButtonText string
}

// NewPageView converts a controller snapshot.
func NewPageView(v session.View) PageView {
	p := PageView{
		Title:      Title,
		Subtitle:   Subtitle,
		Result:     NewResultView(v.State),
		Error:      v.Error,
		CanSubmit:  v.CanSubmit,
		ButtonText: ButtonSubmit,
	}
	if p.Result.Generating {
		p.ButtonText = ButtonGenerating
	}
	for _, r := range session.Roles {
		p.Slots = append(p.Slots, NewSlotView(v.Slot(r)))
	}
	return p
}

// Renderer executes the embedded templates.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Page renders the full page for a controller snapshot.
func (r *Renderer) Page(w io.Writer, v session.View) error {
	return r.tmpl.ExecuteTemplate(w, "page", NewPageView(v))
}

// Slot renders a single upload slot.
func (r *Renderer) Slot(w io.Writer, v SlotView) error {
	return r.tmpl.ExecuteTemplate(w, "slot", v)
}

// Result renders the result panel.
func (r *Renderer) Result(w io.Writer, v ResultView) error {
	return r.tmpl.ExecuteTemplate(w, "result", v)
}

// StaticHandler serves the page's script and stylesheet under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
