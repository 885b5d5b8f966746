package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fpang/virtual-tryon/internal/encoder"
	"github.com/fpang/virtual-tryon/internal/metrics"
	"github.com/fpang/virtual-tryon/internal/preview"
	"github.com/fpang/virtual-tryon/internal/session"
	"github.com/fpang/virtual-tryon/internal/ui"
)

// fakeGenerator returns a fixed payload or error.
type fakeGenerator struct {
	mu      sync.Mutex
	payload string
	err     error
	calls   int
}

func (f *fakeGenerator) Generate(ctx context.Context, person, top, bottom *encoder.EncodedImage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.payload, f.err
}

type testEnv struct {
	srv      *server
	handler  http.Handler
	gen      *fakeGenerator
	previews *preview.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	previews := preview.NewStore()
	enc := encoder.New(previews, encoder.WithAllowedTypes(ui.AcceptedTypes...))
	gen := &fakeGenerator{payload: "R0VORVJBVEVE"}
	rec, err := metrics.New(metrics.DefaultNamespace, prometheus.NewRegistry(), previews.Len)
	if err != nil {
		t.Fatalf("metrics.New() error = %v", err)
	}
	renderer, err := ui.NewRenderer()
	if err != nil {
		t.Fatalf("ui.NewRenderer() error = %v", err)
	}
	ctrl := session.New(enc, gen, session.WithObserver(rec))
	s := newServer(ctrl, renderer, previews, rec)
	t.Cleanup(s.close)
	return &testEnv{srv: s, handler: s.routes(), gen: gen, previews: previews}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	part.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart Close() error = %v", err)
	}
	return &body, mw.FormDataContentType()
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string, asJSON bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if asJSON {
		req.Header.Set("Accept", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, role, filename, contentType string, data []byte, asJSON bool) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, filename, contentType, data)
	return e.do(t, http.MethodPost, "/api/upload/"+role, body, ct, asJSON)
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) stateResponse {
	t.Helper()
	var st stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v (body %q)", err, rec.Body.String())
	}
	return st
}

func TestIndexPage(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/", nil, "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "data:") {
		t.Errorf("Content-Security-Policy = %q, want data: images allowed", csp)
	}
	if !strings.Contains(rec.Body.String(), ui.Title) {
		t.Error("page missing title")
	}

	if rec := e.do(t, http.MethodGet, "/nope", nil, "", false); rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", rec.Code)
	}
}

func TestUpload_FormPostRedirects(t *testing.T) {
	e := newTestEnv(t)

	rec := e.upload(t, "person", "me.png", "image/png", pngBytes(t), false)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("upload = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}

	page := e.do(t, http.MethodGet, "/", nil, "", false)
	if !strings.Contains(page.Body.String(), preview.PathPrefix) {
		t.Error("page does not show the uploaded preview")
	}
}

func TestUpload_JSON(t *testing.T) {
	tests := []struct {
		name        string
		role        string
		contentType string
		data        []byte
		wantStatus  int
		wantFilled  bool
	}{
		{"png", "top", "image/png", nil, http.StatusOK, true},
		{"text file", "top", "text/plain", []byte("hello"), http.StatusUnsupportedMediaType, false},
		{"webp not offered", "top", "image/webp", []byte("RIFF"), http.StatusUnsupportedMediaType, false},
		{"unknown role", "shoes", "image/png", nil, http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			data := tt.data
			if data == nil {
				data = pngBytes(t)
			}
			rec := e.upload(t, tt.role, "file", tt.contentType, data, true)
			if rec.Code != tt.wantStatus {
				t.Fatalf("upload = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}

			st := decodeState(t, e.do(t, http.MethodGet, "/api/state", nil, "", true))
			filled := false
			for _, s := range st.Slots {
				if s.Role == tt.role {
					filled = s.Filled
				}
			}
			if filled != tt.wantFilled {
				t.Errorf("slot filled = %v, want %v", filled, tt.wantFilled)
			}
		})
	}
}

func TestUpload_NonImageSetsBanner(t *testing.T) {
	e := newTestEnv(t)

	e.upload(t, "person", "notes.txt", "text/plain", []byte("hello"), false)

	st := decodeState(t, e.do(t, http.MethodGet, "/api/state", nil, "", true))
	if st.Error != encoder.MessageUnsupportedType {
		t.Errorf("error = %q, want %q", st.Error, encoder.MessageUnsupportedType)
	}
	if st.Slots[0].Filled {
		t.Error("person slot filled after rejected upload")
	}
}

func TestUpload_MissingFile(t *testing.T) {
	e := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("other", "x")
	mw.Close()

	rec := e.do(t, http.MethodPost, "/api/upload/person", &body, mw.FormDataContentType(), true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("upload without file = %d, want 400", rec.Code)
	}
}

func TestUpload_MethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/api/upload/person", "/api/clear/person", "/api/generate", "/api/error/dismiss"} {
		if rec := e.do(t, http.MethodGet, path, nil, "", true); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s = %d, want 405", path, rec.Code)
		}
	}
	if rec := e.do(t, http.MethodPost, "/api/state", nil, "", true); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/state = %d, want 405", rec.Code)
	}
}

func TestClear(t *testing.T) {
	e := newTestEnv(t)
	e.upload(t, "person", "a.png", "image/png", pngBytes(t), true)
	e.upload(t, "top", "b.png", "image/png", pngBytes(t), true)

	rec := e.do(t, http.MethodPost, "/api/clear/person", nil, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear = %d, want 200", rec.Code)
	}
	st := decodeState(t, rec)
	if st.Slots[0].Filled {
		t.Error("person still filled after clear")
	}
	if !st.Slots[1].Filled {
		t.Error("top cleared by clearing person")
	}
	if got := e.previews.Len(); got != 1 {
		t.Errorf("live previews = %d, want 1", got)
	}
}

func TestGenerate(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/generate", nil, "", true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("generate with empty slots = %d, want 409", rec.Code)
	}
	if e.gen.calls != 0 {
		t.Fatalf("generator called %d times, want 0", e.gen.calls)
	}

	for _, role := range []string{"person", "top", "bottom"} {
		e.upload(t, role, role+".png", "image/png", pngBytes(t), true)
	}

	rec = e.do(t, http.MethodPost, "/api/generate", nil, "", true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("generate = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
	e.srv.wait()

	st := decodeState(t, e.do(t, http.MethodGet, "/api/state", nil, "", true))
	if st.Status != "succeeded" {
		t.Fatalf("status = %q, want succeeded", st.Status)
	}
	if st.Payload != e.gen.payload {
		t.Errorf("payload = %q, want %q", st.Payload, e.gen.payload)
	}

	page := e.do(t, http.MethodGet, "/", nil, "", false)
	if !strings.Contains(page.Body.String(), "data:image/png;base64,"+e.gen.payload) {
		t.Error("page does not show the generated image")
	}
}

func TestGenerate_FailureThenDismiss(t *testing.T) {
	e := newTestEnv(t)
	e.gen.err = errors.New("failed to generate the try-on image; please try again")
	for _, role := range []string{"person", "top", "bottom"} {
		e.upload(t, role, role+".png", "image/png", pngBytes(t), true)
	}

	rec := e.do(t, http.MethodPost, "/api/generate", nil, "", false)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("generate form post = %d, want 303", rec.Code)
	}
	e.srv.wait()

	st := decodeState(t, e.do(t, http.MethodGet, "/api/state", nil, "", true))
	if st.Status != "failed" || st.Error != e.gen.err.Error() {
		t.Fatalf("state = %+v, want failed with banner", st)
	}
	if !st.CanSubmit {
		t.Error("submit should be enabled again after failure")
	}

	st = decodeState(t, e.do(t, http.MethodPost, "/api/error/dismiss", nil, "", true))
	if st.Error != "" {
		t.Errorf("error after dismiss = %q, want empty", st.Error)
	}
}

func TestPreviewServedAndReleased(t *testing.T) {
	e := newTestEnv(t)
	st := decodeState(t, e.upload(t, "bottom", "b.png", "image/png", pngBytes(t), true))
	url := st.Slots[2].PreviewURL
	if !strings.HasPrefix(url, preview.PathPrefix) {
		t.Fatalf("preview url = %q", url)
	}

	rec := e.do(t, http.MethodGet, url, nil, "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET preview = %d, want 200", rec.Code)
	}
	if _, err := png.Decode(rec.Body); err != nil {
		t.Errorf("preview is not a png: %v", err)
	}

	e.do(t, http.MethodPost, "/api/clear/bottom", nil, "", true)
	if rec := e.do(t, http.MethodGet, url, nil, "", false); rec.Code != http.StatusNotFound {
		t.Errorf("GET released preview = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.upload(t, "person", "a.png", "image/png", pngBytes(t), true)

	rec := e.do(t, http.MethodGet, "/metrics", nil, "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"virtual_tryon_uploads_total", "virtual_tryon_previews_live 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/state", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/state", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for foreign origin = %q, want empty", got)
	}
}

func TestNewStateResponse(t *testing.T) {
	v := session.View{State: session.Failed{Message: "m"}, Error: "m"}
	st := newStateResponse(v)
	if st.Status != "failed" || st.Message != "m" || st.Payload != "" {
		t.Errorf("newStateResponse() = %+v", st)
	}
	if len(st.Slots) != 3 {
		t.Errorf("slots = %d, want 3", len(st.Slots))
	}

	payload := base64.StdEncoding.EncodeToString([]byte("img"))
	st = newStateResponse(session.View{State: session.Succeeded{Payload: payload}})
	if st.Payload != payload {
		t.Errorf("payload = %q, want %q", st.Payload, payload)
	}
}
