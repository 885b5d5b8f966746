package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"

	"github.com/fpang/virtual-tryon/internal/metrics"
	"github.com/fpang/virtual-tryon/internal/preview"
	"github.com/fpang/virtual-tryon/internal/session"
	"github.com/fpang/virtual-tryon/internal/ui"
)

// maxUploadBytes bounds a multipart upload body, including form overhead.
const maxUploadBytes = 21 << 20

// server owns the single try-on session of this process.
type server struct {
	ctrl     *session.Controller
	renderer *ui.Renderer
	previews *preview.Store
	metrics  *metrics.Recorder

	// baseCtx is cancelled on shutdown so in-flight generations return.
	baseCtx context.Context
	cancel  context.CancelFunc
	jobs    sync.WaitGroup
}

func newServer(ctrl *session.Controller, renderer *ui.Renderer, previews *preview.Store, rec *metrics.Recorder) *server {
	ctx, cancel := context.WithCancel(context.Background())
	return &server{
		ctrl:     ctrl,
		renderer: renderer,
		previews: previews,
		metrics:  rec,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// routes builds the full handler chain.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/upload/", s.handleUpload)
	mux.HandleFunc("/api/clear/", s.handleClear)
	mux.HandleFunc("/api/generate", s.handleGenerate)
	mux.HandleFunc("/api/error/dismiss", s.handleDismiss)
	mux.HandleFunc("/api/state", s.handleState)
	mux.Handle(preview.PathPrefix, s.previews)
	mux.Handle("/static/", ui.StaticHandler())
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/", s.handleIndex)

	return withLogging(withCORS(withSecurityHeaders(gzhttp.GzipHandler(mux))))
}

// startGeneration runs sub in the background.
func (s *server) startGeneration(sub *session.Submission) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		sub.Run(s.baseCtx)
	}()
}

// wait blocks until every background generation has finished.
func (s *server) wait() {
	s.jobs.Wait()
}

// close cancels running generations, waits for them and releases the
// session's previews.
func (s *server) close() {
	s.cancel()
	s.wait()
	s.ctrl.Close()
	log.Debug().Int("previews_live", s.previews.Len()).Msg("Session closed")
}
