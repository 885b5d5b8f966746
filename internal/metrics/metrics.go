// Package metrics exports try-on upload and generation metrics to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fpang/virtual-tryon/internal/auth"
	"github.com/fpang/virtual-tryon/internal/chat"
	"github.com/fpang/virtual-tryon/internal/encoder"
	"github.com/fpang/virtual-tryon/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "virtual_tryon"

// Result label values.
const (
	ResultSuccess       = "success"
	ResultInvalidType   = "invalid_type"
	ResultReadError     = "read_error"
	ResultConfiguration = "configuration"
	ResultNoImage       = "no_image"
	ResultFailed        = "failed"
)

// Recorder implements session.Observer.
type Recorder struct {
	uploads            *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	keyValidations     *prometheus.CounterVec
	keyValidationTime  prometheus.Histogram
	gatherer           prometheus.Gatherer
}

var _ session.Observer = (*Recorder)(nil)

// New registers the try-on collectors on reg. livePreviews, if non-nil, is
// sampled for the previews_live gauge.
func New(namespace string, reg *prometheus.Registry, livePreviews func() int) (*Recorder, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Recorder{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploads by role and outcome.",
		}, []string{"role", "result"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Latency of try-on generation calls by outcome.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"result"}),
		keyValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_validations_total",
			Help:      "Startup API key checks by outcome.",
		}, []string{"result"}),
		keyValidationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "key_validation_duration_seconds",
			Help:      "Latency of startup API key checks.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		gatherer: reg,
	}

	collectors := []prometheus.Collector{r.uploads, r.generationDuration, r.keyValidations, r.keyValidationTime}
	if livePreviews != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "previews_live",
			Help:      "Preview handles currently held.",
		}, func() float64 { return float64(livePreviews()) }))
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register try-on metric: %w", err)
		}
	}
	return r, nil
}

// UploadFinished counts one upload outcome.
func (r *Recorder) UploadFinished(role session.Role, err error) {
	if r == nil {
		return
	}
	r.uploads.WithLabelValues(role.String(), uploadResult(err)).Inc()
}

// GenerationFinished records one generation latency.
func (r *Recorder) GenerationFinished(d time.Duration, err error) {
	if r == nil {
		return
	}
	r.generationDuration.WithLabelValues(generationResult(err)).Observe(d.Seconds())
}

// KeyValidationFinished records one API key check.
func (r *Recorder) KeyValidationFinished(d time.Duration, err error) {
	if r == nil {
		return
	}
	r.keyValidations.WithLabelValues(keyValidationResult(err)).Inc()
	r.keyValidationTime.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func uploadResult(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case encoder.IsValidation(err):
		return ResultInvalidType
	default:
		return ResultReadError
	}
}

func generationResult(err error) string {
	if err == nil {
		return ResultSuccess
	}
	kind, ok := chat.KindOf(err)
	if !ok {
		return ResultFailed
	}
	switch kind {
	case chat.KindConfiguration:
		return ResultConfiguration
	case chat.KindNoImage:
		return ResultNoImage
	default:
		return ResultFailed
	}
}

// keyValidationResult labels a key check with the auth error category.
func keyValidationResult(err error) string {
	if err == nil {
		return ResultSuccess
	}
	return auth.ClassifyError(err).Type.String()
}
