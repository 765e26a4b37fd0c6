package preview

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bunchhieng/saveit/internal/metrics"
	"github.com/bunchhieng/saveit/internal/model"
)

// DefaultPreviewTimeout bounds a single preview lookup.
const DefaultPreviewTimeout = 8 * time.Second

// Preview is the metadata shown for a link before it is read.
type Preview struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	ImageURL    *string `json:"imageUrl"`
}

// Fallback is the degraded preview used when the lookup fails: the URL as
// title and nothing else.
func Fallback(u string) Preview {
	return Preview{Title: u}
}

// Cache stores successful previews by URL.
type Cache interface {
	Get(ctx context.Context, u string) (Preview, bool, error)
	Set(ctx context.Context, u string, p Preview) error
}

// Previewer resolves previews. It never fails; errors produce Fallback.
type Previewer struct {
	meta    MetadataFetcher
	cache   Cache
	timeout time.Duration
	log     logrus.FieldLogger
}

// PreviewerOption configures a Previewer.
type PreviewerOption func(*Previewer)

// WithCache serves and stores previews through c.
func WithCache(c Cache) PreviewerOption {
	return func(p *Previewer) { p.cache = c }
}

// WithTimeout overrides DefaultPreviewTimeout.
func WithTimeout(d time.Duration) PreviewerOption {
	return func(p *Previewer) { p.timeout = d }
}

// NewPreviewer creates a Previewer backed by meta.
func NewPreviewer(meta MetadataFetcher, logger logrus.FieldLogger, opts ...PreviewerOption) *Previewer {
	p := &Previewer{
		meta:    meta,
		timeout: DefaultPreviewTimeout,
		log:     logger.WithField("component", "preview"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Preview returns the preview for u, or Fallback(u) when the lookup fails
// or times out.
func (p *Previewer) Preview(ctx context.Context, u string) Preview {
	start := time.Now()
	defer func() { metrics.PreviewDuration.Observe(time.Since(start).Seconds()) }()

	log := p.log.WithField("url", u)

	if p.cache != nil {
		cached, ok, err := p.cache.Get(ctx, u)
		if err != nil {
			log.WithError(err).Debug("preview cache lookup failed")
		} else if ok {
			metrics.PreviewFetches.WithLabelValues(metrics.ResultCached).Inc()
			return cached
		}
	}

	fetchCtx, cancel := requestTimeout(ctx, p.timeout)
	defer cancel()

	md, err := p.meta.Fetch(fetchCtx, u, false)
	if err != nil {
		log.WithError(err).Warn("preview unavailable, saving without metadata")
		metrics.PreviewFetches.WithLabelValues(metrics.ResultDegraded).Inc()
		return Fallback(u)
	}

	result := fromMetadata(u, md)
	metrics.PreviewFetches.WithLabelValues(metrics.ResultOK).Inc()

	if p.cache != nil {
		if err := p.cache.Set(ctx, u, result); err != nil {
			log.WithError(err).Debug("preview cache store failed")
		}
	}
	return result
}

func fromMetadata(u string, md Metadata) Preview {
	title := strings.TrimSpace(md.Title)
	if title == "" {
		title = u
	}
	return Preview{
		Title:       title,
		Description: model.StringPtr(strings.TrimSpace(md.Description)),
		ImageURL:    model.StringPtr(strings.TrimSpace(md.ImageURL)),
	}
}
