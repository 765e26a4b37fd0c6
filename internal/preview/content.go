package preview

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"

	"github.com/bunchhieng/saveit/internal/config"
	"github.com/bunchhieng/saveit/internal/metrics"
	"github.com/bunchhieng/saveit/internal/model"
)

// DefaultContentTimeout bounds a whole extraction run.
const DefaultContentTimeout = 60 * time.Second

// errTooShort marks text that was fetched but is below an extractor's threshold.
var errTooShort = errors.New("extracted text too short")

// Extractor produces readable text for a page.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, u string) (string, error)
}

// Chain tries extractors in order and returns the first text that passes.
type Chain struct {
	extractors []Extractor
	timeout    time.Duration
	log        logrus.FieldLogger
}

// NewChain creates a Chain bounded by timeout.
func NewChain(timeout time.Duration, logger logrus.FieldLogger, extractors ...Extractor) *Chain {
	if timeout <= 0 {
		timeout = DefaultContentTimeout
	}
	return &Chain{
		extractors: extractors,
		timeout:    timeout,
		log:        logger.WithField("component", "content"),
	}
}

// NewConfiguredChain builds the API, raw HTML and browser extractors enabled by cfg, in that order.
func NewConfiguredChain(cfg config.ContentConfig, meta MetadataFetcher, logger logrus.FieldLogger) *Chain {
	extractors := []Extractor{NewAPIExtractor(meta, cfg.MinAPILength)}
	if cfg.RawHTML {
		extractors = append(extractors, NewHTMLExtractor(SafeClient(cfg.Timeout), cfg.MinHTMLLength, cfg.MaxBodyBytes))
	}
	if cfg.Browser {
		extractors = append(extractors,
			NewBrowserExtractor(cfg.BrowserAttempts, cfg.BrowserInterval, cfg.MinBlocks, cfg.MinHTMLLength, logger))
	}
	return NewChain(cfg.Timeout, logger, extractors...)
}

// Extract returns the page text or model.ErrNoContent when every extractor fails.
func (c *Chain) Extract(ctx context.Context, u string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log := c.log.WithField("url", u)
	for _, ex := range c.extractors {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Warn("content extraction timed out")
			break
		}

		text, err := ex.Extract(ctx, u)
		if err != nil {
			result := metrics.ResultFailed
			if errors.Is(err, errBrowserUnavailable) {
				result = metrics.ResultSkipped
			}
			metrics.ContentExtractions.WithLabelValues(ex.Name(), result).Inc()
			log.WithError(err).WithField("source", ex.Name()).Debug("extractor gave no content")
			continue
		}

		metrics.ContentExtractions.WithLabelValues(ex.Name(), metrics.ResultOK).Inc()
		log.WithField("source", ex.Name()).Debug("content extracted")
		return text, nil
	}

	log.Warn("no readable content found")
	return "", model.ErrNoContent
}

// APIExtractor asks the metadata API for page text.
type APIExtractor struct {
	meta   MetadataFetcher
	minLen int
	policy *bluemonday.Policy
}

// NewAPIExtractor accepts API text longer than minLen characters.
func NewAPIExtractor(meta MetadataFetcher, minLen int) *APIExtractor {
	return &APIExtractor{
		meta:   meta,
		minLen: minLen,
		policy: bluemonday.StrictPolicy(),
	}
}

// Name identifies the extractor in logs and metrics.
func (e *APIExtractor) Name() string { return "api" }

// Extract asks the metadata API for the article body and strips its markup.
func (e *APIExtractor) Extract(ctx context.Context, u string) (string, error) {
	md, err := e.meta.Fetch(ctx, u, true)
	if err != nil {
		return "", err
	}
	text := CollapseWhitespace(html.UnescapeString(e.policy.Sanitize(md.Content)))
	if utf8.RuneCountInString(text) <= e.minLen {
		return "", fmt.Errorf("%w: %d characters", errTooShort, utf8.RuneCountInString(text))
	}
	return text, nil
}

// CollapseWhitespace trims s and replaces every whitespace run with one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
