package preview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/bunchhieng/saveit/internal/config"
)

// Metadata is what the metadata API knows about a page. Missing fields are empty.
type Metadata struct {
	Title       string
	Description string
	ImageURL    string
	Content     string
}

// MetadataFetcher looks up page metadata, optionally with the full page text.
type MetadataFetcher interface {
	Fetch(ctx context.Context, target string, withContent bool) (Metadata, error)
}

// apiResponse mirrors the parts of the metadata API payload that are used.
type apiResponse struct {
	Status string `json:"status"`
	Data   struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Image       *struct {
			URL *string `json:"url"`
		} `json:"image"`
		Content *string `json:"content"`
	} `json:"data"`
}

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("metadata api returned status %d", e.StatusCode)
}

// MetadataClient calls the metadata API through a rate limiter, retries and
// a circuit breaker.
type MetadataClient struct {
	client  *resty.Client
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

// NewMetadataClient builds a client for cfg.APIURL.
func NewMetadataClient(cfg config.PreviewConfig, logger logrus.FieldLogger) *MetadataClient {
	log := logger.WithField("component", "metadata")

	client := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryWait * 5).
		SetHeader("Accept", "application/json")

	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})

	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "metadata_api",
		Timeout: cfg.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
	})
	client.SetTransport(&breakerTransport{breaker: breaker, next: http.DefaultTransport})

	client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		if resp.Request.Attempt > 1 {
			log.WithFields(logrus.Fields{
				"attempt": resp.Request.Attempt,
				"status":  resp.StatusCode(),
			}).Debug("metadata api retry")
		}
		return nil
	})

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &MetadataClient{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
	}
}

// Fetch looks up target. With withContent the API is asked for the page text too.
func (c *MetadataClient) Fetch(ctx context.Context, target string, withContent bool) (Metadata, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Metadata{}, fmt.Errorf("wait for rate limiter: %w", err)
	}

	var payload apiResponse
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("url", target).
		SetResult(&payload)
	if withContent {
		req.SetQueryParams(map[string]string{
			"data.content.selector": "article, main, body",
			"data.content.attr":     "text",
		})
	}

	resp, err := req.Get("")
	if err != nil {
		return Metadata{}, fmt.Errorf("request metadata: %w", err)
	}
	if resp.IsError() {
		return Metadata{}, &StatusError{StatusCode: resp.StatusCode()}
	}
	if payload.Status != "" && payload.Status != "success" {
		return Metadata{}, fmt.Errorf("metadata api status %q", payload.Status)
	}

	md := Metadata{
		Title:       deref(payload.Data.Title),
		Description: deref(payload.Data.Description),
		Content:     deref(payload.Data.Content),
	}
	if payload.Data.Image != nil {
		md.ImageURL = deref(payload.Data.Image.URL)
	}
	return md, nil
}

// breakerTransport counts transport errors and 5xx responses against the breaker.
type breakerTransport struct {
	breaker *gobreaker.CircuitBreaker
	next    http.RoundTripper
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	result, err := t.breaker.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// requestTimeout bounds ctx by d unless it already ends sooner.
func requestTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
