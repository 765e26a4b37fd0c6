// Package app wires configuration, storage, stores and the fetch pipeline
// into a ready-to-use application.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/bunchhieng/saveit/internal/config"
	"github.com/bunchhieng/saveit/internal/metrics"
	"github.com/bunchhieng/saveit/internal/preview"
	"github.com/bunchhieng/saveit/internal/reminder"
	"github.com/bunchhieng/saveit/internal/service"
	"github.com/bunchhieng/saveit/internal/storage"
	"github.com/bunchhieng/saveit/internal/store"
)

// NewLogger builds the application logger. Output goes to w (stderr in
// production) so stdout stays free for command output.
func NewLogger(cfg config.LogConfig, w io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(w)

	level := cfg.Level
	if level == "" {
		level = "warn"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return log, nil
}

// App holds the long-lived components.
type App struct {
	Config    config.Config
	Log       *logrus.Logger
	Storage   storage.Storage
	Links     *store.Store
	Tags      *store.Registry
	Previewer *preview.Previewer
	Content   *preview.Chain
	Service   *service.Service

	cache *preview.RedisCache
}

// New opens storage and builds every component from cfg.
func New(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*App, error) {
	st, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	a := &App{Config: cfg, Log: logger, Storage: st}

	a.Links, err = store.New(ctx, st, logger)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("initialize link store: %w", err), a.Close())
	}
	a.Tags, err = store.NewRegistry(ctx, st, logger)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("initialize tag registry: %w", err), a.Close())
	}

	meta := preview.NewMetadataClient(cfg.Preview, logger)

	opts := []preview.PreviewerOption{preview.WithTimeout(cfg.Preview.Timeout)}
	if cfg.Cache.RedisAddr != "" {
		cache, err := preview.NewRedisCache(cfg.Cache, logger)
		if err != nil {
			// The cache is an optimization; run without it.
			logger.WithError(err).Warn("preview cache disabled")
		} else {
			a.cache = cache
			opts = append(opts, preview.WithCache(cache))
		}
	}
	a.Previewer = preview.NewPreviewer(meta, logger, opts...)
	a.Content = preview.NewConfiguredChain(cfg.Content, meta, logger)
	a.Service = service.New(a.Links, a.Tags, a.Previewer, a.Content, cfg.Reading.WordsPerMinute, logger)

	return a, nil
}

// Reminders returns a reminder manager that notifies on w.
func (a *App) Reminders(w io.Writer) *reminder.Manager {
	return reminder.NewManager(a.Storage, a.Links, reminder.NewWriterNotifier(w, a.Log), a.Log)
}

// Close releases storage and the cache connection.
func (a *App) Close() error {
	var err error
	if a.cache != nil {
		err = multierr.Append(err, a.cache.Close())
	}
	if a.Storage != nil {
		err = multierr.Append(err, a.Storage.Close())
	}
	return err
}

// ServeMetrics exposes Prometheus metrics until ctx is done. It returns
// immediately when no metrics address is configured.
func (a *App) ServeMetrics(ctx context.Context) error {
	if a.Config.Metrics.Addr == "" {
		return nil
	}
	return metrics.NewServer(a.Config.Metrics.Addr, a.Log).Start(ctx)
}
