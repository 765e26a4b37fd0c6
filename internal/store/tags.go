package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bunchhieng/saveit/internal/metrics"
)

// Registry is the sorted set of every tag ever used. It only grows.
type Registry struct {
	mu   sync.RWMutex
	tags []string

	persistMu sync.Mutex
	repo      TagRepository
	log       logrus.FieldLogger
}

// NewRegistry loads the tag set from repo.
func NewRegistry(ctx context.Context, repo TagRepository, logger logrus.FieldLogger) (*Registry, error) {
	tags, err := repo.LoadTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	r := &Registry{
		repo: repo,
		log:  logger.WithField("component", "tags"),
	}
	r.tags, _ = union(nil, tags)
	return r, nil
}

// AddTag inserts tag if it is not present.
func (r *Registry) AddTag(tag string) {
	r.AddTags([]string{tag})
}

// AddTags inserts every tag that is not present.
func (r *Registry) AddTags(tags []string) {
	r.mu.Lock()
	merged, added := union(r.tags, tags)
	if len(added) == 0 {
		r.mu.Unlock()
		return
	}
	r.tags = merged
	r.mu.Unlock()

	r.persist(added)
}

// Reload merges tags stored by other processes into the registry.
func (r *Registry) Reload(ctx context.Context) error {
	tags, err := r.repo.LoadTags(ctx)
	if err != nil {
		return fmt.Errorf("reload tags: %w", err)
	}
	r.mu.Lock()
	r.tags, _ = union(r.tags, tags)
	r.mu.Unlock()
	return nil
}

// Tags returns the sorted tag set.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.tags...)
}

// Contains reports whether tag is registered.
func (r *Registry) Contains(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := sort.SearchStrings(r.tags, tag)
	return i < len(r.tags) && r.tags[i] == tag
}

func (r *Registry) persist(tags []string) {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.repo.AddTags(ctx, tags); err != nil {
		metrics.PersistFailures.WithLabelValues(TagsCollection).Inc()
		r.log.WithError(err).Warn("Failed to persist tags")
	}
}

// union returns the sorted union and the normalized tags that were new.
func union(existing, add []string) ([]string, []string) {
	set := make(map[string]bool, len(existing)+len(add))
	for _, t := range existing {
		set[t] = true
	}
	var added []string
	for _, t := range add {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || set[t] {
			continue
		}
		set[t] = true
		added = append(added, t)
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, added
}
