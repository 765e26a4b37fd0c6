// Package store holds the in-memory source of truth for links and tags.
// Every mutation queues a write of the records it touched, flushes the queue
// to the injected repository in mutation order and then notifies subscribers
// synchronously.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bunchhieng/saveit/internal/metrics"
	"github.com/bunchhieng/saveit/internal/model"
	"github.com/bunchhieng/saveit/internal/progress"
)

const persistTimeout = 10 * time.Second

// Op names the kind of mutation that produced an Event.
type Op string

const (
	OpAdd      Op = "add"
	OpRemove   Op = "remove"
	OpUpdate   Op = "update"
	OpProgress Op = "progress"
	OpStatus   Op = "status"
	OpClear    Op = "clear"
	OpImport   Op = "import"
	OpReload   Op = "reload"
)

// Event is delivered to subscribers after a mutation. ID is empty for bulk operations.
type Event struct {
	Op Op
	ID string
}

// Listener receives store events.
type Listener func(Event)

// Store owns the link collection. Links are kept most recent first.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	links    []model.Link
	revision uint64

	listenerMu   sync.Mutex
	listeners    map[int]Listener
	nextListener int

	// pending is guarded by mu; persistMu serializes draining it.
	pending   []write
	persistMu sync.Mutex
	repo      LinkRepository

	countsMu     sync.Mutex
	publishedRev uint64

	log logrus.FieldLogger
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New loads the current snapshot from repo and returns a ready store.
func New(ctx context.Context, repo LinkRepository, logger logrus.FieldLogger, opts ...Option) (*Store, error) {
	links, err := repo.LoadLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}

	s := &Store{
		links:     links,
		listeners: make(map[int]Listener),
		repo:      repo,
		log:       logger.WithField("component", "store"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.links == nil {
		s.links = []model.Link{}
	}
	metrics.SetLinkCounts(countStatuses(s.links))
	s.log.WithField("link_count", len(links)).Debug("Links loaded")
	return s, nil
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		delete(s.listeners, id)
	}
}

// AddLink creates a link from d, assigning id and createdAt, and prepends it.
func (s *Store) AddLink(d model.Draft) model.Link {
	now := s.now().UTC().Truncate(time.Millisecond)

	s.mu.Lock()
	link := model.Link{
		ID:                model.NewID(now),
		URL:               d.URL,
		Title:             d.Title,
		Description:       d.Description,
		ImageURL:          d.ImageURL,
		Content:           nil,
		Tags:              model.NormalizeTags(d.Tags),
		Category:          d.Category,
		Status:            d.Status,
		ReadingProgress:   progress.Clamp(d.ReadingProgress),
		EstimatedReadTime: d.EstimatedReadTime,
		Note:              d.Note,
		CreatedAt:         now,
		Groups:            append([]string{}, d.Groups...),
		Prompt:            d.Prompt,
		Summary:           d.Summary,
		Response:          d.Response,
	}
	if !link.Status.Valid() {
		link.Status = progress.StatusFor(link.ReadingProgress)
	}
	link = link.Clone()
	link.Revision = s.bump()
	s.links = append([]model.Link{link}, s.links...)
	counts, rev := s.queueLocked(write{op: OpAdd, links: []model.Link{link.Clone()}})
	s.mu.Unlock()

	s.commit(counts, rev, Event{Op: OpAdd, ID: link.ID})
	return link.Clone()
}

// RemoveLink deletes the link with id. It reports whether a link was removed.
func (s *Store) RemoveLink(id string) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.links = append(s.links[:idx:idx], s.links[idx+1:]...)
	s.bump()
	counts, rev := s.queueLocked(write{op: OpRemove, id: id})
	s.mu.Unlock()

	s.commit(counts, rev, Event{Op: OpRemove, ID: id})
	return true
}

// UpdateLink merges p into the link with id. A missing id is a no-op and
// reports false. Only an invalid patch is an error.
func (s *Store) UpdateLink(id string, p model.Patch) (bool, error) {
	return s.update(id, 0, false, p)
}

// UpdateLinkIfRevision applies p only when the link is still at revision rev.
// Background work uses it so that results computed from stale state are dropped.
func (s *Store) UpdateLinkIfRevision(id string, rev uint64, p model.Patch) (bool, error) {
	return s.update(id, rev, true, p)
}

func (s *Store) update(id string, rev uint64, checkRev bool, p model.Patch) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	if checkRev && s.links[idx].Revision != rev {
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{
			"id":       id,
			"expected": rev,
			"current":  s.links[idx].Revision,
		}).Debug("Discarding stale update")
		return false, nil
	}
	if p.Empty() {
		s.mu.Unlock()
		return true, nil
	}
	updated := p.Apply(s.links[idx])
	updated.ID = s.links[idx].ID
	updated.CreatedAt = s.links[idx].CreatedAt
	updated.Revision = s.bump()
	s.links[idx] = updated
	counts, srev := s.queueLocked(write{op: OpUpdate, links: []model.Link{updated.Clone()}})
	s.mu.Unlock()

	s.commit(counts, srev, Event{Op: OpUpdate, ID: id})
	return true, nil
}

// RecordProgress stores a new progress value and derives the status from it.
func (s *Store) RecordProgress(id string, p float64) (model.Link, bool) {
	p = progress.Clamp(p)
	return s.mutateReading(id, OpProgress, func(l *model.Link) {
		l.ReadingProgress = p
		l.Status = progress.StatusFor(p)
	})
}

// SetStatus sets the status explicitly and moves progress to the value the
// status implies: 0 for unread, 1 for completed, unchanged for reading.
func (s *Store) SetStatus(id string, st model.Status) (model.Link, bool, error) {
	if !st.Valid() {
		return model.Link{}, false, model.ErrInvalidStatus
	}
	link, ok := s.mutateReading(id, OpStatus, func(l *model.Link) {
		l.Status = st
		l.ReadingProgress = progress.CanonicalProgress(st, l.ReadingProgress)
	})
	return link, ok, nil
}

// ToggleComplete marks an unfinished link completed, or a completed one unread.
func (s *Store) ToggleComplete(id string) (model.Link, bool) {
	return s.mutateReading(id, OpStatus, func(l *model.Link) {
		if l.Status == model.StatusCompleted {
			l.Status = model.StatusUnread
		} else {
			l.Status = model.StatusCompleted
		}
		l.ReadingProgress = progress.CanonicalProgress(l.Status, l.ReadingProgress)
	})
}

func (s *Store) mutateReading(id string, op Op, fn func(*model.Link)) (model.Link, bool) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return model.Link{}, false
	}
	fn(&s.links[idx])
	s.links[idx].Revision = s.bump()
	link := s.links[idx].Clone()
	counts, rev := s.queueLocked(write{op: op, links: []model.Link{link.Clone()}})
	s.mu.Unlock()

	s.commit(counts, rev, Event{Op: op, ID: id})
	return link, true
}

// GetLink returns a copy of the link with id.
func (s *Store) GetLink(id string) (model.Link, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return model.Link{}, false
	}
	return s.links[idx].Clone(), true
}

// Links returns a copy of all links, most recent first.
func (s *Store) Links() []model.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLinks(s.links)
}

// Len returns the number of stored links.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links)
}

// ClearAllLinks removes every link.
func (s *Store) ClearAllLinks() {
	s.mu.Lock()
	s.links = []model.Link{}
	s.bump()
	counts, rev := s.queueLocked(write{op: OpClear})
	s.mu.Unlock()

	s.commit(counts, rev, Event{Op: OpClear})
}

// ExportLinks returns the full collection for serialization.
func (s *Store) ExportLinks() []model.Link {
	return s.Links()
}

// ImportLinks prepends records whose URL is not already stored and returns
// the links that were added. Records without a URL are skipped, and so is a
// repeated URL within records. Imported ids and creation times are kept when usable.
func (s *Store) ImportLinks(records []model.Link) []model.Link {
	now := s.now().UTC().Truncate(time.Millisecond)

	s.mu.Lock()
	urls := make(map[string]bool, len(s.links))
	ids := make(map[string]bool, len(s.links))
	for _, l := range s.links {
		urls[l.URL] = true
		ids[l.ID] = true
	}

	added := make([]model.Link, 0, len(records))
	for _, rec := range records {
		if rec.URL == "" || urls[rec.URL] {
			continue
		}
		link := normalizeImported(rec, now, ids)
		link.Revision = s.bump()
		ids[link.ID] = true
		urls[link.URL] = true
		added = append(added, link)
	}
	if len(added) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.links = append(cloneLinks(added), s.links...)
	counts, rev := s.queueLocked(write{op: OpImport, links: cloneLinks(added)})
	s.mu.Unlock()

	s.commit(counts, rev, Event{Op: OpImport})
	return added
}

// Reload replaces the collection with what the repository holds, picking up
// links written by other processes. Queued writes are flushed first. Every
// link gets a new revision, so background results computed before the
// reload are discarded.
func (s *Store) Reload(ctx context.Context) error {
	if err := s.reload(ctx); err != nil {
		return err
	}
	s.notify(Event{Op: OpReload})
	return nil
}

func (s *Store) reload(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	for {
		s.drain()
		links, err := s.repo.LoadLinks(ctx)
		if err != nil {
			return fmt.Errorf("reload links: %w", err)
		}

		s.mu.Lock()
		if len(s.pending) > 0 {
			// Written while loading; load again once it is on disk.
			s.mu.Unlock()
			continue
		}
		if links == nil {
			links = []model.Link{}
		}
		for i := range links {
			links[i].Revision = s.bump()
		}
		s.links = links
		counts, rev := countStatuses(s.links), s.revision
		s.mu.Unlock()

		s.publishCounts(counts, rev)
		s.log.WithField("link_count", len(links)).Debug("Links reloaded")
		return nil
	}
}

func normalizeImported(rec model.Link, now time.Time, ids map[string]bool) model.Link {
	link := rec.Clone()
	if !model.ValidateID(link.ID) || ids[link.ID] {
		link.ID = model.NewID(now)
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	if link.Title == "" {
		link.Title = link.URL
	}
	link.Tags = model.NormalizeTags(link.Tags)
	if link.Groups == nil {
		link.Groups = []string{}
	}
	link.ReadingProgress = progress.Clamp(link.ReadingProgress)
	if !link.Status.Valid() {
		link.Status = progress.StatusFor(link.ReadingProgress)
	}
	return link
}

func (s *Store) indexLocked(id string) int {
	for i := range s.links {
		if s.links[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) bump() uint64 {
	s.revision++
	return s.revision
}

// write is one queued repository change. Inserts and updates carry the
// records to store; removals carry only the id.
type write struct {
	op    Op
	id    string
	links []model.Link
}

// queueLocked appends w to the write queue and returns the status counts at
// the current revision.
func (s *Store) queueLocked(w write) (map[string]int, uint64) {
	s.pending = append(s.pending, w)
	return countStatuses(s.links), s.revision
}

// commit flushes queued writes, publishes counts and notifies subscribers.
func (s *Store) commit(counts map[string]int, rev uint64, ev Event) {
	s.flush()
	s.publishCounts(counts, rev)
	s.notify(ev)
}

// flush writes every queued change in mutation order. When it returns, the
// caller's own write has been attempted, either by it or by a concurrent flush.
func (s *Store) flush() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.drain()
}

// drain must be called with persistMu held.
func (s *Store) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		w := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.persist(w)
	}
}

func (s *Store) persist(w write) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var err error
	switch w.op {
	case OpAdd, OpImport:
		err = s.repo.InsertLinks(ctx, w.links)
	case OpRemove:
		err = s.repo.DeleteLink(ctx, w.id)
	case OpClear:
		err = s.repo.ClearLinks(ctx)
	default:
		err = s.repo.UpdateLink(ctx, w.links[0])
	}
	if err != nil {
		metrics.PersistFailures.WithLabelValues(LinksCollection).Inc()
		s.log.WithError(err).WithField("op", w.op).Warn("Failed to persist links")
	}
}

func (s *Store) notify(ev Event) {
	s.listenerMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenerMu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// publishCounts sets the status gauges unless newer counts were already published.
func (s *Store) publishCounts(counts map[string]int, rev uint64) {
	s.countsMu.Lock()
	defer s.countsMu.Unlock()
	if rev <= s.publishedRev {
		return
	}
	s.publishedRev = rev
	metrics.SetLinkCounts(counts)
}

func countStatuses(links []model.Link) map[string]int {
	counts := make(map[string]int, 3)
	for _, l := range links {
		counts[string(l.Status)]++
	}
	return counts
}
