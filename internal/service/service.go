// Package service implements the user-facing flows on top of the link store:
// saving with a preview, editing, lazy content loading, reading state changes
// and import/export.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bunchhieng/saveit/internal/filter"
	"github.com/bunchhieng/saveit/internal/model"
	"github.com/bunchhieng/saveit/internal/preview"
	"github.com/bunchhieng/saveit/internal/reader"
	"github.com/bunchhieng/saveit/internal/store"
)

// staleRetries bounds how often a background result is re-applied after the
// link changed underneath it.
const staleRetries = 3

// Previewer resolves link previews without failing.
type Previewer interface {
	Preview(ctx context.Context, u string) preview.Preview
}

// ContentExtractor produces readable page text.
type ContentExtractor interface {
	Extract(ctx context.Context, u string) (string, error)
}

// NewLink is the user input for saving a link.
type NewLink struct {
	URL      string
	Title    string
	Note     string
	Tags     []string
	Category string
}

// Service coordinates the store, the tag registry and the fetch pipeline.
type Service struct {
	links    *store.Store
	tags     *store.Registry
	previews Previewer
	content  ContentExtractor
	wpm      int
	log      logrus.FieldLogger
}

// New creates a Service. wpm is the reading speed used for read time estimates.
func New(links *store.Store, tags *store.Registry, previews Previewer, content ContentExtractor, wpm int, logger logrus.FieldLogger) *Service {
	return &Service{
		links:    links,
		tags:     tags,
		previews: previews,
		content:  content,
		wpm:      wpm,
		log:      logger.WithField("component", "service"),
	}
}

// Save validates the URL, waits for the preview and stores the link. A
// failed preview still saves the link with the URL as its title.
func (s *Service) Save(ctx context.Context, in NewLink) (model.Link, error) {
	u, err := preview.Clean(in.URL)
	if err != nil {
		return model.Link{}, err
	}

	p := s.previews.Preview(ctx, u)
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = p.Title
	}

	tags := model.NormalizeTags(in.Tags)
	link := s.links.AddLink(model.Draft{
		URL:         u,
		Title:       title,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Tags:        tags,
		Category:    model.StringPtr(strings.TrimSpace(in.Category)),
		Status:      model.StatusUnread,
		Note:        model.StringPtr(strings.TrimSpace(in.Note)),
		Groups:      []string{},
	})
	s.tags.AddTags(tags)

	s.log.WithFields(logrus.Fields{"id": link.ID, "url": u}).Info("link saved")
	return link, nil
}

// Edit applies patch to the link with id. When the URL changes, stale
// content is dropped and the preview is fetched again; fields the patch sets
// win over preview values.
func (s *Service) Edit(ctx context.Context, id string, patch model.Patch) (model.Link, error) {
	current, ok := s.links.GetLink(id)
	if !ok {
		return model.Link{}, model.ErrNotFound
	}

	urlChanged := false
	if u, ok := patch.URL.Value(); ok {
		cleaned, err := preview.Clean(u)
		if err != nil {
			return model.Link{}, err
		}
		patch.URL = model.Set(cleaned)
		urlChanged = cleaned != current.URL
	}
	if urlChanged && !patch.Content.IsSet() {
		patch.Content = model.Null[string]()
		patch.EstimatedReadTime = model.Null[int]()
	}

	applied, err := s.links.UpdateLink(id, patch)
	if err != nil {
		return model.Link{}, err
	}
	if !applied {
		return model.Link{}, model.ErrNotFound
	}
	if tags, ok := patch.Tags.Value(); ok {
		s.tags.AddTags(model.NormalizeTags(tags))
	}

	updated, ok := s.links.GetLink(id)
	if !ok {
		return model.Link{}, model.ErrNotFound
	}
	if !urlChanged {
		return updated, nil
	}

	p := s.previews.Preview(ctx, updated.URL)
	var refresh model.Patch
	if !patch.Title.IsSet() {
		refresh.Title = model.Set(p.Title)
	}
	if !patch.Description.IsSet() {
		refresh.Description = model.SetPtr(p.Description)
	}
	if !patch.ImageURL.IsSet() {
		refresh.ImageURL = model.SetPtr(p.ImageURL)
	}
	if refresh.Empty() {
		return updated, nil
	}
	return s.applyBackground(updated, refresh)
}

// LoadContent extracts the readable text of a link and stores it with a
// read time estimate. Links that already have content are returned as is
// unless force is set. On failure the link is returned with the error so
// callers can fall back to the description.
func (s *Service) LoadContent(ctx context.Context, id string, force bool) (model.Link, error) {
	link, ok := s.links.GetLink(id)
	if !ok {
		return model.Link{}, model.ErrNotFound
	}
	if link.HasContent() && !force {
		return link, nil
	}

	text, err := s.content.Extract(ctx, link.URL)
	if err != nil {
		return link, err
	}

	minutes := reader.ReadTime(text, s.wpm)
	patch := model.Patch{
		Content:           model.Set(text),
		EstimatedReadTime: model.Set(minutes),
	}
	return s.applyBackground(link, patch)
}

// applyBackground applies a patch computed from base. It is re-applied on
// newer revisions as long as the URL it was computed for is unchanged.
func (s *Service) applyBackground(base model.Link, patch model.Patch) (model.Link, error) {
	log := s.log.WithFields(logrus.Fields{"id": base.ID, "url": base.URL})

	rev := base.Revision
	for attempt := 0; attempt < staleRetries; attempt++ {
		applied, err := s.links.UpdateLinkIfRevision(base.ID, rev, patch)
		if err != nil {
			return base, err
		}
		current, ok := s.links.GetLink(base.ID)
		if !ok {
			log.Debug("link removed before background result arrived")
			return model.Link{}, model.ErrNotFound
		}
		if applied {
			return current, nil
		}
		if current.URL != base.URL {
			log.Info("discarding result fetched for a previous URL")
			return current, nil
		}
		rev = current.Revision
	}

	log.Warn("link kept changing, background result dropped")
	current, _ := s.links.GetLink(base.ID)
	return current, nil
}

// Get returns the link with id.
func (s *Service) Get(id string) (model.Link, error) {
	link, ok := s.links.GetLink(id)
	if !ok {
		return model.Link{}, model.ErrNotFound
	}
	return link, nil
}

// List returns the links matching c, most recent first.
func (s *Service) List(c filter.Criteria) []model.Link {
	return filter.Apply(s.links.Links(), c)
}

// Subscribe registers l for link store events and returns the unsubscribe function.
func (s *Service) Subscribe(l store.Listener) func() {
	return s.links.Subscribe(l)
}

// Tags returns every tag ever used.
func (s *Service) Tags() []string {
	return s.tags.Tags()
}

// Remove deletes the link with id.
func (s *Service) Remove(id string) error {
	if !s.links.RemoveLink(id) {
		return model.ErrNotFound
	}
	return nil
}

// Clear removes every link and returns how many there were.
func (s *Service) Clear() int {
	n := s.links.Len()
	s.links.ClearAllLinks()
	return n
}

// RecordProgress stores reading progress and derives the status.
func (s *Service) RecordProgress(id string, p float64) (model.Link, error) {
	link, ok := s.links.RecordProgress(id, p)
	if !ok {
		return model.Link{}, model.ErrNotFound
	}
	return link, nil
}

// SetStatus sets the status explicitly.
func (s *Service) SetStatus(id string, st model.Status) (model.Link, error) {
	link, ok, err := s.links.SetStatus(id, st)
	if err != nil {
		return model.Link{}, err
	}
	if !ok {
		return model.Link{}, model.ErrNotFound
	}
	return link, nil
}

// MarkComplete marks the link read to the end.
func (s *Service) MarkComplete(id string) (model.Link, error) {
	return s.SetStatus(id, model.StatusCompleted)
}

// MarkUnread resets the link to unread.
func (s *Service) MarkUnread(id string) (model.Link, error) {
	return s.SetStatus(id, model.StatusUnread)
}

// Toggle flips between completed and unread.
func (s *Service) Toggle(id string) (model.Link, error) {
	link, ok := s.links.ToggleComplete(id)
	if !ok {
		return model.Link{}, model.ErrNotFound
	}
	return link, nil
}

// Export writes every link as an indented JSON array.
func (s *Service) Export(w io.Writer) error {
	links := s.links.ExportLinks()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(links); err != nil {
		return fmt.Errorf("encode links: %w", err)
	}
	return nil
}

// Import reads a JSON array of links and adds those whose URL is new once
// normalized. Records without a valid URL are skipped. A payload that is not
// a JSON array of links imports nothing.
func (s *Service) Import(r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read import: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return 0, fmt.Errorf("%w: expected a JSON array", model.ErrInvalidImport)
	}

	var records []model.Link
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrInvalidImport, err)
	}

	valid := make([]model.Link, 0, len(records))
	for _, rec := range records {
		u, err := preview.Clean(rec.URL)
		if err != nil {
			s.log.WithError(err).WithField("url", rec.URL).Debug("skipping import record")
			continue
		}
		rec.URL = u
		valid = append(valid, rec)
	}

	added := s.links.ImportLinks(valid)
	var tags []string
	for _, l := range added {
		tags = append(tags, l.Tags...)
	}
	s.tags.AddTags(tags)

	s.log.WithFields(logrus.Fields{
		"records": len(records),
		"invalid": len(records) - len(valid),
		"added":   len(added),
	}).Info("links imported")
	return len(added), nil
}

// Reload picks up links and tags written by other saveit processes.
func (s *Service) Reload(ctx context.Context) error {
	if err := s.links.Reload(ctx); err != nil {
		return err
	}
	return s.tags.Reload(ctx)
}
