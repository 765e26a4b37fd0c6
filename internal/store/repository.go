package store

import (
	"context"
	"sort"
	"sync"

	"github.com/bunchhieng/saveit/internal/model"
)

// Collection names used for durable records.
const (
	LinksCollection    = "links-storage"
	TagsCollection     = "tags-storage"
	ReminderCollection = "reading-reminder-settings"
)

// LinkRepository persists links one record at a time, so several processes
// sharing a database only touch the records they changed.
type LinkRepository interface {
	// LoadLinks returns every stored link, most recent first.
	LoadLinks(ctx context.Context) ([]model.Link, error)
	// InsertLinks stores links ahead of every stored one; links[0] ends up first.
	// A record whose id is already stored is overwritten in place.
	InsertLinks(ctx context.Context, links []model.Link) error
	// UpdateLink overwrites the record with link.ID. A missing record stays missing.
	UpdateLink(ctx context.Context, link model.Link) error
	// DeleteLink removes the record with id.
	DeleteLink(ctx context.Context, id string) error
	// ClearLinks removes every record.
	ClearLinks(ctx context.Context) error
}

// TagRepository persists the tag registry.
type TagRepository interface {
	LoadTags(ctx context.Context) ([]string, error)
	// AddTags stores the tags that are not present yet.
	AddTags(ctx context.Context, tags []string) error
}

// MemoryRepository keeps records in memory. It is used by tests and when
// persistence is not wanted.
type MemoryRepository struct {
	mu    sync.Mutex
	links []model.Link
	tags  []string

	// SaveErr, when set, is returned by every write.
	SaveErr error
	// LinkWrites counts successful link writes.
	LinkWrites int
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// LoadLinks returns a copy of the stored links.
func (r *MemoryRepository) LoadLinks(_ context.Context) ([]model.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneLinks(r.links), nil
}

// InsertLinks prepends links, replacing records with the same id.
func (r *MemoryRepository) InsertLinks(_ context.Context, links []model.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	for _, l := range links {
		if i := r.indexLocked(l.ID); i >= 0 {
			r.links = append(r.links[:i:i], r.links[i+1:]...)
		}
	}
	r.links = append(cloneLinks(links), r.links...)
	r.LinkWrites++
	return nil
}

// UpdateLink overwrites the record with link.ID when it exists.
func (r *MemoryRepository) UpdateLink(_ context.Context, link model.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	if i := r.indexLocked(link.ID); i >= 0 {
		r.links[i] = link.Clone()
	}
	r.LinkWrites++
	return nil
}

// DeleteLink removes the record with id.
func (r *MemoryRepository) DeleteLink(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	if i := r.indexLocked(id); i >= 0 {
		r.links = append(r.links[:i:i], r.links[i+1:]...)
	}
	r.LinkWrites++
	return nil
}

// ClearLinks removes every record.
func (r *MemoryRepository) ClearLinks(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.links = nil
	r.LinkWrites++
	return nil
}

// LoadTags returns a sorted copy of the stored tags.
func (r *MemoryRepository) LoadTags(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tags := append([]string{}, r.tags...)
	sort.Strings(tags)
	return tags, nil
}

// AddTags appends the tags that are not stored yet.
func (r *MemoryRepository) AddTags(_ context.Context, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	for _, t := range tags {
		found := false
		for _, have := range r.tags {
			if have == t {
				found = true
				break
			}
		}
		if !found {
			r.tags = append(r.tags, t)
		}
	}
	return nil
}

func (r *MemoryRepository) indexLocked(id string) int {
	for i := range r.links {
		if r.links[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneLinks(links []model.Link) []model.Link {
	out := make([]model.Link, len(links))
	for i := range links {
		out[i] = links[i].Clone()
	}
	return out
}
