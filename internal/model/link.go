package model

import (
	"sort"
	"strings"
	"time"
)

// MaxTags is the maximum number of tags a single link can carry.
const MaxTags = 10

// Status is the reading state of a link.
type Status string

const (
	StatusUnread    Status = "unread"
	StatusReading   Status = "reading"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnread, StatusReading, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus converts a user supplied string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// Categories are the suggested category labels.
var Categories = []string{"Articles", "Videos", "Tutorials", "News", "Social", "Other"}

// Link represents a saved URL with its preview metadata and reading state.
// The JSON shape is the import/export format.
type Link struct {
	ID                string    `json:"id"`
	URL               string    `json:"url"`
	Title             string    `json:"title"`
	Description       *string   `json:"description"`
	ImageURL          *string   `json:"imageUrl"`
	Content           *string   `json:"content"`
	Tags              []string  `json:"tags"`
	Category          *string   `json:"category"`
	Status            Status    `json:"status"`
	ReadingProgress   float64   `json:"readingProgress"`
	EstimatedReadTime *int      `json:"estimatedReadTime"`
	Note              *string   `json:"note"`
	CreatedAt         time.Time `json:"createdAt"`
	Groups            []string  `json:"groups"`
	Prompt            *string   `json:"prompt"`
	Summary           *string   `json:"summary"`
	Response          *string   `json:"response"`

	// Revision is bumped by the store on every mutation. It is not persisted.
	Revision uint64 `json:"-"`
}

// Draft is the caller supplied part of a new link. The store assigns
// id and createdAt and always starts with empty content.
type Draft struct {
	URL               string
	Title             string
	Description       *string
	ImageURL          *string
	Tags              []string
	Category          *string
	Status            Status
	ReadingProgress   float64
	EstimatedReadTime *int
	Note              *string
	Groups            []string
	Prompt            *string
	Summary           *string
	Response          *string
}

// IsCompleted returns true if the link has been read to the end.
func (l *Link) IsCompleted() bool {
	return l.Status == StatusCompleted
}

// HasContent reports whether extracted text is available.
func (l *Link) HasContent() bool {
	return l.Content != nil && strings.TrimSpace(*l.Content) != ""
}

// HasTag reports whether the link carries tag (case-insensitive).
func (l *Link) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// DisplayTitle returns the title, falling back to the URL.
func (l *Link) DisplayTitle() string {
	if strings.TrimSpace(l.Title) == "" {
		return l.URL
	}
	return l.Title
}

// Clone returns a deep copy so callers cannot alias store state.
func (l Link) Clone() Link {
	c := l
	c.Description = cloneString(l.Description)
	c.ImageURL = cloneString(l.ImageURL)
	c.Content = cloneString(l.Content)
	c.Category = cloneString(l.Category)
	c.Note = cloneString(l.Note)
	c.Prompt = cloneString(l.Prompt)
	c.Summary = cloneString(l.Summary)
	c.Response = cloneString(l.Response)
	if l.EstimatedReadTime != nil {
		v := *l.EstimatedReadTime
		c.EstimatedReadTime = &v
	}
	if l.Tags != nil {
		c.Tags = append([]string{}, l.Tags...)
	}
	if l.Groups != nil {
		c.Groups = append([]string{}, l.Groups...)
	}
	return c
}

// NormalizeTags lowercases, trims and deduplicates tags, keeping first-seen
// order and dropping everything past MaxTags.
func NormalizeTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		if len(result) == MaxTags {
			break
		}
		seen[tag] = true
		result = append(result, tag)
	}
	return result
}

// ParseTags splits a comma-separated tag list.
func ParseTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return NormalizeTags(strings.Split(s, ","))
}

// MergeTags adds tags from other to existing, respecting MaxTags.
func MergeTags(existing, other []string) []string {
	return NormalizeTags(append(append([]string{}, existing...), other...))
}

// SortedTags returns a sorted copy of a tag set.
func SortedTags(tags []string) []string {
	out := append([]string{}, tags...)
	sort.Strings(out)
	return out
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
