// Package filter narrows a link collection by status, free text, tags and category.
package filter

import (
	"strings"

	"github.com/bunchhieng/saveit/internal/model"
)

// StatusAll matches every status.
const StatusAll = "all"

// Criteria selects links. Zero values are wildcards.
type Criteria struct {
	// Status is "all", "" or one of the model statuses.
	Status string
	// Query is matched case-insensitively against title, description and tags.
	Query string
	// Tags must all be present on a link.
	Tags []string
	// Category must match exactly when set.
	Category string
}

// Apply returns the links matching c, preserving order.
func Apply(links []model.Link, c Criteria) []model.Link {
	c = c.normalized()
	out := make([]model.Link, 0, len(links))
	for i := range links {
		if c.matches(&links[i]) {
			out = append(out, links[i])
		}
	}
	return out
}

// Matches reports whether a single link satisfies c.
func Matches(link model.Link, c Criteria) bool {
	c = c.normalized()
	return c.matches(&link)
}

// Statuses lists the status filter values in display order.
func Statuses() []string {
	return []string{StatusAll, string(model.StatusUnread), string(model.StatusReading), string(model.StatusCompleted)}
}

func (c Criteria) normalized() Criteria {
	n := Criteria{
		Status:   strings.ToLower(strings.TrimSpace(c.Status)),
		Query:    strings.ToLower(strings.TrimSpace(c.Query)),
		Category: strings.TrimSpace(c.Category),
	}
	for _, t := range c.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			n.Tags = append(n.Tags, t)
		}
	}
	return n
}

func (c Criteria) matches(l *model.Link) bool {
	if c.Status != "" && c.Status != StatusAll && string(l.Status) != c.Status {
		return false
	}
	if c.Query != "" && !matchesQuery(l, c.Query) {
		return false
	}
	for _, tag := range c.Tags {
		if !l.HasTag(tag) {
			return false
		}
	}
	if c.Category != "" && model.Deref(l.Category) != c.Category {
		return false
	}
	return true
}

func matchesQuery(l *model.Link, q string) bool {
	if strings.Contains(strings.ToLower(l.Title), q) {
		return true
	}
	if l.Description != nil && strings.Contains(strings.ToLower(*l.Description), q) {
		return true
	}
	for _, tag := range l.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}
