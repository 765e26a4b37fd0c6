package model

import (
	"fmt"
	"net/url"
	"strings"
)

// Opt is one optional field of a Patch. The zero value leaves the field
// untouched, Set replaces it and Null clears a nullable field.
type Opt[T any] struct {
	set   bool
	value *T
}

// Set returns an Opt that assigns v.
func Set[T any](v T) Opt[T] {
	return Opt[T]{set: true, value: &v}
}

// Null returns an Opt that clears the field.
func Null[T any]() Opt[T] {
	return Opt[T]{set: true}
}

// SetPtr assigns *v, or clears the field when v is nil.
func SetPtr[T any](v *T) Opt[T] {
	if v == nil {
		return Null[T]()
	}
	return Set(*v)
}

// IsSet reports whether the patch touches the field.
func (o Opt[T]) IsSet() bool { return o.set }

// IsNull reports whether the patch clears the field.
func (o Opt[T]) IsNull() bool { return o.set && o.value == nil }

// Value returns the assigned value.
func (o Opt[T]) Value() (T, bool) {
	if o.value == nil {
		var zero T
		return zero, false
	}
	return *o.value, true
}

func (o Opt[T]) apply(dst **T) {
	if !o.set {
		return
	}
	if o.value == nil {
		*dst = nil
		return
	}
	v := *o.value
	*dst = &v
}

// Patch is a typed partial update of a Link. Identity, creation time and
// reading state are not part of it.
type Patch struct {
	URL               Opt[string]
	Title             Opt[string]
	Description       Opt[string]
	ImageURL          Opt[string]
	Content           Opt[string]
	Tags              Opt[[]string]
	Category          Opt[string]
	EstimatedReadTime Opt[int]
	Note              Opt[string]
	Groups            Opt[[]string]
	Prompt            Opt[string]
	Summary           Opt[string]
	Response          Opt[string]
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return !p.URL.IsSet() && !p.Title.IsSet() && !p.Description.IsSet() &&
		!p.ImageURL.IsSet() && !p.Content.IsSet() && !p.Tags.IsSet() &&
		!p.Category.IsSet() && !p.EstimatedReadTime.IsSet() && !p.Note.IsSet() &&
		!p.Groups.IsSet() && !p.Prompt.IsSet() && !p.Summary.IsSet() && !p.Response.IsSet()
}

// Validate checks the patch before it is merged.
func (p Patch) Validate() error {
	if p.URL.IsSet() {
		u, ok := p.URL.Value()
		if !ok {
			return fmt.Errorf("%w: url cannot be cleared", ErrInvalidPatch)
		}
		if err := validateAbsoluteURL(u); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
	}
	if p.Title.IsSet() {
		t, ok := p.Title.Value()
		if !ok || strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: title cannot be empty", ErrInvalidPatch)
		}
	}
	if n, ok := p.EstimatedReadTime.Value(); ok && n < 0 {
		return fmt.Errorf("%w: estimated read time must not be negative", ErrInvalidPatch)
	}
	return nil
}

// Apply returns a copy of l with the patch merged in. Call Validate first.
func (p Patch) Apply(l Link) Link {
	out := l.Clone()
	if v, ok := p.URL.Value(); ok {
		out.URL = v
	}
	if v, ok := p.Title.Value(); ok {
		out.Title = v
	}
	p.Description.apply(&out.Description)
	p.ImageURL.apply(&out.ImageURL)
	p.Content.apply(&out.Content)
	p.Category.apply(&out.Category)
	p.EstimatedReadTime.apply(&out.EstimatedReadTime)
	p.Note.apply(&out.Note)
	p.Prompt.apply(&out.Prompt)
	p.Summary.apply(&out.Summary)
	p.Response.apply(&out.Response)
	if p.Tags.IsSet() {
		tags, _ := p.Tags.Value()
		out.Tags = NormalizeTags(tags)
	}
	if p.Groups.IsSet() {
		groups, _ := p.Groups.Value()
		out.Groups = append([]string{}, groups...)
	}
	return out
}

func validateAbsoluteURL(raw string) error {
	if raw == "" {
		return ErrEmptyURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
