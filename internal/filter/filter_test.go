package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bunchhieng/saveit/internal/model"
)

func str(s string) *string { return &s }

func fixtures() []model.Link {
	return []model.Link{
		{ID: "1", Title: "Go Concurrency Patterns", Tags: []string{"a", "b"}, Status: model.StatusUnread, Category: str("Articles")},
		{ID: "2", Title: "Rust book", Description: str("Learn about ownership"), Tags: []string{"a"}, Status: model.StatusReading},
		{ID: "3", Title: "Cooking video", Tags: []string{"food"}, Status: model.StatusCompleted, Category: str("Videos")},
	}
}

func ids(links []model.Link) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.ID)
	}
	return out
}

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		c    Criteria
		want []string
	}{
		{"no criteria", Criteria{}, []string{"1", "2", "3"}},
		{"status all", Criteria{Status: "all"}, []string{"1", "2", "3"}},
		{"status unread", Criteria{Status: "unread"}, []string{"1"}},
		{"status completed", Criteria{Status: "completed"}, []string{"3"}},
		{"search title case-insensitive", Criteria{Query: "GO CON"}, []string{"1"}},
		{"search description", Criteria{Query: "ownership"}, []string{"2"}},
		{"search tag", Criteria{Query: "foo"}, []string{"3"}},
		{"tags AND both present", Criteria{Tags: []string{"a", "b"}}, []string{"1"}},
		{"tags AND one missing", Criteria{Tags: []string{"a", "c"}}, []string{}},
		{"tag single", Criteria{Tags: []string{"A"}}, []string{"1", "2"}},
		{"category", Criteria{Category: "Videos"}, []string{"3"}},
		{"category wildcard", Criteria{Category: ""}, []string{"1", "2", "3"}},
		{"all predicates", Criteria{Status: "unread", Query: "go", Tags: []string{"a"}, Category: "Articles"}, []string{"1"}},
		{"predicates conflict", Criteria{Status: "reading", Category: "Articles"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Apply(fixtures(), tt.c)))
		})
	}
}

func TestMatches(t *testing.T) {
	link := fixtures()[0]
	assert.True(t, Matches(link, Criteria{Tags: []string{"a", "b"}}))
	assert.False(t, Matches(link, Criteria{Tags: []string{"a", "c"}}))
	assert.False(t, Matches(link, Criteria{Status: "completed"}))
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	links := fixtures()
	Apply(links, Criteria{Status: "unread"})
	assert.Len(t, links, 3)
}
