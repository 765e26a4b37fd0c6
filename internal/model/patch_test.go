package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLink() Link {
	desc := "a description"
	return Link{
		ID:              "loyw3v28-abcdefgh",
		URL:             "https://example.com",
		Title:           "Example",
		Description:     &desc,
		Tags:            []string{"go"},
		Status:          StatusReading,
		ReadingProgress: 0.4,
		CreatedAt:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Groups:          []string{},
	}
}

func TestPatchApplyTitleOnly(t *testing.T) {
	before := sampleLink()
	p := Patch{Title: Set("X")}
	require.NoError(t, p.Validate())

	after := p.Apply(before)
	assert.Equal(t, "X", after.Title)

	after.Title = before.Title
	assert.Equal(t, before, after)
}

func TestPatchNullClearsField(t *testing.T) {
	p := Patch{Description: Null[string](), Note: Set("remember this")}
	after := p.Apply(sampleLink())
	assert.Nil(t, after.Description)
	require.NotNil(t, after.Note)
	assert.Equal(t, "remember this", *after.Note)
}

func TestPatchTagsNormalized(t *testing.T) {
	p := Patch{Tags: Set([]string{"Go", "go", "Web"})}
	after := p.Apply(sampleLink())
	assert.Equal(t, []string{"go", "web"}, after.Tags)

	cleared := Patch{Tags: Null[[]string]()}.Apply(sampleLink())
	assert.Equal(t, []string{}, cleared.Tags)
}

func TestPatchValidate(t *testing.T) {
	tests := []struct {
		name    string
		patch   Patch
		wantErr bool
	}{
		{"empty", Patch{}, false},
		{"valid url", Patch{URL: Set("https://go.dev")}, false},
		{"clear url", Patch{URL: Null[string]()}, true},
		{"relative url", Patch{URL: Set("go.dev")}, true},
		{"ftp url", Patch{URL: Set("ftp://go.dev")}, true},
		{"blank title", Patch{Title: Set("  ")}, true},
		{"clear title", Patch{Title: Null[string]()}, true},
		{"negative read time", Patch{EstimatedReadTime: Set(-1)}, true},
		{"clear description", Patch{Description: Null[string]()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPatchEmpty(t *testing.T) {
	assert.True(t, Patch{}.Empty())
	assert.False(t, Patch{Summary: Null[string]()}.Empty())
}

func TestSetPtr(t *testing.T) {
	assert.True(t, SetPtr[string](nil).IsNull())
	s := "x"
	v, ok := SetPtr(&s).Value()
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}
