package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bunchhieng/saveit/internal/config"
	"github.com/bunchhieng/saveit/internal/model"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupBadger(t *testing.T, path string) *BadgerStorage {
	t.Helper()
	s, err := NewBadgerStorage(path, testLogger())
	require.NoError(t, err, "failed to open badger storage")
	return s
}

func TestBadgerStorage_InsertAndLoadLinks(t *testing.T) {
	s := setupBadger(t, "")
	defer s.Close()
	ctx := context.Background()

	links, err := s.LoadLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)

	want := sampleLinks()
	require.NoError(t, s.InsertLinks(ctx, want))

	got, err := s.LoadLinks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want[0].ID, got[0].ID)
	assert.Equal(t, want[1].ID, got[1].ID)
	assert.Equal(t, "A description", model.Deref(got[0].Description))
	assert.Equal(t, []string{"go", "reading"}, got[0].Tags)
	assert.True(t, want[0].CreatedAt.Equal(got[0].CreatedAt))
	assert.Nil(t, got[1].Description)
	assert.Nil(t, got[1].EstimatedReadTime)
}

func TestBadgerStorage_RecordWrites(t *testing.T) {
	s := setupBadger(t, "")
	defer s.Close()
	ctx := context.Background()

	links := sampleLinks()
	require.NoError(t, s.InsertLinks(ctx, links[1:]))
	require.NoError(t, s.InsertLinks(ctx, links[:1]))

	got, err := s.LoadLinks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, links[0].ID, got[0].ID, "later insert goes on top")

	updated := links[1]
	updated.Title = "Renamed"
	require.NoError(t, s.UpdateLink(ctx, updated))
	missing := links[0]
	missing.ID = "lt0zzzzz-notthere"
	require.NoError(t, s.UpdateLink(ctx, missing))

	got, err = s.LoadLinks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2, "updating a missing id must not create it")
	assert.Equal(t, "Renamed", got[1].Title)

	require.NoError(t, s.DeleteLink(ctx, links[0].ID))
	got, err = s.LoadLinks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, links[1].ID, got[0].ID)

	require.NoError(t, s.ClearLinks(ctx))
	got, err = s.LoadLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBadgerStorage_LargeCollection(t *testing.T) {
	s := setupBadger(t, "")
	defer s.Close()
	ctx := context.Background()

	body := strings.Repeat("Long article text. ", 2200)
	links := make([]model.Link, 300)
	for i := range links {
		links[i] = model.Link{
			ID:      fmt.Sprintf("lt0a%04d-abcdefgh", i),
			URL:     fmt.Sprintf("https://example.com/%d", i),
			Title:   "Article",
			Content: model.StringPtr(body),
			Tags:    []string{},
			Status:  model.StatusUnread,
		}
	}
	require.NoError(t, s.InsertLinks(ctx, links))

	got, err := s.LoadLinks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 300)
	assert.Equal(t, links[0].ID, got[0].ID)
	assert.Equal(t, links[299].ID, got[299].ID)

	require.NoError(t, s.ClearLinks(ctx))
	got, err = s.LoadLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBadgerStorage_TagsAndReminder(t *testing.T) {
	s := setupBadger(t, ":memory:")
	defer s.Close()
	ctx := context.Background()

	tags, err := s.LoadTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)

	require.NoError(t, s.AddTags(ctx, []string{"ai", "go"}))
	require.NoError(t, s.AddTags(ctx, []string{"go", "web"}))
	tags, err = s.LoadTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ai", "go", "web"}, tags)

	settings, err := s.LoadReminder(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultReminderSettings(), settings)

	settings.Enabled = true
	settings.ReminderTime = "06:30"
	require.NoError(t, s.SaveReminder(ctx, settings))

	got, err := s.LoadReminder(ctx)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, "06:30", got.ReminderTime)

	// Tags and reminder keys must not leak into the link collection.
	links, err := s.LoadLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestBadgerStorage_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := setupBadger(t, dir)
	require.NoError(t, s.InsertLinks(ctx, sampleLinks()))
	require.NoError(t, s.Close())

	s = setupBadger(t, dir)
	defer s.Close()
	got, err := s.LoadLinks(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestOpen(t *testing.T) {
	s, err := Open(config.DriverSQLite, ":memory:", testLogger())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStorage{}, s)
	require.NoError(t, s.Close())

	s, err = Open(config.DriverBadger, "", testLogger())
	require.NoError(t, err)
	assert.IsType(t, &BadgerStorage{}, s)
	require.NoError(t, s.Close())

	_, err = Open("postgres", "", testLogger())
	assert.Error(t, err)
}
