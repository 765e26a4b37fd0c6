package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bunchhieng/saveit/internal/config"
	"github.com/bunchhieng/saveit/internal/filter"
	"github.com/bunchhieng/saveit/internal/model"
	"github.com/bunchhieng/saveit/internal/preview"
	"github.com/bunchhieng/saveit/internal/store"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakePreviewer struct {
	previews map[string]preview.Preview
	calls    []string
}

func (f *fakePreviewer) Preview(_ context.Context, u string) preview.Preview {
	f.calls = append(f.calls, u)
	if p, ok := f.previews[u]; ok {
		return p
	}
	return preview.Fallback(u)
}

type extractFunc func(ctx context.Context, u string) (string, error)

func (f extractFunc) Extract(ctx context.Context, u string) (string, error) { return f(ctx, u) }

type fixture struct {
	svc      *Service
	links    *store.Store
	tags     *store.Registry
	repo     *store.MemoryRepository
	previews *fakePreviewer
	extract  extractFunc
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     store.NewMemoryRepository(),
		previews: &fakePreviewer{previews: map[string]preview.Preview{}},
	}
	var err error
	f.links, err = store.New(context.Background(), f.repo, testLogger())
	require.NoError(t, err)
	f.tags, err = store.NewRegistry(context.Background(), f.repo, testLogger())
	require.NoError(t, err)

	f.extract = func(context.Context, string) (string, error) { return "", model.ErrNoContent }
	content := extractFunc(func(ctx context.Context, u string) (string, error) { return f.extract(ctx, u) })
	f.svc = New(f.links, f.tags, f.previews, content, 200, testLogger())
	return f
}

func TestSaveUsesPreview(t *testing.T) {
	f := setup(t)
	f.previews.previews["https://go.dev/blog"] = preview.Preview{
		Title:       "The Go Blog",
		Description: model.StringPtr("News"),
		ImageURL:    model.StringPtr("https://go.dev/i.png"),
	}

	link, err := f.svc.Save(context.Background(), NewLink{
		URL:      "go.dev/blog",
		Tags:     []string{"Go", "news", "go"},
		Category: "Articles",
		Note:     "weekend",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://go.dev/blog", link.URL)
	assert.Equal(t, "The Go Blog", link.Title)
	assert.Equal(t, "News", model.Deref(link.Description))
	assert.Equal(t, "https://go.dev/i.png", model.Deref(link.ImageURL))
	assert.Equal(t, []string{"go", "news"}, link.Tags)
	assert.Equal(t, "Articles", model.Deref(link.Category))
	assert.Equal(t, "weekend", model.Deref(link.Note))
	assert.Equal(t, model.StatusUnread, link.Status)
	assert.Nil(t, link.Content)
	assert.Equal(t, []string{"go", "news"}, f.tags.Tags())
	assert.Equal(t, 1, f.links.Len())
}

func TestSaveExplicitTitleWins(t *testing.T) {
	f := setup(t)
	f.previews.previews["https://example.com"] = preview.Preview{Title: "From API"}

	link, err := f.svc.Save(context.Background(), NewLink{URL: "https://example.com", Title: "Mine"})
	require.NoError(t, err)
	assert.Equal(t, "Mine", link.Title)
}

func TestSaveRejectsInvalidURLBeforeFetching(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Save(context.Background(), NewLink{URL: "   "})
	assert.ErrorIs(t, err, model.ErrEmptyURL)

	_, err = f.svc.Save(context.Background(), NewLink{URL: "nodot"})
	assert.ErrorIs(t, err, model.ErrInvalidURL)

	assert.Empty(t, f.previews.calls)
	assert.Equal(t, 0, f.links.Len())
}

func TestSaveDegradesWhenPreviewTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	f := setup(t)
	client := preview.NewMetadataClient(config.PreviewConfig{
		APIURL:  srv.URL,
		Timeout: 5 * time.Second,
	}, testLogger())
	f.svc.previews = preview.NewPreviewer(client, testLogger(), preview.WithTimeout(100*time.Millisecond))

	link, err := f.svc.Save(context.Background(), NewLink{URL: "https://slow.example.com/post"})
	require.NoError(t, err)

	require.Equal(t, 1, f.links.Len())
	assert.Equal(t, "https://slow.example.com/post", link.Title)
	assert.Nil(t, link.Description)
	assert.Nil(t, link.ImageURL)
}

func TestEditTitleOnly(t *testing.T) {
	f := setup(t)
	saved, err := f.svc.Save(context.Background(), NewLink{URL: "https://example.com", Tags: []string{"a"}})
	require.NoError(t, err)

	updated, err := f.svc.Edit(context.Background(), saved.ID, model.Patch{Title: model.Set("X")})
	require.NoError(t, err)

	assert.Equal(t, "X", updated.Title)
	assert.Equal(t, saved.URL, updated.URL)
	assert.Equal(t, saved.ID, updated.ID)
	assert.Equal(t, saved.CreatedAt, updated.CreatedAt)
	assert.Equal(t, saved.Tags, updated.Tags)
	assert.Len(t, f.previews.calls, 1, "title edits do not refetch the preview")
}

func TestEditURLRefreshesPreview(t *testing.T) {
	f := setup(t)
	saved, err := f.svc.Save(context.Background(), NewLink{URL: "https://old.example.com"})
	require.NoError(t, err)
	_, err = f.links.UpdateLink(saved.ID, model.Patch{Content: model.Set("old text"), EstimatedReadTime: model.Set(1)})
	require.NoError(t, err)

	f.previews.previews["https://new.example.com"] = preview.Preview{
		Title:       "New page",
		Description: model.StringPtr("fresh"),
	}

	updated, err := f.svc.Edit(context.Background(), saved.ID, model.Patch{URL: model.Set("new.example.com")})
	require.NoError(t, err)

	assert.Equal(t, "https://new.example.com", updated.URL)
	assert.Equal(t, "New page", updated.Title)
	assert.Equal(t, "fresh", model.Deref(updated.Description))
	assert.Nil(t, updated.Content)
	assert.Nil(t, updated.EstimatedReadTime)
}

func TestEditURLKeepsExplicitFields(t *testing.T) {
	f := setup(t)
	saved, err := f.svc.Save(context.Background(), NewLink{URL: "https://old.example.com"})
	require.NoError(t, err)
	f.previews.previews["https://new.example.com"] = preview.Preview{Title: "API title"}

	updated, err := f.svc.Edit(context.Background(), saved.ID, model.Patch{
		URL:   model.Set("https://new.example.com"),
		Title: model.Set("My title"),
	})
	require.NoError(t, err)
	assert.Equal(t, "My title", updated.Title)
}

func TestEditErrors(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Edit(context.Background(), "missing-id", model.Patch{Title: model.Set("X")})
	assert.ErrorIs(t, err, model.ErrNotFound)

	saved, err := f.svc.Save(context.Background(), NewLink{URL: "https://example.com"})
	require.NoError(t, err)

	_, err = f.svc.Edit(context.Background(), saved.ID, model.Patch{Title: model.Set("  ")})
	assert.ErrorIs(t, err, model.ErrInvalidPatch)

	_, err = f.svc.Edit(context.Background(), saved.ID, model.Patch{URL: model.Set("bad")})
	assert.ErrorIs(t, err, model.ErrInvalidURL)

	got, err := f.svc.Get(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Title, got.Title)
}

func TestLoadContent(t *testing.T) {
	f := setup(t)
	saved, err := f.svc.Save(context.Background(), NewLink{URL: "https://example.com"})
	require.NoError(t, err)

	text := strings.Repeat("word ", 450)
	calls := 0
	f.extract = func(context.Context, string) (string, error) {
		calls++
		return text, nil
	}

	link, err := f.svc.LoadContent(context.Background(), saved.ID, false)
	require.NoError(t, err)
	assert.Equal(t, text, model.Deref(link.Content))
	require.NotNil(t, link.EstimatedReadTime)
	assert.Equal(t, 3, *link.EstimatedReadTime)

	_, err = f.svc.LoadContent(context.Background(), saved.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "existing content is reused")

	_, err = f.svc.LoadContent(context.Background(), saved.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "force extracts again")
}

func TestLoadContentFailureKeepsDescription(t *testing.T) {
	f := setup(t)
	f.previews.previews["https://example.com"] = preview.Preview{Title: "T", Description: model.StringPtr("summary")}
	saved, err := f.svc.Save(context.Background(), NewLink{URL: "https://example.com"})
	require.NoError(t, err)

	link, err := f.svc.LoadContent(context.Background(), saved.ID, false)
	assert.ErrorIs(t, err, model.ErrNoContent)
	assert.Nil(t, link.Content)
	assert.Equal(t, "summary", model.Deref(link.Description))

	_, err = f.svc.LoadContent(context.Background(), "missing-id", false)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLoadContentSurvivesConcurrentProgress(t *testing.T) {
	f := setup(t)
	saved, err := f.svc.Save(context.Background(), NewLink{URL: "https://example.com"})
	require.NoError(t, err)

	f.extract = func(context.Context, string) (string, error) {
		// The user marks the link while extraction is running.
		_, err := f.svc.MarkComplete(saved.ID)
		require.NoError(t, err)
		return "Some readable text.", nil
	}

	link, err := f.svc.LoadContent(context.Background(), saved.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "Some readable text.", model.Deref(link.Content))
	assert.Equal(t, model.StatusCompleted, link.Status)
}

func TestLoadContentDiscardedAfterURLChange(t *testing.T) {
	f := setup(t)
	saved, err := f.svc.Save(context.Background(), NewLink{URL: "https://old.example.com"})
	require.NoError(t, err)

	f.extract = func(context.Context, string) (string, error) {
		_, err := f.links.UpdateLink(saved.ID, model.Patch{URL: model.Set("https://new.example.com")})
		require.NoError(t, err)
		return "text of the old page", nil
	}

	link, err := f.svc.LoadContent(context.Background(), saved.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "https://new.example.com", link.URL)
	assert.Nil(t, link.Content)
}

func TestReadingStateChanges(t *testing.T) {
	f := setup(t)
	saved, err := f.svc.Save(context.Background(), NewLink{URL: "https://example.com"})
	require.NoError(t, err)

	link, err := f.svc.RecordProgress(saved.ID, 0.5)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReading, link.Status)

	link, err = f.svc.Toggle(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, link.Status)
	assert.Equal(t, 1.0, link.ReadingProgress)

	link, err = f.svc.MarkUnread(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnread, link.Status)
	assert.Equal(t, 0.0, link.ReadingProgress)

	_, err = f.svc.SetStatus(saved.ID, model.Status("archived"))
	assert.ErrorIs(t, err, model.ErrInvalidStatus)

	_, err = f.svc.Toggle("missing-id")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.svc.RecordProgress("missing-id", 0.3)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, f.svc.Remove("missing-id"), model.ErrNotFound)
}

func TestListAndClear(t *testing.T) {
	f := setup(t)
	for _, u := range []string{"https://a.example.com", "https://b.example.com"} {
		_, err := f.svc.Save(context.Background(), NewLink{URL: u})
		require.NoError(t, err)
	}
	links := f.svc.List(filter.Criteria{Query: "b.example"})
	require.Len(t, links, 1)
	assert.Equal(t, "https://b.example.com", links[0].URL)

	assert.Equal(t, 2, f.svc.Clear())
	assert.Empty(t, f.svc.List(filter.Criteria{}))
}

func TestExportImportRoundTrip(t *testing.T) {
	f := setup(t)
	for _, u := range []string{"https://a.example.com", "https://b.example.com"} {
		_, err := f.svc.Save(context.Background(), NewLink{URL: u, Tags: []string{"x"}})
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(&buf))
	assert.Contains(t, buf.String(), `"imageUrl": null`)

	added, err := f.svc.Import(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 2, f.links.Len())
}

func TestImportIntoEmptyStore(t *testing.T) {
	f := setup(t)
	payload := `[
		{"id":"lt0a1b2c-abcdefgh","url":"https://a.example.com","title":"A","tags":["Go"],"status":"reading","readingProgress":0.4,"createdAt":"2024-01-02T03:04:05Z"},
		{"url":"https://b.example.com"}
	]`

	added, err := f.svc.Import(strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"go"}, f.svc.Tags())

	a, err := f.svc.Get("lt0a1b2c-abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, model.StatusReading, a.Status)
}

func TestImportNormalizesURLsAndTagsOnlyAddedRecords(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Save(context.Background(), NewLink{URL: "example.com"})
	require.NoError(t, err)

	payload := `[
		{"url":"example.com","tags":["seen"]},
		{"url":"","tags":["ghost"]},
		{"url":"not a url","tags":["broken"]},
		{"url":"foo.org","tags":["a"]},
		{"url":"foo.org","tags":["dup-only"]}
	]`
	added, err := f.svc.Import(strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	var urls []string
	for _, l := range f.svc.List(filter.Criteria{}) {
		urls = append(urls, l.URL)
	}
	assert.Equal(t, []string{"https://foo.org", "https://example.com"}, urls)
	assert.Equal(t, []string{"a"}, f.svc.Tags())
}

func TestReloadPicksUpOtherWriters(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.repo.InsertLinks(context.Background(), []model.Link{
		{ID: "lt0a1b2c-abcdefgh", URL: "https://a.example.com", Title: "A", Tags: []string{"go"}, Status: model.StatusUnread},
	}))
	require.NoError(t, f.repo.AddTags(context.Background(), []string{"go"}))

	require.NoError(t, f.svc.Reload(context.Background()))
	_, err := f.svc.Get("lt0a1b2c-abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, f.svc.Tags())
}

func TestImportRejectsBadPayloads(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Save(context.Background(), NewLink{URL: "https://a.example.com"})
	require.NoError(t, err)

	for _, payload := range []string{
		`{"url":"https://x.example.com"}`,
		`null`,
		`not json`,
		`[{"url":"https://x.example.com"}, {"url": 5}]`,
		``,
	} {
		_, err := f.svc.Import(strings.NewReader(payload))
		assert.ErrorIs(t, err, model.ErrInvalidImport, "payload %q", payload)
	}
	assert.Equal(t, 1, f.links.Len(), "a rejected import adds nothing")
}
