package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bunchhieng/saveit/internal/filter"
	"github.com/bunchhieng/saveit/internal/model"
	"github.com/bunchhieng/saveit/internal/preview"
	"github.com/bunchhieng/saveit/internal/reminder"
	"github.com/bunchhieng/saveit/internal/service"
	"github.com/bunchhieng/saveit/internal/store"
)

type stubPreviewer struct{}

func (stubPreviewer) Preview(_ context.Context, u string) preview.Preview {
	return preview.Preview{Title: "Title of " + u, Description: model.StringPtr("A short summary.")}
}

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) Extract(context.Context, string) (string, error) { return s.text, s.err }

type settingsRepo struct{ s model.ReminderSettings }

func (r *settingsRepo) LoadReminder(context.Context) (model.ReminderSettings, error) { return r.s, nil }
func (r *settingsRepo) SaveReminder(_ context.Context, s model.ReminderSettings) error {
	r.s = s
	return nil
}

type harness struct {
	cmds    *Commands
	svc     *service.Service
	links   *store.Store
	out     *bytes.Buffer
	extract *stubExtractor
	opened  []string
}

func setup(t *testing.T) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo := store.NewMemoryRepository()
	links, err := store.New(context.Background(), repo, logger)
	require.NoError(t, err)
	tags, err := store.NewRegistry(context.Background(), repo, logger)
	require.NoError(t, err)

	h := &harness{out: &bytes.Buffer{}, links: links, extract: &stubExtractor{err: model.ErrNoContent}}
	h.svc = service.New(links, tags, stubPreviewer{}, h.extract, 200, logger)
	h.cmds = NewCommands(h.svc, WithOutput(h.out), WithOpener(func(u string) error {
		h.opened = append(h.opened, u)
		return nil
	}))
	return h
}

func (h *harness) save(t *testing.T, u string, tags ...string) model.Link {
	t.Helper()
	link, err := h.svc.Save(context.Background(), service.NewLink{URL: u, Tags: tags})
	require.NoError(t, err)
	return link
}

func TestAdd(t *testing.T) {
	h := setup(t)
	require.NoError(t, h.cmds.Add(context.Background(), service.NewLink{URL: "example.com/post"}))

	out := h.out.String()
	assert.Contains(t, out, "Added")
	assert.Contains(t, out, "https://example.com/post")
	assert.Contains(t, out, "Title of https://example.com/post")
	assert.Equal(t, 1, h.links.Len())

	err := h.cmds.Add(context.Background(), service.NewLink{URL: "nope"})
	assert.ErrorIs(t, err, model.ErrInvalidURL)
}

func TestListTable(t *testing.T) {
	h := setup(t)
	a := h.save(t, "https://example.com/a", "go")
	b := h.save(t, "https://example.com/b")

	require.NoError(t, h.cmds.List(filter.Criteria{}, 0))
	out := h.out.String()
	assert.Contains(t, out, "PROGRESS")
	assert.Contains(t, out, a.ID)
	assert.Contains(t, out, b.ID)
	assert.Contains(t, out, "0%")

	h.out.Reset()
	require.NoError(t, h.cmds.List(filter.Criteria{Tags: []string{"go"}}, 0))
	assert.Contains(t, h.out.String(), a.ID)
	assert.NotContains(t, h.out.String(), b.ID)

	h.out.Reset()
	require.NoError(t, h.cmds.List(filter.Criteria{}, 1))
	assert.Contains(t, h.out.String(), b.ID)
	assert.NotContains(t, h.out.String(), a.ID)

	h.out.Reset()
	require.NoError(t, h.cmds.List(filter.Criteria{Status: "completed"}, 0))
	assert.Equal(t, "No links found.\n", h.out.String())
}

func TestShow(t *testing.T) {
	h := setup(t)
	link := h.save(t, "https://example.com/a", "go", "news")

	require.NoError(t, h.cmds.Show(link.ID))
	out := h.out.String()
	assert.Contains(t, out, "Title of https://example.com/a")
	assert.Contains(t, out, "go, news")
	assert.Contains(t, out, "A short summary.")

	err := h.cmds.Show("bad id!")
	assert.ErrorContains(t, err, "invalid ID format")
}

func TestNotFoundSuggestsID(t *testing.T) {
	h := setup(t)
	link := h.save(t, "https://example.com/a")
	typo := link.ID[:len(link.ID)-1] + "z"
	if typo == link.ID {
		typo = link.ID[:len(link.ID)-1] + "y"
	}

	err := h.cmds.Done(typo)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Contains(t, err.Error(), "Did you mean")
	assert.Contains(t, err.Error(), link.ID)
}

func TestReadingStateCommands(t *testing.T) {
	h := setup(t)
	link := h.save(t, "https://example.com/a")

	require.NoError(t, h.cmds.Progress(link.ID, 50))
	got, _ := h.svc.Get(link.ID)
	assert.Equal(t, model.StatusReading, got.Status)
	assert.InDelta(t, 0.5, got.ReadingProgress, 1e-9)

	assert.Error(t, h.cmds.Progress(link.ID, 150))

	require.NoError(t, h.cmds.Done(link.ID))
	got, _ = h.svc.Get(link.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)

	require.NoError(t, h.cmds.Toggle(link.ID))
	got, _ = h.svc.Get(link.ID)
	assert.Equal(t, model.StatusUnread, got.Status)

	require.NoError(t, h.cmds.Status(link.ID, "Reading"))
	got, _ = h.svc.Get(link.ID)
	assert.Equal(t, model.StatusReading, got.Status)

	assert.ErrorIs(t, h.cmds.Status(link.ID, "archived"), model.ErrInvalidStatus)

	require.NoError(t, h.cmds.Undo(link.ID))
	got, _ = h.svc.Get(link.ID)
	assert.Equal(t, 0.0, got.ReadingProgress)
}

func TestEdit(t *testing.T) {
	h := setup(t)
	link := h.save(t, "https://example.com/a")

	require.NoError(t, h.cmds.Edit(context.Background(), link.ID, model.Patch{Title: model.Set("Renamed")}))
	assert.Contains(t, h.out.String(), "Renamed")

	assert.Error(t, h.cmds.Edit(context.Background(), link.ID, model.Patch{}))
}

func TestRemove(t *testing.T) {
	h := setup(t)
	a := h.save(t, "https://example.com/a")
	b := h.save(t, "https://example.com/b")

	require.NoError(t, h.cmds.Remove(a.ID, b.ID))
	assert.Contains(t, h.out.String(), "Deleted")
	assert.Equal(t, 0, h.links.Len())

	err := h.cmds.Remove("x!", a.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Contains(t, err.Error(), "not found")

	assert.Error(t, h.cmds.Remove())
}

func TestClear(t *testing.T) {
	h := setup(t)
	h.save(t, "https://example.com/a")

	assert.Error(t, h.cmds.Clear(false))
	assert.Equal(t, 1, h.links.Len())

	require.NoError(t, h.cmds.Clear(true))
	assert.Equal(t, 0, h.links.Len())
	assert.Contains(t, h.out.String(), "1 link(s)")
}

func TestTags(t *testing.T) {
	h := setup(t)
	require.NoError(t, h.cmds.Tags())
	assert.Contains(t, h.out.String(), "No tags yet.")

	h.save(t, "https://example.com/a", "Go", "news")
	h.out.Reset()
	require.NoError(t, h.cmds.Tags())
	assert.Contains(t, h.out.String(), "go")
	assert.Contains(t, h.out.String(), "news")
}

func TestOpen(t *testing.T) {
	h := setup(t)
	link := h.save(t, "https://example.com/a")

	require.NoError(t, h.cmds.Open(link.ID))
	assert.Equal(t, []string{"https://example.com/a"}, h.opened)

	failing := NewCommands(h.svc, WithOutput(io.Discard), WithOpener(func(string) error { return errors.New("no browser") }))
	assert.ErrorContains(t, failing.Open(link.ID), "open browser")
}

func TestRead(t *testing.T) {
	h := setup(t)
	link := h.save(t, "https://example.com/a")

	require.NoError(t, h.cmds.Read(context.Background(), link.ID, false, false))
	out := h.out.String()
	assert.Contains(t, out, "Could not extract the article")
	assert.Contains(t, out, "A short summary.")

	h.extract.text = "First sentence. Second sentence. Third sentence."
	h.extract.err = nil
	h.out.Reset()
	require.NoError(t, h.cmds.Read(context.Background(), link.ID, true, true))
	out = h.out.String()
	assert.Contains(t, out, "[1/2]")
	assert.Contains(t, out, "First sentence. Second sentence.")
	assert.Contains(t, out, "[2/2]")
	assert.Contains(t, out, "1 min read")
}

func TestExportImport(t *testing.T) {
	h := setup(t)
	h.save(t, "https://example.com/a", "go")

	path := filepath.Join(t.TempDir(), "links.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, h.cmds.Export(f))
	require.NoError(t, f.Close())

	other := setup(t)
	require.NoError(t, other.cmds.Import(path))
	assert.Contains(t, other.out.String(), "1")
	assert.Equal(t, 1, other.links.Len())

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"links":[]}`), 0o600))
	assert.ErrorIs(t, other.cmds.Import(bad), model.ErrInvalidImport)

	assert.Error(t, other.cmds.Import(filepath.Join(t.TempDir(), "missing.json")))
}

func TestRemind(t *testing.T) {
	h := setup(t)
	h.save(t, "https://example.com/a")

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	var notes bytes.Buffer
	m := reminder.NewManager(&settingsRepo{s: model.DefaultReminderSettings()}, h.links, reminder.NewWriterNotifier(&notes, logger), logger)
	ctx := context.Background()

	on := true
	require.NoError(t, h.cmds.RemindSet(ctx, m, &on, "8:15"))
	assert.Contains(t, h.out.String(), "08:15")

	h.out.Reset()
	require.NoError(t, h.cmds.RemindStatus(ctx, m))
	assert.Contains(t, h.out.String(), "Pending")

	require.NoError(t, h.cmds.RemindNow(ctx, m))
	assert.Contains(t, notes.String(), "You have 1 link waiting for your attention.")

	assert.ErrorIs(t, h.cmds.RemindSet(ctx, m, nil, "99:99"), model.ErrInvalidReminderTime)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
	assert.True(t, strings.HasSuffix(truncateString("ééééééééééééé", 8), "..."))
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshteinDistance("abc", "abc"))
	assert.Equal(t, 1, levenshteinDistance("abc", "abd"))
	assert.Equal(t, 3, levenshteinDistance("", "abc"))
}
