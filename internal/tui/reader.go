package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bunchhieng/saveit/internal/model"
	"github.com/bunchhieng/saveit/internal/progress"
	"github.com/bunchhieng/saveit/internal/reader"
)

const extractFailedNotice = "Could not load the full article. Showing the summary instead. Press R to retry."

// readingView is the article screen. Scrolling and card paging feed the
// trackers, which decide when progress is worth saving.
type readingView struct {
	link     model.Link
	viewport viewport.Model
	text     string
	loading  bool
	failed   error

	cardMode bool
	cards    []string
	card     int

	scroll    *progress.Tracker
	cardTrack *progress.Tracker
}

func newReadingView(link model.Link, width, height int) readingView {
	r := readingView{
		link:      link,
		viewport:  viewport.New(width, height),
		loading:   !link.HasContent(),
		scroll:    progress.NewScrollTracker(link.ReadingProgress),
		cardTrack: progress.NewCardTracker(link.ReadingProgress),
	}
	r.text = bodyText(link)
	r.render(width)
	return r
}

// bodyText is the article text, or the description when there is none.
func bodyText(link model.Link) string {
	if link.HasContent() {
		return model.Deref(link.Content)
	}
	return model.Deref(link.Description)
}

func (r *readingView) setContent(link model.Link, err error, width int) {
	r.link = link
	r.loading = false
	r.failed = err
	r.text = bodyText(link)
	r.cards = reader.Cards(r.text)
	r.card = 0
	r.render(width)
}

func (r *readingView) render(width int) {
	body := r.text
	switch {
	case r.loading:
		body = "Loading article...\n\n" + body
	case r.failed != nil:
		body = extractFailedNotice + "\n\n" + body
	}
	if strings.TrimSpace(body) == "" {
		body = reader.EmptyCard
	}
	r.viewport.SetContent(lipgloss.NewStyle().Width(width).Render(body))
	r.viewport.GotoTop()
}

func (r *readingView) resize(width, height int) {
	r.viewport.Width = width
	r.viewport.Height = height
	if r.link.ID != "" {
		r.render(width)
	}
}

// scrolled reports the progress to save after the viewport moved, if any.
func (r *readingView) scrolled() (float64, bool) {
	if r.loading {
		return 0, false
	}
	p := progress.Scroll(float64(r.viewport.YOffset), float64(r.viewport.Height), float64(r.viewport.TotalLineCount()))
	return r.scroll.Offer(p)
}

// paged reports the progress to save after the visible card changed, if any.
func (r *readingView) paged() (float64, bool) {
	if r.loading || len(r.cards) == 0 {
		return 0, false
	}
	return r.cardTrack.Offer(progress.Card(r.card, len(r.cards)))
}

func (r *readingView) resetProgress(p float64) {
	r.scroll.Reset(p)
	r.cardTrack.Reset(p)
}

func (m appModel) openReader() (tea.Model, tea.Cmd) {
	link, ok := m.current()
	if !ok {
		return m, nil
	}
	m.screen = screenReader
	m.reading = newReadingView(link, m.readerWidth(), m.readerHeight())
	return m, m.loadContent(link.ID, false)
}

func (m appModel) loadContent(id string, force bool) tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		link, err := svc.LoadContent(ctx, id, force)
		return contentMsg{id: id, link: link, err: err}
	}
}

func (m appModel) recordProgress(id string, p float64) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		if _, err := svc.RecordProgress(id, p); err != nil {
			return statusMsg{fmt.Sprintf("Error: %v", err)}
		}
		return nil
	}
}

func (m appModel) setStatus(id string, st model.Status) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		link, err := svc.SetStatus(id, st)
		if err != nil {
			return statusMsg{fmt.Sprintf("Error: %v", err)}
		}
		return statusMsg{fmt.Sprintf("Marked as %s", link.Status)}
	}
}

func (m appModel) updateReader(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	r := &m.reading
	id := r.link.ID

	switch msg.String() {
	case "esc", "q":
		m.screen = screenList
		m.refresh()
		return m, nil

	case "o":
		if err := m.open(r.link.URL); err != nil {
			return m, flash(fmt.Sprintf("Error: %v", err))
		}
		return m, flash("Opened: " + r.link.URL)

	case "R":
		r.loading = true
		r.failed = nil
		r.render(m.readerWidth())
		return m, m.loadContent(id, true)

	case "m":
		r.resetProgress(1)
		return m, m.setStatus(id, model.StatusCompleted)

	case "u":
		r.resetProgress(0)
		return m, m.setStatus(id, model.StatusUnread)

	case "c":
		r.cardMode = !r.cardMode
		if r.cardMode {
			r.cards = reader.Cards(r.text)
			r.card = 0
		}
		return m, nil
	}

	if r.cardMode {
		switch msg.String() {
		case "l", "right", "n", " ":
			if r.card < len(r.cards)-1 {
				r.card++
			}
		case "h", "left", "p":
			if r.card > 0 {
				r.card--
			}
		default:
			return m, nil
		}
		if p, ok := r.paged(); ok {
			return m, m.recordProgress(id, p)
		}
		return m, nil
	}

	before := r.viewport.YOffset
	var cmd tea.Cmd
	r.viewport, cmd = r.viewport.Update(msg)
	moved := r.viewport.YOffset != before || (r.viewport.AtBottom() && isDownKey(msg))
	if !moved {
		return m, cmd
	}
	if p, ok := r.scrolled(); ok {
		return m, tea.Batch(cmd, m.recordProgress(id, p))
	}
	return m, cmd
}

func isDownKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "j", "down", "pgdown", " ", "f", "d", "ctrl+d":
		return true
	}
	return false
}
