package tui

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bunchhieng/saveit/internal/filter"
	"github.com/bunchhieng/saveit/internal/model"
	"github.com/bunchhieng/saveit/internal/service"
	"github.com/bunchhieng/saveit/internal/store"
)

const statusTTL = 3 * time.Second

type screen int

const (
	screenList screen = iota
	screenAdd
	screenReader
	screenHelp
)

type appModel struct {
	ctx  context.Context
	svc  *service.Service
	open func(url string) error

	screen   screen
	links    []model.Link
	selected int

	statusIdx   int
	tagIdx      int
	categoryIdx int
	search      textinput.Model
	searchMode  bool

	confirmDelete bool
	deleteLinkID  string

	form    addForm
	saving  bool
	reading readingView

	width     int
	height    int
	statusMsg string
	statusSeq int
}

// linksChangedMsg is sent whenever the link store reports a mutation.
type linksChangedMsg struct{}

type statusMsg struct {
	message string
}

type clearStatusMsg struct {
	seq int
}

type savedMsg struct {
	link model.Link
	err  error
}

type reloadedMsg struct {
	err error
}

type contentMsg struct {
	id   string
	link model.Link
	err  error
}

func newModel(ctx context.Context, svc *service.Service) appModel {
	search := textinput.New()
	search.Prompt = "/"
	search.Placeholder = "search title, description or tags"

	m := appModel{
		ctx:         ctx,
		svc:         svc,
		open:        openBrowser,
		tagIdx:      -1,
		categoryIdx: -1,
		search:      search,
		width:       80,
		height:      24,
	}
	m.refresh()
	return m
}

func (m appModel) Init() tea.Cmd {
	return nil
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.reading.resize(m.readerWidth(), m.readerHeight())
		return m, nil

	case linksChangedMsg:
		m.refresh()
		return m, nil

	case statusMsg:
		return m, m.notify(msg.message)

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.statusMsg = ""
		}
		return m, nil

	case savedMsg:
		m.saving = false
		if msg.err != nil {
			return m, m.notify(fmt.Sprintf("Error: %v", msg.err))
		}
		m.screen = screenList
		m.refresh()
		return m, m.notify("Saved: " + msg.link.DisplayTitle())

	case reloadedMsg:
		if msg.err != nil {
			return m, m.notify(fmt.Sprintf("Error: %v", msg.err))
		}
		m.refresh()
		return m, m.notify("Reloaded")

	case contentMsg:
		if m.screen == screenReader && m.reading.link.ID == msg.id {
			m.reading.setContent(msg.link, msg.err, m.readerWidth())
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.screen {
		case screenAdd:
			return m.updateAdd(msg)
		case screenReader:
			return m.updateReader(msg)
		case screenHelp:
			m.screen = screenList
			return m, nil
		}
		if m.confirmDelete {
			return m.handleDeleteConfirmation(msg)
		}
		if m.searchMode {
			return m.handleSearchInput(msg)
		}
		return m.updateList(msg)
	}

	return m, nil
}

func (m appModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "j", "down":
		m.moveDown()

	case "k", "up":
		m.moveUp()

	case "g":
		m.selected = 0

	case "G":
		m.selected = max(len(m.links)-1, 0)

	case "enter":
		return m.openReader()

	case "o":
		return m, m.openLink()

	case " ", "d":
		return m, m.toggle()

	case "x", "r":
		m.promptDelete()

	case "/":
		m.searchMode = true
		return m, m.search.Focus()

	case "esc":
		m.search.SetValue("")
		m.refresh()

	case "tab":
		m.statusIdx = (m.statusIdx + 1) % len(filter.Statuses())
		m.selected = 0
		m.refresh()

	case "t":
		m.tagIdx = cycle(m.tagIdx, len(m.svc.Tags()))
		m.selected = 0
		m.refresh()

	case "c":
		m.categoryIdx = cycle(m.categoryIdx, len(model.Categories))
		m.selected = 0
		m.refresh()

	case "ctrl+r":
		return m, m.reload()

	case "a":
		m.screen = screenAdd
		m.form = newAddForm()
		return m, m.form.focusCmd()

	case "?":
		m.screen = screenHelp
	}
	return m, nil
}

// cycle steps through -1 (no filter) and 0..n-1.
func cycle(idx, n int) int {
	if idx+1 >= n {
		return -1
	}
	return idx + 1
}

func (m *appModel) criteria() filter.Criteria {
	c := filter.Criteria{
		Status: filter.Statuses()[m.statusIdx],
		Query:  m.search.Value(),
	}
	if tags := m.svc.Tags(); m.tagIdx >= 0 && m.tagIdx < len(tags) {
		c.Tags = []string{tags[m.tagIdx]}
	}
	if m.categoryIdx >= 0 && m.categoryIdx < len(model.Categories) {
		c.Category = model.Categories[m.categoryIdx]
	}
	return c
}

// refresh reloads the visible links and the link open in the reader.
func (m *appModel) refresh() {
	m.links = m.svc.List(m.criteria())
	if m.selected >= len(m.links) {
		m.selected = len(m.links) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}

	if m.screen == screenReader {
		link, err := m.svc.Get(m.reading.link.ID)
		if err != nil {
			m.screen = screenList
			return
		}
		m.reading.link = link
	}
}

func (m *appModel) current() (model.Link, bool) {
	if len(m.links) == 0 || m.selected >= len(m.links) {
		return model.Link{}, false
	}
	return m.links[m.selected], true
}

func (m *appModel) moveDown() {
	if m.selected < len(m.links)-1 {
		m.selected++
	}
}

func (m *appModel) moveUp() {
	if m.selected > 0 {
		m.selected--
	}
}

func (m appModel) handleSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.searchMode = false
		m.search.Blur()
		m.search.SetValue("")
		m.refresh()
		return m, nil

	case "enter":
		m.searchMode = false
		m.search.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.selected = 0
	m.refresh()
	return m, cmd
}

// notify shows message in the status bar until a newer one replaces it or it expires.
func (m *appModel) notify(message string) tea.Cmd {
	m.statusMsg = message
	m.statusSeq++
	seq := m.statusSeq
	return tea.Tick(statusTTL, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}

func flash(message string) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{message}
	}
}

func (m *appModel) openLink() tea.Cmd {
	link, ok := m.current()
	if !ok {
		return nil
	}
	if err := m.open(link.URL); err != nil {
		return flash(fmt.Sprintf("Error: %v", err))
	}
	return flash("Opened: " + link.URL)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported OS %s", runtime.GOOS)
	}
	return cmd.Start()
}

func (m *appModel) toggle() tea.Cmd {
	link, ok := m.current()
	if !ok {
		return nil
	}
	svc := m.svc
	return func() tea.Msg {
		updated, err := svc.Toggle(link.ID)
		if err != nil {
			return statusMsg{fmt.Sprintf("Error: %v", err)}
		}
		if updated.IsCompleted() {
			return statusMsg{"Marked as read"}
		}
		return statusMsg{"Marked as unread"}
	}
}

// reload picks up links saved by other saveit processes.
func (m *appModel) reload() tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		return reloadedMsg{err: svc.Reload(ctx)}
	}
}

func (m *appModel) promptDelete() {
	link, ok := m.current()
	if !ok {
		return
	}
	m.confirmDelete = true
	m.deleteLinkID = link.ID
}

func (m appModel) handleDeleteConfirmation(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.confirmDelete = false
		linkID := m.deleteLinkID
		m.deleteLinkID = ""
		svc := m.svc
		return m, func() tea.Msg {
			if err := svc.Remove(linkID); err != nil {
				return statusMsg{fmt.Sprintf("Error: %v", err)}
			}
			return statusMsg{"Deleted link"}
		}

	case "n", "N", "esc":
		m.confirmDelete = false
		m.deleteLinkID = ""
	}
	return m, nil
}

func (m appModel) updateAdd(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.saving {
		return m, nil
	}
	switch msg.String() {
	case "esc":
		m.screen = screenList
		return m, nil

	case "ctrl+s":
		return m.submitAdd()

	case "enter":
		if m.form.focus == len(m.form.inputs)-1 {
			return m.submitAdd()
		}
		return m, m.form.next()
	}

	var cmd tea.Cmd
	m.form, cmd = m.form.update(msg)
	return m, cmd
}

func (m appModel) submitAdd() (tea.Model, tea.Cmd) {
	in := m.form.value()
	if in.URL == "" {
		return m, flash(model.ErrEmptyURL.Error())
	}
	m.saving = true
	m.statusMsg = "Fetching preview..."
	ctx, svc := m.ctx, m.svc
	return m, func() tea.Msg {
		link, err := svc.Save(ctx, in)
		return savedMsg{link: link, err: err}
	}
}

func (m appModel) readerWidth() int {
	return max(m.width-4, 20)
}

func (m appModel) readerHeight() int {
	return max(m.height-5, 3)
}

// Run starts the TUI application and keeps it in sync with the link store
// until the user quits or ctx is cancelled.
func Run(ctx context.Context, svc *service.Service) error {
	p := tea.NewProgram(newModel(ctx, svc), tea.WithAltScreen(), tea.WithContext(ctx))

	unsubscribe := svc.Subscribe(func(store.Event) {
		go p.Send(linksChangedMsg{})
	})
	defer unsubscribe()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
