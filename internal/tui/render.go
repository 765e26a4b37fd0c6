package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bunchhieng/saveit/internal/filter"
	"github.com/bunchhieng/saveit/internal/model"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1)

	unreadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	readingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	readStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	urlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	tagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	searchStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(10)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)
)

func (m appModel) View() string {
	var b strings.Builder

	switch m.screen {
	case screenAdd:
		b.WriteString(m.renderAddForm())
	case screenReader:
		b.WriteString(m.renderReader())
	case screenHelp:
		b.WriteString(m.renderHelp())
	default:
		b.WriteString(m.renderHeader())
		b.WriteString("\n")
		if m.searchMode || m.search.Value() != "" {
			b.WriteString(m.renderSearchBar())
			b.WriteString("\n")
		}
		b.WriteString(m.renderList())
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m appModel) renderHeader() string {
	c := m.criteria()
	tag := "-"
	if len(c.Tags) > 0 {
		tag = c.Tags[0]
	}
	category := "-"
	if c.Category != "" {
		category = c.Category
	}

	header := fmt.Sprintf("saveit  [Status: %s]  [Tag: %s]  [Category: %s]  [%d links]",
		filter.Statuses()[m.statusIdx], tag, category, len(m.links))
	return headerStyle.Render(header)
}

func (m appModel) renderSearchBar() string {
	return searchStyle.Width(max(m.width-2, 10)).Render(m.search.View())
}

func (m appModel) renderList() string {
	if m.confirmDelete {
		return m.renderDeleteConfirmation()
	}

	if len(m.links) == 0 {
		return "No links found. Press 'a' to add a link or 'q' to quit."
	}

	listHeight := max(m.height-6, 1)
	start := 0
	if m.selected >= listHeight {
		start = m.selected - listHeight + 1
	}

	var b strings.Builder
	for i := start; i < len(m.links) && i < start+listHeight; i++ {
		b.WriteString(m.renderLink(m.links[i], i == m.selected))
		b.WriteString("\n")
	}
	return b.String()
}

func statusIcon(link model.Link) string {
	switch link.Status {
	case model.StatusCompleted:
		return readStyle.Render("●")
	case model.StatusReading:
		return readingStyle.Render("◐")
	default:
		return unreadStyle.Render("○")
	}
}

func (m appModel) renderLink(link model.Link, selected bool) string {
	title := truncate(link.DisplayTitle(), 60)

	meta := formatTime(link.CreatedAt)
	if link.Status == model.StatusReading {
		meta += fmt.Sprintf(" %d%%", int(link.ReadingProgress*100+0.5))
	}
	if link.EstimatedReadTime != nil {
		meta += fmt.Sprintf(" %dm", *link.EstimatedReadTime)
	}

	tagsStr := ""
	if len(link.Tags) > 0 {
		tagsStr = fmt.Sprintf(" [%s]", strings.Join(link.Tags, ", "))
	}

	line := fmt.Sprintf("%s %s %s%s",
		statusIcon(link),
		urlStyle.Render(title),
		readStyle.Render(meta),
		tagStyle.Render(tagsStr),
	)

	if selected {
		return selectedStyle.Render(line)
	}
	return " " + line
}

func (m appModel) renderStatusBar() string {
	var parts []string

	if m.statusMsg != "" {
		parts = append(parts, m.statusMsg)
	} else if m.screen == screenList {
		parts = append(parts, fmt.Sprintf("%d/%d", min(m.selected+1, len(m.links)), len(m.links)))
	}

	switch m.screen {
	case screenAdd:
		parts = append(parts, "[tab]next [enter]save [esc]cancel")
	case screenReader:
		parts = append(parts, "[j/k]scroll [c]ards [m]ark read [u]nread [R]etry [o]pen [esc]back")
	default:
		parts = append(parts, "[enter]read [a]dd [o]pen [space]toggle [x]delete [/]search [tab]status [t]ag [c]ategory [?]help [q]uit")
	}

	return statusBarStyle.Width(max(m.width, 20)).Render(strings.Join(parts, "  |  "))
}

func (m appModel) renderDeleteConfirmation() string {
	var linkTitle string
	if link, ok := m.current(); ok {
		linkTitle = truncate(link.DisplayTitle(), 50)
	}

	confirmText := fmt.Sprintf("Delete link: %s?\n\n[y]es / [n]o", linkTitle)
	return selectedStyle.Width(max(m.width-4, 20)).Padding(1, 2).Render(confirmText)
}

func (m appModel) renderAddForm() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Save a link"))
	b.WriteString("\n\n")
	for i, in := range m.form.inputs {
		b.WriteString(labelStyle.Render(fieldLabels[i]))
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	return b.String()
}

func (m appModel) renderReader() string {
	r := m.reading
	var b strings.Builder

	header := truncate(r.link.DisplayTitle(), max(m.width-4, 20))
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	meta := fmt.Sprintf("%s  %d%%", r.link.Status, int(r.link.ReadingProgress*100+0.5))
	if r.link.EstimatedReadTime != nil {
		meta += fmt.Sprintf("  %d min read", *r.link.EstimatedReadTime)
	}
	b.WriteString(readStyle.Render(meta))
	b.WriteString("\n")

	if r.cardMode && len(r.cards) > 0 {
		card := cardStyle.Width(m.readerWidth()).Render(r.cards[r.card])
		b.WriteString(card)
		b.WriteString("\n")
		b.WriteString(readStyle.Render(fmt.Sprintf("card %d/%d", r.card+1, len(r.cards))))
		return b.String()
	}

	b.WriteString(r.viewport.View())
	return b.String()
}

func (m appModel) renderHelp() string {
	rows := [][2]string{
		{"j/k", "move"},
		{"enter", "read the selected link"},
		{"a", "save a new link"},
		{"o", "open in browser"},
		{"space", "toggle read"},
		{"x", "delete"},
		{"/", "search"},
		{"tab", "cycle status filter"},
		{"t", "cycle tag filter"},
		{"c", "cycle category filter"},
		{"ctrl+r", "reload saved links"},
		{"q", "quit"},
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Keys"))
	b.WriteString("\n\n")
	for _, r := range rows {
		b.WriteString(labelStyle.Render(r[0]))
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	b.WriteString("\nPress any key to go back.")
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
