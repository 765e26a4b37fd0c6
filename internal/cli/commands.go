package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/bunchhieng/saveit/internal/filter"
	"github.com/bunchhieng/saveit/internal/model"
	"github.com/bunchhieng/saveit/internal/reader"
	"github.com/bunchhieng/saveit/internal/reminder"
	"github.com/bunchhieng/saveit/internal/service"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// Commands handles all CLI command execution.
type Commands struct {
	svc  *service.Service
	out  io.Writer
	open func(url string) error
}

// Option configures Commands.
type Option func(*Commands)

// WithOutput redirects command output, stdout by default.
func WithOutput(w io.Writer) Option {
	return func(c *Commands) { c.out = w }
}

// WithOpener replaces the browser launcher.
func WithOpener(open func(url string) error) Option {
	return func(c *Commands) { c.open = open }
}

// NewCommands creates a new Commands instance.
func NewCommands(svc *service.Service, opts ...Option) *Commands {
	c := &Commands{svc: svc, out: os.Stdout, open: openBrowser}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// suggestID suggests a similar ID if the given ID is not found.
func (c *Commands) suggestID(id string) string {
	links := c.svc.List(filter.Criteria{})
	if len(links) == 0 {
		return ""
	}

	bestMatch := ""
	minDistance := len(id) + 1

	for _, link := range links {
		distance := levenshteinDistance(id, link.ID)
		if distance < minDistance && distance <= 3 {
			minDistance = distance
			bestMatch = link.ID
		}
	}

	return bestMatch
}

func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(s1)][len(s2)]
}

func (c *Commands) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// Add saves a new link, waiting for its preview.
func (c *Commands) Add(ctx context.Context, in service.NewLink) error {
	link, err := c.svc.Save(ctx, in)
	if err != nil {
		return err
	}
	c.printf("%sAdded%s link %s%s%s: %s%s%s\n", colorGreen, colorReset, colorBold, link.ID, colorReset, colorCyan, link.URL, colorReset)
	if link.Title != link.URL {
		c.printf("  %s\n", link.Title)
	}
	return nil
}

// List lists links matching criteria. A positive limit caps the output.
func (c *Commands) List(criteria filter.Criteria, limit int) error {
	links := c.svc.List(criteria)
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}

	if len(links) == 0 {
		c.printf("No links found.\n")
		return nil
	}

	c.printLinksTable(links)
	return nil
}

// Show prints every field of one link.
func (c *Commands) Show(id string) error {
	link, err := c.get(id)
	if err != nil {
		return err
	}

	c.printf("%s%s%s\n", colorBold, link.DisplayTitle(), colorReset)
	c.printf("%s%s%s\n\n", colorCyan, link.URL, colorReset)
	c.field("ID", link.ID)
	c.field("Status", fmt.Sprintf("%s (%s)", link.Status, formatProgress(link.ReadingProgress)))
	c.field("Created", formatTime(link.CreatedAt))
	if len(link.Tags) > 0 {
		c.field("Tags", strings.Join(link.Tags, ", "))
	}
	c.field("Category", model.Deref(link.Category))
	if link.EstimatedReadTime != nil {
		c.field("Read time", fmt.Sprintf("%d min", *link.EstimatedReadTime))
	}
	c.field("Image", model.Deref(link.ImageURL))
	c.field("Note", model.Deref(link.Note))
	if d := model.Deref(link.Description); d != "" {
		c.printf("\n%s\n", d)
	}
	return nil
}

func (c *Commands) field(name, value string) {
	if value == "" {
		return
	}
	c.printf("%s%-10s%s %s\n", colorDim, name, colorReset, value)
}

// Edit applies a partial update.
func (c *Commands) Edit(ctx context.Context, id string, patch model.Patch) error {
	if patch.Empty() {
		return fmt.Errorf("nothing to update")
	}
	link, err := c.svc.Edit(ctx, id, patch)
	if err != nil {
		return c.handleNotFound(err, id, "edit link")
	}
	c.printf("%sUpdated%s link %s%s%s: %s\n", colorYellow, colorReset, colorBold, link.ID, colorReset, link.DisplayTitle())
	return nil
}

// Progress records reading progress given as a percentage.
func (c *Commands) Progress(id string, percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("progress must be between 0 and 100")
	}
	link, err := c.svc.RecordProgress(id, percent/100)
	if err != nil {
		return c.handleNotFound(err, id, "record progress")
	}
	c.printf("Link %s%s%s is %s at %s.\n", colorBold, link.ID, colorReset, link.Status, formatProgress(link.ReadingProgress))
	return nil
}

// Status sets a status by name.
func (c *Commands) Status(id, status string) error {
	st, err := model.ParseStatus(status)
	if err != nil {
		return fmt.Errorf("%w: %q (want unread, reading or completed)", err, status)
	}
	link, err := c.svc.SetStatus(id, st)
	if err != nil {
		return c.handleNotFound(err, id, "set status")
	}
	c.printf("%sMarked%s link %s%s%s as %s.\n", colorGreen, colorReset, colorBold, link.ID, colorReset, link.Status)
	return nil
}

// Done marks a link as read.
func (c *Commands) Done(id string) error {
	if _, err := c.svc.MarkComplete(id); err != nil {
		return c.handleNotFound(err, id, "mark read")
	}
	c.printf("%sMarked%s link %s%s%s as read.\n", colorGreen, colorReset, colorBold, id, colorReset)
	return nil
}

// Undo marks a link as unread.
func (c *Commands) Undo(id string) error {
	if _, err := c.svc.MarkUnread(id); err != nil {
		return c.handleNotFound(err, id, "mark unread")
	}
	c.printf("%sMarked%s link %s%s%s as unread.\n", colorYellow, colorReset, colorBold, id, colorReset)
	return nil
}

// Toggle flips a link between read and unread.
func (c *Commands) Toggle(id string) error {
	link, err := c.svc.Toggle(id)
	if err != nil {
		return c.handleNotFound(err, id, "toggle link")
	}
	c.printf("Link %s%s%s is now %s.\n", colorBold, link.ID, colorReset, link.Status)
	return nil
}

// Remove deletes one or more links.
func (c *Commands) Remove(ids ...string) error {
	if len(ids) == 0 {
		return fmt.Errorf("at least one ID required")
	}

	var deleted []string
	var failed []string

	for _, id := range ids {
		if !model.ValidateID(id) {
			failed = append(failed, fmt.Sprintf("%s (invalid format)", id))
			continue
		}
		if err := c.svc.Remove(id); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				msg := fmt.Sprintf("%s (not found)", id)
				if suggestion := c.suggestID(id); suggestion != "" {
					msg += fmt.Sprintf(" - %sDid you mean:%s %s%s%s?", colorYellow, colorReset, colorBold, suggestion, colorReset)
				}
				failed = append(failed, msg)
			} else {
				failed = append(failed, fmt.Sprintf("%s (%v)", id, err))
			}
			continue
		}
		deleted = append(deleted, id)
	}

	if len(deleted) == 1 {
		c.printf("%sDeleted%s link %s%s%s.\n", colorRed, colorReset, colorBold, deleted[0], colorReset)
	} else if len(deleted) > 1 {
		c.printf("%sDeleted%s %d link(s): %s%s%s\n", colorRed, colorReset, len(deleted), colorBold, strings.Join(deleted, ", "), colorReset)
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to delete: %s", strings.Join(failed, ", "))
	}

	return nil
}

// Clear removes every link. It refuses unless confirmed.
func (c *Commands) Clear(confirmed bool) error {
	if !confirmed {
		return fmt.Errorf("refusing to delete every link without --yes")
	}
	n := c.svc.Clear()
	c.printf("%sDeleted%s %d link(s).\n", colorRed, colorReset, n)
	return nil
}

// Tags prints every tag ever used.
func (c *Commands) Tags() error {
	tags := c.svc.Tags()
	if len(tags) == 0 {
		c.printf("No tags yet.\n")
		return nil
	}
	for _, t := range tags {
		c.printf("%s%s%s\n", colorYellow, t, colorReset)
	}
	return nil
}

// Open opens a link in the default browser.
func (c *Commands) Open(id string) error {
	link, err := c.get(id)
	if err != nil {
		return err
	}
	if err := c.open(link.URL); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	c.printf("%sOpened:%s %s%s%s\n", colorGreen, colorReset, colorCyan, link.URL, colorReset)
	return nil
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
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
	return cmd.Run()
}

// Read prints the readable text of a link, extracting it first if needed.
// In card mode the text is split into numbered cards. When extraction fails
// the description is shown instead.
func (c *Commands) Read(ctx context.Context, id string, force, cards bool) error {
	if !model.ValidateID(id) {
		return fmt.Errorf("invalid ID format: %s", id)
	}
	link, err := c.svc.LoadContent(ctx, id, force)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return c.handleNotFound(err, id, "load content")
		}
		c.printf("%sCould not extract the article:%s %v\n\n", colorYellow, colorReset, err)
	}

	text := model.Deref(link.Content)
	if strings.TrimSpace(text) == "" {
		text = model.Deref(link.Description)
	}

	c.printf("%s%s%s\n", colorBold, link.DisplayTitle(), colorReset)
	if link.EstimatedReadTime != nil {
		c.printf("%s%d min read%s\n", colorDim, *link.EstimatedReadTime, colorReset)
	}
	c.printf("\n")

	if !cards {
		if strings.TrimSpace(text) == "" {
			text = reader.EmptyCard
		}
		c.printf("%s\n", text)
		return nil
	}

	deck := reader.Cards(text)
	for i, card := range deck {
		c.printf("%s[%d/%d]%s %s\n\n", colorDim, i+1, len(deck), colorReset, card)
	}
	return nil
}

// Export exports all links to JSON.
func (c *Commands) Export(w io.Writer) error {
	if err := c.svc.Export(w); err != nil {
		return fmt.Errorf("export links: %w", err)
	}
	return nil
}

// Import imports links from a JSON file, skipping URLs already saved.
func (c *Commands) Import(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	added, err := c.svc.Import(file)
	if err != nil {
		return fmt.Errorf("import links: %w", err)
	}

	c.printf("%sImported%s %s%d%s link(s).\n", colorGreen, colorReset, colorBold, added, colorReset)
	return nil
}

// RemindSet changes the reminder settings and reports the result.
func (c *Commands) RemindSet(ctx context.Context, m *reminder.Manager, enabled *bool, at string) error {
	settings, err := m.Update(ctx, enabled, at)
	if err != nil {
		return err
	}
	c.printReminder(settings)
	return nil
}

// RemindStatus prints the reminder settings and the pending count.
func (c *Commands) RemindStatus(ctx context.Context, m *reminder.Manager) error {
	settings, err := m.Settings(ctx)
	if err != nil {
		return err
	}
	c.printReminder(settings)
	if settings.LastScheduledAt != nil {
		c.field("Scheduled", formatTime(*settings.LastScheduledAt))
	}
	c.field("Pending", fmt.Sprintf("%d", reminder.PendingCount(c.svc.List(filter.Criteria{}))))
	return nil
}

// RemindNow sends the reminder immediately.
func (c *Commands) RemindNow(ctx context.Context, m *reminder.Manager) error {
	sent, err := m.Fire(ctx)
	if err != nil {
		return err
	}
	if !sent {
		c.printf("Nothing to read. You're all caught up.\n")
	}
	return nil
}

// RemindRun schedules the daily reminder and blocks until ctx is done.
func (c *Commands) RemindRun(ctx context.Context, m *reminder.Manager) error {
	_, scheduled, err := m.Start(ctx)
	if err != nil {
		return err
	}
	if !scheduled {
		return fmt.Errorf("reminders are disabled; enable them with 'remind set --on'")
	}
	defer m.Stop()

	c.printf("Next reminder at %s%s%s. Press Ctrl+C to stop.\n", colorBold, formatTime(m.NextRun()), colorReset)
	<-ctx.Done()
	return nil
}

func (c *Commands) printReminder(s model.ReminderSettings) {
	state := colorDim + "off" + colorReset
	if s.Enabled {
		state = colorGreen + "on" + colorReset
	}
	c.field("Reminders", state)
	c.field("Time", s.ReminderTime)
	c.field("Frequency", string(s.Frequency))
}

func (c *Commands) get(id string) (model.Link, error) {
	if !model.ValidateID(id) {
		return model.Link{}, fmt.Errorf("invalid ID format: %s", id)
	}
	link, err := c.svc.Get(id)
	if err != nil {
		return model.Link{}, c.handleNotFound(err, id, "get link")
	}
	return link, nil
}

func (c *Commands) handleNotFound(err error, id string, action string) error {
	if errors.Is(err, model.ErrNotFound) {
		msg := fmt.Sprintf("link %s%s%s not found", colorBold, id, colorReset)
		if suggestion := c.suggestID(id); suggestion != "" {
			msg += fmt.Sprintf("\n\n%sDid you mean:%s %s%s%s?", colorYellow, colorReset, colorBold, suggestion, colorReset)
		}
		return fmt.Errorf("%s: %w", msg, model.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", action, err)
}

const (
	maxTitleLen = 40
	maxTagsLen  = 30
	ellipsisLen = 3
)

// displayLocation is the zone timestamps are printed in.
var displayLocation = time.Local

func (c *Commands) printLinksTable(links []model.Link) {
	cols := []string{"ID", "TITLE", "STATUS", "PROGRESS", "CREATED", "TAGS"}
	rows := make([][]string, 0, len(links))
	for _, link := range links {
		rows = append(rows, []string{
			link.ID,
			truncateString(link.DisplayTitle(), maxTitleLen),
			string(link.Status),
			formatProgress(link.ReadingProgress),
			formatTime(link.CreatedAt),
			truncateString(strings.Join(link.Tags, ", "), maxTagsLen),
		})
	}

	widths := make([]int, len(cols))
	for i, h := range cols {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := len([]rune(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	segments := make([]string, len(widths))
	for i, w := range widths {
		segments[i] = strings.Repeat("─", w+2)
	}
	c.printf("%s┌%s┐%s\n", colorDim, strings.Join(segments, "┬"), colorReset)
	c.printRow(cols, widths, func(int) string { return colorBold })
	c.printf("%s├%s┤%s\n", colorDim, strings.Join(segments, "┼"), colorReset)

	rowColors := []string{colorBold + colorCyan, "", "", "", colorDim, colorYellow}
	for _, row := range rows {
		c.printRow(row, widths, func(i int) string { return rowColors[i] })
	}
	c.printf("%s└%s┘%s\n", colorDim, strings.Join(segments, "┴"), colorReset)
}

func (c *Commands) printRow(cells []string, widths []int, color func(int) string) {
	var b strings.Builder
	for i, cell := range cells {
		b.WriteString(colorDim + "│" + colorReset + " ")
		pad := widths[i] - len([]rune(cell))
		if col := color(i); col != "" {
			b.WriteString(col + cell + colorReset)
		} else {
			b.WriteString(cell)
		}
		b.WriteString(strings.Repeat(" ", pad+1))
	}
	b.WriteString(colorDim + "│" + colorReset + "\n")
	c.printf("%s", b.String())
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-ellipsisLen]) + "..."
}

func formatProgress(p float64) string {
	return fmt.Sprintf("%d%%", int(p*100+0.5))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(displayLocation).Format("2006-01-02 15:04")
}
