// Package reminder schedules the daily "catch up on your reading" nudge.
package reminder

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bunchhieng/saveit/internal/metrics"
	"github.com/bunchhieng/saveit/internal/model"
)

// Title is the headline of every reminder.
const Title = "Catch up on your reading"

// SettingsRepository persists reminder settings.
type SettingsRepository interface {
	LoadReminder(ctx context.Context) (model.ReminderSettings, error)
	SaveReminder(ctx context.Context, settings model.ReminderSettings) error
}

// LinkSource lists the current links. Reload picks up links written by
// other processes since the source was loaded.
type LinkSource interface {
	Links() []model.Link
	Reload(ctx context.Context) error
}

// Notification is a single reminder.
type Notification struct {
	Title string
	Body  string
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// PendingCount counts links that are not completed.
func PendingCount(links []model.Link) int {
	n := 0
	for i := range links {
		if !links[i].IsCompleted() {
			n++
		}
	}
	return n
}

// Message builds the reminder for pending links. It reports false when there is nothing to read.
func Message(pending int) (Notification, bool) {
	switch {
	case pending <= 0:
		return Notification{}, false
	case pending == 1:
		return Notification{Title: Title, Body: "You have 1 link waiting for your attention."}, true
	default:
		return Notification{Title: Title, Body: fmt.Sprintf("You have %d links waiting for your attention.", pending)}, true
	}
}

// Manager owns the reminder settings and the daily job.
type Manager struct {
	repo     SettingsRepository
	links    LinkSource
	notifier Notifier
	log      logrus.FieldLogger
	now      func() time.Time

	mu        sync.Mutex
	scheduler *gocron.Scheduler
	job       *gocron.Job
}

// Option configures a Manager.
type Option func(*Manager)

// WithLocation runs the schedule in loc instead of local time.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) { m.scheduler = gocron.NewScheduler(loc) }
}

// WithClock overrides the time source recorded in lastScheduledAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager. Nothing is scheduled until Start.
func NewManager(repo SettingsRepository, links LinkSource, notifier Notifier, logger logrus.FieldLogger, opts ...Option) *Manager {
	m := &Manager{
		repo:      repo,
		links:     links,
		notifier:  notifier,
		log:       logger.WithField("component", "reminder"),
		now:       time.Now,
		scheduler: gocron.NewScheduler(time.Local),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Settings returns the stored settings.
func (m *Manager) Settings(ctx context.Context) (model.ReminderSettings, error) {
	settings, err := m.repo.LoadReminder(ctx)
	if err != nil {
		return model.ReminderSettings{}, fmt.Errorf("load reminder settings: %w", err)
	}
	return settings, nil
}

// Update changes whether reminders are enabled and, when at is not empty,
// the HH:mm time they fire at.
func (m *Manager) Update(ctx context.Context, enabled *bool, at string) (model.ReminderSettings, error) {
	settings, err := m.Settings(ctx)
	if err != nil {
		return model.ReminderSettings{}, err
	}
	if at != "" {
		hour, minute, err := model.ParseReminderTime(at)
		if err != nil {
			return model.ReminderSettings{}, err
		}
		settings.ReminderTime = fmt.Sprintf("%02d:%02d", hour, minute)
	}
	if enabled != nil {
		settings.Enabled = *enabled
	}
	if !settings.Enabled {
		settings.ScheduledNotificationID = nil
	}
	settings.Frequency = model.ReminderDaily

	if err := m.repo.SaveReminder(ctx, settings); err != nil {
		return model.ReminderSettings{}, fmt.Errorf("save reminder settings: %w", err)
	}
	return settings, nil
}

// Start schedules the daily reminder when enabled and records the schedule.
// It reports false when reminders are disabled.
func (m *Manager) Start(ctx context.Context) (model.ReminderSettings, bool, error) {
	settings, err := m.Settings(ctx)
	if err != nil {
		return model.ReminderSettings{}, false, err
	}
	if !settings.Enabled {
		return settings, false, nil
	}
	if _, _, err := model.ParseReminderTime(settings.ReminderTime); err != nil {
		return settings, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.scheduler.Clear()
	job, err := m.scheduler.Every(1).Day().At(settings.ReminderTime).Tag(id).Do(func() {
		if _, err := m.Fire(context.Background()); err != nil {
			m.log.WithError(err).Warn("reminder delivery failed")
		}
	})
	if err != nil {
		return settings, false, fmt.Errorf("schedule reminder: %w", err)
	}
	m.job = job
	m.scheduler.StartAsync()

	now := m.now()
	settings.LastScheduledAt = &now
	settings.ScheduledNotificationID = &id
	if err := m.repo.SaveReminder(ctx, settings); err != nil {
		m.log.WithError(err).Warn("failed to record reminder schedule")
	}

	m.log.WithFields(logrus.Fields{"at": settings.ReminderTime, "job": id}).Info("reminder scheduled")
	return settings, true, nil
}

// NextRun returns when the reminder fires next, or the zero time when nothing is scheduled.
func (m *Manager) NextRun() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job == nil {
		return time.Time{}
	}
	return m.job.NextRun()
}

// Fire sends the reminder now if any link is pending. It reports whether a
// notification was sent.
func (m *Manager) Fire(ctx context.Context) (bool, error) {
	if err := m.links.Reload(ctx); err != nil {
		m.log.WithError(err).Warn("reload links failed, counting the cached list")
	}
	n, ok := Message(PendingCount(m.links.Links()))
	if !ok {
		m.log.Debug("nothing pending, reminder skipped")
		return false, nil
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		return false, fmt.Errorf("notify: %w", err)
	}
	metrics.RemindersSent.Inc()
	return true, nil
}

// Stop cancels the scheduled job.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduler.Stop()
	m.scheduler.Clear()
	m.job = nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	bodyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// WriterNotifier prints notifications to a terminal or any writer.
type WriterNotifier struct {
	w   io.Writer
	log logrus.FieldLogger
}

// NewWriterNotifier creates a notifier writing to w.
func NewWriterNotifier(w io.Writer, logger logrus.FieldLogger) *WriterNotifier {
	return &WriterNotifier{w: w, log: logger.WithField("component", "notifier")}
}

// Notify logs the notification and prints its styled title and body.
func (n *WriterNotifier) Notify(_ context.Context, note Notification) error {
	n.log.WithField("body", note.Body).Info(note.Title)
	_, err := fmt.Fprintf(n.w, "%s\n%s\n", titleStyle.Render(note.Title), bodyStyle.Render(note.Body))
	return err
}
