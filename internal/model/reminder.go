package model

import (
	"fmt"
	"time"
)

// ReminderFrequency is how often a reading reminder fires.
type ReminderFrequency string

const ReminderDaily ReminderFrequency = "daily"

// ReminderSettings are the persisted reading reminder preferences.
type ReminderSettings struct {
	Enabled                 bool              `json:"enabled"`
	ReminderTime            string            `json:"reminderTime"`
	Frequency               ReminderFrequency `json:"frequency"`
	LastScheduledAt         *time.Time        `json:"lastScheduledAt"`
	ScheduledNotificationID *string           `json:"scheduledNotificationId"`
}

// DefaultReminderSettings returns reminders switched off at 20:00 daily.
func DefaultReminderSettings() ReminderSettings {
	return ReminderSettings{
		ReminderTime: "20:00",
		Frequency:    ReminderDaily,
	}
}

// ParseReminderTime validates an HH:mm clock time and returns hours and minutes.
func ParseReminderTime(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidReminderTime, s)
	}
	return t.Hour(), t.Minute(), nil
}
