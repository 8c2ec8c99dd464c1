// Package timeutil formats the timestamps querysync's `status` command
// prints: process uptime and start time.
package timeutil

import (
	"fmt"
	"time"
)

// LocalTimeFormat is the layout FormatTime renders with: Go's reference
// time, Mon Jan 2 15:04:05 2006.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

// FormatUptime renders a Duration.String() value (e.g. "72h30m15s", the
// form health.Snapshot.Uptime stores) as "3d 0h 30m 15s". Returns the
// input unchanged if it doesn't parse as a duration.
func FormatUptime(uptime string) string {
	d, err := time.ParseDuration(uptime)
	if err != nil {
		return uptime
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// FormatTime parses health.Snapshot.StartedAt's RFC3339 timestamp and
// renders it in the process's local timezone. Returns the input
// unchanged if it doesn't parse.
func FormatTime(timestamp string) string {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return timestamp
	}
	return t.Local().Format(LocalTimeFormat)
}
