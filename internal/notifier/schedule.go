package notifier

import (
	"strconv"
	"strings"
	"time"

	"github.com/voicetel/autotask-notifier/internal/models"
)

// IsAlertingAllowed reports whether the work schedule permits alerting at
// the given moment. It is a pure function of (schedule, now).
//
// When the window does not wrap (end >= start), today must be enabled and
// the time of day must fall within [start, end]. When it wraps past
// midnight (end < start), the active weekday is today's if the time of day
// has reached start, otherwise yesterday's; the time of day must then be
// >= start or <= end.
func IsAlertingAllowed(schedule models.WorkSchedule, now time.Time) bool {
	start, ok := parseClock(schedule.Hours.Start)
	if !ok {
		return false
	}
	end, ok := parseClock(schedule.Hours.End)
	if !ok {
		return false
	}

	tod := now.Hour()*60 + now.Minute()

	if end >= start {
		return schedule.DayEnabled(now.Weekday()) && tod >= start && tod <= end
	}

	// Overnight window, e.g. 22:00-06:00. Before start we are still inside
	// the previous day's window, so that day's flag governs.
	day := now.Weekday()
	if tod < start {
		day = previousWeekday(day)
	}
	return schedule.DayEnabled(day) && (tod >= start || tod <= end)
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func previousWeekday(w time.Weekday) time.Weekday {
	return (w + 6) % 7
}
