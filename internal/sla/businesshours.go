package sla

import (
	"time"

	"github.com/bareuptime/convcore/internal/models"
)

// addMinutes computes start + minutes, respecting the definition's business
// hours if it has any: the duration accrues only within
// BusinessHoursStart..End on days listed in BusinessDays, UTC unless the
// definition says otherwise (per §9 open question 2, UTC is the only mode
// this spec implements; per-organization timezone is future work).
func addMinutes(start time.Time, minutes int, def *models.SlaDefinition) time.Time {
	if !def.BusinessHoursOnly || len(def.BusinessDays) == 0 {
		return start.Add(time.Duration(minutes) * time.Minute)
	}

	startHour, startMin := parseClock(def.BusinessHoursStart)
	endHour, endMin := parseClock(def.BusinessHoursEnd)
	isBusinessDay := make(map[time.Weekday]bool, len(def.BusinessDays))
	for _, d := range def.BusinessDays {
		isBusinessDay[d] = true
	}

	remaining := time.Duration(minutes) * time.Minute
	cursor := start

	for remaining > 0 {
		if !isBusinessDay[cursor.Weekday()] {
			cursor = startOfNextDay(cursor)
			cursor = atClock(cursor, startHour, startMin)
			continue
		}

		dayStart := atClock(cursor, startHour, startMin)
		dayEnd := atClock(cursor, endHour, endMin)

		if cursor.Before(dayStart) {
			cursor = dayStart
		}
		if !cursor.Before(dayEnd) {
			cursor = startOfNextDay(cursor)
			cursor = atClock(cursor, startHour, startMin)
			continue
		}

		available := dayEnd.Sub(cursor)
		if available >= remaining {
			cursor = cursor.Add(remaining)
			remaining = 0
		} else {
			remaining -= available
			cursor = startOfNextDay(cursor)
			cursor = atClock(cursor, startHour, startMin)
		}
	}

	return cursor
}

func parseClock(s string) (hour, minute int) {
	if len(s) < 5 {
		return 9, 0
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 9, 0
	}
	return t.Hour(), t.Minute()
}

func atClock(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}

func startOfNextDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, next.Location())
}
