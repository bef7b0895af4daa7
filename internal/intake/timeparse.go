package intake

import (
	"strconv"
	"strings"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
)

// ParseMeridiem reads customer-facing times like "2:30 PM", "12:00am" or "9 AM". A value with
// no meridiem is read as 24-hour "HH:MM". ok is false when nothing sensible can be extracted.
func ParseMeridiem(s string) (domain.Clock, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}

	meridiem := ""
	switch {
	case strings.HasSuffix(s, "PM"):
		meridiem = "PM"
	case strings.HasSuffix(s, "AM"):
		meridiem = "AM"
	}
	if meridiem == "" {
		c, err := domain.ParseClock(s)
		return c, err == nil
	}

	body := strings.TrimSpace(strings.TrimSuffix(s, meridiem))
	hs, ms, hasMinutes := strings.Cut(body, ":")
	hour, err := strconv.Atoi(strings.TrimSpace(hs))
	if err != nil || hour < 1 || hour > 12 {
		return 0, false
	}
	minute := 0
	if hasMinutes {
		minute, err = strconv.Atoi(strings.TrimSpace(ms))
		if err != nil || minute < 0 || minute > 59 {
			return 0, false
		}
	}

	switch {
	case meridiem == "PM" && hour < 12:
		hour += 12
	case meridiem == "AM" && hour == 12:
		hour = 0
	}
	return domain.NewClock(hour, minute), true
}
