package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

const minutesPerDay = 24 * 60

var ErrInvalidClock = errors.New("invalid time of day")

// Clock is a time of day expressed in minutes since midnight.
type Clock int

// ParseClock parses a 24-hour "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(m) != 2 || len(h) == 0 || len(h) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return NewClock(hh, mm), nil
}

func NewClock(hour, minute int) Clock { return Clock(hour*60 + minute) }

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

// Add moves the clock forward, clamping at 23:59 since records never span midnight.
func (c Clock) Add(d time.Duration) Clock {
	n := int(c) + int(d/time.Minute)
	if n >= minutesPerDay {
		n = minutesPerDay - 1
	}
	if n < 0 {
		n = 0
	}
	return Clock(n)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// ValidDate reports whether s is a calendar day in YYYY-MM-DD form.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// Meridiem formats the clock the way customers read it, e.g. "2:30 PM".
func (c Clock) Meridiem() string {
	h, suffix := c.Hour(), "AM"
	if h >= 12 {
		suffix = "PM"
	}
	if h = h % 12; h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, c.Minute(), suffix)
}
