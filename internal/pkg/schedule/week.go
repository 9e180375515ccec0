package schedule

import (
	"fmt"
	"strings"
	"time"
)

// WeekOfYear numbers weeks from Monday, with week 1 being the week that
// contains the first Thursday of the year. Days before week 1 belong to the
// last week of the previous year. There is no wrap at the end of the year,
// so late December can be week 53.
func WeekOfYear(t time.Time) int {
	day := civil(t.Year(), t.Month(), t.Day())
	jan1 := civil(t.Year(), time.January, 1)
	firstThursday := jan1.AddDate(0, 0, (int(time.Thursday)-int(jan1.Weekday())+7)%7)
	week1 := firstThursday.AddDate(0, 0, -3)

	days := int(day.Sub(week1).Hours() / 24)
	week := 0
	if days >= 0 {
		week = days/7 + 1
	}
	if week == 0 {
		return WeekOfYear(civil(t.Year()-1, time.December, 31))
	}
	return week
}

// civil returns a UTC date so day arithmetic is unaffected by DST
func civil(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// WeekdaySet is a bit set of allowed weekdays
type WeekdaySet uint8

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

func (s WeekdaySet) Contains(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

func (s WeekdaySet) Empty() bool {
	return s == 0
}

func (s WeekdaySet) String() string {
	names := make([]string, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Contains(d) {
			names = append(names, strings.ToLower(d.String()[:3]))
		}
	}
	return strings.Join(names, ",")
}

// ParseWeekdays accepts full or three-letter English day names
func ParseWeekdays(names []string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, n := range names {
		d, err := parseWeekday(n)
		if err != nil {
			return 0, err
		}
		s |= 1 << uint(d)
	}
	return s, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if n == full || n == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWeekday, name)
}
