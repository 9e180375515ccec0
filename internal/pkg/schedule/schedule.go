package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Schedule defines when a scheduled processor should run.
type Schedule interface {
	// NextRun returns the next run time strictly after from, or Never.
	NextRun(from time.Time) time.Time
	// String returns a human-readable representation of the schedule.
	String() string
}

// OneShot is implemented by schedules that fire a single time
type OneShot interface {
	RunsOnce() bool
}

// Never is the "no further runs" sentinel, the latest instant the
// calculator ever returns.
var Never = time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC)

var (
	ErrInvalidFrequency = errors.New("frequency multiplier must be a positive integer")
	ErrUnknownFrequency = errors.New("unknown frequency")
	ErrUnknownWeekday   = errors.New("unknown weekday")
)

// Frequency is the calendar unit a schedule repeats in
type Frequency int

const (
	None Frequency = iota
	Month
	Week
	Day
	Hour
	Minute
	Second
)

var frequencyNames = map[Frequency]string{
	None:   "none",
	Month:  "month",
	Week:   "week",
	Day:    "day",
	Hour:   "hour",
	Minute: "minute",
	Second: "second",
}

func (f Frequency) String() string {
	if s, ok := frequencyNames[f]; ok {
		return s
	}
	return fmt.Sprintf("frequency(%d)", int(f))
}

// ParseFrequency parses a frequency name; the empty string means None
func ParseFrequency(s string) (Frequency, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return None, nil
	}
	for f, name := range frequencyNames {
		if name == s {
			return f, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
}

// Info is a calendar recurrence rule. Zero EarliestRun/LatestRun mean unset.
type Info struct {
	EarliestRun time.Time
	LatestRun   time.Time
	Frequency   Frequency
	Every       int
	Offset      time.Duration
	// Weekdays restricts day frequency to the given days; ignored otherwise
	Weekdays WeekdaySet
}

// Option customizes an Info at construction
type Option func(*Info)

// WithEarliestRun sets the first instant the schedule may fire at
func WithEarliestRun(t time.Time) Option {
	return func(i *Info) { i.EarliestRun = t }
}

// WithLatestRun sets the last instant the schedule may fire at
func WithLatestRun(t time.Time) Option {
	return func(i *Info) { i.LatestRun = t }
}

// WithWeekdays restricts a day schedule to the given weekdays
func WithWeekdays(days ...time.Weekday) Option {
	return func(i *Info) { i.Weekdays = NewWeekdaySet(days...) }
}

// New creates a calendar schedule firing every `every` units of freq,
// shifted by offset from the unit boundary.
func New(freq Frequency, every int, offset time.Duration, opts ...Option) (*Info, error) {
	if every <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrequency, every)
	}
	if _, ok := frequencyNames[freq]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFrequency, int(freq))
	}

	info := &Info{
		Frequency: freq,
		Every:     every,
		Offset:    offset,
	}
	for _, opt := range opts {
		opt(info)
	}
	return info, nil
}

// RunsOnce reports whether NextRun just echoes its reference instant.
// Second frequency is not supported and behaves like None.
func (s *Info) RunsOnce() bool {
	return s.Frequency == None || s.Frequency == Second
}

// NextRun computes the next run instant after ref
func (s *Info) NextRun(ref time.Time) time.Time {
	if !s.EarliestRun.IsZero() && s.EarliestRun.After(ref) {
		ref = s.EarliestRun
	}
	if !s.LatestRun.IsZero() && s.LatestRun.Before(ref) {
		return Never
	}

	var next time.Time
	switch s.Frequency {
	case Month:
		next = s.nextMonth(ref)
	case Week:
		next = s.nextWeek(ref)
	case Day:
		if !s.Weekdays.Empty() {
			next = s.nextWeekday(ref)
		} else {
			next = s.nextDay(ref)
		}
	case Hour:
		next = s.nextHour(ref)
	case Minute:
		next = s.nextMinute(ref)
	default:
		return ref
	}

	if !s.LatestRun.IsZero() && next.After(s.LatestRun) {
		return Never
	}
	return next
}

func (s *Info) nextMonth(ref time.Time) time.Time {
	idx := int(ref.Month()) - 1
	idx -= idx % s.Every
	start := time.Date(ref.Year(), time.Month(idx+1), 1, 0, 0, 0, 0, ref.Location())
	return s.advance(start, ref, func(t time.Time) time.Time {
		return t.AddDate(0, s.Every, 0)
	})
}

func (s *Info) nextWeek(ref time.Time) time.Time {
	day := midnight(ref)
	monday := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	back := (WeekOfYear(ref) - 1) % s.Every
	start := monday.AddDate(0, 0, -7*back)
	return s.advance(start, ref, func(t time.Time) time.Time {
		return t.AddDate(0, 0, 7*s.Every)
	})
}

func (s *Info) nextDay(ref time.Time) time.Time {
	back := (ref.YearDay() - 1) % s.Every
	start := midnight(ref).AddDate(0, 0, -back)
	return s.advance(start, ref, func(t time.Time) time.Time {
		return t.AddDate(0, 0, s.Every)
	})
}

// nextWeekday walks day by day to the first allowed weekday whose
// offset instant lies after ref.
func (s *Info) nextWeekday(ref time.Time) time.Time {
	day := midnight(ref)
	for i := 0; i <= 7; i++ {
		d := day.AddDate(0, 0, i)
		if !s.Weekdays.Contains(d.Weekday()) {
			continue
		}
		if c := d.Add(s.Offset); c.After(ref) {
			return c
		}
	}
	// Offsets longer than a week can push every candidate before ref
	return s.advance(day.AddDate(0, 0, 8), ref, func(t time.Time) time.Time {
		return t.AddDate(0, 0, 1)
	})
}

func (s *Info) nextHour(ref time.Time) time.Time {
	back := ref.Hour() % s.Every
	top := time.Date(ref.Year(), ref.Month(), ref.Day(), ref.Hour(), 0, 0, 0, ref.Location())
	start := top.Add(-time.Duration(back) * time.Hour)
	step := time.Duration(s.Every) * time.Hour
	return s.advance(start, ref, func(t time.Time) time.Time {
		return t.Add(step)
	})
}

func (s *Info) nextMinute(ref time.Time) time.Time {
	back := ref.Minute() % s.Every
	top := time.Date(ref.Year(), ref.Month(), ref.Day(), ref.Hour(), ref.Minute(), 0, 0, ref.Location())
	start := top.Add(-time.Duration(back) * time.Minute)
	step := time.Duration(s.Every) * time.Minute
	return s.advance(start, ref, func(t time.Time) time.Time {
		return t.Add(step)
	})
}

// advance steps boundary forward until boundary+offset is after ref.
func (s *Info) advance(boundary, ref time.Time, step func(time.Time) time.Time) time.Time {
	for {
		if c := boundary.Add(s.Offset); c.After(ref) {
			if s.Frequency == Day && !s.Weekdays.Empty() && !s.Weekdays.Contains(c.Weekday()) {
				boundary = step(boundary)
				continue
			}
			return c
		}
		boundary = step(boundary)
	}
}

func (s *Info) String() string {
	var b strings.Builder
	if s.Frequency == None {
		b.WriteString("once")
	} else {
		fmt.Fprintf(&b, "every %d %s", s.Every, s.Frequency)
	}
	if s.Offset != 0 {
		fmt.Fprintf(&b, " +%s", s.Offset)
	}
	if s.Frequency == Day && !s.Weekdays.Empty() {
		fmt.Fprintf(&b, " on %s", s.Weekdays)
	}
	if !s.EarliestRun.IsZero() {
		fmt.Fprintf(&b, " from %s", s.EarliestRun.Format(time.RFC3339))
	}
	if !s.LatestRun.IsZero() {
		fmt.Fprintf(&b, " until %s", s.LatestRun.Format(time.RFC3339))
	}
	return b.String()
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
